package core

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"snulms/lib/htmlutil"
	"snulms/lib/telemetry"
	"snulms/lib/transport"
	"snulms/lib/urlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/lms/core")

const (
	report_client_login           = "client.login"
	report_client_check_session   = "client.check-session"
	report_client_get_session_key = "client.get-session-key"
	report_client_logout          = "client.logout"
)

const (
	loginPath  = "/login/index.php"
	logoutPath = "/login/logout.php"

	loggedInPhrase    = "You are logged in as"
	notLoggedInPhrase = "You are not logged in."
)

// Transport is the http session the client drives. Implementations must keep
// cookies across calls.
type Transport interface {
	Get(ctx context.Context, endpoint string) (transport.Response, error)
	PostForm(ctx context.Context, endpoint string, form map[string]string) (transport.Response, error)
	Dump() ([]byte, error)
	Restore(blob []byte) error
	BaseUrl() *url.URL
}

// Client manages the authentication state of a single portal session.
type Client struct {
	http Transport
	tel  telemetry.API

	mutex   sync.Mutex
	sesskey string
	state   State
}

func NewClient(http Transport, tel telemetry.API) *Client {
	return &Client{
		http:  http,
		tel:   telemetry.NewScopedAPI("lms_core", tel),
		state: StateUnauthenticated,
	}
}

// Http exposes the underlying transport so other scrapers can issue requests
// with the same session.
func (c *Client) Http() Transport {
	return c.http
}

func (c *Client) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Sesskey returns the last session key that was derived, it is empty when
// the session is not known to be authenticated.
func (c *Client) Sesskey() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.sesskey
}

func (c *Client) setAuthenticated(sesskey string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sesskey = sesskey
	c.state = StateAuthenticated
}

func (c *Client) setState(state State) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sesskey = ""
	c.state = state
}

func parseDocument(res transport.Response) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, err
	}
	doc.Url = res.Url
	return doc, nil
}

// LoginUsernamePassword submits credentials through the login form. It only
// establishes the session, resolving the user is left to the caller.
func (c *Client) LoginUsernamePassword(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "client:LoginUsernamePassword")
	defer span.End()

	if username == "" || password == "" {
		span.SetStatus(codes.Error, "missing credentials")
		return ErrMissingCredentials
	}

	res, err := c.http.Get(ctx, loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return fmt.Errorf("fetch login page: %w", err)
	}
	doc, err := parseDocument(res)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page")
		return fmt.Errorf("parse login page: %w", err)
	}

	logintoken := doc.Find("input[name=logintoken]").AttrOr("value", "")
	if logintoken == "" {
		c.tel.ReportBroken(report_client_login, "login token field is missing")
		span.SetStatus(codes.Error, "failed to find login token")
		return fmt.Errorf("%w: could not find login token", ErrUnknown)
	}

	_, err = c.http.PostForm(ctx, loginPath, map[string]string{
		"anchor":     "",
		"logintoken": logintoken,
		"username":   username,
		"password":   password,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return fmt.Errorf("submit login form: %w", err)
	}

	valid, err := c.CheckSession(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "failed to check session after login")
		return err
	}
	if !valid {
		span.SetStatus(codes.Error, ErrBadCredentials.Error())
		return ErrBadCredentials
	}
	return nil
}

// CheckSession tells whether the session is logged in by reading the login
// status line of the login page. A valid session also refreshes the session
// key. Text matching neither known phrase is an ErrUnknown, never false.
func (c *Client) CheckSession(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "client:CheckSession")
	defer span.End()

	res, err := c.http.Get(ctx, loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return false, fmt.Errorf("fetch login page: %w", err)
	}
	doc, err := parseDocument(res)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page")
		return false, fmt.Errorf("parse login page: %w", err)
	}

	info := doc.Find(".logininfo")
	if info.Length() == 0 {
		c.tel.ReportBroken(report_client_check_session, "login info element is missing")
		span.SetStatus(codes.Error, "failed to find login info")
		return false, fmt.Errorf("%w: could not find login status", ErrUnknown)
	}
	text := htmlutil.Text(info)

	switch {
	case strings.Contains(text, loggedInPhrase):
		_, err := c.GetSessionKey(ctx)
		if err != nil {
			span.SetStatus(codes.Error, "failed to refresh session key")
			return false, err
		}
		return true, nil
	case strings.Contains(text, notLoggedInPhrase):
		c.setState(StateUnauthenticated)
		return false, nil
	}

	c.tel.ReportBroken(report_client_check_session, "unrecognized login status", text)
	span.SetStatus(codes.Error, "unrecognized login status")
	return false, fmt.Errorf("%w: unrecognized login status '%s'", ErrUnknown, text)
}

// GetSessionKey derives the session key from the "Log out" action of the
// user menu and stores it on the client.
func (c *Client) GetSessionKey(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "client:GetSessionKey")
	defer span.End()

	res, err := c.http.Get(ctx, "/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch base page")
		return "", fmt.Errorf("fetch base page: %w", err)
	}
	doc, err := parseDocument(res)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse base page")
		return "", fmt.Errorf("parse base page: %w", err)
	}

	anchors := htmlutil.GetAnchors(res.Url, doc.Find("a.dropdown-item"))
	logout, ok := htmlutil.FindAnchor(anchors, "Log out")
	if !ok {
		c.tel.ReportBroken(report_client_get_session_key, "log out action is missing")
		span.SetStatus(codes.Error, "failed to find log out action")
		return "", fmt.Errorf("%w: could not find log out action", ErrUnknown)
	}
	sesskey, err := urlutil.ExtractParam("sesskey", logout.Url.String())
	if err != nil {
		c.tel.ReportBroken(report_client_get_session_key, "log out action has no session key", logout.Url.String())
		span.SetStatus(codes.Error, "failed to read session key")
		return "", fmt.Errorf("%w: %w", ErrUnknown, err)
	}

	c.setAuthenticated(sesskey)
	return sesskey, nil
}

// Logout ends the session on the portal. Calling it without a session key is
// an error and sends nothing. A stale session key gets a confirmation page
// instead of a logout, so the session is checked again afterwards.
func (c *Client) Logout(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Logout")
	defer span.End()

	sesskey := c.Sesskey()
	if sesskey == "" {
		span.SetStatus(codes.Error, ErrNotAuthenticated.Error())
		return ErrNotAuthenticated
	}

	_, err := c.http.Get(ctx, fmt.Sprintf("%s?sesskey=%s", logoutPath, url.QueryEscape(sesskey)))
	if err != nil {
		c.tel.ReportWarning(report_client_logout, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make logout request")
		return fmt.Errorf("logout: %w", err)
	}

	valid, err := c.CheckSession(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "failed to check session after logout")
		return fmt.Errorf("logout: %w", err)
	}
	if valid {
		c.tel.ReportWarning(report_client_logout, "session survived logout")
		span.SetStatus(codes.Error, ErrLogoutRejected.Error())
		return ErrLogoutRejected
	}
	return nil
}

// DumpSession serializes the transport state, it does not include the
// session key or any resolved user data.
func (c *Client) DumpSession() ([]byte, error) {
	return c.http.Dump()
}

// RestoreSession replaces the transport state with a dump. The restored
// session is in StateUnknown until CheckSession has checked it.
func (c *Client) RestoreSession(blob []byte) error {
	err := c.http.Restore(blob)
	if err != nil {
		return err
	}
	c.setState(StateUnknown)
	return nil
}
