// Package lms is the entry point for talking to the portal: it owns one
// transport session and composes session management with profile resolution.
package lms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snulms/lib/restyutil"
	"snulms/lib/scrapers/lms/core"
	"snulms/lib/scrapers/lms/profile"
	"snulms/lib/sessionstore"
	"snulms/lib/telemetry"
	"snulms/lib/transport"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/lms")

const (
	report_client_login        = "client.login"
	report_client_save_session = "client.save-session"
)

type Options struct {
	BaseUrl          string
	UserAgent        string
	Timeout          time.Duration
	RateLimit        float64
	CloudflareBypass bool
	HttpDump         restyutil.InstrumentOutput
	Telemetry        telemetry.API
	// Cache defaults to an in-memory cache.
	Cache profile.ProfileCache
}

type Credentials struct {
	Username string
	Password string
}

func (c *Credentials) usable() bool {
	return c != nil && c.Username != "" && c.Password != ""
}

type LoginOptions struct {
	Credentials  *Credentials
	SavedSession []byte
	// AllowRelogin lets Login fall back to Credentials when SavedSession
	// turns out to be expired.
	AllowRelogin bool
}

type Client struct {
	session  *transport.Session
	core     *core.Client
	profiles *profile.Resolver
	tel      telemetry.API
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}

	session, err := transport.New(transport.Options{
		BaseUrl:          opts.BaseUrl,
		UserAgent:        opts.UserAgent,
		Timeout:          opts.Timeout,
		RateLimit:        opts.RateLimit,
		CloudflareBypass: opts.CloudflareBypass,
		Telemetry:        tel,
		HttpDump:         opts.HttpDump,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		session:  session,
		core:     core.NewClient(session, tel),
		profiles: profile.NewResolver(session, opts.Cache, tel),
		tel:      telemetry.NewScopedAPI("lms", tel),
	}, nil
}

func (c *Client) State() core.State {
	return c.core.State()
}

// SessionId identifies the transport session, it survives dump and restore.
func (c *Client) SessionId() string {
	return c.session.Id()
}

// Login authenticates with a saved session, credentials or both and returns
// the profile of the logged in user.
//
// A saved session is tried first and no credentials are submitted when it is
// still valid. An expired saved session fails with core.ErrSessionExpired
// unless AllowRelogin is set, in which case the credentials are used.
func (c *Client) Login(ctx context.Context, opts LoginOptions) (profile.User, error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	hasCredentials := opts.Credentials.usable()
	hasSession := len(opts.SavedSession) > 0
	span.SetAttributes(
		attribute.Bool("has_credentials", hasCredentials),
		attribute.Bool("has_session", hasSession),
		attribute.Bool("allow_relogin", opts.AllowRelogin),
	)

	if !hasCredentials && !hasSession {
		span.SetStatus(codes.Error, core.ErrMissingCredentials.Error())
		return profile.User{}, core.ErrMissingCredentials
	}

	if hasSession {
		user, err := c.loginSavedSession(ctx, opts.SavedSession)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, core.ErrSessionExpired) || !opts.AllowRelogin {
			span.SetStatus(codes.Error, err.Error())
			return profile.User{}, err
		}
		if !hasCredentials {
			span.SetStatus(codes.Error, core.ErrMissingCredentials.Error())
			return profile.User{}, fmt.Errorf("%w: saved session expired and there is nothing to log in again with", core.ErrMissingCredentials)
		}
		c.tel.ReportDebug(report_client_login, "saved session expired, logging in again")
	}

	err := c.core.LoginUsernamePassword(ctx, opts.Credentials.Username, opts.Credentials.Password)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return profile.User{}, err
	}
	return c.profiles.GetProfile(ctx, true)
}

func (c *Client) loginSavedSession(ctx context.Context, blob []byte) (profile.User, error) {
	err := c.RestoreSession(blob)
	if errors.Is(err, transport.ErrInvalidDump) {
		return profile.User{}, fmt.Errorf("%w: %w", core.ErrSessionExpired, err)
	}
	if err != nil {
		return profile.User{}, err
	}

	valid, err := c.core.CheckSession(ctx)
	if err != nil {
		return profile.User{}, err
	}
	if !valid {
		return profile.User{}, core.ErrSessionExpired
	}
	return c.profiles.GetProfile(ctx, true)
}

// LoginFromStore is Login with the saved session read from and written back
// to `store` under `name`.
func (c *Client) LoginFromStore(ctx context.Context, store sessionstore.SessionStore, name string, credentials *Credentials, allowRelogin bool) (profile.User, error) {
	blob, err := store.Load(ctx, name)
	if err != nil && !errors.Is(err, sessionstore.ErrNotFound) {
		return profile.User{}, err
	}

	user, err := c.Login(ctx, LoginOptions{
		Credentials:  credentials,
		SavedSession: blob,
		AllowRelogin: allowRelogin,
	})
	if err != nil {
		return profile.User{}, err
	}

	err = c.SaveSession(ctx, store, name)
	if err != nil {
		c.tel.ReportWarning(report_client_save_session, err)
	}
	return user, nil
}

func (c *Client) CheckSession(ctx context.Context) (bool, error) {
	return c.core.CheckSession(ctx)
}

// Sesskey derives a fresh session key from the portal.
func (c *Client) Sesskey(ctx context.Context) (string, error) {
	return c.core.GetSessionKey(ctx)
}

func (c *Client) Profile(ctx context.Context, refresh bool) (profile.User, error) {
	return c.profiles.GetProfile(ctx, refresh)
}

func (c *Client) Courses(ctx context.Context, refresh bool) (map[int64]string, error) {
	return c.profiles.GetCourses(ctx, refresh)
}

func (c *Client) User(ctx context.Context, id int64) (profile.User, error) {
	return c.profiles.GetUser(ctx, id)
}

func (c *Client) DumpSession() ([]byte, error) {
	return c.core.DumpSession()
}

// RestoreSession swaps in a dumped session, the cached profile belongs to
// the old session and is dropped.
func (c *Client) RestoreSession(blob []byte) error {
	err := c.core.RestoreSession(blob)
	if err != nil {
		return err
	}
	c.profiles.Forget()
	return nil
}

func (c *Client) SaveSession(ctx context.Context, store sessionstore.SessionStore, name string) error {
	blob, err := c.DumpSession()
	if err != nil {
		return err
	}
	return store.Save(ctx, name, blob)
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.core.Logout(ctx)
	if err != nil {
		return err
	}
	c.profiles.Forget()
	return nil
}
