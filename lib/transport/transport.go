package transport

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"snulms/lib/restyutil"
	"snulms/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Response is what the scrapers see of an exchange, the body is fully read.
type Response struct {
	Status int
	// Url is the final url of the exchange after redirects.
	Url  *url.URL
	Body []byte
}

// StatusError is returned for any response with a 4xx or 5xx status.
type StatusError struct {
	Method string
	Url    string
	Status int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Url, e.Status)
}

type Options struct {
	BaseUrl   string
	UserAgent string
	// Timeout defaults to 30 seconds.
	Timeout time.Duration
	// RateLimit is the maximum requests per second, zero disables limiting.
	RateLimit float64
	// CloudflareBypass wraps the transport so requests carry a browser-like
	// TLS fingerprint.
	CloudflareBypass bool
	Telemetry        telemetry.API
	// HttpDump receives the text of every exchange when set.
	HttpDump restyutil.InstrumentOutput
}

// Session is a cookie-carrying http client bound to a single portal.
//
// Requests hold a read lock for their whole duration, Restore takes the
// write lock so a cookie jar is never swapped out under an in-flight request.
type Session struct {
	mutex   sync.RWMutex
	http    *resty.Client
	jar     *cookiejar.Jar
	baseUrl *url.URL
	id      string
}

func New(opts Options) (*Session, error) {
	baseUrl, err := parseBaseUrl(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		resty.DomainCheckRedirectPolicy(baseUrl.Hostname()),
	)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}
	telemetry.InstrumentResty(client, telemetry.NewScopedAPI("transport", tel), "lms/http")
	restyutil.InstrumentClient(client, opts.HttpDump)

	return &Session{
		http:    client,
		jar:     jar,
		baseUrl: baseUrl,
		id:      uuid.NewString(),
	}, nil
}

func parseBaseUrl(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("base url is empty")
	}
	baseUrl, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseUrl.Scheme != "http" && baseUrl.Scheme != "https" {
		return nil, fmt.Errorf("base url '%s' must be http or https", raw)
	}
	if baseUrl.Host == "" {
		return nil, fmt.Errorf("base url '%s' has no host", raw)
	}
	baseUrl.RawQuery = ""
	baseUrl.Fragment = ""
	baseUrl.Path = strings.TrimSuffix(baseUrl.Path, "/")
	baseUrl.RawPath = ""
	return baseUrl, nil
}

func (s *Session) BaseUrl() *url.URL {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	copied := *s.baseUrl
	return &copied
}

// Id identifies the session across dumps, it is regenerated for every new
// session and carried over by Restore.
func (s *Session) Id() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.id
}

// resolve joins an endpoint like "/user/profile.php?id=3" onto the base url,
// absolute urls are kept as is.
func (s *Session) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return s.baseUrl.String() + "/" + strings.TrimPrefix(endpoint, "/")
}

func (s *Session) do(ctx context.Context, req *resty.Request, method, endpoint string) (Response, error) {
	target := s.resolve(endpoint)
	res, err := req.SetContext(ctx).Execute(method, target)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", method, target, err)
	}

	finalUrl, _ := url.Parse(target)
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL
	}

	if res.StatusCode() >= 400 {
		return Response{}, StatusError{
			Method: method,
			Url:    target,
			Status: res.StatusCode(),
		}
	}
	return Response{
		Status: res.StatusCode(),
		Url:    finalUrl,
		Body:   res.Body(),
	}, nil
}

func (s *Session) Get(ctx context.Context, endpoint string) (Response, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.do(ctx, s.http.R(), resty.MethodGet, endpoint)
}

func (s *Session) PostForm(ctx context.Context, endpoint string, form map[string]string) (Response, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.do(ctx, s.http.R().SetFormData(form), resty.MethodPost, endpoint)
}
