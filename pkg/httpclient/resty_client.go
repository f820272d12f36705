package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultTimeout bounds a single request when no timeout option is given.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects matches the net/http default.
	DefaultMaxRedirects = 10

	healthcheckFailedMsg = "failed to validate api healthcheck, please check the logs for more information"
)

// RequestOptions carries the per-call transport options.
type RequestOptions struct {
	Params  map[string]string
	Headers map[string]string
	Body    any
}

// Client dispatches requests against a Source and normalizes the outcome
// into a Result.
type Client struct {
	src       Source
	healthURL string
	enforceHC bool
	client    *resty.Client
	log       Logger
}

type settings struct {
	timeout      time.Duration
	maxRedirects int
	transport    http.RoundTripper
	client       *resty.Client
	log          Logger
}

// Option customizes a Client.
type Option func(*settings)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxRedirects sets how many redirects are followed before failing
// with ErrTooManyRedirects.
func WithMaxRedirects(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.maxRedirects = n
		}
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *settings) { s.transport = rt }
}

// WithRestyClient uses an already configured resty client. Its redirect
// policy is overwritten.
func WithRestyClient(c *resty.Client) Option {
	return func(s *settings) { s.client = c }
}

// WithLogger sets the logger.
func WithLogger(log Logger) Option {
	return func(s *settings) { s.log = log }
}

// New builds a Client for src. When enforceHealthcheck is set every request
// is preceded by a GET against the source's healthcheck path.
func New(src Source, enforceHealthcheck bool, opts ...Option) (*Client, error) {
	cfg := settings{timeout: DefaultTimeout, maxRedirects: DefaultMaxRedirects}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	log := EnsureLogger(cfg.log)

	src = src.Clone()
	if err := src.Validate(enforceHealthcheck); err != nil {
		log.ErrorObj("invalid api source", "api_source_error", map[string]any{
			"base_url": src.BaseURL,
			"error":    err.Error(),
		})
		return nil, err
	}

	client := cfg.client
	if client == nil {
		client = newRestyBaseClient(cfg.timeout)
	}
	if cfg.transport != nil {
		client.SetTransport(cfg.transport)
	}
	client.SetRedirectPolicy(limitRedirects(cfg.maxRedirects))

	c := &Client{
		src:       src,
		enforceHC: enforceHealthcheck,
		client:    client,
		log:       log,
	}
	if enforceHealthcheck {
		c.healthURL = src.BaseURL + src.Healthcheck
	}
	return c, nil
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	return newRestyBaseClient(timeout)
}

// newRestyBaseClient creates a new resty.Client with the specified timeout.
func newRestyBaseClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	c.SetTimeout(timeout)
	return c
}

func limitRedirects(limit int) resty.RedirectPolicyFunc {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= limit {
			return fmt.Errorf("stopped after %d redirects: %w", limit, ErrTooManyRedirects)
		}
		return nil
	}
}

// Source returns a copy of the descriptor the client was built with.
func (c *Client) Source() Source { return c.src.Clone() }

// Resolve returns the absolute URL for an endpoint key.
func (c *Client) Resolve(key string) (string, error) {
	path, ok := c.src.Endpoints[key]
	if !ok {
		c.log.ErrorObj("invalid api source", "api_source_error", map[string]any{
			"base_url":     c.src.BaseURL,
			"endpoint_key": key,
		})
		return "", fmt.Errorf("%w: %q", ErrEndpointNotFound, key)
	}
	return c.src.BaseURL + path, nil
}

// ResolveWith returns the URL for key with suffix appended to its path,
// e.g. a resource id.
func (c *Client) ResolveWith(key, suffix string) (string, error) {
	u, err := c.Resolve(key)
	if err != nil {
		return "", err
	}
	return u + suffix, nil
}

// HealthCheck issues a GET against url. It returns http.StatusOK when the
// upstream is healthy and a *HealthError otherwise; transport failures are
// folded into the HealthError rather than returned as TransportError.
func (c *Client) HealthCheck(ctx context.Context, url string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := c.client.R().SetContext(ctx).Get(url)
	if err != nil {
		terr := classify(http.MethodGet, url, err)
		c.log.ErrorObj("api healthcheck failed", "healthcheck_error", map[string]any{
			"url":   url,
			"kind":  terr.Kind,
			"error": err.Error(),
		})
		return 0, &HealthError{Message: healthcheckFailedMsg, Err: terr}
	}

	code := resp.StatusCode()
	c.log.InfoObj("api healthcheck completed", "healthcheck", map[string]any{
		"url":         url,
		"status_code": code,
	})
	if code != http.StatusOK {
		return code, &HealthError{
			StatusCode: code,
			Message:    fmt.Sprintf("api healthcheck not ok -> (%d) %s", code, reason(code, resp.Status())),
		}
	}
	return code, nil
}

// Get resolves key and issues a GET.
func (c *Client) Get(ctx context.Context, key string, opts RequestOptions) (*Result, error) {
	url, err := c.Resolve(key)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, http.MethodGet, url, opts)
}

// Post resolves key and issues a POST.
func (c *Client) Post(ctx context.Context, key string, opts RequestOptions) (*Result, error) {
	url, err := c.Resolve(key)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, http.MethodPost, url, opts)
}

// Do issues a GET or POST against url. Any HTTP status yields a Result;
// only transport failures are returned as errors (*TransportError). A failed
// health check yields a Result carrying HealthError and no primary call.
func (c *Client) Do(ctx context.Context, method, url string, opts RequestOptions) (*Result, error) {
	verb := strings.ToUpper(strings.TrimSpace(method))
	if verb != http.MethodGet && verb != http.MethodPost {
		c.log.ErrorObj("unsupported request method", "http_request_error", map[string]any{
			"method": method,
			"url":    url,
		})
		return nil, fmt.Errorf("%w: %q (supported: GET, POST)", ErrUnsupportedMethod, method)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if c.enforceHC {
		if _, err := c.HealthCheck(ctx, c.healthURL); err != nil {
			return &Result{HealthError: err.Error()}, nil
		}
	}

	req := c.client.R().SetContext(ctx)
	if len(opts.Params) > 0 {
		req.SetQueryParams(opts.Params)
	}
	if len(opts.Headers) > 0 {
		req.SetHeaders(opts.Headers)
	}
	if opts.Body != nil {
		req.SetBody(opts.Body)
	}

	resp, err := req.Execute(verb, url)
	if err != nil {
		terr := classify(verb, url, err)
		c.log.ErrorObj("http request failed", "http_request_error", map[string]any{
			"method": verb,
			"url":    url,
			"params": redactParams(opts.Params),
			"kind":   terr.Kind,
			"error":  err.Error(),
		})
		return nil, terr
	}

	code := resp.StatusCode()
	c.log.InfoObj("http request completed", "http_request", map[string]any{
		"method":      verb,
		"url":         url,
		"params":      redactParams(opts.Params),
		"status_code": code,
	})

	res := newResult(code, resp.Status(), resp.Body())
	switch {
	case !IsSuccessCode(code):
		c.log.ErrorObj("api returned an error", "http_response_error", map[string]any{
			"url":         url,
			"status_code": code,
			"reason":      reason(code, resp.Status()),
		})
	case res.IsJSON() && isEmptyJSON(res.Body):
		c.log.WarnObj("empty response", "http_response", map[string]any{
			"url":    url,
			"params": redactParams(opts.Params),
		})
	}
	if !res.IsJSON() {
		c.log.WarnObj("response is not valid json; returning raw bytes", "http_response", map[string]any{
			"url":        url,
			"params":     redactParams(opts.Params),
			"body_bytes": len(res.Raw),
		})
	}
	return res, nil
}

// classify maps a transport error onto one of the three failure kinds.
func classify(method, url string, err error) *TransportError {
	kind := KindRequest
	var netErr net.Error
	switch {
	case errors.Is(err, ErrTooManyRedirects):
		kind = KindTooManyRedirects
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &TransportError{Kind: kind, Method: method, URL: url, Err: err}
}

// reason extracts the reason phrase from a status line like "404 Not Found".
func reason(code int, status string) string {
	r := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(status), strconv.Itoa(code)))
	if r == "" {
		return http.StatusText(code)
	}
	return r
}

var secretParamHints = []string{"token", "key", "secret", "password"}

func redactParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		lower := strings.ToLower(k)
		for _, hint := range secretParamHints {
			if strings.Contains(lower, hint) {
				v = "[redacted]"
				break
			}
		}
		out[k] = v
	}
	return out
}
