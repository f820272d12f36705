// Package profiles wraps the LinkedIn profile-lookup API.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-contact-enricher/pkg/httpclient"
)

const (
	DefaultBaseURL = "https://nubela.co"

	EndpointProfile      = "profile"
	EndpointResolveEmail = "resolve-email"
)

// DefaultSource returns the descriptor of the public profile-lookup API.
func DefaultSource() httpclient.Source {
	return httpclient.Source{
		BaseURL: DefaultBaseURL,
		Endpoints: map[string]string{
			EndpointProfile:      "/proxycurl/api/v2/linkedin",
			EndpointResolveEmail: "/proxycurl/api/linkedin/profile/resolve/email",
		},
	}
}

// Client queries the profile-lookup API with a bearer key. Its methods
// hand back the raw envelope; see ParseProfile and ParseResolvedURL for
// typed access.
type Client struct {
	api    *httpclient.Client
	apiKey string
	log    httpclient.Logger
}

type options struct {
	source    httpclient.Source
	enforceHC bool
	httpOpts  []httpclient.Option
	log       httpclient.Logger
}

// Option customizes a Client.
type Option func(*options)

// WithSource overlays src onto the default descriptor.
func WithSource(src httpclient.Source) Option {
	return func(o *options) { o.source = o.source.Merge(src) }
}

// WithBaseURL points the client at another host.
func WithBaseURL(u string) Option {
	return WithSource(httpclient.Source{BaseURL: u})
}

// WithHealthcheck enables the pre-flight health check.
func WithHealthcheck(enforce bool) Option {
	return func(o *options) { o.enforceHC = enforce }
}

// WithHTTPOptions forwards options to the underlying httpclient.
func WithHTTPOptions(opts ...httpclient.Option) Option {
	return func(o *options) { o.httpOpts = append(o.httpOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(log httpclient.Logger) Option {
	return func(o *options) { o.log = log }
}

// New builds a profile-lookup client.
func New(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("profile api key is required")
	}

	o := options{source: DefaultSource()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	log := httpclient.EnsureLogger(o.log)

	httpOpts := append([]httpclient.Option{httpclient.WithLogger(log)}, o.httpOpts...)
	api, err := httpclient.New(o.source, o.enforceHC, httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("build profile http client: %w", err)
	}
	return &Client{api: api, apiKey: apiKey, log: log}, nil
}

// Profile fetches the profile behind a LinkedIn profile URL.
func (c *Client) Profile(ctx context.Context, profileURL string) (*httpclient.Result, error) {
	return c.lookup(ctx, EndpointProfile, "url", profileURL)
}

// ResolveWorkEmail looks up the LinkedIn profile URL of a work email.
func (c *Client) ResolveWorkEmail(ctx context.Context, workEmail string) (*httpclient.Result, error) {
	return c.lookup(ctx, EndpointResolveEmail, "work_email", workEmail)
}

func (c *Client) lookup(ctx context.Context, key, param, value string) (*httpclient.Result, error) {
	res, err := c.api.Get(ctx, key, httpclient.RequestOptions{
		Params:  map[string]string{param: value},
		Headers: map[string]string{"Authorization": "Bearer " + c.apiKey},
	})
	if err != nil {
		c.log.ErrorObj("profile lookup failed", "profile_error", map[string]any{
			"endpoint": key,
			param:      value,
			"error":    err.Error(),
		})
		return nil, err
	}
	return res, nil
}
