// Package crm wraps the CRM contact API (users and persons endpoints).
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/samvad-hq/samvad-contact-enricher/pkg/httpclient"
)

const (
	DefaultBaseURL = "https://api.pipedrive.com"

	EndpointCurrentUser = "current-user"
	EndpointContacts    = "contacts"

	tokenParam = "api_token"
)

// ErrInvalidPage is returned for pagination parameters out of range.
var ErrInvalidPage = errors.New("invalid pagination parameters")

// DefaultSource returns the descriptor of the public CRM API.
func DefaultSource() httpclient.Source {
	return httpclient.Source{
		BaseURL: DefaultBaseURL,
		Endpoints: map[string]string{
			EndpointCurrentUser: "/v1/users/me/",
			EndpointContacts:    "/api/v1/persons/",
		},
	}
}

// Page selects a window of a list endpoint.
type Page struct {
	Start int
	Limit int
}

// Validate checks Start >= 0 and Limit > 0.
func (p Page) Validate() error {
	if p.Start < 0 {
		return fmt.Errorf("%w: start must be an integer equal or greater than 0", ErrInvalidPage)
	}
	if p.Limit <= 0 {
		return fmt.Errorf("%w: limit must be an integer greater than 0", ErrInvalidPage)
	}
	return nil
}

// Client talks to the CRM API with a personal token.
type Client struct {
	api   *httpclient.Client
	token string
	log   httpclient.Logger
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

// WithHealthcheck enables the pre-flight health check. The source must
// declare a healthcheck path.
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

// New builds a CRM client authenticated with token.
func New(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("crm api token is required")
	}

	o := options{source: DefaultSource()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	log := httpclient.EnsureLogger(o.log)

	httpOpts := make([]httpclient.Option, 0, len(o.httpOpts)+1)
	httpOpts = append(httpOpts, httpclient.WithLogger(log))
	httpOpts = append(httpOpts, o.httpOpts...)

	api, err := httpclient.New(o.source, o.enforceHC, httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("build crm http client: %w", err)
	}
	return &Client{api: api, token: token, log: log}, nil
}

func (c *Client) params() map[string]string {
	return map[string]string{tokenParam: c.token}
}

// AccountDomain returns the company domain the token belongs to.
func (c *Client) AccountDomain(ctx context.Context) (string, error) {
	domain, err := c.accountDomain(ctx)
	if err != nil {
		c.log.ErrorObj("failed to get company domain with provided api token", "crm_error", map[string]any{
			"error": err.Error(),
		})
		return "", err
	}
	return domain, nil
}

func (c *Client) accountDomain(ctx context.Context) (string, error) {
	res, err := c.api.Get(ctx, EndpointCurrentUser, httpclient.RequestOptions{Params: c.params()})
	if err != nil {
		return "", err
	}
	resp, err := decodeResponse(res)
	if err != nil {
		return "", err
	}

	var user struct {
		CompanyDomain string `json:"company_domain"`
	}
	if err := json.Unmarshal(resp.Data, &user); err != nil {
		return "", fmt.Errorf("decode current user: %w", err)
	}
	return user.CompanyDomain, nil
}

// ListContacts returns the company contacts. With a nil page the API
// default window is returned and the cursor is always nil. With a page the
// cursor points at the next start, or is nil when the collection ends.
func (c *Client) ListContacts(ctx context.Context, page *Page) ([]Contact, *int, error) {
	params := c.params()
	if page != nil {
		if err := page.Validate(); err != nil {
			return nil, nil, err
		}
		params["start"] = strconv.Itoa(page.Start)
		params["limit"] = strconv.Itoa(page.Limit)
	}

	domain, err := c.AccountDomain(ctx)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.listContacts(ctx, params)
	if err != nil {
		c.log.ErrorObj("failed to get company contacts", "crm_error", map[string]any{
			"page":  page,
			"error": err.Error(),
		})
		return nil, nil, err
	}

	var next *int
	if page != nil {
		p, _ := resp.Pagination()
		if p != nil && p.MoreItemsInCollection && p.NextStart != nil {
			n := *p.NextStart
			next = &n
		}
	}

	contacts, err := decodeContacts(resp.Data)
	if err != nil {
		c.log.ErrorObj("failed to decode company contacts", "crm_error", map[string]any{
			"page":  page,
			"error": err.Error(),
		})
		return nil, nil, err
	}

	if contacts == nil {
		c.log.WarnObj("list of contacts is empty", "crm_contacts", map[string]any{
			"company_domain": domain,
		})
	} else {
		c.log.InfoObj("retrieved list of contacts", "crm_contacts", map[string]any{
			"company_domain": domain,
			"count":          len(contacts),
		})
	}
	return contacts, next, nil
}

func (c *Client) listContacts(ctx context.Context, params map[string]string) (*Response, error) {
	res, err := c.api.Get(ctx, EndpointContacts, httpclient.RequestOptions{Params: params})
	if err != nil {
		return nil, err
	}
	return decodeResponse(res)
}

// UpdateContact writes fields onto the contact with the given id and
// returns the CRM response.
func (c *Client) UpdateContact(ctx context.Context, id int64, fields map[string]any) (*Response, error) {
	resp, err := c.updateContact(ctx, id, fields)
	if err != nil {
		c.log.ErrorObj("failed to update contact", "crm_error", map[string]any{
			"contact_id": id,
			"error":      err.Error(),
		})
		return nil, err
	}
	return resp, nil
}

func (c *Client) updateContact(ctx context.Context, id int64, fields map[string]any) (*Response, error) {
	url, err := c.api.ResolveWith(EndpointContacts, strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}
	res, err := c.api.Do(ctx, http.MethodPost, url, httpclient.RequestOptions{
		Params:  c.params(),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    fields,
	})
	if err != nil {
		return nil, err
	}
	return decodeResponse(res)
}

// decodeContacts keeps every list element, objects or not.
func decodeContacts(data json.RawMessage) ([]Contact, error) {
	if isNullJSON(data) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}
	if items == nil {
		return nil, nil
	}
	contacts := make([]Contact, 0, len(items))
	for i, item := range items {
		var c Contact
		if err := json.Unmarshal(item, &c); err != nil {
			return nil, fmt.Errorf("decode contact %d: %w", i, err)
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// decodeResponse turns a client Result into a CRM Response, promoting
// success=false into an *APIError.
func decodeResponse(res *httpclient.Result) (*Response, error) {
	if res.Failed() {
		return nil, &httpclient.HealthError{Message: res.HealthError}
	}
	var resp Response
	if err := res.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode crm response (status %d): %w", res.StatusCode, err)
	}
	if !resp.Success {
		return &resp, &APIError{
			StatusCode: res.StatusCode,
			Message:    resp.Error,
			Info:       resp.ErrorInfo,
		}
	}
	return &resp, nil
}
