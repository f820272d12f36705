package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/samvad-hq/samvad-contact-enricher/pkg/httpclient"
)

const (
	tokenOK         = "correct_api_token"
	tokenPersons    = "correct_api_token_persons"
	tokenEmpty      = "correct_api_token_persons_empty"
	tokenAPIError   = "error_api_token"
	tokenTransport  = "except_api_token"
	tokenDomainOnly = "domain_only_token"
	tokenNames      = "correct_api_token_names"
)

const threeContacts = `{
	"success": true,
	"data": [
		{"id": 1, "name": "contact_1", "email": [{"label": "work", "value": "one@example.com", "primary": true}]},
		{"id": 2, "name": "contact_2"},
		{"id": 3, "name": "contact_3"}
	],
	"additional_data": {"pagination": {"start": 0, "limit": 3, "more_items_in_collection": true, "next_start": 4}}
}`

const nameContacts = `{
	"success": true,
	"data": ["contact_1", "contact_2", "contact_3"],
	"additional_data": {"pagination": {"more_items_in_collection": true, "next_start": 4}}
}`

const emptyContacts = `{
	"success": true,
	"data": null,
	"additional_data": {"pagination": {"more_items_in_collection": false}}
}`

const apiFailure = `{"success": false, "error": "Any error", "error_info": "Any Problem"}`

type crmServer struct {
	srv         *httptest.Server
	personsHits atomic.Int32
	lastQuery   atomic.Value
}

func newCRMServer(t *testing.T) *crmServer {
	t.Helper()
	s := &crmServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/users/me/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get(tokenParam) {
		case tokenTransport:
			panic(http.ErrAbortHandler)
		case tokenAPIError:
			writeJSON(w, http.StatusUnauthorized, apiFailure)
		case "":
			writeJSON(w, http.StatusUnauthorized, `{"error": "Invalid API Token"}`)
		default:
			writeJSON(w, http.StatusOK, `{"success": true, "data": {"company_domain": "test_domain"}}`)
		}
	})
	mux.HandleFunc("/api/v1/persons/", func(w http.ResponseWriter, r *http.Request) {
		s.personsHits.Add(1)
		s.lastQuery.Store(r.URL.RawQuery)
		switch r.URL.Query().Get(tokenParam) {
		case tokenPersons:
			writeJSON(w, http.StatusOK, threeContacts)
		case tokenNames:
			writeJSON(w, http.StatusOK, nameContacts)
		case tokenEmpty:
			writeJSON(w, http.StatusOK, emptyContacts)
		case tokenDomainOnly:
			writeJSON(w, http.StatusUnauthorized, apiFailure)
		default:
			writeJSON(w, http.StatusUnauthorized, `{"error": "Invalid API Token"}`)
		}
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newTestClient(t *testing.T, base, token string) *Client {
	t.Helper()
	c, err := New(token, WithBaseURL(base))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if _, err := New("tok", WithHealthcheck(true)); !errors.Is(err, httpclient.ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource without healthcheck path, got %v", err)
	}
}

func TestAccountDomain(t *testing.T) {
	s := newCRMServer(t)
	ctx := context.Background()

	domain, err := newTestClient(t, s.srv.URL, tokenOK).AccountDomain(ctx)
	if err != nil || domain != "test_domain" {
		t.Fatalf("AccountDomain = %q, %v", domain, err)
	}

	_, err = newTestClient(t, s.srv.URL, tokenAPIError).AccountDomain(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Error() != "Any error! Any Problem" || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected api error %q (%d)", apiErr.Error(), apiErr.StatusCode)
	}

	_, err = newTestClient(t, s.srv.URL, tokenTransport).AccountDomain(ctx)
	if !errors.Is(err, httpclient.ErrRequest) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestListContactsValidatesPageBeforeIO(t *testing.T) {
	s := newCRMServer(t)
	c := newTestClient(t, s.srv.URL, tokenPersons)

	for _, p := range []Page{{Start: -1, Limit: 0}, {Start: 0, Limit: 0}} {
		if _, _, err := c.ListContacts(context.Background(), &p); !errors.Is(err, ErrInvalidPage) {
			t.Fatalf("page %+v: expected ErrInvalidPage, got %v", p, err)
		}
	}
	if s.personsHits.Load() != 0 {
		t.Fatalf("expected no network calls, got %d", s.personsHits.Load())
	}
}

func TestListContactsWithoutPagination(t *testing.T) {
	s := newCRMServer(t)
	ctx := context.Background()

	contacts, next, err := newTestClient(t, s.srv.URL, tokenPersons).ListContacts(ctx, nil)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if got := names(contacts); len(got) != 3 || got[0] != "contact_1" || got[2] != "contact_3" {
		t.Fatalf("unexpected contacts %v", got)
	}
	if next != nil {
		t.Fatalf("cursor must be withheld without pagination, got %d", *next)
	}
	if q, _ := s.lastQuery.Load().(string); q != "api_token="+tokenPersons {
		t.Fatalf("unexpected query %q", q)
	}

	contacts, next, err = newTestClient(t, s.srv.URL, tokenEmpty).ListContacts(ctx, nil)
	if err != nil || contacts != nil || next != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v) err=%v", contacts, next, err)
	}
}

func TestListContactsWithPagination(t *testing.T) {
	s := newCRMServer(t)
	ctx := context.Background()

	contacts, next, err := newTestClient(t, s.srv.URL, tokenPersons).ListContacts(ctx, &Page{Start: 0, Limit: 3})
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if len(contacts) != 3 {
		t.Fatalf("expected 3 contacts, got %d", len(contacts))
	}
	if next == nil || *next != 4 {
		t.Fatalf("expected next cursor 4, got %v", next)
	}
	if q, _ := s.lastQuery.Load().(string); q != "api_token="+tokenPersons+"&limit=3&start=0" {
		t.Fatalf("unexpected query %q", q)
	}
	if contacts[0].PrimaryEmail() != "one@example.com" {
		t.Fatalf("unexpected primary email %q", contacts[0].PrimaryEmail())
	}

	contacts, next, err = newTestClient(t, s.srv.URL, tokenEmpty).ListContacts(ctx, &Page{Start: 0, Limit: 3})
	if err != nil || contacts != nil || next != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v) err=%v", contacts, next, err)
	}
}

func TestListContactsKeepsNonObjectElements(t *testing.T) {
	s := newCRMServer(t)
	c := newTestClient(t, s.srv.URL, tokenNames)
	ctx := context.Background()

	contacts, next, err := c.ListContacts(ctx, nil)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if got := names(contacts); len(got) != 3 || got[0] != "contact_1" || got[2] != "contact_3" {
		t.Fatalf("unexpected contacts %v", got)
	}
	if next != nil {
		t.Fatalf("cursor must be withheld without pagination, got %d", *next)
	}
	if string(contacts[1].Raw) != `"contact_2"` {
		t.Fatalf("raw element lost: %s", contacts[1].Raw)
	}
	if out, err := json.Marshal(contacts); err != nil || string(out) != `["contact_1","contact_2","contact_3"]` {
		t.Fatalf("round trip = %s, %v", out, err)
	}

	contacts, next, err = c.ListContacts(ctx, &Page{Start: 0, Limit: 3})
	if err != nil {
		t.Fatalf("ListContacts paged: %v", err)
	}
	if len(contacts) != 3 || next == nil || *next != 4 {
		t.Fatalf("expected 3 contacts and cursor 4, got %d and %v", len(contacts), next)
	}
}

func TestListContactsErrors(t *testing.T) {
	s := newCRMServer(t)
	ctx := context.Background()

	if _, _, err := newTestClient(t, s.srv.URL, tokenTransport).ListContacts(ctx, nil); !errors.Is(err, httpclient.ErrRequest) {
		t.Fatalf("expected transport error, got %v", err)
	}

	var apiErr *APIError
	c := newTestClient(t, s.srv.URL, tokenAPIError)
	if _, _, err := c.ListContacts(ctx, nil); !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if _, _, err := c.ListContacts(ctx, &Page{Start: 0, Limit: 3}); !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError with pagination, got %v", err)
	}

	_, _, err := newTestClient(t, s.srv.URL, tokenDomainOnly).ListContacts(ctx, nil)
	if !errors.As(err, &apiErr) || apiErr.Error() != "Any error! Any Problem" {
		t.Fatalf("expected persons APIError, got %v", err)
	}
}

func TestUpdateContact(t *testing.T) {
	var (
		gotPath  string
		gotQuery string
		gotCT    string
		gotBody  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotCT = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		if r.URL.Query().Get(tokenParam) == tokenAPIError {
			writeJSON(w, http.StatusBadRequest, apiFailure)
			return
		}
		writeJSON(w, http.StatusOK, `{"success": true, "data": "Information", "additional_data": false}`)
	}))
	defer srv.Close()
	ctx := context.Background()

	c := newTestClient(t, srv.URL, tokenOK)
	resp, err := c.UpdateContact(ctx, 7, map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("UpdateContact: %v", err)
	}
	if !resp.Success || string(resp.Data) != `"Information"` {
		t.Fatalf("unexpected response %+v", resp)
	}
	if p, err := resp.Pagination(); p != nil || err != nil {
		t.Fatalf("expected no pagination, got %+v %v", p, err)
	}
	if gotPath != "/api/v1/persons/7" || gotQuery != "api_token="+tokenOK {
		t.Fatalf("unexpected request %s?%s", gotPath, gotQuery)
	}
	if gotCT != "application/json" || gotBody["name"] != "Ada" {
		t.Fatalf("unexpected body %v (content-type %q)", gotBody, gotCT)
	}
	if _, ok := c.api.Source().Endpoints["contact_update"]; ok || len(c.api.Source().Endpoints) != 2 {
		t.Fatalf("update must not register endpoints: %v", c.api.Source().Endpoints)
	}

	var apiErr *APIError
	if _, err := newTestClient(t, srv.URL, tokenAPIError).UpdateContact(ctx, 2, map[string]any{"name": "x"}); !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	if _, err := newTestClient(t, closed.URL, tokenOK).UpdateContact(ctx, 1, nil); !errors.Is(err, httpclient.ErrRequest) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestContactFields(t *testing.T) {
	var c Contact
	raw := `{"id": 9, "name": "Ada", "email": [{"value": "a@x.io"}, {"value": "ada@corp.io", "primary": true}], "abc123": " https://linkedin.com/in/ada "}`
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.ID != 9 || c.PrimaryEmail() != "ada@corp.io" {
		t.Fatalf("unexpected contact %+v", c)
	}
	if got := c.FieldString("abc123"); got != "https://linkedin.com/in/ada" {
		t.Fatalf("FieldString = %q", got)
	}
	if c.FieldString("id") != "" || c.FieldString("missing") != "" {
		t.Fatalf("non-string fields must read as empty")
	}
}

func names(contacts []Contact) []string {
	out := make([]string, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.Name)
	}
	return out
}
