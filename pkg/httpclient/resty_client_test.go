package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestServer mimics an upstream with a healthcheck, a JSON endpoint and
// a few failure modes selected by path.
func newTestServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var dataHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"key1":"value1"}`)
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, _ *http.Request) {
		dataHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"key2":"value2"}`)
	})
	mux.HandleFunc("/unauthorized", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{}`)
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "Non JSON response")
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = io.WriteString(w, `{}`)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"method":       r.Method,
			"query":        r.URL.Query().Get("q"),
			"header":       r.Header.Get("X-Test"),
			"content_type": r.Header.Get("Content-Type"),
			"body":         string(body),
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &dataHits
}

func testSource(base string) Source {
	return Source{
		BaseURL:     base,
		Healthcheck: "/healthcheck",
		Endpoints: map[string]string{
			"data": "/data",
			"echo": "/echo",
		},
	}
}

func TestNewRejectsIncompleteSources(t *testing.T) {
	cases := []struct {
		name    string
		src     Source
		enforce bool
	}{
		{name: "empty", src: Source{}},
		{name: "missing base url", src: Source{Healthcheck: "foo", Endpoints: map[string]string{"a": "/a"}}},
		{name: "missing endpoints", src: Source{BaseURL: "foo"}},
		{name: "missing healthcheck", src: Source{BaseURL: "foo", Endpoints: map[string]string{"a": "/a"}}, enforce: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.src, tc.enforce)
			if !errors.Is(err, ErrInvalidSource) {
				t.Fatalf("expected ErrInvalidSource, got %v", err)
			}
		})
	}

	if _, err := New(Source{BaseURL: "foo", Endpoints: map[string]string{"a": "/a"}}, false); err != nil {
		t.Fatalf("healthcheck should be optional without enforcement: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)
	c, err := New(testSource(srv.URL), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	code, err := c.HealthCheck(ctx, srv.URL+"/healthcheck")
	if err != nil || code != http.StatusOK {
		t.Fatalf("expected 200, got code=%d err=%v", code, err)
	}

	_, err = c.HealthCheck(ctx, srv.URL+"/bad/healthcheck")
	var hErr *HealthError
	if !errors.As(err, &hErr) {
		t.Fatalf("expected HealthError, got %v", err)
	}
	if hErr.Error() != "api healthcheck not ok -> (404) Not Found" {
		t.Fatalf("unexpected message %q", hErr.Error())
	}

	_, err = c.HealthCheck(ctx, "")
	if !errors.As(err, &hErr) {
		t.Fatalf("expected HealthError for transport failure, got %v", err)
	}
	if hErr.Message != healthcheckFailedMsg {
		t.Fatalf("unexpected message %q", hErr.Message)
	}
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected wrapped transport cause, got %v", err)
	}
}

func TestDoNormalizesResponses(t *testing.T) {
	srv, _ := newTestServer(t)
	c, err := New(testSource(srv.URL), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	for _, method := range []string{"get", "post"} {
		res, err := c.Do(ctx, method, srv.URL+"/data", RequestOptions{})
		if err != nil {
			t.Fatalf("%s data: %v", method, err)
		}
		if !res.Success() || string(res.Body) != `{"key2":"value2"}` {
			t.Fatalf("%s data: unexpected result %+v", method, res)
		}

		res, err = c.Do(ctx, method, srv.URL+"/unauthorized", RequestOptions{})
		if err != nil {
			t.Fatalf("%s unauthorized: %v", method, err)
		}
		if res.StatusCode != http.StatusUnauthorized || string(res.Body) != `{}` {
			t.Fatalf("%s unauthorized: unexpected result %+v", method, res)
		}
		out, _ := json.Marshal(res)
		if string(out) != `{"response":{}}` {
			t.Fatalf("%s unauthorized: envelope %s", method, out)
		}

		res, err = c.Do(ctx, method, srv.URL+"/text", RequestOptions{})
		if err != nil {
			t.Fatalf("%s text: %v", method, err)
		}
		if res.IsJSON() || string(res.Raw) != "Non JSON response" {
			t.Fatalf("%s text: expected raw bytes, got %+v", method, res)
		}
		if err := res.Decode(&map[string]any{}); !errors.Is(err, ErrNotJSON) {
			t.Fatalf("%s text: expected ErrNotJSON from Decode, got %v", method, err)
		}

		res, err = c.Do(ctx, method, srv.URL+"/empty", RequestOptions{})
		if err != nil || !res.IsJSON() || !isEmptyJSON(res.Body) {
			t.Fatalf("%s empty: unexpected result %+v err=%v", method, res, err)
		}
	}
}

func TestDoSendsParamsHeadersAndBody(t *testing.T) {
	srv, _ := newTestServer(t)
	c, err := New(testSource(srv.URL), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := c.Post(context.Background(), "echo", RequestOptions{
		Params:  map[string]string{"q": "1"},
		Headers: map[string]string{"X-Test": "yes", "Content-Type": "application/json"},
		Body:    map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	var echo map[string]string
	if err := res.Decode(&echo); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if echo["method"] != http.MethodPost || echo["query"] != "1" || echo["header"] != "yes" {
		t.Fatalf("unexpected echo %#v", echo)
	}
	if !strings.HasPrefix(echo["content_type"], "application/json") || strings.TrimSpace(echo["body"]) != `{"name":"Ada"}` {
		t.Fatalf("unexpected body %#v", echo)
	}
}

func TestDoShortCircuitsOnFailedHealthcheck(t *testing.T) {
	srv, hits := newTestServer(t)
	src := testSource(srv.URL)
	src.Healthcheck = "/missing"
	c, err := New(src, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		res, err := c.Do(context.Background(), method, srv.URL+"/data", RequestOptions{})
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		if !res.Failed() || res.HealthError != "api healthcheck not ok -> (404) Not Found" {
			t.Fatalf("%s: expected healthcheck envelope, got %+v", method, res)
		}
		out, _ := json.Marshal(res)
		if !strings.HasPrefix(string(out), `{"error":`) {
			t.Fatalf("%s: envelope %s", method, out)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("primary endpoint must not be called, got %d hits", hits.Load())
	}
}

func TestDoPassesHealthyCheck(t *testing.T) {
	srv, hits := newTestServer(t)
	c, err := New(testSource(srv.URL), true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := c.Get(context.Background(), "data", RequestOptions{})
	if err != nil || res.Failed() {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one primary call, got %d", hits.Load())
	}
}

func TestDoClassifiesTransportFailures(t *testing.T) {
	srv, _ := newTestServer(t)
	c, err := New(testSource(srv.URL), false, WithTimeout(50*time.Millisecond), WithMaxRedirects(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	_, err = c.Do(ctx, http.MethodGet, srv.URL+"/slow", RequestOptions{})
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, ErrRequest) {
		t.Fatalf("expected timeout, got %v", err)
	}

	_, err = c.Do(ctx, http.MethodPost, srv.URL+"/slow", RequestOptions{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout on post, got %v", err)
	}

	_, err = c.Do(ctx, http.MethodGet, srv.URL+"/loop", RequestOptions{})
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("expected too many redirects, got %v", err)
	}

	_, err = c.Do(ctx, http.MethodGet, "", RequestOptions{})
	var tErr *TransportError
	if !errors.As(err, &tErr) || tErr.Kind != KindRequest {
		t.Fatalf("expected generic request failure, got %v", err)
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("generic failure matched a narrower category: %v", err)
	}
}

func TestDoRejectsUnsupportedMethodBeforeIO(t *testing.T) {
	srv, _ := newTestServer(t)
	src := testSource(srv.URL)
	src.Healthcheck = "/missing"
	c, err := New(src, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := c.Do(context.Background(), "put", "", RequestOptions{})
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
}

func TestGetPostResolveEndpointKeys(t *testing.T) {
	srv, _ := newTestServer(t)
	c, err := New(testSource(srv.URL), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := c.Get(ctx, "", RequestOptions{}); !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound from Get, got %v", err)
	}
	if _, err := c.Post(ctx, "", RequestOptions{}); !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound from Post, got %v", err)
	}

	res, err := c.Get(ctx, "data", RequestOptions{})
	if err != nil || string(res.Body) != `{"key2":"value2"}` {
		t.Fatalf("unexpected get result %+v err=%v", res, err)
	}

	u, err := c.ResolveWith("data", "/42")
	if err != nil || u != srv.URL+"/data/42" {
		t.Fatalf("ResolveWith = %q, %v", u, err)
	}
	if c.Source().Endpoints["data"] != "/data" {
		t.Fatalf("source must be unchanged after ResolveWith")
	}
}

func TestIsEmptyJSON(t *testing.T) {
	for _, raw := range []string{`null`, `{}`, `[]`, `""`, `0`, `false`, `{ }`} {
		if !isEmptyJSON(json.RawMessage(raw)) {
			t.Errorf("expected %s to be empty", raw)
		}
	}
	for _, raw := range []string{`{"a":1}`, `[1]`, `"x"`, `1`, `true`} {
		if isEmptyJSON(json.RawMessage(raw)) {
			t.Errorf("expected %s to be non-empty", raw)
		}
	}
}

func TestSourceMerge(t *testing.T) {
	base := Source{BaseURL: "https://a.example/", Endpoints: map[string]string{"x": "/x", "y": "/y"}}
	merged := base.Merge(Source{BaseURL: "http://127.0.0.1:9000", Endpoints: map[string]string{"y": "/why"}})
	if merged.BaseURL != "http://127.0.0.1:9000" {
		t.Fatalf("BaseURL = %q", merged.BaseURL)
	}
	if merged.Endpoints["x"] != "/x" || merged.Endpoints["y"] != "/why" {
		t.Fatalf("unexpected endpoints %#v", merged.Endpoints)
	}
	if base.Endpoints["y"] != "/y" {
		t.Fatalf("merge mutated the receiver")
	}
}
