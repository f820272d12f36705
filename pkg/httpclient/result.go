package httpclient

import (
	"bytes"
	"encoding/json"
	"net/http"
)

var successCodes = map[int]struct{}{
	http.StatusOK:        {},
	http.StatusCreated:   {},
	http.StatusAccepted:  {},
	http.StatusNoContent: {},
}

// IsSuccessCode reports whether code belongs to the set of statuses whose
// body is parsed without logging an upstream error.
func IsSuccessCode(code int) bool {
	_, ok := successCodes[code]
	return ok
}

// Result is the uniform envelope returned by the client. Exactly one of
// Body (valid JSON), Raw (anything else) or HealthError is meaningful.
// HTTP error statuses are not failures here; callers interpret StatusCode
// and Body themselves.
type Result struct {
	StatusCode  int
	Status      string
	Body        json.RawMessage
	Raw         []byte
	HealthError string
}

// Failed reports whether the request was short-circuited by a failed health check.
func (r *Result) Failed() bool { return r != nil && r.HealthError != "" }

// IsJSON reports whether the response body parsed as JSON.
func (r *Result) IsJSON() bool { return r != nil && r.Body != nil }

// Success reports whether the upstream answered with a status in the success set.
func (r *Result) Success() bool { return r != nil && !r.Failed() && IsSuccessCode(r.StatusCode) }

// Decode unmarshals the JSON body into v.
func (r *Result) Decode(v any) error {
	switch {
	case r == nil:
		return ErrNotJSON
	case r.Failed():
		return &HealthError{Message: r.HealthError}
	case !r.IsJSON():
		return ErrNotJSON
	}
	return json.Unmarshal(r.Body, v)
}

// MarshalJSON renders the envelope as {"response": ...} or {"error": ...}.
// Raw bodies are emitted as base64 strings.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.HealthError})
	}
	if r.IsJSON() {
		return json.Marshal(struct {
			Response json.RawMessage `json:"response"`
		}{r.Body})
	}
	return json.Marshal(struct {
		Response []byte `json:"response"`
	}{r.Raw})
}

func newResult(code int, status string, body []byte) *Result {
	res := &Result{StatusCode: code, Status: status}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		res.Body = json.RawMessage(append([]byte(nil), trimmed...))
		return res
	}
	res.Raw = append([]byte{}, body...)
	return res
}

// isEmptyJSON reports whether a JSON document is falsy: null, false, 0,
// an empty string, an empty array or an empty object.
func isEmptyJSON(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
