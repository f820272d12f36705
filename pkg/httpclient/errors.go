package httpclient

import (
	"errors"
	"fmt"
)

// Configuration errors. These are never recovered.
var (
	ErrInvalidSource     = errors.New("invalid api source")
	ErrEndpointNotFound  = errors.New("endpoint key not found")
	ErrUnsupportedMethod = errors.New("unsupported request method")
)

// Transport error categories, matched with errors.Is against a *TransportError.
// ErrRequest matches every transport failure.
var (
	ErrTimeout          = errors.New("request timed out")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrRequest          = errors.New("request failed")
)

// ErrNotJSON is returned by Result.Decode when the body was not valid JSON.
var ErrNotJSON = errors.New("response body is not valid json")

// Kind identifies the category of a transport failure.
type Kind string

const (
	KindTimeout          Kind = "timeout"
	KindTooManyRedirects Kind = "too_many_redirects"
	KindRequest          Kind = "request"
)

// TransportError is returned when no HTTP response could be obtained.
type TransportError struct {
	Kind   Kind
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Method, e.URL, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's category.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrRequest:
		return true
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrTooManyRedirects:
		return e.Kind == KindTooManyRedirects
	}
	return false
}

// HealthError describes a failed pre-flight health check.
type HealthError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *HealthError) Error() string { return e.Message }

func (e *HealthError) Unwrap() error { return e.Err }
