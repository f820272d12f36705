package httpclient

import (
	"fmt"
	"strings"
)

// Source describes an upstream API: where it lives and which symbolic
// endpoint keys map to which paths.
type Source struct {
	BaseURL     string            `json:"base_url" yaml:"base_url"`
	Healthcheck string            `json:"healthcheck" yaml:"healthcheck"`
	Endpoints   map[string]string `json:"endpoints" yaml:"endpoints"`
}

// Validate checks the descriptor. The healthcheck path is only required
// when enforceHealthcheck is set.
func (s Source) Validate(enforceHealthcheck bool) error {
	if strings.TrimSpace(s.BaseURL) == "" {
		return fmt.Errorf("%w: base_url is required", ErrInvalidSource)
	}
	if len(s.Endpoints) == 0 {
		return fmt.Errorf("%w: endpoints are required", ErrInvalidSource)
	}
	if enforceHealthcheck && strings.TrimSpace(s.Healthcheck) == "" {
		return fmt.Errorf("%w: healthcheck is required when healthcheck enforcement is enabled", ErrInvalidSource)
	}
	return nil
}

// Clone returns a trimmed deep copy of the descriptor.
func (s Source) Clone() Source {
	out := Source{
		BaseURL:     strings.TrimRight(strings.TrimSpace(s.BaseURL), "/"),
		Healthcheck: strings.TrimSpace(s.Healthcheck),
	}
	if s.Endpoints != nil {
		out.Endpoints = make(map[string]string, len(s.Endpoints))
		for k, v := range s.Endpoints {
			out.Endpoints[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return out
}

// Merge overlays the non-empty fields of override onto s. Endpoint keys
// present in override replace the ones in s; others are kept.
func (s Source) Merge(override Source) Source {
	out := s.Clone()
	if v := strings.TrimSpace(override.BaseURL); v != "" {
		out.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(override.Healthcheck); v != "" {
		out.Healthcheck = v
	}
	if len(override.Endpoints) > 0 && out.Endpoints == nil {
		out.Endpoints = make(map[string]string, len(override.Endpoints))
	}
	for k, v := range override.Endpoints {
		if v = strings.TrimSpace(v); v != "" {
			out.Endpoints[strings.TrimSpace(k)] = v
		}
	}
	return out
}
