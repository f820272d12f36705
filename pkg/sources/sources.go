// Package sources loads API source descriptor overrides from YAML/JSON files.
package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/samvad-hq/samvad-contact-enricher/pkg/httpclient"
	"gopkg.in/yaml.v3"
)

// Well-known source names.
const (
	NameCRM      = "crm"
	NameProfiles = "profiles"
)

type configFile struct {
	Sources map[string]httpclient.Source `json:"sources" yaml:"sources"`
}

// Registry holds named source descriptors.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]httpclient.Source
}

// NewRegistry builds a registry from in-memory descriptors.
func NewRegistry(srcs map[string]httpclient.Source) *Registry {
	r := &Registry{sources: make(map[string]httpclient.Source, len(srcs))}
	for name, src := range srcs {
		if name = normalizeName(name); name != "" {
			r.sources[name] = src.Clone()
		}
	}
	return r
}

// Load reads a sources file. An empty path yields an empty registry.
func Load(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return NewRegistry(nil), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	cfg, err := parseSources(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	reg := &Registry{sources: make(map[string]httpclient.Source, len(cfg.Sources))}
	for name, src := range cfg.Sources {
		key := normalizeName(name)
		if key == "" {
			return nil, errors.New("source name is required")
		}
		if _, exists := reg.sources[key]; exists {
			return nil, fmt.Errorf("duplicate source name %q", key)
		}
		src = src.Clone()
		if src.BaseURL == "" && src.Healthcheck == "" && len(src.Endpoints) == 0 {
			return nil, fmt.Errorf("source %q is empty", key)
		}
		reg.sources[key] = src
	}
	return reg, nil
}

func parseSources(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var cfg configFile
		if err := d.fn(data, &cfg); err == nil {
			return cfg, nil
		}
	}
	return configFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ByName returns the descriptor registered under name.
func (r *Registry) ByName(name string) (httpclient.Source, bool) {
	if r == nil {
		return httpclient.Source{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[normalizeName(name)]
	if !ok {
		return httpclient.Source{}, false
	}
	return src.Clone(), true
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for name := range r.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve overlays the descriptor registered under name onto defaults.
func (r *Registry) Resolve(name string, defaults httpclient.Source) httpclient.Source {
	override, ok := r.ByName(name)
	if !ok {
		return defaults.Clone()
	}
	return defaults.Merge(override)
}
