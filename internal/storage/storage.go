package storage

import (
	"fmt"
	"strings"
	"time"
)

// Package storage keeps the enrichment checkpoint between runs.

// Store tracks processed contacts and the listing cursor per CRM account.
type Store interface {
	Close() error
	Seen(key string) (bool, error)
	Mark(key string) error
	Cursor(scope string) (start int, ok bool, err error)
	SaveCursor(scope string, start int) error
	ClearCursor(scope string) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	ContactTTL      time.Duration
	CleanupInterval time.Duration
	Redis           RedisOptions
}

const (
	defaultContactTTL      = 30 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		store, err := openBolt(path, opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		store, err := openRedis(opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.ContactTTL <= 0 {
		opts.ContactTTL = defaultContactTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                     { return nil }
func (noopStore) Seen(string) (bool, error)        { return false, nil }
func (noopStore) Mark(string) error                { return nil }
func (noopStore) Cursor(string) (int, bool, error) { return 0, false, nil }
func (noopStore) SaveCursor(string, int) error     { return nil }
func (noopStore) ClearCursor(string) error         { return nil }
