package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CRM_API_TOKEN", " tok ")
	t.Setenv("PROFILE_API_KEY", "key")
	t.Setenv("CRM_LINKEDIN_FIELD", "abc123")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CRMAPIToken != "tok" {
		t.Fatalf("token not trimmed: %q", cfg.CRMAPIToken)
	}
	if cfg.HTTPTimeout != 30*time.Second || cfg.PageLimit != 100 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.EnrichInterval != 0 {
		t.Fatalf("default run must be a single pass, got %v", cfg.EnrichInterval)
	}
	if cfg.MetricsAddr != "" || cfg.RedisPrefix != "enricher:" {
		t.Fatalf("unexpected ops defaults %+v", cfg)
	}
	if cfg.StorageType != "bbolt" || cfg.StorageTTL != 30*24*time.Hour {
		t.Fatalf("unexpected storage defaults %+v", cfg)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	setRequired(t)
	t.Setenv("ENRICH_INTERVAL", "600")
	t.Setenv("PAGE_LIMIT", "25")
	t.Setenv("CRM_HEALTHCHECK", "true")
	t.Setenv("STORAGE_TYPE", "none")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EnrichInterval != 10*time.Minute || cfg.PageLimit != 25 || !cfg.CRMHealthcheck || cfg.StorageType != "none" {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"missing token":      {"CRM_API_TOKEN": ""},
		"missing key":        {"PROFILE_API_KEY": " "},
		"missing field":      {"CRM_LINKEDIN_FIELD": ""},
		"negative interval":  {"ENRICH_INTERVAL": "-1"},
		"zero page limit":    {"PAGE_LIMIT": "0"},
		"zero timeout":       {"HTTP_TIMEOUT_SECONDS": "0"},
		"zero ttl":           {"STORAGE_TTL_SECONDS": "0"},
		"redis without addr": {"STORAGE_TYPE": "redis"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := load(viper.New()); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
