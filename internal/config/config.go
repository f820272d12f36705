package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string `mapstructure:"app_name"`
	Env            string `mapstructure:"app_env"`
	LogLevel       string `mapstructure:"log_level"`
	SourcesFile    string `mapstructure:"sources_file"`
	PublishersFile string `mapstructure:"publishers_file"`

	CRMAPIToken       string `mapstructure:"crm_api_token"`
	CRMBaseURL        string `mapstructure:"crm_base_url"`
	CRMHealthcheck    bool   `mapstructure:"crm_healthcheck"`
	CRMLinkedInField  string `mapstructure:"crm_linkedin_field"`
	ProfileAPIKey     string `mapstructure:"profile_api_key"`
	ProfileBaseURL    string `mapstructure:"profile_base_url"`
	HTTPTimeoutSecs   int64  `mapstructure:"http_timeout_seconds"`
	PageLimit         int    `mapstructure:"page_limit"`
	EnrichIntervalSec int64  `mapstructure:"enrich_interval"`
	MetricsAddr       string `mapstructure:"metrics_addr"`

	HTTPTimeout    time.Duration `mapstructure:"-"`
	EnrichInterval time.Duration `mapstructure:"-"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// Load reads configuration from configs/.env and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("app_name", "samvad-contact-enricher")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("sources_file", "")
	v.SetDefault("publishers_file", "")
	v.SetDefault("crm_api_token", "")
	v.SetDefault("crm_base_url", "")
	v.SetDefault("crm_healthcheck", false)
	v.SetDefault("crm_linkedin_field", "")
	v.SetDefault("profile_api_key", "")
	v.SetDefault("profile_base_url", "")
	v.SetDefault("http_timeout_seconds", 30)
	v.SetDefault("page_limit", 100)
	v.SetDefault("enrich_interval", 0) // seconds; 0 runs a single pass
	v.SetDefault("metrics_addr", "")   // empty disables the ops server
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/enricher.db")
	v.SetDefault("storage_ttl_seconds", int64((30*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_prefix", "enricher:")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CRMAPIToken = strings.TrimSpace(cfg.CRMAPIToken)
	cfg.ProfileAPIKey = strings.TrimSpace(cfg.ProfileAPIKey)
	cfg.CRMLinkedInField = strings.TrimSpace(cfg.CRMLinkedInField)

	if cfg.CRMAPIToken == "" {
		return nil, fmt.Errorf("crm_api_token is required")
	}
	if cfg.ProfileAPIKey == "" {
		return nil, fmt.Errorf("profile_api_key is required")
	}
	if cfg.CRMLinkedInField == "" {
		return nil, fmt.Errorf("crm_linkedin_field is required (custom field key holding the profile url)")
	}

	if cfg.HTTPTimeoutSecs <= 0 {
		return nil, fmt.Errorf("invalid http_timeout_seconds (must be positive seconds)")
	}
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSecs) * time.Second

	if cfg.PageLimit <= 0 {
		return nil, fmt.Errorf("invalid page_limit (must be positive)")
	}
	if cfg.EnrichIntervalSec < 0 {
		return nil, fmt.Errorf("invalid enrich_interval (must be zero or positive seconds)")
	}
	cfg.EnrichInterval = time.Duration(cfg.EnrichIntervalSec) * time.Second

	if cfg.StorageTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	if strings.EqualFold(strings.TrimSpace(cfg.StorageType), "redis") && strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, fmt.Errorf("redis_addr is required when storage_type is redis")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	return &cfg, nil
}
