package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-adsync.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, tokens, app secrets) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Meta     MetaConfig     `yaml:"meta"`
	Sync     SyncConfig     `yaml:"sync"`
	Cache    CacheConfig    `yaml:"cache"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"adsync"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_adsync"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig configures the optional shared cache tier.
// An empty host disables Redis entirely.
type RedisConfig struct {
	Host      string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port      int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password  string `yaml:"-" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"adsync:"`
}

// MetaConfig holds Graph API credentials and webhook secrets.
type MetaConfig struct {
	APIVersion         string `yaml:"api_version" env:"META_API_VERSION" env-default:"v19.0"`
	GraphBaseURL       string `yaml:"graph_base_url" env:"META_GRAPH_BASE_URL" env-default:"https://graph.facebook.com"`
	AccessToken        string `yaml:"-" env:"META_ACCESS_TOKEN"`
	AppSecret          string `yaml:"-" env:"META_APP_SECRET"`
	WebhookVerifyToken string `yaml:"-" env:"META_WEBHOOK_VERIFY_TOKEN"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds" env:"META_HTTP_TIMEOUT_SECONDS" env-default:"60"`

	// AllowedAdAccountsStr is a comma-separated allow-list of ad account ids.
	// Both "123" and "act_123" are accepted. Empty means all accounts.
	AllowedAdAccountsStr string `yaml:"allowed_ad_accounts" env:"META_ALLOWED_AD_ACCOUNTS" env-default:""`

	// AllowedAdAccounts is parsed from AllowedAdAccountsStr (not from config file).
	AllowedAdAccounts []string `yaml:"-"`
}

// SyncConfig tunes the ingestion pipeline.
type SyncConfig struct {
	LookbackDays     int    `yaml:"lookback_days" env:"META_SYNC_LOOKBACK_DAYS" env-default:"90"`
	UpsertChunkSize  int    `yaml:"upsert_chunk_size" env:"SYNC_UPSERT_CHUNK_SIZE" env-default:"500"`
	WriteConcurrency int    `yaml:"write_concurrency" env:"SYNC_WRITE_CONCURRENCY" env-default:"50"`
	DailyLevelsStr   string `yaml:"daily_levels" env:"SYNC_DAILY_LEVELS" env-default:"campaign"`

	DailyLevels []string `yaml:"-"`
}

// CacheConfig holds read-side cache lifetimes.
type CacheConfig struct {
	HierarchyTTLSeconds int `yaml:"hierarchy_ttl_seconds" env:"HIERARCHY_CACHE_TTL_SECONDS" env-default:"60"`
	CountriesTTLSeconds int `yaml:"countries_ttl_seconds" env:"COUNTRIES_CACHE_TTL_SECONDS" env-default:"300"`
}

// HierarchyTTL returns the hierarchy cache lifetime.
func (c CacheConfig) HierarchyTTL() time.Duration {
	return time.Duration(c.HierarchyTTLSeconds) * time.Second
}

// CountriesTTL returns the available-countries cache lifetime.
func (c CacheConfig) CountriesTTL() time.Duration {
	return time.Duration(c.CountriesTTLSeconds) * time.Second
}

// HTTPTimeout returns the Graph HTTP client timeout.
func (m MetaConfig) HTTPTimeout() time.Duration {
	return time.Duration(m.HTTPTimeoutSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error: everything then comes from the environment.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	if cfg.Redis.Host != "" {
		cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Meta.AllowedAdAccounts = parseCSV(c.Meta.AllowedAdAccountsStr)
	c.Sync.DailyLevels = parseCSV(c.Sync.DailyLevelsStr)
	if len(c.Sync.DailyLevels) == 0 {
		c.Sync.DailyLevels = []string{"campaign"}
	}
	for _, level := range c.Sync.DailyLevels {
		switch level {
		case "campaign", "adset", "ad":
		default:
			return fmt.Errorf("unsupported daily insights level %q", level)
		}
	}

	if c.Sync.LookbackDays <= 0 {
		return fmt.Errorf("lookback_days must be positive, got %d", c.Sync.LookbackDays)
	}
	return nil
}

// ValidateForSync reports whether the Graph credentials needed to talk to the
// platform are present.
func (c *Config) ValidateForSync() error {
	if c.Meta.AccessToken == "" {
		return errors.New("META_ACCESS_TOKEN is required")
	}
	if c.Meta.APIVersion == "" {
		return errors.New("META_API_VERSION is required")
	}
	return nil
}

// IsLocal reports whether the process runs in a local development environment.
func (c *Config) IsLocal() bool {
	return c.Env == "" || c.Env == "local"
}

func parseCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// ResolveHostForDocker rewrites localhost to host.docker.internal when the
// process runs inside a container, so local databases stay reachable.
func ResolveHostForDocker(host string) string {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	if !isDockerResult {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}
