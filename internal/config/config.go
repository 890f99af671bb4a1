// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Logging   LoggingConfig  `mapstructure:"logging"`
	Search    SearchConfig   `mapstructure:"search"`
	History   HistoryConfig  `mapstructure:"history"`
	Run       RunConfig      `mapstructure:"run"`
	Snapshots SnapshotConfig `mapstructure:"snapshots"`
	Notify    NotifyConfig   `mapstructure:"notify"`
}

// ServerConfig controls the HTTP trigger server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SearchConfig governs the search client: provider endpoint, pacing,
// retries and the fetch transport.
type SearchConfig struct {
	BaseURL               string            `mapstructure:"base_url"`
	UserAgent             string            `mapstructure:"user_agent"`
	Fetcher               string            `mapstructure:"fetcher"`
	Params                map[string]string `mapstructure:"params"`
	RateLimitDelayMs      int               `mapstructure:"rate_limit_delay_ms"`
	MaxRetries            int               `mapstructure:"max_retries"`
	RequestTimeoutMs      int               `mapstructure:"request_timeout_ms"`
	BackoffInitialMs      int               `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs          int               `mapstructure:"backoff_max_ms"`
	HeadlessNavTimeoutSec int               `mapstructure:"headless_nav_timeout_seconds"`
}

// HistoryConfig selects and configures the history store backend.
type HistoryConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// RunConfig holds per-run policy knobs.
type RunConfig struct {
	OverwriteExistingColumn bool `mapstructure:"overwrite_existing_column"`
}

// SnapshotConfig selects where raw response snapshots are written.
type SnapshotConfig struct {
	Provider string `mapstructure:"provider"`
	Dir      string `mapstructure:"dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// NotifyConfig selects the run-summary notifier.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SERPTREND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("search.base_url", "https://www.google.com/search")
	v.SetDefault("search.user_agent", "serptrend/1.0")
	v.SetDefault("search.fetcher", "http")
	v.SetDefault("search.params", map[string]string{"hl": "en"})
	v.SetDefault("search.rate_limit_delay_ms", 10000)
	v.SetDefault("search.max_retries", 2)
	v.SetDefault("search.request_timeout_ms", 15000)
	v.SetDefault("search.backoff_initial_ms", 500)
	v.SetDefault("search.backoff_max_ms", 30000)
	v.SetDefault("search.headless_nav_timeout_seconds", 45)
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.path", "data/serptrend.db")
	v.SetDefault("run.overwrite_existing_column", false)
	v.SetDefault("snapshots.provider", "noop")
	v.SetDefault("snapshots.prefix", "snapshots")
	v.SetDefault("notify.provider", "log")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Search.RateLimitDelayMs < 0 {
		return fmt.Errorf("search.rate_limit_delay_ms must be >= 0")
	}
	if c.Search.MaxRetries < 0 {
		return fmt.Errorf("search.max_retries must be >= 0")
	}
	if c.Search.RequestTimeoutMs <= 0 {
		return fmt.Errorf("search.request_timeout_ms must be > 0")
	}
	switch c.Search.Fetcher {
	case "http", "headless":
	default:
		return fmt.Errorf("search.fetcher must be http or headless, got %q", c.Search.Fetcher)
	}
	switch c.History.Driver {
	case "sqlite":
		if c.History.Path == "" {
			return fmt.Errorf("history.path is required for the sqlite driver")
		}
	case "postgres":
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("history.driver must be sqlite or postgres, got %q", c.History.Driver)
	}
	switch c.Snapshots.Provider {
	case "noop":
	case "local":
		if c.Snapshots.Dir == "" {
			return fmt.Errorf("snapshots.dir is required for the local provider")
		}
	case "gcs":
		if c.Snapshots.Bucket == "" {
			return fmt.Errorf("snapshots.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("snapshots.provider must be noop, local or gcs, got %q", c.Snapshots.Provider)
	}
	switch c.Notify.Provider {
	case "log":
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic are required for the pubsub provider")
		}
	default:
		return fmt.Errorf("notify.provider must be log or pubsub, got %q", c.Notify.Provider)
	}
	return nil
}

// RateLimitDelay returns the minimum spacing between search requests.
func (c SearchConfig) RateLimitDelay() time.Duration {
	return time.Duration(c.RateLimitDelayMs) * time.Millisecond
}

// RequestTimeout returns the per-fetch timeout.
func (c SearchConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// BackoffInitial returns the base retry delay.
func (c SearchConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling.
func (c SearchConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// HeadlessNavTimeout returns the headless navigation budget.
func (c SearchConfig) HeadlessNavTimeout() time.Duration {
	return time.Duration(c.HeadlessNavTimeoutSec) * time.Second
}
