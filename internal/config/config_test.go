package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.History.Driver)
	require.Equal(t, "http", cfg.Search.Fetcher)
	require.Equal(t, 10*time.Second, cfg.Search.RateLimitDelay())
	require.Equal(t, 2, cfg.Search.MaxRetries)
	require.Equal(t, 15*time.Second, cfg.Search.RequestTimeout())
	require.Equal(t, "noop", cfg.Snapshots.Provider)
	require.Equal(t, "log", cfg.Notify.Provider)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
search:
  fetcher: headless
  rate_limit_delay_ms: 2500
history:
  driver: postgres
  dsn: postgres://localhost/serptrend
snapshots:
  provider: local
  dir: /tmp/snapshots
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "headless", cfg.Search.Fetcher)
	require.Equal(t, 2500*time.Millisecond, cfg.Search.RateLimitDelay())
	require.Equal(t, "postgres", cfg.History.Driver)
	require.Equal(t, "local", cfg.Snapshots.Provider)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := func(t *testing.T) Config {
		t.Helper()
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"negative rate limit", func(c *Config) { c.Search.RateLimitDelayMs = -1 }},
		{"negative retries", func(c *Config) { c.Search.MaxRetries = -1 }},
		{"zero request timeout", func(c *Config) { c.Search.RequestTimeoutMs = 0 }},
		{"unknown fetcher", func(c *Config) { c.Search.Fetcher = "carrier-pigeon" }},
		{"unknown history driver", func(c *Config) { c.History.Driver = "dynamo" }},
		{"sqlite without path", func(c *Config) { c.History.Path = "" }},
		{"postgres without dsn", func(c *Config) {
			c.History.Driver = "postgres"
			c.History.DSN = ""
		}},
		{"local snapshots without dir", func(c *Config) { c.Snapshots.Provider = "local" }},
		{"gcs snapshots without bucket", func(c *Config) { c.Snapshots.Provider = "gcs" }},
		{"pubsub without topic", func(c *Config) {
			c.Notify.Provider = "pubsub"
			c.Notify.ProjectID = "proj"
		}},
		{"unknown notify provider", func(c *Config) { c.Notify.Provider = "carrier-pigeon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base(t)
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
