package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "schools.csv", cfg.Data.CSVPath)
	assert.Equal(t, "https://okul.com.tr/ortaokul/istanbul?f-f=4", cfg.Listing.BaseURL)
	assert.Equal(t, 50, cfg.Listing.MaxPages)
	assert.Equal(t, 5, cfg.Resolver.Concurrency)
	assert.Equal(t, 5, cfg.Extractor.Concurrency)
	assert.Equal(t, 15*time.Second, cfg.Dispatch.MinDelay)
	assert.Equal(t, 45*time.Second, cfg.Dispatch.MaxDelay)
	assert.False(t, cfg.Dispatch.Enabled)
	assert.Equal(t, "smtp.office365.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, BackendCustomSearch, cfg.Search.Backend)
	assert.Equal(t, "automation.log", cfg.Logging.File)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
data:
  csv_path: /var/lib/outreach/schools.csv
listing:
  base_url: https://okul.com.tr/ortaokul/ankara
  max_pages: 12
  headless: false
http:
  timeout: 20s
rate_limit:
  rps: 0.5
  burst: 1
retry:
  max_attempts: 5
  base_delay: 1s
search:
  backend: gemini
  gemini:
    api_key: g-key
    model: gemini-2.5-pro
resolver:
  concurrency: 3
  blocklist: ["*.facebook.com"]
extractor:
  max_subpages: 4
  retry_not_found: true
dispatch:
  enabled: true
  limit: 5
  min_delay: 1s
  max_delay: 2s
snapshot:
  enabled: true
  dir: /tmp/snapshots
metrics:
  addr: ":9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/outreach/schools.csv", cfg.Data.CSVPath)
	assert.Equal(t, 12, cfg.Listing.MaxPages)
	assert.False(t, cfg.Listing.Headless)
	assert.Equal(t, 20*time.Second, cfg.HTTP.Timeout)
	assert.InDelta(t, 0.5, cfg.RateLimit.RPS, 1e-9)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, BackendGemini, cfg.Search.Backend)
	assert.Equal(t, "g-key", cfg.Search.Gemini.APIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.Search.Gemini.Model)
	assert.Equal(t, []string{"*.facebook.com"}, cfg.Resolver.Blocklist)
	assert.True(t, cfg.Extractor.RetryNotFound)
	assert.True(t, cfg.Dispatch.Enabled)
	assert.Equal(t, 5, cfg.Dispatch.Limit)
	assert.True(t, cfg.Snapshot.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoadHonorsLegacyEnvironment(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "legacy-key")
	t.Setenv("GOOGLE_CSE_ID", "legacy-cx")
	t.Setenv("OUTLOOK_USER", "servan@outlook.com")
	t.Setenv("OUTLOOK_PASS", "app-password")
	t.Setenv("SEND_EMAILS", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", cfg.Search.APIKey)
	assert.Equal(t, "legacy-cx", cfg.Search.CustomSearch().EngineID)
	assert.Equal(t, "servan@outlook.com", cfg.SMTP.Username)
	assert.Equal(t, "app-password", cfg.SMTP.Password)
	assert.True(t, cfg.Dispatch.Enabled)
}

func TestPrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "legacy-key")
	t.Setenv("OUTREACH_SEARCH_API_KEY", "new-key")
	t.Setenv("OUTREACH_DATA_CSV_PATH", "other.csv")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "new-key", cfg.Search.APIKey)
	assert.Equal(t, "other.csv", cfg.Data.CSVPath)
}

func TestLoadEnvFile(t *testing.T) {
	loaded, err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.False(t, loaded)

	t.Setenv("OUTREACH_TEST_ONLY", "")
	require.NoError(t, os.Unsetenv("OUTREACH_TEST_ONLY"))
	path := writeFile(t, ".env", "OUTREACH_TEST_ONLY=from-file\n")
	loaded, err = LoadEnvFile(path)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "from-file", os.Getenv("OUTREACH_TEST_ONLY"))
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty_csv_path", mutate: func(c *Config) { c.Data.CSVPath = "" }},
		{name: "relative_base_url", mutate: func(c *Config) { c.Listing.BaseURL = "/ortaokul" }},
		{name: "zero_timeout", mutate: func(c *Config) { c.HTTP.Timeout = 0 }},
		{name: "unknown_backend", mutate: func(c *Config) { c.Search.Backend = "bing" }},
		{name: "inverted_delays", mutate: func(c *Config) { c.Dispatch.MinDelay, c.Dispatch.MaxDelay = 10*time.Second, time.Second }},
		{name: "snapshot_without_target", mutate: func(c *Config) { c.Snapshot = SnapshotConfig{Enabled: true} }},
		{name: "headless_without_slots", mutate: func(c *Config) { c.Listing.Headless, c.Headless.MaxParallel = true, 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, base.Validate())
}
