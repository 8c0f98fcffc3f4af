// Package config loads and validates outreach configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ServanKorkmaz/mail-automation/internal/dispatcher"
	"github.com/ServanKorkmaz/mail-automation/internal/extractor"
	"github.com/ServanKorkmaz/mail-automation/internal/mailer"
	"github.com/ServanKorkmaz/mail-automation/internal/policy/ratelimit"
	"github.com/ServanKorkmaz/mail-automation/internal/resolver"
	"github.com/ServanKorkmaz/mail-automation/internal/retry"
	"github.com/ServanKorkmaz/mail-automation/internal/search/customsearch"
	"github.com/ServanKorkmaz/mail-automation/internal/search/gemini"
)

// Search backends.
const (
	BackendCustomSearch = "customsearch"
	BackendGemini       = "gemini"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Data      DataConfig        `mapstructure:"data"`
	Listing   ListingConfig     `mapstructure:"listing"`
	HTTP      HTTPConfig        `mapstructure:"http"`
	Headless  HeadlessConfig    `mapstructure:"headless"`
	RateLimit ratelimit.Config  `mapstructure:"rate_limit"`
	Retry     retry.Config      `mapstructure:"retry"`
	Search    SearchConfig      `mapstructure:"search"`
	Resolver  resolver.Config   `mapstructure:"resolver"`
	Extractor extractor.Config  `mapstructure:"extractor"`
	Dispatch  dispatcher.Config `mapstructure:"dispatch"`
	SMTP      mailer.Config     `mapstructure:"smtp"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`
	Snapshot  SnapshotConfig    `mapstructure:"snapshot"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
	Logging   LoggingConfig     `mapstructure:"logging"`
}

// DataConfig locates the persisted dataset.
type DataConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// ListingConfig describes the school directory.
type ListingConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	MaxPages int    `mapstructure:"max_pages"`
	// Headless renders listing pages in Chrome, which the directory needs
	// to get past its bot challenge.
	Headless bool `mapstructure:"headless"`
}

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the chromedp fetcher.
type HeadlessConfig struct {
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"nav_timeout"`
	Settle            time.Duration `mapstructure:"settle"`
}

// SearchConfig selects and configures the website search backend.
type SearchConfig struct {
	Backend  string        `mapstructure:"backend"`
	APIKey   string        `mapstructure:"api_key"`
	EngineID string        `mapstructure:"engine_id"`
	Endpoint string        `mapstructure:"endpoint"`
	Gemini   gemini.Config `mapstructure:"gemini"`
}

// CustomSearch returns the Programmable Search settings.
func (s SearchConfig) CustomSearch() customsearch.Config {
	return customsearch.Config{APIKey: s.APIKey, EngineID: s.EngineID, Endpoint: s.Endpoint}
}

// PubSubConfig holds metadata for outreach event notifications. Empty
// ProjectID keeps events in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SnapshotConfig controls the end-of-run CSV archive.
type SnapshotConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features and the log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// legacyEnv maps config keys onto the environment names used by earlier
// deployments of the tool.
var legacyEnv = map[string]string{
	"search.api_key":        "GOOGLE_API_KEY",
	"search.engine_id":      "GOOGLE_CSE_ID",
	"search.gemini.api_key": "GEMINI_API_KEY",
	"smtp.username":         "OUTLOOK_USER",
	"smtp.password":         "OUTLOOK_PASS",
	"dispatch.enabled":      "SEND_EMAILS",
}

// LoadEnvFile loads KEY=value pairs from envFile (default .env) without
// overriding variables already set. A missing file is not an error.
func LoadEnvFile(envFile string) (bool, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return false, nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return false, fmt.Errorf("load env file %s: %w", envFile, err)
	}
	return true, nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		envName := "OUTREACH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

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
	v.SetDefault("data.csv_path", "schools.csv")
	v.SetDefault("listing.base_url", "https://okul.com.tr/ortaokul/istanbul?f-f=4")
	v.SetDefault("listing.max_pages", 50)
	v.SetDefault("listing.headless", true)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("http.accept_language", "tr-TR,tr;q=0.9,en;q=0.8")
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout", 30*time.Second)
	v.SetDefault("headless.settle", 3*time.Second)
	v.SetDefault("rate_limit.rps", 1.0)
	v.SetDefault("rate_limit.burst", 2)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 2*time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("search.backend", BackendCustomSearch)
	v.SetDefault("search.gemini.model", gemini.DefaultModel)
	v.SetDefault("resolver.qualifier", resolver.DefaultQualifier)
	v.SetDefault("resolver.concurrency", resolver.DefaultConcurrency)
	v.SetDefault("extractor.max_subpages", extractor.DefaultMaxSubpages)
	v.SetDefault("extractor.concurrency", extractor.DefaultConcurrency)
	v.SetDefault("extractor.retry_not_found", false)
	v.SetDefault("dispatch.enabled", false)
	v.SetDefault("dispatch.dry_run", false)
	v.SetDefault("dispatch.min_delay", dispatcher.DefaultMinDelay)
	v.SetDefault("dispatch.max_delay", dispatcher.DefaultMaxDelay)
	v.SetDefault("dispatch.topic", dispatcher.SentTopic)
	v.SetDefault("smtp.host", mailer.DefaultHost)
	v.SetDefault("smtp.port", mailer.DefaultPort)
	v.SetDefault("pubsub.topic_name", "outreach-sent")
	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "automation.log")
}

// Validate enforces required values and reasonable limits. Credentials are
// checked by the components that need them so read-only commands run
// without them.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Data.CSVPath) == "" {
		return fmt.Errorf("data.csv_path must be set")
	}
	u, err := url.Parse(c.Listing.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("listing.base_url must be an absolute http(s) URL")
	}
	if c.Listing.MaxPages < 0 {
		return fmt.Errorf("listing.max_pages must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Listing.Headless && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when listing.headless is enabled")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be >= 0")
	}
	if c.Resolver.Concurrency < 0 || c.Extractor.Concurrency < 0 {
		return fmt.Errorf("resolver.concurrency and extractor.concurrency must be >= 0")
	}
	switch c.Search.Backend {
	case BackendCustomSearch, BackendGemini:
	default:
		return fmt.Errorf("search.backend must be %q or %q", BackendCustomSearch, BackendGemini)
	}
	if c.Dispatch.MinDelay < 0 || c.Dispatch.MaxDelay < c.Dispatch.MinDelay {
		return fmt.Errorf("dispatch delays must satisfy 0 <= min_delay <= max_delay")
	}
	if c.Dispatch.Limit < 0 {
		return fmt.Errorf("dispatch.limit must be >= 0")
	}
	if c.Snapshot.Enabled && c.Snapshot.Dir == "" && c.Snapshot.GCSBucket == "" {
		return fmt.Errorf("snapshot.dir or snapshot.gcs_bucket must be set when snapshot is enabled")
	}
	return nil
}
