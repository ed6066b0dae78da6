// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Checkpoint store backends selectable via checkpoint.backend.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server; port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs scheduling and buffering behavior.
type CrawlerConfig struct {
	Concurrency         int      `mapstructure:"concurrency"`
	StorePagesInterval  int      `mapstructure:"store_pages_interval"`
	FetchTimeoutSeconds int      `mapstructure:"fetch_timeout_seconds"`
	RequestDelayMs      int      `mapstructure:"request_delay_ms"`
	SeedURLs            []string `mapstructure:"seed_urls"`
	ProxyURLs           []string `mapstructure:"proxy_urls"`
	UserAgents          []string `mapstructure:"user_agents"`
}

// HeadlessConfig configures the browser-driven page fetcher.
type HeadlessConfig struct {
	MaxParallel        int    `mapstructure:"max_parallel"`
	NavTimeoutSec      int    `mapstructure:"nav_timeout_seconds"`
	LinkSelector       string `mapstructure:"link_selector"`
	TitleSelector      string `mapstructure:"title_selector"`
	AttachmentSelector string `mapstructure:"attachment_selector"`
	AttachmentAttr     string `mapstructure:"attachment_attr"`
	BypassCache        bool   `mapstructure:"bypass_cache"`
}

// CheckpointConfig selects and configures the checkpoint store backend.
type CheckpointConfig struct {
	Backend       string `mapstructure:"backend"`
	MaxValueBytes int    `mapstructure:"max_value_bytes"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSPrefix     string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds metadata for batch-event notifications; empty topic
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SNAPCRAWL")
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
	v.SetDefault("server.port", 0)
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.store_pages_interval", 10)
	v.SetDefault("crawler.fetch_timeout_seconds", 60)
	v.SetDefault("crawler.request_delay_ms", 0)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.link_selector", "a[href]")
	v.SetDefault("headless.attachment_attr", "href")
	v.SetDefault("checkpoint.backend", BackendMemory)
	v.SetDefault("checkpoint.max_value_bytes", 9*1024*1024)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.StorePagesInterval <= 0 {
		return fmt.Errorf("crawler.store_pages_interval must be > 0")
	}
	if c.Crawler.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.fetch_timeout_seconds must be > 0")
	}
	if len(c.Crawler.SeedURLs) == 0 {
		return fmt.Errorf("crawler.seed_urls must not be empty")
	}
	switch c.Checkpoint.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Checkpoint.RedisAddr == "" {
			return fmt.Errorf("checkpoint.redis_addr must be set for the redis backend")
		}
	case BackendPostgres:
		if c.Checkpoint.PostgresDSN == "" {
			return fmt.Errorf("checkpoint.postgres_dsn must be set for the postgres backend")
		}
	case BackendGCS:
		if c.Checkpoint.GCSBucket == "" {
			return fmt.Errorf("checkpoint.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint.backend %q", c.Checkpoint.Backend)
	}
	return nil
}

// FetchTimeout returns the per-fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.FetchTimeoutSeconds) * time.Second
}

// RequestDelay returns the per-worker inter-request delay as a duration.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.Crawler.RequestDelayMs) * time.Millisecond
}
