package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
crawler:
  concurrency: 6
  store_pages_interval: 25
  fetch_timeout_seconds: 45
  request_delay_ms: 250
  seed_urls: ["https://example.com"]
  proxy_urls: ["http://proxy1:8080"]
  user_agents: ["agent-a"]
headless:
  max_parallel: 3
  nav_timeout_seconds: 30
  title_selector: "h1.title"
  attachment_selector: "a.report"
  attachment_attr: href
checkpoint:
  backend: redis
  redis_addr: localhost:6379
  redis_prefix: snapcrawl
pubsub:
  project_id: demo
  topic_name: crawl-batches
logging:
  development: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Crawler.Concurrency != 6 || cfg.Crawler.StorePagesInterval != 25 {
		t.Fatalf("expected crawler overrides to apply")
	}
	if cfg.FetchTimeout() != 45*time.Second {
		t.Fatalf("expected 45s fetch timeout, got %v", cfg.FetchTimeout())
	}
	if cfg.RequestDelay() != 250*time.Millisecond {
		t.Fatalf("expected 250ms request delay, got %v", cfg.RequestDelay())
	}
	if cfg.Checkpoint.Backend != BackendRedis || cfg.Checkpoint.RedisAddr != "localhost:6379" {
		t.Fatalf("expected redis checkpoint backend")
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
crawler:
  seed_urls: ["https://example.com"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Concurrency != 1 {
		t.Fatalf("expected default concurrency 1, got %d", cfg.Crawler.Concurrency)
	}
	if cfg.Crawler.StorePagesInterval != 10 {
		t.Fatalf("expected default store_pages_interval 10, got %d", cfg.Crawler.StorePagesInterval)
	}
	if cfg.Checkpoint.Backend != BackendMemory {
		t.Fatalf("expected default memory backend, got %q", cfg.Checkpoint.Backend)
	}
	if cfg.Server.Port != 0 {
		t.Fatalf("expected ops server disabled by default, got port %d", cfg.Server.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Crawler.Concurrency = 0 },
			wantErr: "concurrency",
		},
		{
			name:    "zero flush threshold",
			mutate:  func(c *Config) { c.Crawler.StorePagesInterval = 0 },
			wantErr: "store_pages_interval",
		},
		{
			name:    "no seeds",
			mutate:  func(c *Config) { c.Crawler.SeedURLs = nil },
			wantErr: "seed_urls",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.Checkpoint.Backend = BackendRedis; c.Checkpoint.RedisAddr = "" },
			wantErr: "redis_addr",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Checkpoint.Backend = BackendPostgres },
			wantErr: "postgres_dsn",
		},
		{
			name:    "gcs without bucket",
			mutate:  func(c *Config) { c.Checkpoint.Backend = BackendGCS },
			wantErr: "gcs_bucket",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Checkpoint.Backend = "etcd" },
			wantErr: "unknown checkpoint.backend",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := Config{
				Crawler: CrawlerConfig{
					Concurrency:         1,
					StorePagesInterval:  10,
					FetchTimeoutSeconds: 60,
					SeedURLs:            []string{"https://example.com"},
				},
				Checkpoint: CheckpointConfig{Backend: BackendMemory},
			}
			tc.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}
