package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	if got := cfg.Analyzer.PageTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s page timeout, got %v", got)
	}
	if !cfg.Analyzer.IncludeExternalDefault {
		t.Fatal("expected external links to be included by default")
	}
	if cfg.Verifier.TimeoutSeconds != 5 || cfg.Verifier.MaxRetries != 0 {
		t.Fatalf("unexpected verifier defaults: %+v", cfg.Verifier)
	}
	if cfg.Store.Backend != BackendMemory || cfg.Archive.Backend != BackendNone {
		t.Fatalf("unexpected backends: store=%s archive=%s", cfg.Store.Backend, cfg.Archive.Backend)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
analyzer:
  workers: 6
  queue_depth: 128
  page_timeout_seconds: 10
  max_page_timeout_seconds: 40
  include_external_default: false
  max_links: 500
verifier:
  timeout_seconds: 3
  concurrency: 16
  max_retries: 2
  rate_per_host: 4.5
store:
  backend: sqlite
  sqlite:
    path: /tmp/analyses.db
archive:
  backend: gcs
  gcs_bucket: reports-bucket
pubsub:
  backend: gcp
  project_id: demo
  topic_name: done
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Analyzer.Workers != 6 || cfg.Analyzer.IncludeExternalDefault {
		t.Fatalf("expected analyzer overrides to apply: %+v", cfg.Analyzer)
	}
	if got := cfg.Analyzer.MaxPageTimeout(); got != 40*time.Second {
		t.Fatalf("expected max page timeout 40s, got %v", got)
	}
	if cfg.Verifier.RatePerHost != 4.5 || cfg.Verifier.MaxRetries != 2 {
		t.Fatalf("expected verifier overrides to apply: %+v", cfg.Verifier)
	}
	if cfg.Store.SQLite.Path != "/tmp/analyses.db" {
		t.Fatalf("expected sqlite path override, got %q", cfg.Store.SQLite.Path)
	}
	if cfg.Archive.GCSBucket != "reports-bucket" || cfg.Archive.Prefix != "reports" {
		t.Fatalf("unexpected archive config: %+v", cfg.Archive)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging off")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("LINKCHECK_SERVER_PORT", "7070")
	t.Setenv("LINKCHECK_VERIFIER_CONCURRENCY", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Verifier.Concurrency != 3 {
		t.Fatalf("expected env overrides, got port=%d concurrency=%d", cfg.Server.Port, cfg.Verifier.Concurrency)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Analyzer: AnalyzerConfig{
			Workers:               1,
			QueueDepth:            1,
			PageTimeoutSeconds:    30,
			MaxPageTimeoutSeconds: 60,
		},
		Verifier: VerifierConfig{TimeoutSeconds: 5, Concurrency: 1},
		Store:    StoreConfig{Backend: BackendMemory},
		Archive:  ArchiveConfig{Backend: BackendNone},
		PubSub:   PubSubConfig{Backend: BackendNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "no workers", mutate: func(c *Config) { c.Analyzer.Workers = 0 }, want: "analyzer.workers"},
		{
			name:   "max below default timeout",
			mutate: func(c *Config) { c.Analyzer.MaxPageTimeoutSeconds = 10 },
			want:   "analyzer.max_page_timeout_seconds",
		},
		{name: "negative retries", mutate: func(c *Config) { c.Verifier.MaxRetries = -1 }, want: "verifier.max_retries"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "redis" }, want: "store.backend"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Backend = BackendPostgres }, want: "store.postgres.dsn"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Archive.Backend = BackendGCS }, want: "archive.gcs_bucket"},
		{name: "gcp without project", mutate: func(c *Config) { c.PubSub.Backend = BackendGCP }, want: "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
