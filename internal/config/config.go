// Package config loads and validates analyzer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by the store, archive and pubsub sections.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendGCP      = "gcp"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Verifier VerifierConfig `mapstructure:"verifier"`
	Store    StoreConfig    `mapstructure:"store"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AnalyzerConfig governs job admission and the page fetch.
type AnalyzerConfig struct {
	Workers                int    `mapstructure:"workers"`
	QueueDepth             int    `mapstructure:"queue_depth"`
	PageTimeoutSeconds     int    `mapstructure:"page_timeout_seconds"`
	MaxPageTimeoutSeconds  int    `mapstructure:"max_page_timeout_seconds"`
	JobTimeoutSeconds      int    `mapstructure:"job_timeout_seconds"`
	IncludeExternalDefault bool   `mapstructure:"include_external_default"`
	MaxLinks               int    `mapstructure:"max_links"`
	UserAgent              string `mapstructure:"user_agent"`
	MaxBodyBytes           int    `mapstructure:"max_body_bytes"`
}

// VerifierConfig configures per-link checks.
type VerifierConfig struct {
	TimeoutSeconds       int     `mapstructure:"timeout_seconds"`
	Concurrency          int     `mapstructure:"concurrency"`
	MaxRetries           int     `mapstructure:"max_retries"`
	BackoffInitialMs     int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs         int     `mapstructure:"backoff_max_ms"`
	RatePerHost          float64 `mapstructure:"rate_per_host"`
	Burst                int     `mapstructure:"burst"`
	GetFallback          bool    `mapstructure:"get_fallback"`
	BlockPrivateNetworks bool    `mapstructure:"block_private_networks"`
}

// StoreConfig selects the job store backend.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int    `mapstructure:"max_conns"`
	MinConns               int    `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	Migrate                bool   `mapstructure:"migrate"`
}

// SQLiteConfig points at the embedded database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ArchiveConfig sets where finished reports are written.
type ArchiveConfig struct {
	Backend         string `mapstructure:"backend"`
	Prefix          string `mapstructure:"prefix"`
	BaseDir         string `mapstructure:"base_dir"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	GCSCacheControl string `mapstructure:"gcs_cache_control"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the progress hub and its sinks.
type ProgressConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMs  int  `mapstructure:"sink_timeout_ms"`
	LogSink        bool `mapstructure:"log_sink"`
	PrometheusSink bool `mapstructure:"prometheus_sink"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from defaults, an optional file and LINKCHECK_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKCHECK")
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
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("analyzer.workers", 4)
	v.SetDefault("analyzer.queue_depth", 64)
	v.SetDefault("analyzer.page_timeout_seconds", 30)
	v.SetDefault("analyzer.max_page_timeout_seconds", 120)
	v.SetDefault("analyzer.job_timeout_seconds", 600)
	v.SetDefault("analyzer.include_external_default", true)
	v.SetDefault("analyzer.max_links", 0)
	v.SetDefault("analyzer.user_agent", "broken-link-analyzer/1.0")
	v.SetDefault("analyzer.max_body_bytes", 5*1024*1024)
	v.SetDefault("verifier.timeout_seconds", 5)
	v.SetDefault("verifier.concurrency", 8)
	v.SetDefault("verifier.max_retries", 0)
	v.SetDefault("verifier.backoff_initial_ms", 250)
	v.SetDefault("verifier.backoff_max_ms", 2000)
	v.SetDefault("verifier.rate_per_host", 0)
	v.SetDefault("verifier.burst", 1)
	v.SetDefault("verifier.get_fallback", false)
	v.SetDefault("verifier.block_private_networks", false)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.postgres.table", "analysis_jobs")
	v.SetDefault("store.postgres.max_conns", 10)
	v.SetDefault("store.postgres.max_conn_lifetime_minutes", 30)
	v.SetDefault("store.postgres.migrate", true)
	v.SetDefault("store.sqlite.path", "data/analyses.db")
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.prefix", "reports")
	v.SetDefault("archive.base_dir", "data/reports")
	v.SetDefault("archive.gcs_cache_control", "private, max-age=3600")
	v.SetDefault("pubsub.backend", BackendNone)
	v.SetDefault("pubsub.topic_name", "analysis-complete")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("progress.log_sink", true)
	v.SetDefault("progress.prometheus_sink", true)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Analyzer.Workers <= 0 {
		return fmt.Errorf("analyzer.workers must be > 0")
	}
	if c.Analyzer.QueueDepth <= 0 {
		return fmt.Errorf("analyzer.queue_depth must be > 0")
	}
	if c.Analyzer.PageTimeoutSeconds <= 0 {
		return fmt.Errorf("analyzer.page_timeout_seconds must be > 0")
	}
	if c.Analyzer.MaxPageTimeoutSeconds < c.Analyzer.PageTimeoutSeconds {
		return fmt.Errorf("analyzer.max_page_timeout_seconds must be >= analyzer.page_timeout_seconds")
	}
	if c.Analyzer.MaxLinks < 0 {
		return fmt.Errorf("analyzer.max_links must be >= 0")
	}
	if c.Verifier.TimeoutSeconds <= 0 {
		return fmt.Errorf("verifier.timeout_seconds must be > 0")
	}
	if c.Verifier.Concurrency <= 0 {
		return fmt.Errorf("verifier.concurrency must be > 0")
	}
	if c.Verifier.MaxRetries < 0 {
		return fmt.Errorf("verifier.max_retries must be >= 0")
	}
	if c.Verifier.RatePerHost < 0 {
		return fmt.Errorf("verifier.rate_per_host must be >= 0")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set for the postgres backend")
		}
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path must be set for the sqlite backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", c.Store.Backend)
	}
	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	switch c.PubSub.Backend {
	case BackendNone, BackendMemory:
	case BackendGCP:
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set for the gcp backend")
		}
	default:
		return fmt.Errorf("pubsub.backend %q is not supported", c.PubSub.Backend)
	}
	return nil
}

// PageTimeout is the default page fetch budget.
func (c AnalyzerConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSeconds) * time.Second
}

// MaxPageTimeout caps the page timeout a client may request.
func (c AnalyzerConfig) MaxPageTimeout() time.Duration {
	return time.Duration(c.MaxPageTimeoutSeconds) * time.Second
}

// JobTimeout bounds a whole analysis run; zero disables the bound.
func (c AnalyzerConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// RequestTimeout bounds a single API request.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
