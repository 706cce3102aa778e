package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all pipeline settings, populated from environment variables.
// Run-scoped choices (dataset, step, force-refresh) are command-line flags
// and live outside this struct.
type Config struct {
	DataDir         string
	RegistryPath    string
	Workers         int
	LogLevel        string
	LogFormat       string
	MetricsAddr     string
	ShutdownTimeout time.Duration

	FetchTimeout  time.Duration
	FetchAttempts int
	FetchBackoff  time.Duration
	UserAgent     string

	// Kafka publisher; disabled while KAFKA_BROKERS is unset.
	KafkaBrokers []string
	KafkaTopic   string

	// Postgres sink; disabled while POSTGRES_DSN is unset.
	PostgresDSN   string
	PostgresTable string
	PostgresBatch int

	// Object-store mirror consulted before the HTTP origin; disabled
	// while MIRROR_ENDPOINT is unset.
	MirrorEndpoint  string
	MirrorBucket    string
	MirrorAccessKey string
	MirrorSecretKey string
	MirrorUseSSL    bool
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	workers, err := envInt("WORKERS", 8)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := envDuration("FETCH_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	fetchAttempts, err := envInt("FETCH_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	fetchBackoff, err := envDuration("FETCH_BACKOFF", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	pgBatch, err := envInt("POSTGRES_BATCH", 500)
	if err != nil {
		return nil, err
	}
	mirrorSSL, err := envBool("MIRROR_USE_SSL", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:         envOrDefault("DATA_DIR", "data"),
		RegistryPath:    os.Getenv("REGISTRY_FILE"),
		Workers:         workers,
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		ShutdownTimeout: shutdownTimeout,

		FetchTimeout:  fetchTimeout,
		FetchAttempts: fetchAttempts,
		FetchBackoff:  fetchBackoff,
		UserAgent:     envOrDefault("HTTP_USER_AGENT", "station-etl/1.0"),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "canonical-observations"),

		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		PostgresTable: envOrDefault("POSTGRES_TABLE", "observations"),
		PostgresBatch: pgBatch,

		MirrorEndpoint:  os.Getenv("MIRROR_ENDPOINT"),
		MirrorBucket:    os.Getenv("MIRROR_BUCKET"),
		MirrorAccessKey: os.Getenv("MIRROR_ACCESS_KEY"),
		MirrorSecretKey: os.Getenv("MIRROR_SECRET_KEY"),
		MirrorUseSSL:    mirrorSSL,
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.Workers <= 0 {
		return nil, errors.New("WORKERS must be positive")
	}
	if cfg.ShutdownTimeout <= 0 {
		return nil, errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.FetchAttempts < 1 {
		return nil, errors.New("FETCH_ATTEMPTS must be at least 1")
	}
	if cfg.FetchTimeout <= 0 || cfg.FetchBackoff <= 0 {
		return nil, errors.New("fetch timeout and backoff must be positive")
	}
	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_TOPIC is empty")
	}
	if cfg.PostgresEnabled() && cfg.PostgresBatch <= 0 {
		return nil, errors.New("POSTGRES_BATCH must be positive")
	}
	if cfg.MirrorEnabled() && cfg.MirrorBucket == "" {
		return nil, errors.New("MIRROR_ENDPOINT is set but MIRROR_BUCKET is empty")
	}

	return cfg, nil
}

// KafkaEnabled reports whether the Kafka publisher should be wired.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// PostgresEnabled reports whether the Postgres sink should be wired.
func (c *Config) PostgresEnabled() bool { return c.PostgresDSN != "" }

// MirrorEnabled reports whether the object-store mirror should be wired.
func (c *Config) MirrorEnabled() bool { return c.MirrorEndpoint != "" }

// RawDir is the staging area for fetched payloads.
func (c *Config) RawDir() string { return filepath.Join(c.DataDir, "raw") }

// ProcessedDir is the root of the output partitions.
func (c *Config) ProcessedDir() string { return filepath.Join(c.DataDir, "processed") }

// StationsDir holds the persisted regional station lists.
func (c *Config) StationsDir() string { return filepath.Join(c.DataDir, "stations") }

// FailureLogPath is the append-only failure log.
func (c *Config) FailureLogPath() string { return filepath.Join(c.DataDir, "failures.log") }

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, s)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
