package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Empty(t, cfg.RegistryPath)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 3, cfg.FetchAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.FetchBackoff)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.PostgresEnabled())
	assert.False(t, cfg.MirrorEnabled())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/stationetl")
	t.Setenv("REGISTRY_FILE", "/etc/stationetl/registry.yaml")
	t.Setenv("WORKERS", "16")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("METRICS_ADDR", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("FETCH_TIMEOUT", "2m")
	t.Setenv("FETCH_ATTEMPTS", "5")
	t.Setenv("FETCH_BACKOFF", "1s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "observations")
	t.Setenv("POSTGRES_DSN", "postgres://etl@localhost/wx")
	t.Setenv("POSTGRES_BATCH", "200")
	t.Setenv("MIRROR_ENDPOINT", "minio:9000")
	t.Setenv("MIRROR_BUCKET", "archive-mirror")
	t.Setenv("MIRROR_USE_SSL", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/stationetl", cfg.DataDir)
	assert.Equal(t, "/etc/stationetl/registry.yaml", cfg.RegistryPath)
	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 2*time.Minute, cfg.FetchTimeout)
	assert.Equal(t, 5, cfg.FetchAttempts)
	assert.Equal(t, time.Second, cfg.FetchBackoff)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "observations", cfg.KafkaTopic)
	assert.True(t, cfg.KafkaEnabled())
	assert.True(t, cfg.PostgresEnabled())
	assert.Equal(t, 200, cfg.PostgresBatch)
	assert.True(t, cfg.MirrorEnabled())
	assert.False(t, cfg.MirrorUseSSL)
}

func TestLoad_DerivedPaths(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/wx")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/srv/wx", "raw"), cfg.RawDir())
	assert.Equal(t, filepath.Join("/srv/wx", "processed"), cfg.ProcessedDir())
	assert.Equal(t, filepath.Join("/srv/wx", "stations"), cfg.StationsDir())
	assert.Equal(t, filepath.Join("/srv/wx", "failures.log"), cfg.FailureLogPath())
}

func TestLoad_InvalidWorkers(t *testing.T) {
	t.Setenv("WORKERS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKERS")
}

func TestLoad_NonNumericWorkers(t *testing.T) {
	t.Setenv("WORKERS", "many")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKERS")
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidFetchAttempts(t *testing.T) {
	t.Setenv("FETCH_ATTEMPTS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_ATTEMPTS")
}

func TestLoad_InvalidFetchBackoff(t *testing.T) {
	t.Setenv("FETCH_BACKOFF", "-500ms")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidMirrorBool(t *testing.T) {
	t.Setenv("MIRROR_USE_SSL", "yep")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIRROR_USE_SSL")
}

func TestLoad_MirrorRequiresBucket(t *testing.T) {
	t.Setenv("MIRROR_ENDPOINT", "minio:9000")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIRROR_BUCKET")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitList("a:9092, b:9092,"))
	assert.Nil(t, splitList(""))
}
