package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"SCAN_STORE", "SQLITE_PATH", "SUBMIT_MODE", "SUBMIT_PAUSE", "KAFKA_BROKERS", "ALERT_SOUND_PATH"} {
		t.Setenv(key, "")
	}

	cfg := Load("")

	assert.Equal(t, StoreSQLite, cfg.Storage.Kind)
	assert.Equal(t, "barcode_scans.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "enter", cfg.Input.SubmitMode)
	assert.Equal(t, 300*time.Millisecond, cfg.Input.Pause)
	assert.Equal(t, "beep.wav", cfg.Alert.SoundPath)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SCAN_STORE", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SUBMIT_MODE", "pause")
	t.Setenv("SUBMIT_PAUSE", "500ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load("")

	assert.Equal(t, StoreRedis, cfg.Storage.Kind)
	assert.Equal(t, 3, cfg.Storage.RedisDB)
	assert.Equal(t, "pause", cfg.Input.SubmitMode)
	assert.Equal(t, 500*time.Millisecond, cfg.Input.Pause)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.MinIO.UseSSL)
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("SQLITE_PATH", "")
	os.Unsetenv("SQLITE_PATH")
	t.Setenv("LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "config.env")
	require.NoError(t, os.WriteFile(path, []byte("SQLITE_PATH=/var/lib/og/scans.db\nLOG_LEVEL=debug\n"), 0o600))

	cfg := Load(path)

	assert.Equal(t, "/var/lib/og/scans.db", cfg.Storage.SQLitePath)
	// Real environment wins over the file.
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	assert.NotPanics(t, func() {
		Load(filepath.Join(t.TempDir(), "nope.env"))
	})
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT_VAR", "invalid")
	assert.Equal(t, 10, getEnvInt("TEST_INT_VAR", 10))

	t.Setenv("TEST_BOOL_VAR", "invalid")
	assert.True(t, getEnvBool("TEST_BOOL_VAR", true))

	t.Setenv("TEST_DUR_VAR", "-1s")
	assert.Equal(t, time.Second, getEnvDuration("TEST_DUR_VAR", time.Second))

	assert.Equal(t, "default", getEnv("NON_EXISTENT_OG_VAR", "default"))
}
