package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetcore/internal/blob"
	"assetcore/internal/core"
	"assetcore/internal/infra/queue"
)

// chdir moves into an empty directory so a developer's .env does not leak
// into the test.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, core.StorageSQLite, cfg.StorageConfig().Driver)
	assert.Equal(t, blob.DriverFilesystem, cfg.BlobConfig().Driver)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "assetcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
http:
  addr: ":9090"
  shutdown_timeout: 3s
storage:
  driver: postgres
  postgres_dsn: postgres://u:p@db/assets
blob:
  driver: s3
  s3:
    bucket: asset-images
    endpoint: http://minio:9000
    path_style: true
queue:
  driver: redis
  redis:
    addr: redis:6379
codes:
  prefix: TOOL
  base_url: https://assets.example.com
`), 0o600))
	t.Setenv("ASSETCORE_HTTP_ADDR", ":7070")
	t.Setenv("ASSETCORE_IDEMPOTENCY_DRIVER", "redis")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":7070", cfg.HTTP.Addr, "env wins over the file")
	assert.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, core.StorageConfig{Driver: core.StoragePostgres, PostgresDSN: "postgres://u:p@db/assets", SQLitePath: "assetcore.db"}, cfg.StorageConfig())
	assert.Equal(t, "asset-images", cfg.BlobConfig().S3.Bucket)
	assert.True(t, cfg.BlobConfig().S3.PathStyle)
	assert.Equal(t, queue.DriverRedis, cfg.Queue.Driver)
	assert.Equal(t, "redis:6379", cfg.Idempotency.RedisAddr, "idempotency reuses the queue redis")
	assert.Equal(t, "TOOL", cfg.Codes.Prefix)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ASSETCORE_STORAGE_DRIVER=memory\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("ASSETCORE_STORAGE_DRIVER") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadRejectsInvalid(t *testing.T) {
	chdir(t)
	cases := map[string]map[string]string{
		"unknown storage":      {"ASSETCORE_STORAGE_DRIVER": "mongo"},
		"postgres without dsn": {"ASSETCORE_STORAGE_DRIVER": "postgres"},
		"s3 without bucket":    {"ASSETCORE_BLOB_DRIVER": "s3"},
		"gcs without bucket":   {"ASSETCORE_BLOB_DRIVER": "gcs"},
		"redis queue no addr":  {"ASSETCORE_QUEUE_DRIVER": "redis"},
		"pubsub no project":    {"ASSETCORE_QUEUE_DRIVER": "pubsub", "ASSETCORE_PUBSUB_TOPIC": "analysis"},
		"bad log level":        {"ASSETCORE_LOG_LEVEL": "loud"},
		"bad duration":         {"ASSETCORE_IDEMPOTENCY_TTL": "a day"},
		"bad base url":         {"ASSETCORE_BASE_URL": "not a url"},
		"idempotency no redis": {"ASSETCORE_IDEMPOTENCY_DRIVER": "redis"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	chdir(t)
	_, err := Load("does-not-exist.yaml")
	assert.ErrorContains(t, err, "failed to read config file")
}
