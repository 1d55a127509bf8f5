package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetcore/internal/config"
)

func TestCLIBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-nope"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "flag provided but not defined")
}

func TestCLICheckConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "assetcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: memory\nblob:\n  driver: memory\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-config", path, "-check"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "configuration ok (storage=memory blob=memory queue=memory)\n", stdout.String())
}

func TestCLIInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ASSETCORE_STORAGE_DRIVER", "mongo")
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-check"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.True(t, strings.HasPrefix(stderr.String(), "assetcore: "), stderr.String())
}

func TestMainUsesExitFunc(t *testing.T) {
	t.Chdir(t.TempDir())
	orig := exitFunc
	origArgs := os.Args
	t.Cleanup(func() {
		exitFunc = orig
		os.Args = origArgs
	})
	got := -1
	exitFunc = func(code int) { got = code }
	os.Args = []string{"assetcore", "-bogus"}
	main()
	assert.Equal(t, 2, got)
}

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Blob.Driver = "memory"
	cfg.Tracing.Exporter = "json"
	return cfg
}

func TestBuildWiresHandler(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	a, err := build(context.Background(), memoryConfig(t), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/locations", strings.NewReader(`{"name":"Dock"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "loc-1")
	a.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "assetcore_operations_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestBuildRejectsUnreachableRedis(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	logger.SetLevel(logrus.PanicLevel)
	cfg := memoryConfig(t)
	cfg.Idempotency.Driver = "redis"
	cfg.Idempotency.RedisAddr = "127.0.0.1:1"
	_, err := build(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "idempotency redis ping")
}

func TestServeStopsOnCancel(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	cfg := memoryConfig(t)
	cfg.HTTP.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, serve(ctx, cfg, logger))
	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "shutting down")
}
