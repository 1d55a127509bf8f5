package core

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"assetcore/internal/infra/persistence/memory"
	"assetcore/internal/infra/persistence/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStoreMemory(t *testing.T) {
	store, err := OpenStore(StorageConfig{Driver: StorageMemory}, nil)
	require.NoError(t, err)
	mem, ok := store.(*memory.Store)
	require.True(t, ok)
	assert.Equal(t, NewDefaultRulesEngine().Rules(), mem.RulesEngine().Rules())
}

func TestOpenStoreSQLiteIsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.db")
	store, err := OpenStore(StorageConfig{SQLitePath: path}, nil)
	require.NoError(t, err)
	_, ok := store.(*sqlite.Store)
	require.True(t, ok)
	closer, ok := store.(io.Closer)
	require.True(t, ok)
	t.Cleanup(func() { _ = closer.Close() })

	svc := NewService(store)
	loc, err := svc.CreateLocation(context.Background(), "Dock", "")
	require.NoError(t, err)
	draft, err := svc.CreateDraft(context.Background(), DraftInput{Name: "Pallet jack", Category: "handling", LocationID: loc.ID})
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), draft.ID, "active")
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	reopened, err := sqlite.NewStore(path, NewDefaultRulesEngine())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := NewService(reopened).GetAsset(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", string(got.Status))
	assert.True(t, got.AtLocation(loc.ID))
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore(StorageConfig{Driver: "mongo"}, nil)
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestStorageConfigFromEnv(t *testing.T) {
	t.Setenv("ASSETCORE_STORAGE_DRIVER", "postgres")
	t.Setenv("ASSETCORE_POSTGRES_DSN", "postgres://u:p@db/assets")
	t.Setenv("ASSETCORE_SQLITE_PATH", "")
	cfg := StorageConfigFromEnv()
	assert.Equal(t, StoragePostgres, cfg.Driver)
	assert.Equal(t, "postgres://u:p@db/assets", cfg.PostgresDSN)
	assert.Empty(t, cfg.SQLitePath)
}
