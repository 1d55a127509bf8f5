package core

import (
	"fmt"
	"os"

	"assetcore/internal/infra/persistence/memory"
	"assetcore/internal/infra/persistence/postgres"
	"assetcore/internal/infra/persistence/sqlite"
	"assetcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and locates a backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// StorageConfigFromEnv reads the backend selection from the environment.
//
//	ASSETCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	ASSETCORE_SQLITE_PATH: path to sqlite file (default ./assetcore.db)
//	ASSETCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageConfigFromEnv() StorageConfig {
	return StorageConfig{
		Driver:      StorageDriver(os.Getenv("ASSETCORE_STORAGE_DRIVER")),
		SQLitePath:  os.Getenv("ASSETCORE_SQLITE_PATH"),
		PostgresDSN: os.Getenv("ASSETCORE_POSTGRES_DSN"),
	}
}

// OpenStore opens the configured backend. SQL backends implement io.Closer.
func OpenStore(cfg StorageConfig, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
func OpenPersistentStore(engine *domain.RulesEngine) (domain.PersistentStore, error) {
	return OpenStore(StorageConfigFromEnv(), engine)
}
