// Package sqlite provides the embedded SQLite backend. State is held in the
// in-memory store and each committed transaction is written through to
// normalized tables before it becomes visible.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"assetcore/internal/infra/persistence/memory"
	"assetcore/internal/infra/persistence/sqlstore"
	"assetcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "assetcore.db"

// Dialect describes SQLite to the shared writer and loader.
var Dialect = sqlstore.Dialect{
	Name:        "sqlite",
	Schema:      sqlstore.SQLiteSchema,
	Placeholder: sqlstore.QuestionPlaceholder,
	Constraint:  constraintName,
}

// uniqueTargets maps SQLite's "UNIQUE constraint failed" column lists to index names.
var uniqueTargets = []struct{ columns, index string }{
	{"assets.code", sqlstore.IndexAssetCode},
	{"stocktake_sessions.location_id", sqlstore.IndexOpenSession},
	{"tag_assignments.tag_value", sqlstore.IndexOpenTag},
	{"ledger_entries.session_id, ledger_entries.asset_id", sqlstore.IndexSessionAudit},
}

func constraintName(err error) (string, bool) {
	msg := err.Error()
	const marker = "UNIQUE constraint failed: "
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	target := msg[idx+len(marker):]
	if cut := strings.Index(target, " ("); cut >= 0 {
		target = target[:cut]
	}
	target = strings.TrimSpace(target)
	for _, u := range uniqueTargets {
		if u.columns == target {
			return u.index, true
		}
	}
	return "", false
}

// Store persists the in-memory state to SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path, applies the
// schema and hydrates the in-memory state from it. Other processes may share
// the file; transactions reload and replan when one of them committed first.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	}
	if err := sqlstore.EnsureSchema(ctx, db, Dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	syncer := sqlstore.NewSyncer(db, Dialect)
	snapshot, err := syncer.Reload(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	opts = append(opts, memory.WithCommitHook(syncer.Apply), memory.WithSource(syncer))
	mem := memory.NewStore(engine, opts...)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db, path: path}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
