package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"assetcore/internal/infra/persistence/memory"
	"assetcore/pkg/domain"
)

// Syncer keeps a memory working set in step with a database that other
// processes may write. Every commit advances a single revision row with a
// compare-and-set, so a writer that planned against an older revision fails
// with domain.ErrConcurrentUpdate and replans after a reload.
type Syncer struct {
	db  *sql.DB
	d   Dialect
	rev atomic.Int64
}

var _ memory.Source = (*Syncer)(nil)

// NewSyncer returns a Syncer for db. Call Reload before the first Apply.
func NewSyncer(db *sql.DB, d Dialect) *Syncer {
	return &Syncer{db: db, d: d}
}

// Revision is the revision of the state last loaded or written.
func (s *Syncer) Revision() int64 { return s.rev.Load() }

// Stale reports whether the database revision moved past ours.
func (s *Syncer) Stale(ctx context.Context) (bool, error) {
	cur, err := readRevision(ctx, s.db)
	if err != nil {
		return false, fmt.Errorf("%s: %w", s.d.Name, err)
	}
	return cur != s.rev.Load(), nil
}

// Reload reads the revision and every table in one transaction.
func (s *Syncer) Reload(ctx context.Context) (memory.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, s.d.SnapshotTx)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("%s: begin: %w", s.d.Name, err)
	}
	defer func() { _ = tx.Rollback() }()
	rev, err := readRevision(ctx, tx)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("%s: %w", s.d.Name, err)
	}
	snapshot, err := Load(ctx, tx)
	if err != nil {
		return memory.Snapshot{}, err
	}
	s.rev.Store(rev)
	return snapshot, nil
}

// Apply writes changes only if no other writer committed since the last
// Reload or Apply.
func (s *Syncer) Apply(ctx context.Context, changes []domain.Change) error {
	expected := s.rev.Load()
	guard := func(tx *sql.Tx) error {
		query := fmt.Sprintf("UPDATE %s SET rev = rev + 1 WHERE id = 1 AND rev = %s", tableRevision, s.d.Placeholder(1))
		res, err := tx.ExecContext(ctx, query, expected)
		if err != nil {
			return s.d.Translate(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%s: revision check: %w", s.d.Name, err)
		}
		if n == 0 {
			return fmt.Errorf("%s: revision %d superseded: %w", s.d.Name, expected, domain.ErrConcurrentUpdate)
		}
		return nil
	}
	if err := s.d.write(ctx, s.db, changes, guard); err != nil {
		return err
	}
	if len(changes) > 0 {
		s.rev.Store(expected + 1)
	}
	return nil
}

func readRevision(ctx context.Context, q Queryer) (int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT rev FROM "+tableRevision+" WHERE id = 1")
	if err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	defer rows.Close()
	var rev int64
	if rows.Next() {
		if err := rows.Scan(&rev); err != nil {
			return 0, fmt.Errorf("read revision: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return rev, nil
}
