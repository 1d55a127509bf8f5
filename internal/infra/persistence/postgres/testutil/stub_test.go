package testutil

import (
	"context"
	"testing"
)

func TestStubDBRevisionCompareAndSet(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	const update = "UPDATE assetcore_revision SET rev = rev + 1 WHERE id = 1 AND rev = $1"

	res, err := db.ExecContext(ctx, update, int64(0))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 || conn.Revision() != 1 {
		t.Fatalf("expected revision 1 after one bump, got rows=%d rev=%d", n, conn.Revision())
	}
	res, err = db.ExecContext(ctx, update, int64(0))
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 0 || conn.Revision() != 1 {
		t.Fatalf("stale update applied: rows=%d rev=%d", n, conn.Revision())
	}

	var rev int64
	if err := db.QueryRowContext(ctx, "SELECT rev FROM assetcore_revision WHERE id = 1").Scan(&rev); err != nil {
		t.Fatalf("select: %v", err)
	}
	if rev != 1 {
		t.Fatalf("expected selected revision 1, got %d", rev)
	}
}

func TestStubDBStagesMultiRowInsertsUntilCommit(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO locations (id, name) VALUES ($1,$2),($3,$4)", "loc-1", "Store", "loc-2", "Stage"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(conn.Tables["locations"]) != 0 {
		t.Fatalf("rows visible before commit: %v", conn.Tables["locations"])
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(conn.Tables["locations"]) != 2 {
		t.Fatalf("expected two committed rows, got %v", conn.Tables["locations"])
	}

	tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO locations (id, name) VALUES ($1,$2) ON CONFLICT (id) DO UPDATE SET name = excluded.name", "loc-1", "Renamed"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT id, name FROM locations ORDER BY id")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	names := map[string]string{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names[id] = name
	}
	if names["loc-1"] != "Store" || names["loc-2"] != "Stage" {
		t.Fatalf("rolled back upsert leaked: %v", names)
	}
}
