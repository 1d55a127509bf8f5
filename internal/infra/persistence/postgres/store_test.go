package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"assetcore/internal/infra/persistence/memory"
	"assetcore/internal/infra/persistence/postgres/testutil"
	"assetcore/internal/infra/persistence/sqlstore"
	"assetcore/pkg/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

func newStubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreAppliesSchema(t *testing.T) {
	_, conn := newStubStore(t)
	var tables, triggers int
	for _, stmt := range conn.Execs {
		up := strings.ToUpper(stmt)
		if strings.Contains(up, "CREATE TABLE") {
			tables++
		}
		if strings.Contains(up, "CREATE TRIGGER") {
			triggers++
		}
	}
	if tables != 7 || triggers != 1 {
		t.Fatalf("expected 7 tables and 1 trigger, got %d and %d: %v", tables, triggers, conn.Execs)
	}
}

func TestRunInTransactionWritesRowsAndReloads(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var asset domain.Asset
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		loc, err := tx.CreateLocation(domain.Location{Name: "Warehouse", Active: true})
		if err != nil {
			return err
		}
		asset, err = tx.CreateAsset(domain.Asset{
			Code:       "ASSET-0000BEEF",
			Name:       "Chair",
			Category:   "furniture",
			Status:     domain.AssetActive,
			LocationID: domain.StringPtr(loc.ID),
			Quantity:   4,
			Tags:       []string{"oak"},
		})
		if err != nil {
			return err
		}
		_, err = tx.AppendLedgerEntries(domain.LedgerEntry{AssetID: asset.ID, Action: domain.ActionAudit, ActorID: "sam"})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if conn.Commits != 1 {
		t.Fatalf("expected a single commit, got %d", conn.Commits)
	}
	for _, table := range []string{"locations", "assets", "ledger_entries"} {
		if len(conn.Tables[table]) != 1 {
			t.Fatalf("expected one %s row, got %v", table, conn.Tables[table])
		}
	}

	reloaded, err := NewStore("ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	snap := reloaded.ExportState()
	got, ok := snap.Assets[asset.ID]
	if !ok || got.Quantity != 4 || len(got.Tags) != 1 || got.Tags[0] != "oak" {
		t.Fatalf("unexpected reloaded asset %+v", got)
	}
	if len(snap.Ledger) != 1 || snap.Ledger[0].Action != domain.ActionAudit {
		t.Fatalf("unexpected reloaded ledger %+v", snap.Ledger)
	}
}

func TestWriteFailureRollsBackAndKeepsState(t *testing.T) {
	ctx := context.Background()
	store, conn := newStubStore(t)
	conn.TableErrs = map[string]error{"ledger_entries": errors.New("disk full")}
	rollbacks := conn.Rollbacks

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		a, err := tx.CreateAsset(domain.Asset{Code: "ASSET-00000001"})
		if err != nil {
			return err
		}
		_, err = tx.AppendLedgerEntries(domain.LedgerEntry{AssetID: a.ID, Action: domain.ActionAudit, ActorID: "sam"})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected write failure, got %v", err)
	}
	if conn.Rollbacks != rollbacks+1 || len(conn.Tables["assets"]) != 0 {
		t.Fatalf("expected rollback with no rows, got rollbacks=%d assets=%v", conn.Rollbacks, conn.Tables["assets"])
	}
	if len(store.ExportState().Assets) != 0 {
		t.Fatalf("memory state advanced despite failed write")
	}
}

func TestConstraintViolationsMapToDomainErrors(t *testing.T) {
	cases := []struct {
		constraint string
		want       error
	}{
		{sqlstore.IndexAssetCode, domain.ErrDuplicateCode},
		{sqlstore.IndexOpenSession, domain.ErrSessionAlreadyOpen},
		{sqlstore.IndexOpenTag, domain.ErrDuplicateOpenAssignment},
		{sqlstore.IndexSessionAudit, domain.ErrInvalidLedgerAction},
	}
	for _, tc := range cases {
		err := Dialect.Translate(&pgconn.PgError{Code: "23505", ConstraintName: tc.constraint, Message: "duplicate key"})
		if !errors.Is(err, tc.want) {
			t.Fatalf("constraint %s: expected %v, got %v", tc.constraint, tc.want, err)
		}
	}
	immutable := Dialect.Translate(&pgconn.PgError{Code: "P0001", Message: sqlstore.ImmutableLedgerMessage})
	if !errors.Is(immutable, domain.ErrLedgerImmutable) {
		t.Fatalf("expected immutable ledger error, got %v", immutable)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping failure, got %v", err)
	}
}

func TestNewStoreLoadFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.TableErrs = map[string]error{"stocktake_sessions": errors.New("relation missing")}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "load stocktake_sessions") {
		t.Fatalf("expected load failure, got %v", err)
	}
}

func TestTimestampsSurviveRoundTrip(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	db, _ := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	writer, err := NewStore("", nil, memory.WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := writer.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateLocation(domain.Location{Base: domain.Base{ID: "loc-1"}, Name: "Vault"})
		return err
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	reader, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	loc, ok := reader.ExportState().Locations["loc-1"]
	if !ok || !loc.CreatedAt.Equal(fixed) || loc.ParentID != nil {
		t.Fatalf("unexpected reloaded location %+v", loc)
	}
}

func TestStoresSharingDatabaseSeeEachOthersCommits(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	first, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if _, err := first.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateLocation(domain.Location{Base: domain.Base{ID: "loc-1"}, Name: "Vault", Active: true})
		return err
	}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if conn.Revision() != 1 {
		t.Fatalf("expected revision 1, got %d", conn.Revision())
	}

	if _, err := second.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindLocation("loc-1"); !ok {
			return errors.New("location written by the other store is not visible")
		}
		_, err := tx.CreateLocation(domain.Location{Base: domain.Base{ID: "loc-2"}, Name: "Annex", Active: true})
		return err
	}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if conn.Revision() != 2 || len(conn.Tables["locations"]) != 2 {
		t.Fatalf("expected both locations at revision 2, got rev=%d rows=%v", conn.Revision(), conn.Tables["locations"])
	}

	var names []string
	if err := first.View(ctx, func(v domain.TransactionView) error {
		for _, l := range v.ListLocations() {
			names = append(names, l.Name)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected the first store to reload both locations, got %v", names)
	}
}
