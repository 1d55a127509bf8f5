package sqlstore

import (
	"errors"
	"strings"
	"testing"
	"time"

	"assetcore/pkg/domain"
)

var testDialect = Dialect{Name: "test", Placeholder: DollarPlaceholder}

func TestStatementsMergeCreatesWithLaterUpdates(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	created := domain.Asset{Base: domain.Base{ID: "a1", CreatedAt: now, UpdatedAt: now}, Code: "ASSET-00000001", Status: domain.AssetDraft}
	updated := created
	updated.Status = domain.AssetActive
	stmts, err := testDialect.statements([]domain.Change{
		{Entity: domain.EntityAsset, Action: domain.ActionCreate, After: created},
		{Entity: domain.EntityAsset, Action: domain.ActionUpdate, Before: created, After: updated},
	})
	if err != nil {
		t.Fatalf("statements: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected one statement, got %d", len(stmts))
	}
	if len(stmts[0].args) != len(assetColumns) {
		t.Fatalf("expected a single row, got %d args", len(stmts[0].args))
	}
	if stmts[0].args[5] != string(domain.AssetActive) {
		t.Fatalf("expected latest status to win, got %v", stmts[0].args[5])
	}
	if !strings.Contains(stmts[0].query, "ON CONFLICT (id) DO UPDATE SET code = excluded.code") {
		t.Fatalf("expected upsert, got %s", stmts[0].query)
	}
}

func TestStatementsOrderClosuresBeforeReplacements(t *testing.T) {
	now := time.Now().UTC()
	removed := now
	closedSession := domain.StocktakeSession{Base: domain.Base{ID: "s1"}, LocationID: "loc", Status: domain.SessionCompleted, StartedAt: now}
	newSession := domain.StocktakeSession{Base: domain.Base{ID: "s2"}, LocationID: "loc", Status: domain.SessionInProgress, StartedAt: now}
	closedTag := domain.TagAssignment{ID: "t1", TagValue: "QR-1", AssetID: "a1", RemovedAt: &removed}
	newTag := domain.TagAssignment{ID: "t2", TagValue: "QR-1", AssetID: "a2"}

	stmts, err := testDialect.statements([]domain.Change{
		{Entity: domain.EntityStocktakeSession, Action: domain.ActionCreate, After: newSession},
		{Entity: domain.EntityStocktakeSession, Action: domain.ActionUpdate, After: closedSession},
		{Entity: domain.EntityTagAssignment, Action: domain.ActionCreate, After: newTag},
		{Entity: domain.EntityTagAssignment, Action: domain.ActionUpdate, After: closedTag},
		{Entity: domain.EntityLedgerEntry, Action: domain.ActionCreate, After: domain.LedgerEntry{ID: "l1", AssetID: "a1", Action: domain.ActionAudit}},
	})
	if err != nil {
		t.Fatalf("statements: %v", err)
	}
	var order []string
	for _, st := range stmts {
		table := strings.Fields(st.query)[2]
		upsert := strings.Contains(st.query, "ON CONFLICT")
		if upsert {
			table += "+upsert"
		}
		order = append(order, table)
	}
	want := []string{
		"tag_assignments+upsert",
		"tag_assignments",
		"stocktake_sessions+upsert",
		"stocktake_sessions",
		"ledger_entries",
	}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected statement order %v", order)
	}
}

func TestStatementsRejectLedgerMutation(t *testing.T) {
	entry := domain.LedgerEntry{ID: "l1", AssetID: "a1", Action: domain.ActionCheckout}
	for _, action := range []domain.Action{domain.ActionUpdate, domain.ActionDelete} {
		_, err := testDialect.statements([]domain.Change{{Entity: domain.EntityLedgerEntry, Action: action, After: entry, Before: entry}})
		if !errors.Is(err, domain.ErrLedgerImmutable) {
			t.Fatalf("%s: expected immutable error, got %v", action, err)
		}
	}
}

func TestBuildInsertChunksLargeBatches(t *testing.T) {
	cols := []string{"id", "name"}
	rows := make([][]any, maxParams)
	for i := range rows {
		rows[i] = []any{i, "x"}
	}
	stmts := testDialect.buildInsert("locations", cols, rows, false)
	if len(stmts) != 2 {
		t.Fatalf("expected two chunks, got %d", len(stmts))
	}
	total := 0
	for _, st := range stmts {
		if len(st.args) > maxParams {
			t.Fatalf("chunk exceeds parameter limit: %d", len(st.args))
		}
		total += len(st.args)
	}
	if total != maxParams*2 {
		t.Fatalf("rows lost while chunking: %d", total)
	}
	if !strings.HasSuffix(stmts[1].query, "($1,$2)") && !strings.Contains(stmts[1].query, "VALUES ($1,$2)") {
		t.Fatalf("placeholders should restart per chunk: %.80s", stmts[1].query)
	}
}

func TestValuesClauseNumbersPlaceholders(t *testing.T) {
	if got := testDialect.valuesClause(2, 2); got != "($1,$2),($3,$4)" {
		t.Fatalf("unexpected values clause %q", got)
	}
	q := Dialect{Placeholder: QuestionPlaceholder}
	if got := q.valuesClause(1, 3); got != "(?,?,?)" {
		t.Fatalf("unexpected values clause %q", got)
	}
}

func TestScanTimeAcceptsDriverShapes(t *testing.T) {
	want := time.Date(2026, 5, 6, 7, 8, 9, 123000000, time.UTC)
	for _, src := range []any{want, want.Format(time.RFC3339Nano), []byte(want.Format(time.RFC3339Nano))} {
		var st scanTime
		if err := st.Scan(src); err != nil {
			t.Fatalf("scan %T: %v", src, err)
		}
		if !st.t.Equal(want) || st.ptr() == nil {
			t.Fatalf("scan %T: got %v", src, st.t)
		}
	}
	var null scanTime
	if err := null.Scan(nil); err != nil || null.ptr() != nil {
		t.Fatalf("expected null time, got %v %v", null.ptr(), err)
	}
	if err := null.Scan(42); err == nil {
		t.Fatalf("expected error for integer time")
	}
}
