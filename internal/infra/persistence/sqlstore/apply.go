package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"assetcore/pkg/domain"
)

// maxParams bounds bind parameters per statement below both drivers' limits.
const maxParams = 32000

var (
	locationColumns = []string{"id", "name", "parent_id", "active", "created_at", "updated_at"}
	assetColumns    = []string{
		"id", "code", "name", "description", "category", "status", "location_id", "custodian_id",
		"quantity", "condition_grade", "tags", "notes", "created_by", "merged_into", "created_at", "updated_at",
	}
	ledgerColumns = []string{
		"id", "asset_id", "action", "actor_id", "borrower_id", "from_location_id", "to_location_id",
		"session_id", "notes", "action_at", "created_at", "backdated",
	}
	sessionColumns = []string{
		"id", "location_id", "initiator_id", "status", "started_at", "ended_at", "notes",
		"expected_asset_ids", "confirmed_asset_ids", "missing_asset_ids", "summary", "created_at", "updated_at",
	}
	tagColumns      = []string{"id", "tag_value", "asset_id", "assigned_by", "assigned_at", "removed_at", "removed_by", "notes"}
	analysisColumns = []string{
		"id", "asset_id", "image_key", "status", "suggestions", "error_message", "processed_at", "created_at", "updated_at",
	}
)

// batch collects the final state of each record touched by a transaction,
// keeping first-touch order and whether the record was created.
type batch[T any] struct {
	order   []string
	created map[string]bool
	latest  map[string]T
}

func newBatch[T any]() *batch[T] {
	return &batch[T]{created: map[string]bool{}, latest: map[string]T{}}
}

func (b *batch[T]) add(id string, action domain.Action, v T) {
	if _, seen := b.latest[id]; !seen {
		b.order = append(b.order, id)
		b.created[id] = action == domain.ActionCreate
	}
	b.latest[id] = v
}

// split returns records that already existed before the transaction and
// records it created, each in first-touch order.
func (b *batch[T]) split() (updated, created []T) {
	for _, id := range b.order {
		if b.created[id] {
			created = append(created, b.latest[id])
		} else {
			updated = append(updated, b.latest[id])
		}
	}
	return updated, created
}

func (b *batch[T]) all() []T {
	out := make([]T, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.latest[id])
	}
	return out
}

type changeSet struct {
	locations *batch[domain.Location]
	assets    *batch[domain.Asset]
	ledger    []domain.LedgerEntry
	sessions  *batch[domain.StocktakeSession]
	tags      *batch[domain.TagAssignment]
	analyses  *batch[domain.ImageAnalysis]
}

func groupChanges(changes []domain.Change) (changeSet, error) {
	cs := changeSet{
		locations: newBatch[domain.Location](),
		assets:    newBatch[domain.Asset](),
		sessions:  newBatch[domain.StocktakeSession](),
		tags:      newBatch[domain.TagAssignment](),
		analyses:  newBatch[domain.ImageAnalysis](),
	}
	for _, ch := range changes {
		if ch.Action == domain.ActionDelete {
			if ch.Entity == domain.EntityLedgerEntry {
				return changeSet{}, domain.ImmutableError{Entity: ch.Entity, Operation: "delete"}
			}
			return changeSet{}, fmt.Errorf("sqlstore: delete of %s is not supported", ch.Entity)
		}
		switch v := ch.After.(type) {
		case domain.Location:
			cs.locations.add(v.ID, ch.Action, v)
		case domain.Asset:
			cs.assets.add(v.ID, ch.Action, v)
		case domain.LedgerEntry:
			if ch.Action != domain.ActionCreate {
				return changeSet{}, domain.ImmutableError{Entity: domain.EntityLedgerEntry, ID: v.ID, Operation: "update"}
			}
			cs.ledger = append(cs.ledger, v)
		case domain.StocktakeSession:
			cs.sessions.add(v.ID, ch.Action, v)
		case domain.TagAssignment:
			cs.tags.add(v.ID, ch.Action, v)
		case domain.ImageAnalysis:
			cs.analyses.add(v.ID, ch.Action, v)
		default:
			return changeSet{}, fmt.Errorf("sqlstore: unsupported change payload %T for %s", ch.After, ch.Entity)
		}
	}
	return cs, nil
}

type statement struct {
	query string
	args  []any
}

// Apply writes a transaction's change set in one SQL transaction. Records of
// one kind are written with one multi-row statement per kind, in an order
// that satisfies references and the partial unique indexes. Apply does not
// check the revision; Syncer.Apply does.
func Apply(ctx context.Context, db *sql.DB, d Dialect, changes []domain.Change) error {
	return d.write(ctx, db, changes, nil)
}

// write runs guard, when set, inside the SQL transaction before the change
// set statements.
func (d Dialect) write(ctx context.Context, db *sql.DB, changes []domain.Change, guard func(*sql.Tx) error) error {
	if len(changes) == 0 {
		return nil
	}
	stmts, err := d.statements(changes)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", d.Name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if guard != nil {
		if err := guard(tx); err != nil {
			return err
		}
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return d.Translate(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return d.Translate(err)
	}
	committed = true
	return nil
}

func (d Dialect) statements(changes []domain.Change) ([]statement, error) {
	cs, err := groupChanges(changes)
	if err != nil {
		return nil, err
	}
	var out []statement
	add := func(table string, cols []string, rows [][]any, upsert bool) {
		out = append(out, d.buildInsert(table, cols, rows, upsert)...)
	}

	if rows := rowsOf(cs.locations.all(), d.locationRow); len(rows) > 0 {
		add(tableLocations, locationColumns, rows, true)
	}
	assetRows, err := rowsOfErr(cs.assets.all(), d.assetRow)
	if err != nil {
		return nil, err
	}
	if len(assetRows) > 0 {
		add(tableAssets, assetColumns, assetRows, true)
	}
	// Closed assignments and finished sessions go first so the partial unique
	// indexes accept the replacements inserted after them.
	closedTags, openedTags := cs.tags.split()
	if rows := rowsOf(closedTags, d.tagRow); len(rows) > 0 {
		add(tableTagAssignments, tagColumns, rows, true)
	}
	if rows := rowsOf(openedTags, d.tagRow); len(rows) > 0 {
		add(tableTagAssignments, tagColumns, rows, false)
	}
	updatedSessions, createdSessions := cs.sessions.split()
	for _, group := range []struct {
		sessions []domain.StocktakeSession
		upsert   bool
	}{{updatedSessions, true}, {createdSessions, false}} {
		rows, err := rowsOfErr(group.sessions, d.sessionRow)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			add(tableSessions, sessionColumns, rows, group.upsert)
		}
	}
	if rows := rowsOf(cs.ledger, d.ledgerRow); len(rows) > 0 {
		add(tableLedger, ledgerColumns, rows, false)
	}
	analysisRows, err := rowsOfErr(cs.analyses.all(), d.analysisRow)
	if err != nil {
		return nil, err
	}
	if len(analysisRows) > 0 {
		add(tableImageAnalyses, analysisColumns, analysisRows, true)
	}
	return out, nil
}

// buildInsert renders one multi-row INSERT (or upsert keyed on id) per chunk
// of rows that fits within maxParams.
func (d Dialect) buildInsert(table string, cols []string, rows [][]any, upsert bool) []statement {
	perStmt := maxParams / len(cols)
	var out []statement
	for start := 0; start < len(rows); start += perStmt {
		end := min(start+perStmt, len(rows))
		chunk := rows[start:end]
		var b strings.Builder
		fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), d.valuesClause(len(chunk), len(cols)))
		if upsert {
			sets := make([]string, 0, len(cols)-1)
			for _, c := range cols[1:] {
				sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
			}
			fmt.Fprintf(&b, " ON CONFLICT (id) DO UPDATE SET %s", strings.Join(sets, ", "))
		}
		args := make([]any, 0, len(chunk)*len(cols))
		for _, r := range chunk {
			args = append(args, r...)
		}
		out = append(out, statement{query: b.String(), args: args})
	}
	return out
}

func rowsOf[T any](items []T, row func(T) []any) [][]any {
	out := make([][]any, 0, len(items))
	for _, it := range items {
		out = append(out, row(it))
	}
	return out
}

func rowsOfErr[T any](items []T, row func(T) ([]any, error)) ([][]any, error) {
	out := make([][]any, 0, len(items))
	for _, it := range items {
		r, err := row(it)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func jsonArg(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func stringsArg(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	return jsonArg(v)
}

func (d Dialect) locationRow(l domain.Location) []any {
	return []any{l.ID, l.Name, nullString(l.ParentID), l.Active, d.timeArg(l.CreatedAt), d.timeArg(l.UpdatedAt)}
}

func (d Dialect) assetRow(a domain.Asset) ([]any, error) {
	tags, err := stringsArg(a.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode asset %s tags: %w", a.ID, err)
	}
	return []any{
		a.ID, a.Code, a.Name, a.Description, a.Category, string(a.Status), nullString(a.LocationID),
		nullString(a.CustodianID), a.Quantity, string(a.Condition), tags, a.Notes, a.CreatedBy,
		nullString(a.MergedInto), d.timeArg(a.CreatedAt), d.timeArg(a.UpdatedAt),
	}, nil
}

func (d Dialect) ledgerRow(e domain.LedgerEntry) []any {
	return []any{
		e.ID, e.AssetID, string(e.Action), e.ActorID, nullString(e.BorrowerID), nullString(e.FromLocationID),
		nullString(e.ToLocationID), nullString(e.SessionID), e.Notes, d.timeArg(e.Timestamp),
		d.timeArg(e.CreatedAt), e.Backdated,
	}
}

func (d Dialect) sessionRow(s domain.StocktakeSession) ([]any, error) {
	expected, err := stringsArg(s.ExpectedAssetIDs)
	if err != nil {
		return nil, err
	}
	confirmed, err := stringsArg(s.ConfirmedAssetIDs)
	if err != nil {
		return nil, err
	}
	missing, err := stringsArg(s.MissingAssetIDs)
	if err != nil {
		return nil, err
	}
	var summary any
	if s.Summary != nil {
		if summary, err = jsonArg(s.Summary); err != nil {
			return nil, err
		}
	}
	return []any{
		s.ID, s.LocationID, s.InitiatorID, string(s.Status), d.timeArg(s.StartedAt), d.nullTimeArg(s.EndedAt),
		s.Notes, expected, confirmed, missing, summary, d.timeArg(s.CreatedAt), d.timeArg(s.UpdatedAt),
	}, nil
}

func (d Dialect) tagRow(t domain.TagAssignment) []any {
	return []any{
		t.ID, t.TagValue, t.AssetID, t.AssignedBy, d.timeArg(t.AssignedAt), d.nullTimeArg(t.RemovedAt),
		nullString(t.RemovedBy), t.Notes,
	}
}

func (d Dialect) analysisRow(a domain.ImageAnalysis) ([]any, error) {
	var suggestions any
	if a.Suggestions != nil {
		s, err := jsonArg(a.Suggestions)
		if err != nil {
			return nil, err
		}
		suggestions = s
	}
	return []any{
		a.ID, a.AssetID, a.ImageKey, string(a.Status), suggestions, a.ErrorMessage, d.nullTimeArg(a.ProcessedAt),
		d.timeArg(a.CreatedAt), d.timeArg(a.UpdatedAt),
	}, nil
}
