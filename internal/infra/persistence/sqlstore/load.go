package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"assetcore/internal/infra/persistence/memory"
	"assetcore/pkg/domain"
)

// EnsureSchema applies the dialect's DDL.
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: apply schema: %w", d.Name, err)
		}
	}
	return nil
}

// Queryer is satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Load reads every table into a memory snapshot. Ledger entries keep their
// insertion order. Pass a transaction to read a consistent snapshot.
func Load(ctx context.Context, db Queryer) (memory.Snapshot, error) {
	snap := memory.Snapshot{
		Assets:         map[string]domain.Asset{},
		Locations:      map[string]domain.Location{},
		Sessions:       map[string]domain.StocktakeSession{},
		TagAssignments: map[string]domain.TagAssignment{},
		ImageAnalyses:  map[string]domain.ImageAnalysis{},
	}
	loaders := []struct {
		name  string
		query string
		scan  func(*sql.Rows) error
	}{
		{tableLocations, `SELECT id, name, parent_id, active, created_at, updated_at FROM locations`, func(rows *sql.Rows) error {
			var (
				l        domain.Location
				parent   sql.NullString
				cAt, uAt scanTime
			)
			if err := rows.Scan(&l.ID, &l.Name, &parent, &l.Active, &cAt, &uAt); err != nil {
				return err
			}
			l.ParentID, l.CreatedAt, l.UpdatedAt = ptr(parent), cAt.t, uAt.t
			snap.Locations[l.ID] = l
			return nil
		}},
		{tableAssets, `SELECT id, code, name, description, category, status, location_id, custodian_id, quantity,
			condition_grade, tags, notes, created_by, merged_into, created_at, updated_at FROM assets`, func(rows *sql.Rows) error {
			var (
				a                   domain.Asset
				status, grade       string
				location, custodian sql.NullString
				mergedInto          sql.NullString
				tags                []byte
				cAt, uAt            scanTime
			)
			if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.Category, &status, &location, &custodian,
				&a.Quantity, &grade, &tags, &a.Notes, &a.CreatedBy, &mergedInto, &cAt, &uAt); err != nil {
				return err
			}
			if err := decodeJSON(tags, &a.Tags); err != nil {
				return fmt.Errorf("asset %s tags: %w", a.ID, err)
			}
			a.Status, a.Condition = domain.AssetStatus(status), domain.Condition(grade)
			a.LocationID, a.CustodianID, a.MergedInto = ptr(location), ptr(custodian), ptr(mergedInto)
			a.CreatedAt, a.UpdatedAt = cAt.t, uAt.t
			snap.Assets[a.ID] = a
			return nil
		}},
		{tableLedger, `SELECT id, asset_id, action, actor_id, borrower_id, from_location_id, to_location_id, session_id,
			notes, action_at, created_at, backdated FROM ledger_entries ORDER BY seq`, func(rows *sql.Rows) error {
			var (
				e                          domain.LedgerEntry
				action                     string
				borrower, from, to, sessID sql.NullString
				at, cAt                    scanTime
			)
			if err := rows.Scan(&e.ID, &e.AssetID, &action, &e.ActorID, &borrower, &from, &to, &sessID,
				&e.Notes, &at, &cAt, &e.Backdated); err != nil {
				return err
			}
			e.Action = domain.LedgerAction(action)
			e.BorrowerID, e.FromLocationID, e.ToLocationID, e.SessionID = ptr(borrower), ptr(from), ptr(to), ptr(sessID)
			e.Timestamp, e.CreatedAt = at.t, cAt.t
			snap.Ledger = append(snap.Ledger, e)
			return nil
		}},
		{tableSessions, `SELECT id, location_id, initiator_id, status, started_at, ended_at, notes, expected_asset_ids,
			confirmed_asset_ids, missing_asset_ids, summary, created_at, updated_at FROM stocktake_sessions`, func(rows *sql.Rows) error {
			var (
				s                            domain.StocktakeSession
				status                       string
				started, ended, cAt, uAt     scanTime
				expected, confirmed, missing []byte
				summary                      []byte
			)
			if err := rows.Scan(&s.ID, &s.LocationID, &s.InitiatorID, &status, &started, &ended, &s.Notes, &expected,
				&confirmed, &missing, &summary, &cAt, &uAt); err != nil {
				return err
			}
			for _, f := range []struct {
				raw []byte
				dst any
			}{{expected, &s.ExpectedAssetIDs}, {confirmed, &s.ConfirmedAssetIDs}, {missing, &s.MissingAssetIDs}} {
				if err := decodeJSON(f.raw, f.dst); err != nil {
					return fmt.Errorf("session %s: %w", s.ID, err)
				}
			}
			if len(summary) > 0 {
				s.Summary = &domain.StocktakeSummary{}
				if err := decodeJSON(summary, s.Summary); err != nil {
					return fmt.Errorf("session %s summary: %w", s.ID, err)
				}
			}
			s.Status = domain.SessionStatus(status)
			s.StartedAt, s.EndedAt = started.t, ended.ptr()
			s.CreatedAt, s.UpdatedAt = cAt.t, uAt.t
			snap.Sessions[s.ID] = s
			return nil
		}},
		{tableTagAssignments, `SELECT id, tag_value, asset_id, assigned_by, assigned_at, removed_at, removed_by, notes
			FROM tag_assignments`, func(rows *sql.Rows) error {
			var (
				t                domain.TagAssignment
				assigned, remove scanTime
				removedBy        sql.NullString
			)
			if err := rows.Scan(&t.ID, &t.TagValue, &t.AssetID, &t.AssignedBy, &assigned, &remove, &removedBy, &t.Notes); err != nil {
				return err
			}
			t.AssignedAt, t.RemovedAt, t.RemovedBy = assigned.t, remove.ptr(), ptr(removedBy)
			snap.TagAssignments[t.ID] = t
			return nil
		}},
		{tableImageAnalyses, `SELECT id, asset_id, image_key, status, suggestions, error_message, processed_at,
			created_at, updated_at FROM image_analyses`, func(rows *sql.Rows) error {
			var (
				a                   domain.ImageAnalysis
				status              string
				suggestions         []byte
				processed, cAt, uAt scanTime
			)
			if err := rows.Scan(&a.ID, &a.AssetID, &a.ImageKey, &status, &suggestions, &a.ErrorMessage, &processed,
				&cAt, &uAt); err != nil {
				return err
			}
			if len(suggestions) > 0 {
				a.Suggestions = &domain.AnalysisSuggestions{}
				if err := decodeJSON(suggestions, a.Suggestions); err != nil {
					return fmt.Errorf("analysis %s suggestions: %w", a.ID, err)
				}
			}
			a.Status = domain.AnalysisStatus(status)
			a.ProcessedAt, a.CreatedAt, a.UpdatedAt = processed.ptr(), cAt.t, uAt.t
			snap.ImageAnalyses[a.ID] = a
			return nil
		}},
	}
	for _, l := range loaders {
		if err := loadRows(ctx, db, l.query, l.scan); err != nil {
			return memory.Snapshot{}, fmt.Errorf("load %s: %w", l.name, err)
		}
	}
	return snap, nil
}

func loadRows(ctx context.Context, db Queryer, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func ptr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// scanTime accepts native timestamps and the RFC 3339 text SQLite stores.
type scanTime struct {
	t     time.Time
	valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

func (s *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = scanTime{}
		return nil
	case time.Time:
		*s = scanTime{t: v.UTC(), valid: true}
		return nil
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (s *scanTime) parse(text string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			*s = scanTime{t: t.UTC(), valid: true}
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", text)
}

func (s scanTime) ptr() *time.Time {
	if !s.valid {
		return nil
	}
	t := s.t
	return &t
}
