package sqlstore

// ImmutableLedgerMessage is raised by the ledger triggers on UPDATE or DELETE.
const ImmutableLedgerMessage = "ledger entries are immutable"

// Index names referenced when mapping constraint failures.
const (
	IndexAssetCode    = "assets_code_key"
	IndexOpenSession  = "stocktake_sessions_open_location"
	IndexOpenTag      = "tag_assignments_open_tag"
	IndexSessionAudit = "ledger_session_audit_key"
)

const (
	tableAssets         = "assets"
	tableLocations      = "locations"
	tableLedger         = "ledger_entries"
	tableSessions       = "stocktake_sessions"
	tableTagAssignments = "tag_assignments"
	tableImageAnalyses  = "image_analyses"
	tableRevision       = "assetcore_revision"
)

// SQLiteSchema is the DDL for the embedded backend.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('draft','active','retired','missing','disposed')),
		location_id TEXT,
		custodian_id TEXT,
		quantity INTEGER NOT NULL DEFAULT 1,
		condition_grade TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		merged_into TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS assets_code_key ON assets(code)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		action TEXT NOT NULL CHECK (action IN ('checkout','checkin','transfer','audit')),
		actor_id TEXT NOT NULL,
		borrower_id TEXT,
		from_location_id TEXT,
		to_location_id TEXT,
		session_id TEXT,
		notes TEXT NOT NULL DEFAULT '',
		action_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		backdated INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ledger_session_audit_key ON ledger_entries(session_id, asset_id) WHERE action = 'audit' AND session_id IS NOT NULL`,
	`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_update BEFORE UPDATE ON ledger_entries
	BEGIN SELECT RAISE(ABORT, 'ledger entries are immutable'); END`,
	`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete BEFORE DELETE ON ledger_entries
	BEGIN SELECT RAISE(ABORT, 'ledger entries are immutable'); END`,
	`CREATE TABLE IF NOT EXISTS stocktake_sessions (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		initiator_id TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('in_progress','completed','abandoned')),
		started_at TEXT NOT NULL,
		ended_at TEXT,
		notes TEXT NOT NULL DEFAULT '',
		expected_asset_ids TEXT NOT NULL DEFAULT '[]',
		confirmed_asset_ids TEXT NOT NULL DEFAULT '[]',
		missing_asset_ids TEXT NOT NULL DEFAULT '[]',
		summary TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS stocktake_sessions_open_location ON stocktake_sessions(location_id) WHERE status = 'in_progress'`,
	`CREATE TABLE IF NOT EXISTS tag_assignments (
		id TEXT PRIMARY KEY,
		tag_value TEXT NOT NULL,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		assigned_by TEXT NOT NULL,
		assigned_at TEXT NOT NULL,
		removed_at TEXT,
		removed_by TEXT,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tag_assignments_open_tag ON tag_assignments(tag_value) WHERE removed_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS image_analyses (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		image_key TEXT NOT NULL,
		status TEXT NOT NULL,
		suggestions TEXT,
		error_message TEXT NOT NULL DEFAULT '',
		processed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assetcore_revision (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		rev INTEGER NOT NULL
	)`,
	`INSERT INTO assetcore_revision (id, rev) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
}

// PostgresSchema is the DDL for the server backend.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('draft','active','retired','missing','disposed')),
		location_id TEXT,
		custodian_id TEXT,
		quantity INTEGER NOT NULL DEFAULT 1,
		condition_grade TEXT NOT NULL DEFAULT '',
		tags JSONB NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		merged_into TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS assets_code_key ON assets(code)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		action TEXT NOT NULL CHECK (action IN ('checkout','checkin','transfer','audit')),
		actor_id TEXT NOT NULL,
		borrower_id TEXT,
		from_location_id TEXT,
		to_location_id TEXT,
		session_id TEXT,
		notes TEXT NOT NULL DEFAULT '',
		action_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		backdated BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ledger_session_audit_key ON ledger_entries(session_id, asset_id) WHERE action = 'audit' AND session_id IS NOT NULL`,
	`CREATE OR REPLACE FUNCTION ledger_entries_immutable() RETURNS trigger LANGUAGE plpgsql AS $$
	BEGIN
		RAISE EXCEPTION 'ledger entries are immutable';
	END;
	$$`,
	`DROP TRIGGER IF EXISTS ledger_entries_no_modify ON ledger_entries`,
	`CREATE TRIGGER ledger_entries_no_modify BEFORE UPDATE OR DELETE ON ledger_entries
	FOR EACH ROW EXECUTE FUNCTION ledger_entries_immutable()`,
	`CREATE TABLE IF NOT EXISTS stocktake_sessions (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		initiator_id TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('in_progress','completed','abandoned')),
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		notes TEXT NOT NULL DEFAULT '',
		expected_asset_ids JSONB NOT NULL DEFAULT '[]',
		confirmed_asset_ids JSONB NOT NULL DEFAULT '[]',
		missing_asset_ids JSONB NOT NULL DEFAULT '[]',
		summary JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS stocktake_sessions_open_location ON stocktake_sessions(location_id) WHERE status = 'in_progress'`,
	`CREATE TABLE IF NOT EXISTS tag_assignments (
		id TEXT PRIMARY KEY,
		tag_value TEXT NOT NULL,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		assigned_by TEXT NOT NULL,
		assigned_at TIMESTAMPTZ NOT NULL,
		removed_at TIMESTAMPTZ,
		removed_by TEXT,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tag_assignments_open_tag ON tag_assignments(tag_value) WHERE removed_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS image_analyses (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		image_key TEXT NOT NULL,
		status TEXT NOT NULL,
		suggestions JSONB,
		error_message TEXT NOT NULL DEFAULT '',
		processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assetcore_revision (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		rev BIGINT NOT NULL
	)`,
	`INSERT INTO assetcore_revision (id, rev) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
}
