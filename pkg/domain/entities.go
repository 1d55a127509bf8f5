// Package domain defines the persistent entities, value types, command
// planners, and rule evaluation primitives used by assetcore.
package domain

import (
	"slices"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence tables.
const (
	// EntityAsset identifies an asset record.
	EntityAsset EntityType = "asset"
	// EntityLocation identifies a location record.
	EntityLocation EntityType = "location"
	// EntityLedgerEntry identifies an immutable movement ledger record.
	EntityLedgerEntry EntityType = "ledger_entry"
	// EntityStocktakeSession identifies a stocktake session record.
	EntityStocktakeSession EntityType = "stocktake_session"
	// EntityTagAssignment identifies a tag-to-asset binding.
	EntityTagAssignment EntityType = "tag_assignment"
	// EntityImageAnalysis identifies an image analysis payload record.
	EntityImageAnalysis EntityType = "image_analysis"
)

// AssetStatus is the closed set of asset lifecycle states.
type AssetStatus string

// Asset lifecycle states.
const (
	AssetDraft    AssetStatus = "draft"
	AssetActive   AssetStatus = "active"
	AssetRetired  AssetStatus = "retired"
	AssetMissing  AssetStatus = "missing"
	AssetDisposed AssetStatus = "disposed"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s AssetStatus) Valid() bool {
	switch s {
	case AssetDraft, AssetActive, AssetRetired, AssetMissing, AssetDisposed:
		return true
	}
	return false
}

// Condition grades the physical state of an asset.
type Condition string

// Condition grades, best first.
const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
	ConditionDamaged   Condition = "damaged"
)

// Valid reports whether the grade is known.
func (c Condition) Valid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor, ConditionDamaged:
		return true
	}
	return false
}

// LedgerAction enumerates the movement ledger actions.
type LedgerAction string

// Ledger actions.
const (
	ActionCheckout LedgerAction = "checkout"
	ActionCheckin  LedgerAction = "checkin"
	ActionTransfer LedgerAction = "transfer"
	ActionAudit    LedgerAction = "audit"
)

// Valid reports whether the action is one of the four ledger actions.
func (a LedgerAction) Valid() bool {
	switch a {
	case ActionCheckout, ActionCheckin, ActionTransfer, ActionAudit:
		return true
	}
	return false
}

// SessionStatus enumerates stocktake session states.
type SessionStatus string

// Stocktake session states. Completed and abandoned are terminal.
const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

// AnalysisStatus tracks the asynchronous image analysis payload.
type AnalysisStatus string

// Image analysis states.
const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
	AnalysisSkipped    AnalysisStatus = "skipped"
)

// Base contains common fields for persisted entities.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Asset is a tracked physical item or group of identical items.
type Asset struct {
	Base
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category,omitempty"`
	Status      AssetStatus `json:"status"`
	LocationID  *string     `json:"location_id,omitempty"`
	CustodianID *string     `json:"custodian_id,omitempty"`
	Quantity    int         `json:"quantity"`
	Condition   Condition   `json:"condition"`
	Tags        []string    `json:"tags,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	CreatedBy   string      `json:"created_by,omitempty"`
	// MergedInto is set on a duplicate disposed by a merge.
	MergedInto  *string     `json:"merged_into,omitempty"`
}

// CheckedOut reports whether the asset is currently in someone's custody.
func (a Asset) CheckedOut() bool {
	return a.CustodianID != nil && *a.CustodianID != ""
}

// AtLocation reports whether the asset's current location equals locationID.
func (a Asset) AtLocation(locationID string) bool {
	return a.LocationID != nil && *a.LocationID == locationID
}

// Clone returns a deep copy of the asset.
func (a Asset) Clone() Asset {
	cp := a
	cp.LocationID = cloneStringPtr(a.LocationID)
	cp.CustodianID = cloneStringPtr(a.CustodianID)
	cp.MergedInto = cloneStringPtr(a.MergedInto)
	cp.Tags = slices.Clone(a.Tags)
	return cp
}

// Location is a place assets can be stored at.
type Location struct {
	Base
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id,omitempty"`
	Active   bool    `json:"active"`
}

// Clone returns a deep copy of the location.
func (l Location) Clone() Location {
	cp := l
	cp.ParentID = cloneStringPtr(l.ParentID)
	return cp
}

// LedgerEntry is one immutable custody or location affecting event.
type LedgerEntry struct {
	ID             string       `json:"id"`
	AssetID        string       `json:"asset_id"`
	Action         LedgerAction `json:"action"`
	ActorID        string       `json:"actor_id"`
	BorrowerID     *string      `json:"borrower_id,omitempty"`
	FromLocationID *string      `json:"from_location_id,omitempty"`
	ToLocationID   *string      `json:"to_location_id,omitempty"`
	SessionID      *string      `json:"session_id,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
	CreatedAt      time.Time    `json:"created_at"`
	Backdated      bool         `json:"backdated"`
}

// Clone returns a deep copy of the entry.
func (e LedgerEntry) Clone() LedgerEntry {
	cp := e
	cp.BorrowerID = cloneStringPtr(e.BorrowerID)
	cp.FromLocationID = cloneStringPtr(e.FromLocationID)
	cp.ToLocationID = cloneStringPtr(e.ToLocationID)
	cp.SessionID = cloneStringPtr(e.SessionID)
	return cp
}

// StocktakeSession is a reconciliation run scoped to one location.
type StocktakeSession struct {
	Base
	LocationID  string        `json:"location_id"`
	InitiatorID string        `json:"initiator_id"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	// ExpectedAssetIDs is the expected set captured when the session started.
	ExpectedAssetIDs []string `json:"expected_asset_ids"`
	// ConfirmedAssetIDs lists assets confirmed in this session, in confirmation order.
	ConfirmedAssetIDs []string `json:"confirmed_asset_ids"`
	// MissingAssetIDs lists assets marked missing during review.
	MissingAssetIDs []string          `json:"missing_asset_ids"`
	Summary         *StocktakeSummary `json:"summary,omitempty"`
}

// Open reports whether the session still accepts scans.
func (s StocktakeSession) Open() bool {
	return s.Status == SessionInProgress
}

// IsConfirmed reports whether assetID was confirmed in this session.
func (s StocktakeSession) IsConfirmed(assetID string) bool {
	return slices.Contains(s.ConfirmedAssetIDs, assetID)
}

// Clone returns a deep copy of the session.
func (s StocktakeSession) Clone() StocktakeSession {
	cp := s
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	cp.ExpectedAssetIDs = slices.Clone(s.ExpectedAssetIDs)
	cp.ConfirmedAssetIDs = slices.Clone(s.ConfirmedAssetIDs)
	cp.MissingAssetIDs = slices.Clone(s.MissingAssetIDs)
	if s.Summary != nil {
		sum := s.Summary.Clone()
		cp.Summary = &sum
	}
	return cp
}

// StocktakeSummary is computed when a session completes. ConfirmedCount
// covers only the captured expected set, so it and NotFound always add up to
// ExpectedCount; assets audited under the session from outside that set are
// listed in ConfirmedUnexpected.
type StocktakeSummary struct {
	ExpectedCount       int      `json:"expected_count"`
	ConfirmedCount      int      `json:"confirmed_count"`
	NotFound            []string `json:"not_found"`
	ConfirmedUnexpected []string `json:"confirmed_unexpected"`
	TransferredIn       []string `json:"transferred_in"`
	MarkedMissing       []string `json:"marked_missing"`
}

// Clone returns a deep copy of the summary.
func (s StocktakeSummary) Clone() StocktakeSummary {
	cp := s
	cp.NotFound = slices.Clone(s.NotFound)
	cp.ConfirmedUnexpected = slices.Clone(s.ConfirmedUnexpected)
	cp.TransferredIn = slices.Clone(s.TransferredIn)
	cp.MarkedMissing = slices.Clone(s.MarkedMissing)
	return cp
}

// TagAssignment binds a scannable tag value to an asset for an interval.
type TagAssignment struct {
	ID         string     `json:"id"`
	TagValue   string     `json:"tag_value"`
	AssetID    string     `json:"asset_id"`
	AssignedBy string     `json:"assigned_by"`
	AssignedAt time.Time  `json:"assigned_at"`
	RemovedAt  *time.Time `json:"removed_at,omitempty"`
	RemovedBy  *string    `json:"removed_by,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// IsOpen reports whether the assignment has not been closed.
func (t TagAssignment) IsOpen() bool {
	return t.RemovedAt == nil
}

// Clone returns a deep copy of the assignment.
func (t TagAssignment) Clone() TagAssignment {
	cp := t
	if t.RemovedAt != nil {
		ts := *t.RemovedAt
		cp.RemovedAt = &ts
	}
	cp.RemovedBy = cloneStringPtr(t.RemovedBy)
	return cp
}

// AnalysisSuggestions is the structured payload written back by the
// image analysis collaborator.
type AnalysisSuggestions struct {
	Name          string    `json:"name,omitempty"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Condition     Condition `json:"condition,omitempty"`
	ExtractedText string    `json:"extracted_text,omitempty"`
}

// ImageAnalysis tracks one image handed to the analysis collaborator.
type ImageAnalysis struct {
	Base
	AssetID      string               `json:"asset_id"`
	ImageKey     string               `json:"image_key"`
	Status       AnalysisStatus       `json:"status"`
	Suggestions  *AnalysisSuggestions `json:"suggestions,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	ProcessedAt  *time.Time           `json:"processed_at,omitempty"`
}

// Clone returns a deep copy of the analysis record.
func (a ImageAnalysis) Clone() ImageAnalysis {
	cp := a
	if a.Suggestions != nil {
		s := *a.Suggestions
		s.Tags = slices.Clone(a.Suggestions.Tags)
		cp.Suggestions = &s
	}
	if a.ProcessedAt != nil {
		t := *a.ProcessedAt
		cp.ProcessedAt = &t
	}
	return cp
}

// Action is the change type captured by a transaction.
type Action string

// Change actions recorded by the store.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes a mutation applied within a transaction. Before and After
// hold value copies of the entity (Asset, LedgerEntry, ...).
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Severity captures rule outcomes.
type Severity string

const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity,omitempty"`
	EntityID string     `json:"entity_id,omitempty"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any violation blocks commit.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StringPtr returns a pointer to a copy of v.
func StringPtr(v string) *string {
	return &v
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
