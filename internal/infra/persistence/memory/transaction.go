package memory

import (
	"fmt"
	"strings"
	"time"

	"assetcore/pkg/domain"
)

// transaction represents a mutation set applied to a copy of the store state.
type transaction struct {
	*memoryState
	store   *Store
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return transactionView{tx.memoryState}
}

// Now returns the transaction timestamp.
func (tx *transaction) Now() time.Time {
	return tx.now
}

func (tx *transaction) ensureID(id string) string {
	if id == "" {
		return tx.store.newID()
	}
	return id
}

func (tx *transaction) checkCodeUnique(code, selfID string) error {
	norm := domain.NormalizeCode(code)
	for id, a := range tx.assets {
		if id != selfID && domain.NormalizeCode(a.Code) == norm {
			return domain.DuplicateCodeError{Code: norm}
		}
	}
	return nil
}

// CreateAsset stores a new asset. The permanent code must be unique.
func (tx *transaction) CreateAsset(a domain.Asset) (domain.Asset, error) {
	a.ID = tx.ensureID(a.ID)
	if _, exists := tx.assets[a.ID]; exists {
		return domain.Asset{}, fmt.Errorf("asset %q already exists", a.ID)
	}
	a.Code = domain.NormalizeCode(a.Code)
	if a.Code == "" {
		return domain.Asset{}, domain.InputError{Field: "code", Reason: "required"}
	}
	if err := tx.checkCodeUnique(a.Code, a.ID); err != nil {
		return domain.Asset{}, err
	}
	if a.Status == "" {
		a.Status = domain.AssetDraft
	}
	if !a.Status.Valid() {
		return domain.Asset{}, domain.InputError{Field: "status", Reason: "unknown status " + string(a.Status)}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.assets[a.ID] = a.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityAsset, Action: domain.ActionCreate, After: a.Clone()})
	return a.Clone(), nil
}

// UpdateAsset mutates an asset using the provided mutator function.
func (tx *transaction) UpdateAsset(id string, mutator func(*domain.Asset) error) (domain.Asset, error) {
	current, ok := tx.assets[id]
	if !ok {
		return domain.Asset{}, domain.NotFoundError{Entity: domain.EntityAsset, ID: id}
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return domain.Asset{}, err
	}
	return tx.putAsset(before, next)
}

// ReplaceAssets writes a batch of planned asset states in one step.
func (tx *transaction) ReplaceAssets(assets []domain.Asset) ([]domain.Asset, error) {
	out := make([]domain.Asset, 0, len(assets))
	for _, a := range assets {
		current, ok := tx.assets[a.ID]
		if !ok {
			return nil, domain.NotFoundError{Entity: domain.EntityAsset, ID: a.ID}
		}
		updated, err := tx.putAsset(current.Clone(), a.Clone())
		if err != nil {
			return nil, err
		}
		out = append(out, updated)
	}
	return out, nil
}

func (tx *transaction) putAsset(before, next domain.Asset) (domain.Asset, error) {
	next.ID = before.ID
	next.CreatedAt = before.CreatedAt
	next.UpdatedAt = tx.now
	next.Code = domain.NormalizeCode(next.Code)
	if next.Code != before.Code {
		if next.Code == "" {
			return domain.Asset{}, domain.InputError{Field: "code", Reason: "required"}
		}
		if err := tx.checkCodeUnique(next.Code, next.ID); err != nil {
			return domain.Asset{}, err
		}
	}
	if !next.Status.Valid() {
		return domain.Asset{}, domain.InputError{Field: "status", Reason: "unknown status " + string(next.Status)}
	}
	tx.assets[next.ID] = next.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityAsset, Action: domain.ActionUpdate, Before: before, After: next.Clone()})
	return next.Clone(), nil
}

// CreateLocation stores a new location.
func (tx *transaction) CreateLocation(l domain.Location) (domain.Location, error) {
	l.ID = tx.ensureID(l.ID)
	if _, exists := tx.locations[l.ID]; exists {
		return domain.Location{}, fmt.Errorf("location %q already exists", l.ID)
	}
	if strings.TrimSpace(l.Name) == "" {
		return domain.Location{}, domain.InputError{Field: "name", Reason: "required"}
	}
	if l.ParentID != nil {
		if _, ok := tx.locations[*l.ParentID]; !ok {
			return domain.Location{}, domain.NotFoundError{Entity: domain.EntityLocation, ID: *l.ParentID}
		}
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.locations[l.ID] = l.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityLocation, Action: domain.ActionCreate, After: l.Clone()})
	return l.Clone(), nil
}

// UpdateLocation mutates a location.
func (tx *transaction) UpdateLocation(id string, mutator func(*domain.Location) error) (domain.Location, error) {
	current, ok := tx.locations[id]
	if !ok {
		return domain.Location{}, domain.NotFoundError{Entity: domain.EntityLocation, ID: id}
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return domain.Location{}, err
	}
	next.ID = id
	next.CreatedAt = before.CreatedAt
	next.UpdatedAt = tx.now
	tx.locations[id] = next.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityLocation, Action: domain.ActionUpdate, Before: before, After: next.Clone()})
	return next.Clone(), nil
}

// AppendLedgerEntries inserts a batch of immutable ledger entries.
func (tx *transaction) AppendLedgerEntries(entries ...domain.LedgerEntry) ([]domain.LedgerEntry, error) {
	out := make([]domain.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		e.ID = tx.ensureID(e.ID)
		if _, ok := tx.assets[e.AssetID]; !ok {
			return nil, domain.NotFoundError{Entity: domain.EntityAsset, ID: e.AssetID}
		}
		if !e.Action.Valid() {
			return nil, domain.LedgerActionError{AssetID: e.AssetID, Action: e.Action, Reason: "unknown action"}
		}
		for _, existing := range tx.ledger {
			if existing.ID == e.ID {
				return nil, fmt.Errorf("ledger entry %q already exists", e.ID)
			}
			if e.Action == domain.ActionAudit && e.SessionID != nil && existing.Action == domain.ActionAudit &&
				existing.AssetID == e.AssetID && existing.SessionID != nil && *existing.SessionID == *e.SessionID {
				return nil, domain.LedgerActionError{AssetID: e.AssetID, Action: e.Action, Reason: "already confirmed in stocktake " + *e.SessionID}
			}
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = tx.now
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = e.CreatedAt
		}
		tx.ledger = append(tx.ledger, e.Clone())
		tx.recordChange(domain.Change{Entity: domain.EntityLedgerEntry, Action: domain.ActionCreate, After: e.Clone()})
		out = append(out, e.Clone())
	}
	return out, nil
}

// UpdateLedgerEntry is rejected: ledger entries are append-only.
func (tx *transaction) UpdateLedgerEntry(id string, _ func(*domain.LedgerEntry) error) error {
	return domain.ImmutableError{Entity: domain.EntityLedgerEntry, ID: id, Operation: "update"}
}

// DeleteLedgerEntry is rejected: ledger entries are append-only.
func (tx *transaction) DeleteLedgerEntry(id string) error {
	return domain.ImmutableError{Entity: domain.EntityLedgerEntry, ID: id, Operation: "delete"}
}

func (tx *transaction) checkSessionExclusive(s domain.StocktakeSession) error {
	if s.Status != domain.SessionInProgress {
		return nil
	}
	for id, other := range tx.sessions {
		if id != s.ID && other.LocationID == s.LocationID && other.Status == domain.SessionInProgress {
			return domain.SessionOpenError{LocationID: s.LocationID, SessionID: id}
		}
	}
	return nil
}

// CreateSession inserts a stocktake session. At most one in-progress session
// may exist per location.
func (tx *transaction) CreateSession(s domain.StocktakeSession) (domain.StocktakeSession, error) {
	s.ID = tx.ensureID(s.ID)
	if _, exists := tx.sessions[s.ID]; exists {
		return domain.StocktakeSession{}, fmt.Errorf("stocktake session %q already exists", s.ID)
	}
	if s.Status == "" {
		s.Status = domain.SessionInProgress
	}
	if err := tx.checkSessionExclusive(s); err != nil {
		return domain.StocktakeSession{}, err
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = tx.now
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.sessions[s.ID] = s.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityStocktakeSession, Action: domain.ActionCreate, After: s.Clone()})
	return s.Clone(), nil
}

// UpdateSession mutates a stocktake session.
func (tx *transaction) UpdateSession(id string, mutator func(*domain.StocktakeSession) error) (domain.StocktakeSession, error) {
	current, ok := tx.sessions[id]
	if !ok {
		return domain.StocktakeSession{}, domain.NotFoundError{Entity: domain.EntityStocktakeSession, ID: id}
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return domain.StocktakeSession{}, err
	}
	next.ID = id
	next.CreatedAt = before.CreatedAt
	next.UpdatedAt = tx.now
	if err := tx.checkSessionExclusive(next); err != nil {
		return domain.StocktakeSession{}, err
	}
	tx.sessions[id] = next.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityStocktakeSession, Action: domain.ActionUpdate, Before: before, After: next.Clone()})
	return next.Clone(), nil
}

// OpenTagAssignment binds a tag to an asset. At most one open assignment may
// exist per tag value.
func (tx *transaction) OpenTagAssignment(t domain.TagAssignment) (domain.TagAssignment, error) {
	t.ID = tx.ensureID(t.ID)
	t.TagValue = domain.NormalizeCode(t.TagValue)
	if t.TagValue == "" {
		return domain.TagAssignment{}, domain.InputError{Field: "tag", Reason: "required"}
	}
	if _, ok := tx.assets[t.AssetID]; !ok {
		return domain.TagAssignment{}, domain.NotFoundError{Entity: domain.EntityAsset, ID: t.AssetID}
	}
	if existing, ok := tx.FindOpenAssignment(t.TagValue); ok {
		return domain.TagAssignment{}, domain.DuplicateAssignmentError{TagValue: t.TagValue, AssetID: existing.AssetID}
	}
	t.AssignedAt = tx.now
	t.RemovedAt = nil
	t.RemovedBy = nil
	tx.tags[t.ID] = t.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityTagAssignment, Action: domain.ActionCreate, After: t.Clone()})
	return t.Clone(), nil
}

// CloseTagAssignment terminates an open assignment.
func (tx *transaction) CloseTagAssignment(id, removedBy string) (domain.TagAssignment, error) {
	current, ok := tx.tags[id]
	if !ok {
		return domain.TagAssignment{}, domain.NotFoundError{Entity: domain.EntityTagAssignment, ID: id}
	}
	if !current.IsOpen() {
		return domain.TagAssignment{}, fmt.Errorf("tag assignment %q already closed", id)
	}
	before := current.Clone()
	next := current.Clone()
	removed := tx.now
	next.RemovedAt = &removed
	next.RemovedBy = domain.StringPtr(removedBy)
	tx.tags[id] = next.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityTagAssignment, Action: domain.ActionUpdate, Before: before, After: next.Clone()})
	return next.Clone(), nil
}

// CreateImageAnalysis stores a new analysis record.
func (tx *transaction) CreateImageAnalysis(a domain.ImageAnalysis) (domain.ImageAnalysis, error) {
	a.ID = tx.ensureID(a.ID)
	if _, exists := tx.analyses[a.ID]; exists {
		return domain.ImageAnalysis{}, fmt.Errorf("image analysis %q already exists", a.ID)
	}
	if _, ok := tx.assets[a.AssetID]; !ok {
		return domain.ImageAnalysis{}, domain.NotFoundError{Entity: domain.EntityAsset, ID: a.AssetID}
	}
	if a.Status == "" {
		a.Status = domain.AnalysisPending
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.analyses[a.ID] = a.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityImageAnalysis, Action: domain.ActionCreate, After: a.Clone()})
	return a.Clone(), nil
}

// UpdateImageAnalysis mutates an analysis record.
func (tx *transaction) UpdateImageAnalysis(id string, mutator func(*domain.ImageAnalysis) error) (domain.ImageAnalysis, error) {
	current, ok := tx.analyses[id]
	if !ok {
		return domain.ImageAnalysis{}, domain.NotFoundError{Entity: domain.EntityImageAnalysis, ID: id}
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return domain.ImageAnalysis{}, err
	}
	next.ID = id
	next.CreatedAt = before.CreatedAt
	next.UpdatedAt = tx.now
	tx.analyses[id] = next.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityImageAnalysis, Action: domain.ActionUpdate, Before: before, After: next.Clone()})
	return next.Clone(), nil
}
