package memory

import (
	"sort"

	"assetcore/pkg/domain"
)

type memoryState struct {
	assets    map[string]domain.Asset
	locations map[string]domain.Location
	// ledger is append-only; entries are never modified after insertion.
	ledger   []domain.LedgerEntry
	sessions map[string]domain.StocktakeSession
	tags     map[string]domain.TagAssignment
	analyses map[string]domain.ImageAnalysis
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Assets         map[string]domain.Asset            `json:"assets"`
	Locations      map[string]domain.Location         `json:"locations"`
	Ledger         []domain.LedgerEntry               `json:"ledger"`
	Sessions       map[string]domain.StocktakeSession `json:"sessions"`
	TagAssignments map[string]domain.TagAssignment    `json:"tag_assignments"`
	ImageAnalyses  map[string]domain.ImageAnalysis    `json:"image_analyses"`
}

func newMemoryState() memoryState {
	return memoryState{
		assets:    make(map[string]domain.Asset),
		locations: make(map[string]domain.Location),
		sessions:  make(map[string]domain.StocktakeSession),
		tags:      make(map[string]domain.TagAssignment),
		analyses:  make(map[string]domain.ImageAnalysis),
	}
}

// clone copies the maps so a transaction can mutate freely. Ledger entries
// are immutable so the slice is copied shallowly.
func (s memoryState) clone() memoryState {
	cp := memoryState{
		assets:    make(map[string]domain.Asset, len(s.assets)),
		locations: make(map[string]domain.Location, len(s.locations)),
		ledger:    append([]domain.LedgerEntry(nil), s.ledger...),
		sessions:  make(map[string]domain.StocktakeSession, len(s.sessions)),
		tags:      make(map[string]domain.TagAssignment, len(s.tags)),
		analyses:  make(map[string]domain.ImageAnalysis, len(s.analyses)),
	}
	for k, v := range s.assets {
		cp.assets[k] = v
	}
	for k, v := range s.locations {
		cp.locations[k] = v
	}
	for k, v := range s.sessions {
		cp.sessions[k] = v
	}
	for k, v := range s.tags {
		cp.tags[k] = v
	}
	for k, v := range s.analyses {
		cp.analyses[k] = v
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Assets:         make(map[string]domain.Asset, len(state.assets)),
		Locations:      make(map[string]domain.Location, len(state.locations)),
		Ledger:         make([]domain.LedgerEntry, 0, len(state.ledger)),
		Sessions:       make(map[string]domain.StocktakeSession, len(state.sessions)),
		TagAssignments: make(map[string]domain.TagAssignment, len(state.tags)),
		ImageAnalyses:  make(map[string]domain.ImageAnalysis, len(state.analyses)),
	}
	for k, v := range state.assets {
		s.Assets[k] = v.Clone()
	}
	for k, v := range state.locations {
		s.Locations[k] = v.Clone()
	}
	for _, e := range state.ledger {
		s.Ledger = append(s.Ledger, e.Clone())
	}
	for k, v := range state.sessions {
		s.Sessions[k] = v.Clone()
	}
	for k, v := range state.tags {
		s.TagAssignments[k] = v.Clone()
	}
	for k, v := range state.analyses {
		s.ImageAnalyses[k] = v.Clone()
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Assets {
		state.assets[k] = v.Clone()
	}
	for k, v := range s.Locations {
		state.locations[k] = v.Clone()
	}
	for _, e := range s.Ledger {
		state.ledger = append(state.ledger, e.Clone())
	}
	sort.SliceStable(state.ledger, func(i, j int) bool {
		return state.ledger[i].CreatedAt.Before(state.ledger[j].CreatedAt)
	})
	for k, v := range s.Sessions {
		state.sessions[k] = v.Clone()
	}
	for k, v := range s.TagAssignments {
		v.TagValue = domain.NormalizeCode(v.TagValue)
		state.tags[k] = v.Clone()
	}
	for k, v := range s.ImageAnalyses {
		state.analyses[k] = v.Clone()
	}
	return state
}

// The read methods below implement domain.TransactionView over a state value.

func (s *memoryState) ListAssets() []domain.Asset {
	out := make([]domain.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (s *memoryState) FindAsset(id string) (domain.Asset, bool) {
	a, ok := s.assets[id]
	if !ok {
		return domain.Asset{}, false
	}
	return a.Clone(), true
}

func (s *memoryState) FindAssetByCode(code string) (domain.Asset, bool) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return domain.Asset{}, false
	}
	for _, a := range s.assets {
		if domain.NormalizeCode(a.Code) == code {
			return a.Clone(), true
		}
	}
	return domain.Asset{}, false
}

func (s *memoryState) ListLocations() []domain.Location {
	out := make([]domain.Location, 0, len(s.locations))
	for _, l := range s.locations {
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *memoryState) FindLocation(id string) (domain.Location, bool) {
	l, ok := s.locations[id]
	if !ok {
		return domain.Location{}, false
	}
	return l.Clone(), true
}

func (s *memoryState) ListLedgerEntries() []domain.LedgerEntry {
	return s.ledgerWhere(func(domain.LedgerEntry) bool { return true })
}

func (s *memoryState) LedgerForAsset(assetID string) []domain.LedgerEntry {
	return s.ledgerWhere(func(e domain.LedgerEntry) bool { return e.AssetID == assetID })
}

func (s *memoryState) LedgerForSession(sessionID string) []domain.LedgerEntry {
	return s.ledgerWhere(func(e domain.LedgerEntry) bool {
		return e.SessionID != nil && *e.SessionID == sessionID
	})
}

// ledgerWhere returns matching entries ordered by action timestamp, keeping
// insertion order for ties.
func (s *memoryState) ledgerWhere(match func(domain.LedgerEntry) bool) []domain.LedgerEntry {
	var out []domain.LedgerEntry
	for _, e := range s.ledger {
		if match(e) {
			out = append(out, e.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *memoryState) ListSessions() []domain.StocktakeSession {
	out := make([]domain.StocktakeSession, 0, len(s.sessions))
	for _, v := range s.sessions {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (s *memoryState) FindSession(id string) (domain.StocktakeSession, bool) {
	v, ok := s.sessions[id]
	if !ok {
		return domain.StocktakeSession{}, false
	}
	return v.Clone(), true
}

func (s *memoryState) OpenSessionForLocation(locationID string) (domain.StocktakeSession, bool) {
	for _, v := range s.sessions {
		if v.LocationID == locationID && v.Status == domain.SessionInProgress {
			return v.Clone(), true
		}
	}
	return domain.StocktakeSession{}, false
}

func (s *memoryState) FindOpenAssignment(tagValue string) (domain.TagAssignment, bool) {
	tagValue = domain.NormalizeCode(tagValue)
	for _, t := range s.tags {
		if t.TagValue == tagValue && t.IsOpen() {
			return t.Clone(), true
		}
	}
	return domain.TagAssignment{}, false
}

func (s *memoryState) TagHistory(tagValue string) []domain.TagAssignment {
	tagValue = domain.NormalizeCode(tagValue)
	var out []domain.TagAssignment
	for _, t := range s.tags {
		if t.TagValue == tagValue {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out
}

func (s *memoryState) OpenAssignmentsForAsset(assetID string) []domain.TagAssignment {
	var out []domain.TagAssignment
	for _, t := range s.tags {
		if t.AssetID == assetID && t.IsOpen() {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TagValue < out[j].TagValue })
	return out
}

func (s *memoryState) FindImageAnalysis(id string) (domain.ImageAnalysis, bool) {
	a, ok := s.analyses[id]
	if !ok {
		return domain.ImageAnalysis{}, false
	}
	return a.Clone(), true
}

func (s *memoryState) ImageAnalysesForAsset(assetID string) []domain.ImageAnalysis {
	var out []domain.ImageAnalysis
	for _, a := range s.analyses {
		if a.AssetID == assetID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
