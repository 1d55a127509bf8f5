package domain

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// CanTransitionSession reports whether a stocktake session may move from -> to.
func CanTransitionSession(from, to SessionStatus) bool {
	return from == SessionInProgress && (to == SessionCompleted || to == SessionAbandoned)
}

// InExpectedSet reports whether a belongs to the expected set of a stocktake
// at locationID: at the location, active or missing, and not checked out.
func InExpectedSet(a Asset, locationID string) bool {
	if !a.AtLocation(locationID) || a.CheckedOut() {
		return false
	}
	return a.Status == AssetActive || a.Status == AssetMissing
}

// ExpectedSet filters assets down to the expected set for locationID, ordered by code.
func ExpectedSet(assets []Asset, locationID string) []Asset {
	var out []Asset
	for _, a := range assets {
		if InExpectedSet(a, locationID) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ConfirmNote is the ledger note written for stocktake confirmations.
func ConfirmNote(sessionID string) string {
	return fmt.Sprintf("Confirmed during stocktake %s", sessionID)
}

// TransferNote is the ledger note written for transfers accepted during a stocktake.
func TransferNote(sessionID string) string {
	return fmt.Sprintf("Transferred during stocktake %s", sessionID)
}

func requireOpen(s StocktakeSession, operation string) error {
	if !s.Open() {
		return SessionStateError{SessionID: s.ID, Status: s.Status, Operation: operation}
	}
	return nil
}

// PlanConfirm records presence of a in session s. Confirming an already
// confirmed asset returns (s, nil, nil).
func PlanConfirm(s StocktakeSession, a Asset, actorID string, now time.Time) (StocktakeSession, *LedgerEntry, error) {
	if err := requireOpen(s, "confirm"); err != nil {
		return StocktakeSession{}, nil, err
	}
	if s.IsConfirmed(a.ID) {
		return s, nil, nil
	}
	if !InExpectedSet(a, s.LocationID) {
		return StocktakeSession{}, nil, ExpectedSetError{SessionID: s.ID, AssetID: a.ID, Reason: expectedSetReason(a, s.LocationID)}
	}
	_, entry, err := PlanMovement(a, LedgerCommand{
		Action:    ActionAudit,
		ActorID:   actorID,
		SessionID: s.ID,
		Notes:     ConfirmNote(s.ID),
	}, now)
	if err != nil {
		return StocktakeSession{}, nil, err
	}
	next := s.Clone()
	next.ConfirmedAssetIDs = append(next.ConfirmedAssetIDs, a.ID)
	return next, &entry, nil
}

// PlanMarkMissing validates that a is an unconfirmed member of the expected
// set and returns the session and asset after the missing transition. An
// asset already in missing status is recorded without a transition.
func PlanMarkMissing(s StocktakeSession, a Asset) (StocktakeSession, Asset, error) {
	if err := requireOpen(s, "mark missing"); err != nil {
		return StocktakeSession{}, Asset{}, err
	}
	if !InExpectedSet(a, s.LocationID) {
		return StocktakeSession{}, Asset{}, ExpectedSetError{SessionID: s.ID, AssetID: a.ID, Reason: expectedSetReason(a, s.LocationID)}
	}
	if s.IsConfirmed(a.ID) {
		return StocktakeSession{}, Asset{}, ExpectedSetError{SessionID: s.ID, AssetID: a.ID, Reason: "already confirmed"}
	}
	next := a.Clone()
	if a.Status != AssetMissing {
		var err error
		next, err = PlanTransition(a, AssetMissing)
		if err != nil {
			return StocktakeSession{}, Asset{}, err
		}
	}
	ns := s.Clone()
	if !slices.Contains(ns.MissingAssetIDs, a.ID) {
		ns.MissingAssetIDs = append(ns.MissingAssetIDs, a.ID)
	}
	return ns, next, nil
}

// TransferProposal is returned when a scanned asset belongs elsewhere. It is
// not applied until accepted.
type TransferProposal struct {
	SessionID      string  `json:"session_id"`
	AssetID        string  `json:"asset_id"`
	AssetCode      string  `json:"asset_code"`
	FromLocationID *string `json:"from_location_id,omitempty"`
	ToLocationID   string  `json:"to_location_id"`
}

// ProposeTransfer builds the transfer proposal for an asset found at the
// session's location while recorded elsewhere.
func ProposeTransfer(s StocktakeSession, a Asset) (TransferProposal, error) {
	if err := requireOpen(s, "report unexpected asset"); err != nil {
		return TransferProposal{}, err
	}
	if a.AtLocation(s.LocationID) {
		return TransferProposal{}, LedgerActionError{AssetID: a.ID, Action: ActionTransfer, Status: a.Status, Reason: "asset is already at the session location"}
	}
	return TransferProposal{
		SessionID:      s.ID,
		AssetID:        a.ID,
		AssetCode:      a.Code,
		FromLocationID: cloneStringPtr(a.LocationID),
		ToLocationID:   s.LocationID,
	}, nil
}

// PlanClose moves the session to a terminal status.
func PlanClose(s StocktakeSession, to SessionStatus, notes string, now time.Time) (StocktakeSession, error) {
	if !CanTransitionSession(s.Status, to) {
		return StocktakeSession{}, SessionStateError{SessionID: s.ID, Status: s.Status, Operation: "move to " + string(to)}
	}
	next := s.Clone()
	next.Status = to
	ended := now
	next.EndedAt = &ended
	if notes != "" {
		next.Notes = notes
	}
	return next, nil
}

// Summarize derives the completion summary from the session's captured
// expected set and the ledger entries written under the session.
func Summarize(s StocktakeSession, entries []LedgerEntry) StocktakeSummary {
	confirmed := make(map[string]struct{})
	var audited []string
	var transferred []string
	seenTransfer := make(map[string]struct{})
	for _, e := range entries {
		if e.SessionID == nil || *e.SessionID != s.ID {
			continue
		}
		switch e.Action {
		case ActionAudit:
			if _, ok := confirmed[e.AssetID]; !ok {
				confirmed[e.AssetID] = struct{}{}
				audited = append(audited, e.AssetID)
			}
		case ActionTransfer:
			if e.ToLocationID != nil && *e.ToLocationID == s.LocationID {
				if _, ok := seenTransfer[e.AssetID]; !ok {
					seenTransfer[e.AssetID] = struct{}{}
					transferred = append(transferred, e.AssetID)
				}
			}
		}
	}
	expected := make(map[string]struct{}, len(s.ExpectedAssetIDs))
	notFound := []string{}
	for _, id := range s.ExpectedAssetIDs {
		expected[id] = struct{}{}
		if _, ok := confirmed[id]; !ok {
			notFound = append(notFound, id)
		}
	}
	unexpected := []string{}
	for _, id := range audited {
		if _, ok := expected[id]; !ok {
			unexpected = append(unexpected, id)
		}
	}
	if transferred == nil {
		transferred = []string{}
	}
	return StocktakeSummary{
		ExpectedCount:       len(s.ExpectedAssetIDs),
		ConfirmedCount:      len(s.ExpectedAssetIDs) - len(notFound),
		NotFound:            notFound,
		ConfirmedUnexpected: unexpected,
		TransferredIn:       transferred,
		MarkedMissing:       append([]string{}, s.MissingAssetIDs...),
	}
}

func expectedSetReason(a Asset, locationID string) string {
	switch {
	case !a.AtLocation(locationID):
		return "asset is recorded at another location"
	case a.CheckedOut():
		return "asset is checked out"
	default:
		return fmt.Sprintf("asset status is %s", a.Status)
	}
}
