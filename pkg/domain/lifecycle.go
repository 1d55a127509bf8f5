package domain

import "strings"

// assetTransitions is the lifecycle table. Disposed has no outgoing edges.
var assetTransitions = map[AssetStatus][]AssetStatus{
	AssetDraft:   {AssetActive, AssetDisposed},
	AssetActive:  {AssetRetired, AssetMissing, AssetDisposed},
	AssetRetired: {AssetActive, AssetDisposed},
	AssetMissing: {AssetActive, AssetDisposed},
}

// CanTransition reports whether the lifecycle table allows from -> to.
func CanTransition(from, to AssetStatus) bool {
	for _, next := range assetTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status AssetStatus) bool {
	return len(assetTransitions[status]) == 0
}

// MissingForActivation lists the fields a draft needs before it can become active.
func MissingForActivation(a Asset) []string {
	var missing []string
	if strings.TrimSpace(a.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(a.Category) == "" {
		missing = append(missing, "category")
	}
	if a.LocationID == nil || *a.LocationID == "" {
		missing = append(missing, "location")
	}
	return missing
}

// PlanTransition validates a status change and returns the updated asset.
// It never touches location or custody.
func PlanTransition(a Asset, to AssetStatus) (Asset, error) {
	if !to.Valid() {
		return Asset{}, TransitionError{AssetID: a.ID, From: a.Status, To: to, Reason: "unknown status"}
	}
	if !CanTransition(a.Status, to) {
		reason := ""
		if IsTerminal(a.Status) {
			reason = "status is terminal"
		}
		return Asset{}, TransitionError{AssetID: a.ID, From: a.Status, To: to, Reason: reason}
	}
	if a.Status == AssetDraft && to == AssetActive {
		if missing := MissingForActivation(a); len(missing) > 0 {
			return Asset{}, IncompleteError{AssetID: a.ID, Missing: missing}
		}
	}
	if (to == AssetRetired || to == AssetDisposed) && a.CheckedOut() {
		return Asset{}, TransitionError{AssetID: a.ID, From: a.Status, To: to, Reason: "asset is checked out"}
	}
	next := a.Clone()
	next.Status = to
	return next, nil
}
