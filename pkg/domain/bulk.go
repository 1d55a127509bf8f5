package domain

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// BulkAction enumerates the actions the bulk mutator can apply.
type BulkAction string

// Bulk actions.
const (
	BulkTransfer BulkAction = "transfer"
	BulkCheckout BulkAction = "checkout"
	BulkCheckin  BulkAction = "checkin"
	BulkEdit     BulkAction = "edit"
	BulkStatus   BulkAction = "status"
)

// Skip reasons reported for ineligible assets.
const (
	ReasonNotFound          = "not found"
	ReasonCheckedOut        = "checked out"
	ReasonNotCheckedOut     = "not checked out"
	ReasonNotActive         = "not active"
	ReasonDisposed          = "disposed"
	ReasonDraft             = "draft"
	ReasonAlreadyAtLocation = "already at destination"
	ReasonFilterMismatch    = "does not match filter"
)

// AssetFilter selects assets by their current fields. Zero fields match everything.
type AssetFilter struct {
	Statuses   []AssetStatus `json:"statuses,omitempty"`
	LocationID string        `json:"location_id,omitempty"`
	Category   string        `json:"category,omitempty"`
	Query      string        `json:"query,omitempty"`
	CheckedOut *bool         `json:"checked_out,omitempty"`
}

// Matches reports whether a satisfies every populated field of the filter.
func (f AssetFilter) Matches(a Asset) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
		return false
	}
	if f.LocationID != "" && !a.AtLocation(f.LocationID) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, a.Category) {
		return false
	}
	if f.CheckedOut != nil && *f.CheckedOut != a.CheckedOut() {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(a.Name), q) &&
			!strings.Contains(strings.ToLower(a.Code), q) &&
			!strings.Contains(strings.ToLower(a.Description), q) {
			return false
		}
	}
	return true
}

// AssetSelector is either an explicit id set or a filter evaluated against
// the store at execution time.
type AssetSelector struct {
	IDs    []string     `json:"ids,omitempty"`
	Filter *AssetFilter `json:"filter,omitempty"`
}

// BulkParams carries the action arguments shared by every selected asset.
type BulkParams struct {
	ActorID    string
	BorrowerID string
	LocationID string
	Category   string
	Condition  Condition
	Status     AssetStatus
	Notes      string
	Timestamp  time.Time
}

// SkippedAsset pairs an excluded asset with the reason it was excluded.
type SkippedAsset struct {
	AssetID string `json:"asset_id"`
	Reason  string `json:"reason"`
}

// BulkResult partitions the selection into applied and skipped assets.
type BulkResult struct {
	Applied []string       `json:"applied"`
	Skipped []SkippedAsset `json:"skipped"`
}

// PlanBulkItem checks eligibility of a single asset for a bulk action and,
// when eligible, returns the updated asset and the ledger entry (nil for
// actions that do not touch custody or location). Ineligibility is reported
// as IneligibleError.
func PlanBulkItem(a Asset, action BulkAction, p BulkParams, now time.Time) (Asset, *LedgerEntry, error) {
	skip := func(reason string) (Asset, *LedgerEntry, error) {
		return Asset{}, nil, IneligibleError{AssetID: a.ID, Reason: reason}
	}
	if a.Status == AssetDisposed {
		return skip(ReasonDisposed)
	}

	var cmd LedgerCommand
	switch action {
	case BulkTransfer:
		if a.CheckedOut() {
			return skip(ReasonCheckedOut)
		}
		if a.Status == AssetDraft {
			return skip(ReasonDraft)
		}
		if a.AtLocation(p.LocationID) {
			return skip(ReasonAlreadyAtLocation)
		}
		cmd = LedgerCommand{Action: ActionTransfer, ToLocationID: p.LocationID}
	case BulkCheckout:
		if a.Status != AssetActive {
			return skip(ReasonNotActive)
		}
		if a.CheckedOut() {
			return skip(ReasonCheckedOut)
		}
		cmd = LedgerCommand{Action: ActionCheckout, BorrowerID: p.BorrowerID}
	case BulkCheckin:
		if !a.CheckedOut() {
			return skip(ReasonNotCheckedOut)
		}
		cmd = LedgerCommand{Action: ActionCheckin, ToLocationID: p.LocationID}
	case BulkEdit:
		if a.CheckedOut() {
			return skip(ReasonCheckedOut)
		}
		next := a.Clone()
		if p.Category != "" {
			next.Category = p.Category
		}
		if p.Condition != "" {
			next.Condition = p.Condition
		}
		return next, nil, nil
	case BulkStatus:
		next, err := PlanTransition(a, p.Status)
		if err != nil {
			return skip(ineligibleReason(err))
		}
		return next, nil, nil
	default:
		return Asset{}, nil, InputError{Field: "action", Reason: "unknown bulk action " + string(action)}
	}

	cmd.ActorID = p.ActorID
	cmd.Notes = p.Notes
	cmd.Timestamp = p.Timestamp
	next, entry, err := PlanMovement(a, cmd, now)
	if err != nil {
		var fut FutureDatedError
		var input InputError
		if errors.As(err, &fut) || errors.As(err, &input) {
			return Asset{}, nil, err
		}
		return skip(ineligibleReason(err))
	}
	return next, &entry, nil
}

func ineligibleReason(err error) string {
	var la LedgerActionError
	if errors.As(err, &la) {
		return la.Reason
	}
	var te TransitionError
	if errors.As(err, &te) {
		if te.Reason != "" {
			return te.Reason
		}
		return "cannot transition " + string(te.From) + " to " + string(te.To)
	}
	var ie IncompleteError
	if errors.As(err, &ie) {
		return "missing " + strings.Join(ie.Missing, ", ")
	}
	return err.Error()
}
