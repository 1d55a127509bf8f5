package domain

import (
	"fmt"
	"strings"
	"time"
)

// LedgerCommand describes one requested ledger action against an asset.
// Empty strings mean "not supplied".
type LedgerCommand struct {
	Action         LedgerAction
	ActorID        string
	BorrowerID     string
	FromLocationID string
	ToLocationID   string
	SessionID      string
	Notes          string
	// Timestamp is the action time. Zero means now.
	Timestamp time.Time
}

// ActionTime resolves the action timestamp against now, rejecting future
// timestamps and reporting whether the action is backdated.
func ActionTime(ts, now time.Time) (time.Time, bool, error) {
	if ts.IsZero() {
		return now, false, nil
	}
	ts = ts.UTC()
	if ts.After(now) {
		return time.Time{}, false, FutureDatedError{Timestamp: ts, Now: now}
	}
	return ts, ts.Before(now), nil
}

// PlanMovement validates cmd against the asset and returns the updated asset
// together with the ledger entry that must be written in the same unit.
// The entry ID is left empty for the store to assign.
func PlanMovement(a Asset, cmd LedgerCommand, now time.Time) (Asset, LedgerEntry, error) {
	if !cmd.Action.Valid() {
		return Asset{}, LedgerEntry{}, LedgerActionError{AssetID: a.ID, Action: cmd.Action, Status: a.Status, Reason: "unknown action"}
	}
	if strings.TrimSpace(cmd.ActorID) == "" {
		return Asset{}, LedgerEntry{}, InputError{Field: "actor", Reason: "required"}
	}
	if err := movableStatus(a, cmd.Action); err != nil {
		return Asset{}, LedgerEntry{}, err
	}
	ts, backdated, err := ActionTime(cmd.Timestamp, now)
	if err != nil {
		return Asset{}, LedgerEntry{}, err
	}
	reject := func(reason string) (Asset, LedgerEntry, error) {
		return Asset{}, LedgerEntry{}, LedgerActionError{AssetID: a.ID, Action: cmd.Action, Status: a.Status, Reason: reason}
	}

	next := a.Clone()
	entry := LedgerEntry{
		AssetID:        a.ID,
		Action:         cmd.Action,
		ActorID:        cmd.ActorID,
		FromLocationID: cloneStringPtr(a.LocationID),
		Notes:          cmd.Notes,
		Timestamp:      ts,
		CreatedAt:      now,
		Backdated:      backdated,
	}
	if cmd.SessionID != "" {
		entry.SessionID = StringPtr(cmd.SessionID)
	}

	switch cmd.Action {
	case ActionCheckout:
		if cmd.BorrowerID == "" {
			return reject("borrower required")
		}
		if cmd.ToLocationID != "" || cmd.FromLocationID != "" {
			return reject("checkout cannot change location")
		}
		if a.Status != AssetActive {
			return reject("only active assets can be checked out")
		}
		if a.CheckedOut() {
			return reject(fmt.Sprintf("already checked out to %s", *a.CustodianID))
		}
		entry.BorrowerID = StringPtr(cmd.BorrowerID)
		next.CustodianID = StringPtr(cmd.BorrowerID)
	case ActionCheckin:
		if !a.CheckedOut() {
			return reject("asset is not checked out")
		}
		if cmd.BorrowerID != "" && cmd.BorrowerID != *a.CustodianID {
			return reject(fmt.Sprintf("checked out to %s, not %s", *a.CustodianID, cmd.BorrowerID))
		}
		entry.BorrowerID = cloneStringPtr(a.CustodianID)
		next.CustodianID = nil
		if cmd.ToLocationID != "" {
			entry.ToLocationID = StringPtr(cmd.ToLocationID)
			next.LocationID = StringPtr(cmd.ToLocationID)
		}
	case ActionTransfer:
		if cmd.BorrowerID != "" {
			return reject("transfer cannot change custody")
		}
		if a.CheckedOut() {
			return reject("asset is checked out")
		}
		if cmd.ToLocationID == "" {
			return reject("destination required")
		}
		if a.LocationID == nil {
			return reject("asset has no origin location")
		}
		if cmd.FromLocationID != "" && cmd.FromLocationID != *a.LocationID {
			return reject(fmt.Sprintf("asset is at %s, not %s", *a.LocationID, cmd.FromLocationID))
		}
		if cmd.ToLocationID == *a.LocationID {
			return reject("asset is already at destination")
		}
		entry.ToLocationID = StringPtr(cmd.ToLocationID)
		next.LocationID = StringPtr(cmd.ToLocationID)
	case ActionAudit:
		if cmd.BorrowerID != "" || cmd.ToLocationID != "" {
			return reject("audit cannot change location or custody")
		}
		if a.CheckedOut() {
			return reject("asset is checked out")
		}
		entry.ToLocationID = cloneStringPtr(a.LocationID)
	}
	return next, entry, nil
}

// PlanHandover builds the checkin/checkout pair moving custody from one
// borrower directly to another. Both entries share one timestamp.
func PlanHandover(a Asset, fromBorrower, toBorrower, actorID, notes string, ts, now time.Time) (Asset, [2]LedgerEntry, error) {
	var none [2]LedgerEntry
	reject := func(reason string) (Asset, [2]LedgerEntry, error) {
		return Asset{}, none, LedgerActionError{AssetID: a.ID, Action: ActionCheckout, Status: a.Status, Reason: reason}
	}
	if fromBorrower == "" || toBorrower == "" {
		return reject("handover requires both borrowers")
	}
	if strings.TrimSpace(actorID) == "" {
		return Asset{}, none, InputError{Field: "actor", Reason: "required"}
	}
	if err := movableStatus(a, ActionCheckout); err != nil {
		return Asset{}, none, err
	}
	if !a.CheckedOut() {
		return reject("asset is not checked out")
	}
	if *a.CustodianID != fromBorrower {
		return reject(fmt.Sprintf("checked out to %s, not %s", *a.CustodianID, fromBorrower))
	}
	if fromBorrower == toBorrower {
		return reject("cannot hand over to the current borrower")
	}
	at, backdated, err := ActionTime(ts, now)
	if err != nil {
		return Asset{}, none, err
	}

	checkinNote := "handover to " + toBorrower
	checkoutNote := "handover from " + fromBorrower
	if notes != "" {
		checkinNote += ": " + notes
		checkoutNote += ": " + notes
	}
	base := LedgerEntry{
		AssetID:        a.ID,
		ActorID:        actorID,
		FromLocationID: cloneStringPtr(a.LocationID),
		Timestamp:      at,
		CreatedAt:      now,
		Backdated:      backdated,
	}
	checkin := base.Clone()
	checkin.Action = ActionCheckin
	checkin.BorrowerID = StringPtr(fromBorrower)
	checkin.Notes = checkinNote

	checkout := base.Clone()
	checkout.Action = ActionCheckout
	checkout.BorrowerID = StringPtr(toBorrower)
	checkout.Notes = checkoutNote

	next := a.Clone()
	next.CustodianID = StringPtr(toBorrower)
	return next, [2]LedgerEntry{checkin, checkout}, nil
}

func movableStatus(a Asset, action LedgerAction) error {
	switch a.Status {
	case AssetDisposed:
		return LedgerActionError{AssetID: a.ID, Action: action, Status: a.Status, Reason: "asset is disposed"}
	case AssetDraft:
		return LedgerActionError{AssetID: a.ID, Action: action, Status: a.Status, Reason: "asset is still a draft"}
	}
	return nil
}
