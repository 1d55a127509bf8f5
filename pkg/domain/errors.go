package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds. Use errors.Is against these and errors.As against the typed
// errors below for context.
var (
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrIncompleteForActivation = errors.New("incomplete for activation")
	ErrInvalidLedgerAction     = errors.New("invalid ledger action")
	ErrFutureDatedAction       = errors.New("future dated action")
	ErrDuplicateOpenAssignment = errors.New("duplicate open assignment")
	ErrSessionAlreadyOpen      = errors.New("session already open")
	ErrNotInExpectedSet        = errors.New("not in expected set")
	ErrIneligible              = errors.New("ineligible")
	ErrNotFound                = errors.New("not found")
	ErrLedgerImmutable         = errors.New("ledger entries are immutable")
	ErrDuplicateCode           = errors.New("duplicate asset code")
	ErrSessionClosed           = errors.New("session not in progress")
	ErrInvalidInput            = errors.New("invalid input")
	// ErrConcurrentUpdate means another writer committed first and the
	// transaction could not be replanned within the retry budget.
	ErrConcurrentUpdate        = errors.New("concurrent update")
)

// TransitionError reports a lifecycle table violation.
type TransitionError struct {
	AssetID string
	From    AssetStatus
	To      AssetStatus
	Reason  string
}

func (e TransitionError) Error() string {
	msg := fmt.Sprintf("asset %q: invalid transition %s -> %s", e.AssetID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e TransitionError) Unwrap() error { return ErrInvalidTransition }

// IncompleteError reports the fields missing for draft activation.
type IncompleteError struct {
	AssetID string
	Missing []string
}

func (e IncompleteError) Error() string {
	return fmt.Sprintf("asset %q cannot be activated: missing %s", e.AssetID, strings.Join(e.Missing, ", "))
}

func (e IncompleteError) Unwrap() error { return ErrIncompleteForActivation }

// LedgerActionError reports a structurally inconsistent ledger action.
type LedgerActionError struct {
	AssetID string
	Action  LedgerAction
	Status  AssetStatus
	Reason  string
}

func (e LedgerActionError) Error() string {
	return fmt.Sprintf("asset %q (%s): cannot %s: %s", e.AssetID, e.Status, e.Action, e.Reason)
}

func (e LedgerActionError) Unwrap() error { return ErrInvalidLedgerAction }

// FutureDatedError reports an action timestamp later than the current time.
type FutureDatedError struct {
	Timestamp time.Time
	Now       time.Time
}

func (e FutureDatedError) Error() string {
	return fmt.Sprintf("action timestamp %s is after %s", e.Timestamp.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

func (e FutureDatedError) Unwrap() error { return ErrFutureDatedAction }

// DuplicateAssignmentError reports a second open assignment for a tag.
type DuplicateAssignmentError struct {
	TagValue string
	AssetID  string
}

func (e DuplicateAssignmentError) Error() string {
	if e.AssetID == "" {
		return fmt.Sprintf("tag %q already has an open assignment", e.TagValue)
	}
	return fmt.Sprintf("tag %q already assigned to asset %q", e.TagValue, e.AssetID)
}

func (e DuplicateAssignmentError) Unwrap() error { return ErrDuplicateOpenAssignment }

// SessionOpenError reports an in-progress stocktake already existing for a location.
type SessionOpenError struct {
	LocationID string
	SessionID  string
}

func (e SessionOpenError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("location %q already has a stocktake in progress", e.LocationID)
	}
	return fmt.Sprintf("location %q already has stocktake %q in progress", e.LocationID, e.SessionID)
}

func (e SessionOpenError) Unwrap() error { return ErrSessionAlreadyOpen }

// ExpectedSetError reports an asset outside a session's expected set.
type ExpectedSetError struct {
	SessionID string
	AssetID   string
	Reason    string
}

func (e ExpectedSetError) Error() string {
	return fmt.Sprintf("asset %q not in expected set of stocktake %q: %s", e.AssetID, e.SessionID, e.Reason)
}

func (e ExpectedSetError) Unwrap() error { return ErrNotInExpectedSet }

// SessionStateError reports an operation against a closed session.
type SessionStateError struct {
	SessionID string
	Status    SessionStatus
	Operation string
}

func (e SessionStateError) Error() string {
	return fmt.Sprintf("stocktake %q is %s: cannot %s", e.SessionID, e.Status, e.Operation)
}

func (e SessionStateError) Unwrap() error { return ErrSessionClosed }

// IneligibleError is the per-item reason an asset was excluded from a bulk write.
type IneligibleError struct {
	AssetID string
	Reason  string
}

func (e IneligibleError) Error() string {
	return fmt.Sprintf("asset %q ineligible: %s", e.AssetID, e.Reason)
}

func (e IneligibleError) Unwrap() error { return ErrIneligible }

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// ImmutableError reports an attempt to rewrite an append-only record.
type ImmutableError struct {
	Entity    EntityType
	ID        string
	Operation string
}

func (e ImmutableError) Error() string {
	return fmt.Sprintf("%s %q: %s not permitted", e.Entity, e.ID, e.Operation)
}

func (e ImmutableError) Unwrap() error { return ErrLedgerImmutable }

// DuplicateCodeError reports a permanent code that is already taken.
type DuplicateCodeError struct {
	Code string
}

func (e DuplicateCodeError) Error() string {
	return fmt.Sprintf("asset code %q already in use", e.Code)
}

func (e DuplicateCodeError) Unwrap() error { return ErrDuplicateCode }

// InputError reports a malformed command argument.
type InputError struct {
	Field  string
	Reason string
}

func (e InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e InputError) Unwrap() error { return ErrInvalidInput }

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity != SeverityBlock {
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Rule, v.Message))
	}
	if len(msgs) == 0 {
		return "rule violation"
	}
	return "rule violation: " + strings.Join(msgs, "; ")
}
