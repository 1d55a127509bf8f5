package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func warnRule(name string) RuleFunc {
	return RuleFunc{RuleName: name, Fn: func(context.Context, RuleView, []Change) (Result, error) {
		return Result{Violations: []Violation{{Rule: name, Severity: SeverityWarn}}}, nil
	}}
}

func TestResultBlockingAndMessage(t *testing.T) {
	var res Result
	res.Merge(Result{})
	res.Merge(Result{Violations: []Violation{{Rule: "pairing", Severity: SeverityWarn}}})
	if res.HasBlocking() {
		t.Fatal("warnings must not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "lifecycle", Severity: SeverityBlock, Message: "disposed is terminal"}}})
	if !res.HasBlocking() || len(res.Violations) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if msg := (RuleViolationError{Result: res}).Error(); !strings.Contains(msg, "lifecycle: disposed is terminal") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestRulesEngineRunsInOrder(t *testing.T) {
	engine := NewRulesEngine(warnRule("first"))
	engine.Register(warnRule("second"))
	if got := strings.Join(engine.Rules(), ","); got != "first,second" {
		t.Fatalf("rules = %s", got)
	}
	res, err := engine.Evaluate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 || res.Violations[1].Rule != "second" {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}
}

func TestRulesEngineNamesFailingRule(t *testing.T) {
	boom := errors.New("view unavailable")
	engine := NewRulesEngine(RuleFunc{RuleName: "disposed", Fn: func(context.Context, RuleView, []Change) (Result, error) {
		return Result{}, boom
	}})
	_, err := engine.Evaluate(context.Background(), nil, nil)
	if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), "rule disposed:") {
		t.Fatalf("unexpected error %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRulesEngine(warnRule("x")).Evaluate(ctx, nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestErrorKindsUnwrap(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{TransitionError{AssetID: "a", From: AssetDisposed, To: AssetActive}, ErrInvalidTransition},
		{IncompleteError{AssetID: "a", Missing: []string{"name"}}, ErrIncompleteForActivation},
		{LedgerActionError{AssetID: "a", Action: ActionTransfer, Reason: "x"}, ErrInvalidLedgerAction},
		{FutureDatedError{}, ErrFutureDatedAction},
		{DuplicateAssignmentError{TagValue: "T"}, ErrDuplicateOpenAssignment},
		{SessionOpenError{LocationID: "l"}, ErrSessionAlreadyOpen},
		{ExpectedSetError{SessionID: "s", AssetID: "a"}, ErrNotInExpectedSet},
		{IneligibleError{AssetID: "a", Reason: ReasonCheckedOut}, ErrIneligible},
		{NotFoundError{Entity: EntityAsset, ID: "a"}, ErrNotFound},
		{ImmutableError{Entity: EntityLedgerEntry, ID: "e", Operation: "update"}, ErrLedgerImmutable},
		{DuplicateCodeError{Code: "ASSET-00000000"}, ErrDuplicateCode},
		{SessionStateError{SessionID: "s", Status: SessionCompleted}, ErrSessionClosed},
		{InputError{Field: "actor", Reason: "required"}, ErrInvalidInput},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("op: %w", tc.err)
		if !errors.Is(wrapped, tc.kind) {
			t.Errorf("%T does not unwrap to %v", tc.err, tc.kind)
		}
		if tc.err.Error() == "" {
			t.Errorf("%T has empty message", tc.err)
		}
	}
}

func TestTransitionErrorNamesStates(t *testing.T) {
	msg := TransitionError{AssetID: "a1", From: AssetRetired, To: AssetMissing}.Error()
	if !strings.Contains(msg, "retired") || !strings.Contains(msg, "missing") {
		t.Fatalf("expected both states in %q", msg)
	}
}
