package core

import (
	"context"
	"fmt"

	"assetcore/pkg/domain"
)

const lifecycleTransitionRuleName = "lifecycle_transition"

// LifecycleTransitionRule blocks asset status changes the lifecycle table
// does not allow, including any exit from the terminal disposed state.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

func (lifecycleTransitionRule) Name() string { return lifecycleTransitionRuleName }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		before, after, hasBefore, hasAfter := assetChange(change)
		if !hasAfter {
			continue
		}
		if !after.Status.Valid() {
			res.Violations = append(res.Violations, blockAsset(lifecycleTransitionRuleName, after.ID,
				fmt.Sprintf("asset %s is set to invalid status %s", after.ID, after.Status)))
			continue
		}
		if !hasBefore || before.Status == after.Status {
			continue
		}
		if domain.IsTerminal(before.Status) {
			res.Violations = append(res.Violations, blockAsset(lifecycleTransitionRuleName, after.ID,
				fmt.Sprintf("cannot move asset %s from terminal status %s to %s", after.ID, before.Status, after.Status)))
			continue
		}
		if !domain.CanTransition(before.Status, after.Status) {
			res.Violations = append(res.Violations, blockAsset(lifecycleTransitionRuleName, after.ID,
				fmt.Sprintf("asset %s cannot move from %s to %s", after.ID, before.Status, after.Status)))
		}
	}
	return res, nil
}
