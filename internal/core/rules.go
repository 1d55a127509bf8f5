package core

import "assetcore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// The rules re-check at commit what the planners already enforce, so a
// caller writing through the raw transaction API cannot bypass them.
func NewDefaultRulesEngine() *domain.RulesEngine {
	return domain.NewRulesEngine(LifecycleTransitionRule(), LedgerPairingRule(), DisposedAssetRule())
}

func blockAsset(rule, assetID, msg string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityAsset,
		EntityID: assetID,
	}
}

// assetChange extracts the before and after asset of a change, if any.
func assetChange(c domain.Change) (before, after domain.Asset, hasBefore, hasAfter bool) {
	if c.Entity != domain.EntityAsset {
		return
	}
	before, hasBefore = c.Before.(domain.Asset)
	after, hasAfter = c.After.(domain.Asset)
	return
}
