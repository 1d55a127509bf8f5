package core

import (
	"context"
	"fmt"

	"assetcore/pkg/domain"
)

const (
	ledgerPairingRuleName = "ledger_pairing"
	disposedAssetRuleName = "disposed_asset"
)

// LedgerPairingRule blocks custody or location changes on a non-draft asset
// that are not accompanied by a ledger entry for the same asset in the same
// transaction.
func LedgerPairingRule() domain.Rule {
	return ledgerPairingRule{}
}

type ledgerPairingRule struct{}

func (ledgerPairingRule) Name() string { return ledgerPairingRuleName }

func (ledgerPairingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	entries := make(map[string]int)
	for _, change := range changes {
		if change.Entity != domain.EntityLedgerEntry || change.Action != domain.ActionCreate {
			continue
		}
		if e, ok := change.After.(domain.LedgerEntry); ok {
			entries[e.AssetID]++
		}
	}
	res := domain.Result{}
	for _, change := range changes {
		before, after, hasBefore, hasAfter := assetChange(change)
		if !hasBefore || !hasAfter || before.Status == domain.AssetDraft {
			continue
		}
		moved := domain.StringValue(before.LocationID) != domain.StringValue(after.LocationID)
		handed := domain.StringValue(before.CustodianID) != domain.StringValue(after.CustodianID)
		if (moved || handed) && entries[after.ID] == 0 {
			res.Violations = append(res.Violations, blockAsset(ledgerPairingRuleName, after.ID,
				fmt.Sprintf("asset %s changed location or custody without a ledger entry", after.ID)))
		}
	}
	return res, nil
}

// DisposedAssetRule freezes disposed assets: no further field changes and no
// new ledger entries.
func DisposedAssetRule() domain.Rule {
	return disposedAssetRule{}
}

type disposedAssetRule struct{}

func (disposedAssetRule) Name() string { return disposedAssetRuleName }

func (disposedAssetRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityAsset:
			before, _, hasBefore, _ := assetChange(change)
			if hasBefore && before.Status == domain.AssetDisposed {
				res.Violations = append(res.Violations, blockAsset(disposedAssetRuleName, before.ID,
					fmt.Sprintf("asset %s is disposed and cannot change", before.ID)))
			}
		case domain.EntityLedgerEntry:
			e, ok := change.After.(domain.LedgerEntry)
			if !ok {
				continue
			}
			if a, found := view.FindAsset(e.AssetID); found && a.Status == domain.AssetDisposed {
				res.Violations = append(res.Violations, blockAsset(disposedAssetRuleName, a.ID,
					fmt.Sprintf("ledger entry %s references disposed asset %s", e.ID, a.ID)))
			}
		}
	}
	return res, nil
}
