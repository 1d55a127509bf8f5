package core

import (
	"context"
	"testing"

	"assetcore/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assetUpdate(before, after domain.Asset) domain.Change {
	return domain.Change{Entity: domain.EntityAsset, Action: domain.ActionUpdate, Before: before, After: after}
}

func ledgerCreate(e domain.LedgerEntry) domain.Change {
	return domain.Change{Entity: domain.EntityLedgerEntry, Action: domain.ActionCreate, After: e}
}

func TestDefaultRulesEngineOrder(t *testing.T) {
	assert.Equal(t, []string{lifecycleTransitionRuleName, ledgerPairingRuleName, disposedAssetRuleName}, NewDefaultRulesEngine().Rules())
}

func TestLifecycleTransitionRule(t *testing.T) {
	active := domain.Asset{Base: domain.Base{ID: "a1"}, Status: domain.AssetActive}
	with := func(s domain.AssetStatus) domain.Asset {
		a := active
		a.Status = s
		return a
	}
	cases := []struct {
		name    string
		before  domain.Asset
		after   domain.Asset
		blocked bool
	}{
		{"allowed", active, with(domain.AssetRetired), false},
		{"unchanged", active, active, false},
		{"back to draft", active, with(domain.AssetDraft), true},
		{"unknown status", active, with("lost"), true},
		{"leave disposed", with(domain.AssetDisposed), active, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := LifecycleTransitionRule().Evaluate(context.Background(), nil, []domain.Change{assetUpdate(tc.before, tc.after)})
			require.NoError(t, err)
			assert.Equal(t, tc.blocked, res.HasBlocking())
		})
	}

	created := domain.Change{Entity: domain.EntityAsset, Action: domain.ActionCreate, After: with(domain.AssetDraft)}
	res, err := LifecycleTransitionRule().Evaluate(context.Background(), nil, []domain.Change{created})
	require.NoError(t, err)
	assert.False(t, res.HasBlocking())
}

func TestLedgerPairingRule(t *testing.T) {
	before := domain.Asset{Base: domain.Base{ID: "a1"}, Status: domain.AssetActive, LocationID: domain.StringPtr("dock")}
	moved := before.Clone()
	moved.LocationID = domain.StringPtr("shop")
	lent := before.Clone()
	lent.CustodianID = domain.StringPtr("kim")
	draft := before.Clone()
	draft.Status = domain.AssetDraft
	draftMoved := draft.Clone()
	draftMoved.LocationID = domain.StringPtr("shop")

	rule := LedgerPairingRule()
	res, err := rule.Evaluate(context.Background(), nil, []domain.Change{assetUpdate(before, moved)})
	require.NoError(t, err)
	require.True(t, res.HasBlocking())
	assert.Equal(t, "a1", res.Violations[0].EntityID)

	res, err = rule.Evaluate(context.Background(), nil, []domain.Change{assetUpdate(before, lent)})
	require.NoError(t, err)
	assert.True(t, res.HasBlocking())

	res, err = rule.Evaluate(context.Background(), nil, []domain.Change{
		assetUpdate(before, moved),
		ledgerCreate(domain.LedgerEntry{ID: "l1", AssetID: "a1", Action: domain.ActionTransfer}),
	})
	require.NoError(t, err)
	assert.False(t, res.HasBlocking())

	res, err = rule.Evaluate(context.Background(), nil, []domain.Change{
		assetUpdate(before, moved),
		ledgerCreate(domain.LedgerEntry{ID: "l1", AssetID: "other", Action: domain.ActionTransfer}),
	})
	require.NoError(t, err)
	assert.True(t, res.HasBlocking(), "the entry must be for the same asset")

	res, err = rule.Evaluate(context.Background(), nil, []domain.Change{assetUpdate(draft, draftMoved)})
	require.NoError(t, err)
	assert.False(t, res.HasBlocking(), "drafts are placed without the ledger")
}

func TestRulesBlockRawTransactionBypass(t *testing.T) {
	f := newFixture(t)
	a := f.activeAsset(t, "Generator", f.dock.ID)

	_, err := f.svc.Store().RunInTransaction(f.ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateAsset(a.ID, func(cur *domain.Asset) error {
			cur.LocationID = domain.StringPtr(f.shop.ID)
			return nil
		})
		return err
	})
	var rv domain.RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Equal(t, ledgerPairingRuleName, rv.Result.Violations[0].Rule)

	_, err = f.svc.Store().RunInTransaction(f.ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateAsset(a.ID, func(cur *domain.Asset) error {
			cur.Status = domain.AssetDraft
			return nil
		})
		return err
	})
	require.ErrorAs(t, err, &rv)

	got, err := f.svc.GetAsset(f.ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.AtLocation(f.dock.ID))
	assert.Equal(t, domain.AssetActive, got.Status)
}

func TestDisposedAssetRuleBlocksRawWrites(t *testing.T) {
	f := newFixture(t)
	a := f.activeAsset(t, "Boat", f.dock.ID)
	_, err := f.svc.Transition(f.ctx, a.ID, domain.AssetDisposed)
	require.NoError(t, err)

	_, err = f.svc.Store().RunInTransaction(f.ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateAsset(a.ID, func(cur *domain.Asset) error {
			cur.Notes = "sneaky"
			return nil
		})
		return err
	})
	var rv domain.RuleViolationError
	require.ErrorAs(t, err, &rv)

	_, err = f.svc.Store().RunInTransaction(f.ctx, func(tx domain.Transaction) error {
		_, err := tx.AppendLedgerEntries(domain.LedgerEntry{
			AssetID:   a.ID,
			Action:    domain.ActionAudit,
			ActorID:   "sam",
			Timestamp: f.now,
		})
		return err
	})
	require.ErrorAs(t, err, &rv)
	assert.Empty(t, f.ledger(t, a.ID))
}
