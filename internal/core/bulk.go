package core

import (
	"context"
	"errors"

	"assetcore/pkg/domain"

	"github.com/sirupsen/logrus"
)

// BulkApply applies one action to every selected asset. Ineligible assets
// are skipped with a reason; the eligible ones are written as one asset
// batch and one ledger batch. Only a storage or input failure aborts the run.
//
// A filter selector is evaluated inside the transaction, so assets that
// start matching between selection and submission are included.
func (s *Service) BulkApply(ctx context.Context, action domain.BulkAction, sel domain.AssetSelector, p domain.BulkParams) (domain.BulkResult, error) {
	result := domain.BulkResult{Applied: []string{}, Skipped: []domain.SkippedAsset{}}
	fields := logrus.Fields{"action": action, "selected_ids": len(sel.IDs)}
	_, err := s.run(ctx, "bulk_"+string(action), fields, func(tx domain.Transaction) error {
		result = domain.BulkResult{Applied: []string{}, Skipped: []domain.SkippedAsset{}}
		if err := validateBulk(tx, action, sel, p); err != nil {
			return err
		}
		now := tx.Now()
		var (
			assets  []domain.Asset
			entries []domain.LedgerEntry
		)
		for _, item := range selectAssets(tx, sel) {
			if item.skip != "" {
				result.Skipped = append(result.Skipped, domain.SkippedAsset{AssetID: item.id, Reason: item.skip})
				continue
			}
			next, entry, err := domain.PlanBulkItem(item.asset, action, p, now)
			var skip domain.IneligibleError
			if errors.As(err, &skip) {
				result.Skipped = append(result.Skipped, domain.SkippedAsset{AssetID: skip.AssetID, Reason: skip.Reason})
				continue
			}
			if err != nil {
				return err
			}
			assets = append(assets, next)
			if entry != nil {
				entries = append(entries, *entry)
			}
			result.Applied = append(result.Applied, item.id)
		}
		if len(assets) > 0 {
			if _, err := tx.ReplaceAssets(assets); err != nil {
				return err
			}
		}
		if len(entries) > 0 {
			if _, err := tx.AppendLedgerEntries(entries...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.BulkResult{}, err
	}
	s.logger.WithFields(logrus.Fields{
		"operation": "bulk_" + string(action),
		"applied":   len(result.Applied),
		"skipped":   len(result.Skipped),
	}).Info("bulk action applied")
	return result, nil
}

func validateBulk(v domain.TransactionView, action domain.BulkAction, sel domain.AssetSelector, p domain.BulkParams) error {
	if len(sel.IDs) == 0 && sel.Filter == nil {
		return domain.InputError{Field: "selector", Reason: "ids or filter required"}
	}
	switch action {
	case domain.BulkTransfer:
		if p.LocationID == "" {
			return domain.InputError{Field: "location_id", Reason: "required for transfer"}
		}
		return requireLocation(v, p.LocationID)
	case domain.BulkCheckout:
		if p.BorrowerID == "" {
			return domain.InputError{Field: "borrower_id", Reason: "required for checkout"}
		}
	case domain.BulkCheckin:
		return requireLocation(v, p.LocationID)
	case domain.BulkEdit:
		if p.Category == "" && p.Condition == "" {
			return domain.InputError{Field: "fields", Reason: "category or condition required"}
		}
		if p.Condition != "" && !p.Condition.Valid() {
			return domain.InputError{Field: "condition", Reason: "unknown condition " + string(p.Condition)}
		}
	case domain.BulkStatus:
		if !p.Status.Valid() {
			return domain.InputError{Field: "status", Reason: "unknown status " + string(p.Status)}
		}
	default:
		return domain.InputError{Field: "action", Reason: "unknown bulk action " + string(action)}
	}
	return nil
}

type selected struct {
	id    string
	asset domain.Asset
	// skip is the reason an explicitly listed id was not eligible for
	// planning.
	skip string
}

// selectAssets resolves the selector against the current state. Explicit ids
// keep their order with duplicates dropped; ids that are unknown or fail the
// filter are kept so they can be reported as skipped.
func selectAssets(v domain.TransactionView, sel domain.AssetSelector) []selected {
	var out []selected
	if len(sel.IDs) > 0 {
		seen := make(map[string]struct{}, len(sel.IDs))
		for _, id := range sel.IDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			a, ok := v.FindAsset(id)
			switch {
			case !ok:
				out = append(out, selected{id: id, skip: domain.ReasonNotFound})
			case sel.Filter != nil && !sel.Filter.Matches(a):
				out = append(out, selected{id: id, asset: a, skip: domain.ReasonFilterMismatch})
			default:
				out = append(out, selected{id: id, asset: a})
			}
		}
		return out
	}
	for _, a := range v.ListAssets() {
		if sel.Filter.Matches(a) {
			out = append(out, selected{id: a.ID, asset: a})
		}
	}
	return out
}
