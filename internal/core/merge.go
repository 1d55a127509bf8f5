package core

import (
	"context"

	"assetcore/pkg/domain"

	"github.com/sirupsen/logrus"
)

// MergeAssets folds duplicate records into the primary in one transaction.
// Open tag assignments and image analyses of the duplicates move to the
// primary and the duplicates are disposed. Ledger entries are immutable, so
// they stay on the duplicate ids; LedgerHistory of the primary includes them.
func (s *Service) MergeAssets(ctx context.Context, primaryID string, duplicateIDs []string, actorID string) (domain.Asset, error) {
	var merged domain.Asset
	fields := logrus.Fields{"asset_id": primaryID, "duplicates": len(duplicateIDs)}
	_, err := s.run(ctx, "merge_assets", fields, func(tx domain.Transaction) error {
		primary, err := findAsset(tx, primaryID)
		if err != nil {
			return err
		}
		dups := make([]domain.Asset, 0, len(duplicateIDs))
		for _, id := range duplicateIDs {
			a, err := findAsset(tx, id)
			if err != nil {
				return err
			}
			dups = append(dups, a)
		}
		plan, err := domain.PlanMerge(primary, dups, actorID)
		if err != nil {
			return err
		}
		written, err := tx.ReplaceAssets(append([]domain.Asset{plan.Primary}, plan.Duplicates...))
		if err != nil {
			return err
		}
		merged = written[0]

		for _, d := range plan.Duplicates {
			for _, open := range tx.OpenAssignmentsForAsset(d.ID) {
				if _, err := tx.CloseTagAssignment(open.ID, actorID); err != nil {
					return err
				}
				if _, err := tx.OpenTagAssignment(domain.TagAssignment{
					TagValue:   open.TagValue,
					AssetID:    primary.ID,
					AssignedBy: actorID,
					Notes:      "moved from " + d.Code + " by merge",
				}); err != nil {
					return err
				}
			}
			for _, an := range tx.ImageAnalysesForAsset(d.ID) {
				if _, err := tx.UpdateImageAnalysis(an.ID, func(cur *domain.ImageAnalysis) error {
					cur.AssetID = primary.ID
					return nil
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return merged, err
}

// mergedFamily returns id and every asset merged into it, directly or
// through an earlier merge.
func mergedFamily(v domain.TransactionView, id string) map[string]struct{} {
	family := map[string]struct{}{id: {}}
	assets := v.ListAssets()
	for grew := true; grew; {
		grew = false
		for _, a := range assets {
			if a.MergedInto == nil {
				continue
			}
			if _, in := family[a.ID]; in {
				continue
			}
			if _, parent := family[*a.MergedInto]; parent {
				family[a.ID] = struct{}{}
				grew = true
			}
		}
	}
	return family
}
