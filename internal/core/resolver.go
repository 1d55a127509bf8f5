package core

import (
	"context"

	"assetcore/pkg/domain"

	"github.com/sirupsen/logrus"
)

// EntityCode is the entity name reported when a scanned code matches nothing.
const EntityCode domain.EntityType = "code"

// Resolve maps a scanned value to an asset. A permanent code match wins
// over an open tag assignment; no match is ErrNotFound.
func (s *Service) Resolve(ctx context.Context, code string) (domain.Asset, error) {
	var out domain.Asset
	err := s.view(ctx, func(v domain.TransactionView) error {
		var err error
		out, err = resolve(v, code)
		return err
	})
	return out, err
}

func resolve(v domain.TransactionView, code string) (domain.Asset, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return domain.Asset{}, domain.InputError{Field: "code", Reason: "required"}
	}
	if a, ok := v.FindAssetByCode(code); ok {
		return a, nil
	}
	if t, ok := v.FindOpenAssignment(code); ok {
		if a, ok := v.FindAsset(t.AssetID); ok {
			return a, nil
		}
	}
	return domain.Asset{}, domain.NotFoundError{Entity: EntityCode, ID: code}
}

// AssignTag binds a tag value to an asset. An open assignment of the same
// tag to another asset is closed in the same transaction; assigning a tag
// to the asset it already points at is a no-op.
func (s *Service) AssignTag(ctx context.Context, tagValue, assetID, actorID string) (domain.TagAssignment, error) {
	var assigned domain.TagAssignment
	fields := logrus.Fields{"tag": tagValue, "asset_id": assetID}
	_, err := s.run(ctx, "assign_tag", fields, func(tx domain.Transaction) error {
		tag := domain.NormalizeCode(tagValue)
		if tag == "" {
			return domain.InputError{Field: "tag", Reason: "required"}
		}
		asset, err := findAsset(tx, assetID)
		if err != nil {
			return err
		}
		if asset.Status == domain.AssetDisposed {
			return domain.InputError{Field: "asset", Reason: "asset " + asset.ID + " is disposed"}
		}
		if other, ok := tx.FindAssetByCode(tag); ok {
			return domain.DuplicateCodeError{Code: other.Code}
		}
		if open, ok := tx.FindOpenAssignment(tag); ok {
			if open.AssetID == assetID {
				assigned = open
				return nil
			}
			if _, err := tx.CloseTagAssignment(open.ID, actorID); err != nil {
				return err
			}
		}
		assigned, err = tx.OpenTagAssignment(domain.TagAssignment{TagValue: tag, AssetID: assetID, AssignedBy: actorID})
		return err
	})
	return assigned, err
}

// RemoveTag closes the open assignment of a tag.
func (s *Service) RemoveTag(ctx context.Context, tagValue, actorID string) (domain.TagAssignment, error) {
	var closed domain.TagAssignment
	_, err := s.run(ctx, "remove_tag", logrus.Fields{"tag": tagValue}, func(tx domain.Transaction) error {
		open, ok := tx.FindOpenAssignment(tagValue)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityTagAssignment, ID: domain.NormalizeCode(tagValue)}
		}
		var err error
		closed, err = tx.CloseTagAssignment(open.ID, actorID)
		return err
	})
	return closed, err
}

// TagHistory returns every assignment of a tag, oldest first.
func (s *Service) TagHistory(ctx context.Context, tagValue string) ([]domain.TagAssignment, error) {
	var out []domain.TagAssignment
	err := s.view(ctx, func(v domain.TransactionView) error {
		out = v.TagHistory(tagValue)
		return nil
	})
	return out, err
}
