package core

import (
	"context"
	"strings"

	"assetcore/pkg/domain"

	"github.com/sirupsen/logrus"
)

const codeAttempts = 5

// DraftInput is what the capture collaborator supplies for a new asset.
// Every field is optional.
type DraftInput struct {
	Name        string
	Code        string
	Description string
	Category    string
	LocationID  string
	Quantity    int
	Condition   domain.Condition
	Notes       string
	CreatedBy   string
	// ImageKey references an image already in the blob store; when set an
	// analysis job is enqueued for it.
	ImageKey string
}

// AssetEdit lists descriptive fields to change. Nil fields are left alone.
type AssetEdit struct {
	Name        *string
	Description *string
	Category    *string
	Condition   *domain.Condition
	Quantity    *int
	Notes       *string
	Tags        []string
	// LocationID may only be changed directly while the asset is a draft.
	LocationID *string
}

// CreateDraft stores a new draft asset. A supplied code shaped like a
// permanent code becomes the asset's code; any other supplied code is bound
// to the asset as an open tag assignment and a permanent code is generated.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (domain.Asset, error) {
	var (
		created  domain.Asset
		analysis *domain.ImageAnalysis
	)
	_, err := s.run(ctx, "create_draft", logrus.Fields{"code": in.Code}, func(tx domain.Transaction) error {
		draft, err := s.newDraft(tx, in)
		if err != nil {
			return err
		}
		supplied := domain.NormalizeCode(in.Code)
		tag := ""
		switch {
		case supplied != "" && domain.IsPermanentCode(supplied, s.codePrefix):
			if _, taken := tx.FindAssetByCode(supplied); taken {
				return domain.DuplicateCodeError{Code: supplied}
			}
			draft.Code = supplied
		default:
			tag = supplied
			if draft.Code, err = s.freshCode(tx); err != nil {
				return err
			}
		}
		if created, err = tx.CreateAsset(draft); err != nil {
			return err
		}
		if tag != "" {
			if _, err := tx.OpenTagAssignment(domain.TagAssignment{
				TagValue:   tag,
				AssetID:    created.ID,
				AssignedBy: in.CreatedBy,
				Notes:      "bound at capture",
			}); err != nil {
				return err
			}
		}
		if in.ImageKey != "" {
			a, err := tx.CreateImageAnalysis(domain.ImageAnalysis{AssetID: created.ID, ImageKey: in.ImageKey, Status: domain.AnalysisPending})
			if err != nil {
				return err
			}
			analysis = &a
		}
		return nil
	})
	if err != nil {
		return domain.Asset{}, err
	}
	if analysis != nil {
		if err := s.publish(ctx, *analysis, ""); err != nil {
			s.logger.WithError(err).WithField("asset_id", created.ID).Warn("analysis job not published; record stays pending")
		}
	}
	return created, nil
}

func (s *Service) newDraft(tx domain.Transaction, in DraftInput) (domain.Asset, error) {
	quantity := in.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return domain.Asset{}, domain.InputError{Field: "quantity", Reason: "must be positive"}
	}
	condition := in.Condition
	if condition == "" {
		condition = domain.ConditionGood
	}
	if !condition.Valid() {
		return domain.Asset{}, domain.InputError{Field: "condition", Reason: "unknown condition " + string(condition)}
	}
	draft := domain.Asset{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
		Status:      domain.AssetDraft,
		Quantity:    quantity,
		Condition:   condition,
		Notes:       in.Notes,
		CreatedBy:   in.CreatedBy,
	}
	if in.LocationID != "" {
		if err := requireLocation(tx, in.LocationID); err != nil {
			return domain.Asset{}, err
		}
		draft.LocationID = domain.StringPtr(in.LocationID)
	}
	return draft, nil
}

func (s *Service) freshCode(v domain.TransactionView) (string, error) {
	for range codeAttempts {
		code := domain.GenerateCode(s.codePrefix)
		if _, taken := v.FindAssetByCode(code); taken {
			continue
		}
		if _, tagged := v.FindOpenAssignment(code); tagged {
			continue
		}
		return code, nil
	}
	return "", domain.DuplicateCodeError{Code: s.codePrefix + "-*"}
}

// EditAsset changes descriptive fields. Custody and status are never touched
// and location only while the asset is a draft.
func (s *Service) EditAsset(ctx context.Context, id string, edit AssetEdit) (domain.Asset, error) {
	var updated domain.Asset
	_, err := s.run(ctx, "edit_asset", logrus.Fields{"asset_id": id}, func(tx domain.Transaction) error {
		if edit.LocationID != nil {
			if err := requireLocation(tx, *edit.LocationID); err != nil {
				return err
			}
		}
		var err error
		updated, err = tx.UpdateAsset(id, func(a *domain.Asset) error {
			return applyEdit(a, edit)
		})
		return err
	})
	return updated, err
}

func applyEdit(a *domain.Asset, edit AssetEdit) error {
	if a.Status == domain.AssetDisposed {
		return domain.InputError{Field: "asset", Reason: "asset " + a.ID + " is disposed"}
	}
	if edit.Name != nil {
		a.Name = strings.TrimSpace(*edit.Name)
	}
	if edit.Description != nil {
		a.Description = *edit.Description
	}
	if edit.Category != nil {
		a.Category = strings.TrimSpace(*edit.Category)
	}
	if edit.Notes != nil {
		a.Notes = *edit.Notes
	}
	if edit.Tags != nil {
		a.Tags = append([]string{}, edit.Tags...)
	}
	if edit.Condition != nil {
		if !edit.Condition.Valid() {
			return domain.InputError{Field: "condition", Reason: "unknown condition " + string(*edit.Condition)}
		}
		a.Condition = *edit.Condition
	}
	if edit.Quantity != nil {
		if *edit.Quantity < 1 {
			return domain.InputError{Field: "quantity", Reason: "must be positive"}
		}
		a.Quantity = *edit.Quantity
	}
	if edit.LocationID != nil {
		if a.Status != domain.AssetDraft {
			return domain.LedgerActionError{AssetID: a.ID, Action: domain.ActionTransfer, Status: a.Status, Reason: "location of a non-draft asset changes only through the ledger"}
		}
		if *edit.LocationID == "" {
			a.LocationID = nil
		} else {
			a.LocationID = domain.StringPtr(*edit.LocationID)
		}
	}
	return nil
}

// Transition moves an asset along the lifecycle table.
func (s *Service) Transition(ctx context.Context, id string, to domain.AssetStatus) (domain.Asset, error) {
	var updated domain.Asset
	_, err := s.run(ctx, "transition", logrus.Fields{"asset_id": id, "to": to}, func(tx domain.Transaction) error {
		current, err := findAsset(tx, id)
		if err != nil {
			return err
		}
		next, err := domain.PlanTransition(current, to)
		if err != nil {
			return err
		}
		out, err := tx.ReplaceAssets([]domain.Asset{next})
		if err != nil {
			return err
		}
		updated = out[0]
		return nil
	})
	return updated, err
}

// GetAsset returns one asset.
func (s *Service) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	var out domain.Asset
	err := s.view(ctx, func(v domain.TransactionView) error {
		var err error
		out, err = findAsset(v, id)
		return err
	})
	return out, err
}

// ListAssets returns the assets matching filter, ordered by code.
func (s *Service) ListAssets(ctx context.Context, filter domain.AssetFilter) ([]domain.Asset, error) {
	var out []domain.Asset
	err := s.view(ctx, func(v domain.TransactionView) error {
		for _, a := range v.ListAssets() {
			if filter.Matches(a) {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

// CreateLocation stores a new location under an optional parent.
func (s *Service) CreateLocation(ctx context.Context, name, parentID string) (domain.Location, error) {
	var created domain.Location
	_, err := s.run(ctx, "create_location", logrus.Fields{"name": name}, func(tx domain.Transaction) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return domain.InputError{Field: "name", Reason: "required"}
		}
		loc := domain.Location{Name: name, Active: true}
		if parentID != "" {
			if err := requireLocation(tx, parentID); err != nil {
				return err
			}
			loc.ParentID = domain.StringPtr(parentID)
		}
		var err error
		created, err = tx.CreateLocation(loc)
		return err
	})
	return created, err
}

// ListLocations returns every location ordered by name.
func (s *Service) ListLocations(ctx context.Context) ([]domain.Location, error) {
	var out []domain.Location
	err := s.view(ctx, func(v domain.TransactionView) error {
		out = v.ListLocations()
		return nil
	})
	return out, err
}
