package core

import (
	"context"

	"assetcore/pkg/domain"
)

// Label is what the label/printer collaborator needs for one asset.
type Label struct {
	AssetID string `json:"asset_id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	URL     string `json:"url"`
}

// Label returns the permanent code and detail-page locator of an asset.
func (s *Service) Label(ctx context.Context, assetID string) (Label, error) {
	a, err := s.GetAsset(ctx, assetID)
	if err != nil {
		return Label{}, err
	}
	return Label{AssetID: a.ID, Code: a.Code, Name: a.Name, URL: s.baseURL + "/assets/" + a.ID}, nil
}

// ExportAssets returns a snapshot of every asset ordered by code.
func (s *Service) ExportAssets(ctx context.Context) ([]domain.Asset, error) {
	return s.ListAssets(ctx, domain.AssetFilter{})
}
