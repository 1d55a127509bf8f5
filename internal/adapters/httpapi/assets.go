package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"assetcore/internal/core"
	"assetcore/pkg/domain"
)

type createLocationRequest struct {
	Name     string `json:"name" validate:"required"`
	ParentID string `json:"parent_id"`
}

func (s *Server) createLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "createLocation", err)
		return
	}
	loc, err := s.svc.CreateLocation(r.Context(), req.Name, req.ParentID)
	if err != nil {
		s.writeError(w, r, "createLocation", err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (s *Server) listLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := s.svc.ListLocations(r.Context())
	if err != nil {
		s.writeError(w, r, "listLocations", err)
		return
	}
	writeJSON(w, http.StatusOK, locs)
}

type createDraftRequest struct {
	Name        string           `json:"name" validate:"required"`
	Code        string           `json:"code"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	LocationID  string           `json:"location_id"`
	Quantity    int              `json:"quantity" validate:"gte=0"`
	Condition   domain.Condition `json:"condition" validate:"omitempty,oneof=excellent good fair poor damaged"`
	Notes       string           `json:"notes"`
	CreatedBy   string           `json:"created_by"`
	ImageKey    string           `json:"image_key"`
}

func (s *Server) createDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "createDraft", err)
		return
	}
	asset, err := s.svc.CreateDraft(r.Context(), core.DraftInput(req))
	if err != nil {
		s.writeError(w, r, "createDraft", err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := s.svc.GetAsset(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		s.writeError(w, r, "getAsset", err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// filterFromQuery reads status (comma separated), location_id, category, q
// and checked_out.
func filterFromQuery(r *http.Request) (domain.AssetFilter, error) {
	q := r.URL.Query()
	f := domain.AssetFilter{
		LocationID: q.Get("location_id"),
		Category:   q.Get("category"),
		Query:      q.Get("q"),
	}
	if raw := q.Get("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				f.Statuses = append(f.Statuses, domain.AssetStatus(st))
			}
		}
	}
	if raw := q.Get("checked_out"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, domain.InputError{Field: "checked_out", Reason: "must be true or false"}
		}
		f.CheckedOut = &b
	}
	return f, nil
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		s.writeError(w, r, "listAssets", err)
		return
	}
	assets, err := s.svc.ListAssets(r.Context(), f)
	if err != nil {
		s.writeError(w, r, "listAssets", err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

type editAssetRequest struct {
	Name        *string           `json:"name" validate:"omitempty,min=1"`
	Description *string           `json:"description"`
	Category    *string           `json:"category"`
	Condition   *domain.Condition `json:"condition" validate:"omitempty,oneof=excellent good fair poor damaged"`
	Quantity    *int              `json:"quantity" validate:"omitempty,gte=0"`
	Notes       *string           `json:"notes"`
	Tags        []string          `json:"tags"`
	LocationID  *string           `json:"location_id"`
}

func (s *Server) editAsset(w http.ResponseWriter, r *http.Request) {
	var req editAssetRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "editAsset", err)
		return
	}
	asset, err := s.svc.EditAsset(r.Context(), chi.URLParam(r, "assetID"), core.AssetEdit(req))
	if err != nil {
		s.writeError(w, r, "editAsset", err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

type transitionRequest struct {
	Status domain.AssetStatus `json:"status" validate:"required"`
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "transition", err)
		return
	}
	asset, err := s.svc.Transition(r.Context(), chi.URLParam(r, "assetID"), req.Status)
	if err != nil {
		s.writeError(w, r, "transition", err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

type mergeRequest struct {
	DuplicateIDs []string `json:"duplicate_ids" validate:"required,min=1,dive,required"`
	ActorID      string   `json:"actor_id" validate:"required"`
}

func (s *Server) mergeAssets(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "mergeAssets", err)
		return
	}
	asset, err := s.svc.MergeAssets(r.Context(), chi.URLParam(r, "assetID"), req.DuplicateIDs, req.ActorID)
	if err != nil {
		s.writeError(w, r, "mergeAssets", err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) label(w http.ResponseWriter, r *http.Request) {
	l, err := s.svc.Label(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		s.writeError(w, r, "label", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	asset, err := s.svc.Resolve(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

type bulkRequest struct {
	Action   domain.BulkAction    `json:"action" validate:"required,oneof=transfer checkout checkin edit status"`
	Selector domain.AssetSelector `json:"selector"`
	Params   bulkParams           `json:"params"`
}

type bulkParams struct {
	ActorID    string             `json:"actor_id" validate:"required"`
	BorrowerID string             `json:"borrower_id"`
	LocationID string             `json:"location_id"`
	Category   string             `json:"category"`
	Condition  domain.Condition   `json:"condition" validate:"omitempty,oneof=excellent good fair poor damaged"`
	Status     domain.AssetStatus `json:"status"`
	Notes      string             `json:"notes"`
	Timestamp  *time.Time         `json:"timestamp"`
}

func (s *Server) bulkApply(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "bulkApply", err)
		return
	}
	p := domain.BulkParams{
		ActorID:    req.Params.ActorID,
		BorrowerID: req.Params.BorrowerID,
		LocationID: req.Params.LocationID,
		Category:   req.Params.Category,
		Condition:  req.Params.Condition,
		Status:     req.Params.Status,
		Notes:      req.Params.Notes,
		Timestamp:  timeOrZero(req.Params.Timestamp),
	}
	res, err := s.svc.BulkApply(r.Context(), req.Action, req.Selector, p)
	if err != nil {
		s.writeError(w, r, "bulkApply", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) exportAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.svc.ExportAssets(r.Context())
	if err != nil {
		s.writeError(w, r, "exportAssets", err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
