package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"assetcore/internal/core"
	"assetcore/pkg/domain"
)

type ledgerRequest struct {
	Action         domain.LedgerAction `json:"action" validate:"required,oneof=checkout checkin transfer audit"`
	ActorID        string              `json:"actor_id" validate:"required"`
	BorrowerID     string              `json:"borrower_id"`
	FromLocationID string              `json:"from_location_id"`
	ToLocationID   string              `json:"to_location_id"`
	Notes          string              `json:"notes"`
	Timestamp      *time.Time          `json:"timestamp"`
}

type ledgerResponse struct {
	Asset domain.Asset       `json:"asset"`
	Entry domain.LedgerEntry `json:"entry"`
}

func (s *Server) recordLedger(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "recordLedger", err)
		return
	}
	asset, entry, err := s.svc.Record(r.Context(), chi.URLParam(r, "assetID"), domain.LedgerCommand{
		Action:         req.Action,
		ActorID:        req.ActorID,
		BorrowerID:     req.BorrowerID,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Notes:          req.Notes,
		Timestamp:      timeOrZero(req.Timestamp),
	})
	if err != nil {
		s.writeError(w, r, "recordLedger", err)
		return
	}
	writeJSON(w, http.StatusCreated, ledgerResponse{Asset: asset, Entry: entry})
}

type handoverRequest struct {
	From      string     `json:"from" validate:"required"`
	To        string     `json:"to" validate:"required"`
	ActorID   string     `json:"actor_id" validate:"required"`
	Notes     string     `json:"notes"`
	Timestamp *time.Time `json:"timestamp"`
}

type handoverResponse struct {
	Asset   domain.Asset         `json:"asset"`
	Entries []domain.LedgerEntry `json:"entries"`
}

func (s *Server) handover(w http.ResponseWriter, r *http.Request) {
	var req handoverRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "handover", err)
		return
	}
	asset, entries, err := s.svc.Handover(r.Context(), core.HandoverInput{
		AssetID:   chi.URLParam(r, "assetID"),
		From:      req.From,
		To:        req.To,
		ActorID:   req.ActorID,
		Notes:     req.Notes,
		Timestamp: timeOrZero(req.Timestamp),
	})
	if err != nil {
		s.writeError(w, r, "handover", err)
		return
	}
	writeJSON(w, http.StatusCreated, handoverResponse{Asset: asset, Entries: entries})
}

func (s *Server) ledgerHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.LedgerHistory(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		s.writeError(w, r, "ledgerHistory", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) exportLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.ExportLedger(r.Context())
	if err != nil {
		s.writeError(w, r, "exportLedger", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type tagRequest struct {
	AssetID string `json:"asset_id"`
	ActorID string `json:"actor_id" validate:"required"`
}

func (s *Server) assignTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "assignTag", err)
		return
	}
	if req.AssetID == "" {
		s.writeError(w, r, "assignTag", domain.InputError{Field: "asset_id", Reason: "required"})
		return
	}
	a, err := s.svc.AssignTag(r.Context(), chi.URLParam(r, "tag"), req.AssetID, req.ActorID)
	if err != nil {
		s.writeError(w, r, "assignTag", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) removeTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "removeTag", err)
		return
	}
	a, err := s.svc.RemoveTag(r.Context(), chi.URLParam(r, "tag"), req.ActorID)
	if err != nil {
		s.writeError(w, r, "removeTag", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) tagHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.svc.TagHistory(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		s.writeError(w, r, "tagHistory", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
