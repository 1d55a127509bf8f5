package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"assetcore/internal/core"
	"assetcore/pkg/domain"
)

type startStocktakeRequest struct {
	LocationID  string `json:"location_id" validate:"required"`
	InitiatorID string `json:"initiator_id" validate:"required"`
	Notes       string `json:"notes"`
}

func (s *Server) startStocktake(w http.ResponseWriter, r *http.Request) {
	var req startStocktakeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "startStocktake", err)
		return
	}
	sess, err := s.svc.StartStocktake(r.Context(), req.LocationID, req.InitiatorID, req.Notes)
	if err != nil {
		s.writeError(w, r, "startStocktake", err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.svc.ListSessions(r.Context(), r.URL.Query().Get("location_id"))
	if err != nil {
		s.writeError(w, r, "listSessions", err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, "getSession", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) expectedAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.svc.ExpectedAssets(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, "expectedAssets", err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

type sessionAssetRequest struct {
	AssetID string `json:"asset_id" validate:"required"`
	ActorID string `json:"actor_id"`
}

type confirmResponse struct {
	// Entry is null when the asset was already confirmed.
	Entry *domain.LedgerEntry `json:"entry"`
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	var req sessionAssetRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "confirm", err)
		return
	}
	entry, err := s.svc.Confirm(r.Context(), chi.URLParam(r, "sessionID"), req.AssetID, req.ActorID)
	if err != nil {
		s.writeError(w, r, "confirm", err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Entry: entry})
}

func (s *Server) reportUnexpected(w http.ResponseWriter, r *http.Request) {
	var req sessionAssetRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "reportUnexpected", err)
		return
	}
	proposal, err := s.svc.ReportUnexpected(r.Context(), chi.URLParam(r, "sessionID"), req.AssetID)
	if err != nil {
		s.writeError(w, r, "reportUnexpected", err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

func (s *Server) markMissing(w http.ResponseWriter, r *http.Request) {
	var req sessionAssetRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "markMissing", err)
		return
	}
	asset, err := s.svc.MarkMissing(r.Context(), chi.URLParam(r, "sessionID"), req.AssetID)
	if err != nil {
		s.writeError(w, r, "markMissing", err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

type codeRequest struct {
	Code    string `json:"code" validate:"required"`
	ActorID string `json:"actor_id"`
}

func (s *Server) reportUnknownCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "reportUnknownCode", err)
		return
	}
	nc, err := s.svc.ReportUnknownCode(r.Context(), chi.URLParam(r, "sessionID"), req.Code)
	if err != nil {
		s.writeError(w, r, "reportUnknownCode", err)
		return
	}
	writeJSON(w, http.StatusOK, nc)
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "scan", err)
		return
	}
	res, err := s.svc.Scan(r.Context(), chi.URLParam(r, "sessionID"), req.Code, req.ActorID)
	if err != nil {
		s.writeError(w, r, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type completeRequest struct {
	Notes                string `json:"notes"`
	MarkRemainingMissing bool   `json:"mark_remaining_missing"`
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "complete", err)
		return
	}
	sess, err := s.svc.Complete(r.Context(), chi.URLParam(r, "sessionID"), core.CompleteOptions(req))
	if err != nil {
		s.writeError(w, r, "complete", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type abandonRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) abandon(w http.ResponseWriter, r *http.Request) {
	var req abandonRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "abandon", err)
		return
	}
	sess, err := s.svc.Abandon(r.Context(), chi.URLParam(r, "sessionID"), req.Notes)
	if err != nil {
		s.writeError(w, r, "abandon", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type acceptTransferRequest struct {
	Proposal domain.TransferProposal `json:"proposal"`
	ActorID  string                  `json:"actor_id" validate:"required"`
}

func (s *Server) acceptTransfer(w http.ResponseWriter, r *http.Request) {
	var req acceptTransferRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "acceptTransfer", err)
		return
	}
	asset, entry, err := s.svc.AcceptTransfer(r.Context(), req.Proposal, req.ActorID)
	if err != nil {
		s.writeError(w, r, "acceptTransfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, ledgerResponse{Asset: asset, Entry: entry})
}
