package httpapi

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"assetcore/pkg/domain"
)

// attachImage stores the raw request body as an image of the asset and
// enqueues its analysis.
func (s *Server) attachImage(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		s.writeError(w, r, "attachImage", domain.InputError{Field: "Content-Type", Reason: "must be an image media type"})
		return
	}
	rec, err := s.svc.AttachImage(r.Context(), chi.URLParam(r, "assetID"), r.Body, mediaType)
	if err != nil {
		s.writeError(w, r, "attachImage", err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

type enqueueAnalysisRequest struct {
	ImageKey string `json:"image_key" validate:"required"`
}

func (s *Server) enqueueAnalysis(w http.ResponseWriter, r *http.Request) {
	var req enqueueAnalysisRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, "enqueueAnalysis", err)
		return
	}
	rec, err := s.svc.EnqueueAnalysis(r.Context(), chi.URLParam(r, "assetID"), req.ImageKey)
	if err != nil {
		s.writeError(w, r, "enqueueAnalysis", err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) assetAnalyses(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.AssetAnalyses(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		s.writeError(w, r, "assetAnalyses", err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) analysisStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.AnalysisStatus(r.Context(), chi.URLParam(r, "analysisID"))
	if err != nil {
		s.writeError(w, r, "analysisStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) markProcessing(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.MarkAnalysisProcessing(r.Context(), chi.URLParam(r, "analysisID"))
	if err != nil {
		s.writeError(w, r, "markProcessing", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) recordAnalysisResult(w http.ResponseWriter, r *http.Request) {
	var out domain.AnalysisOutcome
	if err := s.decode(r, &out); err != nil {
		s.writeError(w, r, "recordAnalysisResult", err)
		return
	}
	rec, err := s.svc.RecordAnalysisResult(r.Context(), chi.URLParam(r, "analysisID"), out)
	if err != nil {
		s.writeError(w, r, "recordAnalysisResult", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
