// Package httpapi exposes the asset service over HTTP with JSON bodies. It
// is the surface the capture UI, the stocktake scanner and the analysis
// collaborator talk to.
package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"assetcore/internal/core"
	"assetcore/internal/infra/idempotency"
)

// DefaultMaxBodyBytes caps request bodies, image uploads included.
const DefaultMaxBodyBytes int64 = 10 << 20

// Server routes HTTP requests to a core.Service.
type Server struct {
	svc          *core.Service
	logger       logrus.FieldLogger
	validate     *validator.Validate
	idempotency  idempotency.Store
	maxBodyBytes int64
	metrics      http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIdempotencyStore enables Idempotency-Key handling for mutating
// requests.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(s *Server) { s.idempotency = store }
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New builds a server for svc.
func New(svc *core.Service, opts ...Option) *Server {
	l := logrus.New()
	l.SetOutput(io.Discard)
	s := &Server{
		svc:          svc,
		logger:       l,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.limitBody)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		if s.idempotency != nil {
			r.Use(s.idempotent)
		}

		r.Route("/locations", func(r chi.Router) {
			r.Get("/", s.listLocations)
			r.Post("/", s.createLocation)
		})

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", s.listAssets)
			r.Post("/", s.createDraft)
			r.Route("/{assetID}", func(r chi.Router) {
				r.Get("/", s.getAsset)
				r.Patch("/", s.editAsset)
				r.Post("/transition", s.transition)
				r.Get("/ledger", s.ledgerHistory)
				r.Post("/ledger", s.recordLedger)
				r.Post("/handover", s.handover)
				r.Post("/merge", s.mergeAssets)
				r.Get("/label", s.label)
				r.Post("/images", s.attachImage)
				r.Get("/analyses", s.assetAnalyses)
				r.Post("/analyses", s.enqueueAnalysis)
			})
		})

		r.Post("/bulk", s.bulkApply)
		r.Get("/resolve/{code}", s.resolve)

		r.Route("/tags/{tag}", func(r chi.Router) {
			r.Post("/assign", s.assignTag)
			r.Post("/remove", s.removeTag)
			r.Get("/history", s.tagHistory)
		})

		r.Route("/stocktakes", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Post("/", s.startStocktake)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Get("/expected", s.expectedAssets)
				r.Post("/confirm", s.confirm)
				r.Post("/unexpected", s.reportUnexpected)
				r.Post("/unknown", s.reportUnknownCode)
				r.Post("/scan", s.scan)
				r.Post("/missing", s.markMissing)
				r.Post("/complete", s.complete)
				r.Post("/abandon", s.abandon)
			})
		})
		r.Post("/transfers/accept", s.acceptTransfer)

		r.Route("/analyses/{analysisID}", func(r chi.Router) {
			r.Get("/", s.analysisStatus)
			r.Post("/processing", s.markProcessing)
			r.Post("/result", s.recordAnalysisResult)
		})

		r.Get("/export/assets", s.exportAssets)
		r.Get("/export/ledger", s.exportLedger)
	})
	return r
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(started).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}
