package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"assetcore/internal/infra/idempotency"
	"assetcore/internal/logging"
)

// IdempotencyHeader carries the client chosen key of a mutating request.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader is set on responses served from the idempotency store.
const ReplayedHeader = "Idempotent-Replayed"

const maxIdempotencyKeyLen = 255

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// idempotent replays the stored response for a repeated Idempotency-Key.
// Responses below 500 are stored; server errors and handler panics release
// the key so the client can retry.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if key == "" || !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			s.writeError(w, r, "idempotent", badRequest{cause: errKeyTooLong})
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, r, "idempotent", err)
			return
		}
		_ = r.Body.Close()
		fingerprint := idempotency.Fingerprint(r.Method, r.URL.Path, body)

		stored, err := s.idempotency.Begin(r.Context(), key, fingerprint)
		if err != nil {
			s.writeError(w, r, "idempotent", err)
			return
		}
		if stored != nil {
			if stored.ContentType != "" {
				w.Header().Set("Content-Type", stored.ContentType)
			}
			w.Header().Set(ReplayedHeader, "true")
			w.WriteHeader(stored.Status)
			_, _ = w.Write(stored.Body)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		// The request context may already be cancelled once the client has
		// its response; the record must still be written.
		ctx := context.WithoutCancel(r.Context())
		completed := false
		// Runs on server errors and while a handler panic unwinds towards
		// the recoverer.
		defer func() {
			if completed {
				return
			}
			if err := s.idempotency.Release(ctx, key); err != nil {
				logging.LogError(s.logger, "httpapi", "idempotent", err, logrus.Fields{"idempotency_key": key})
			}
		}()

		var captured bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&captured)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status >= http.StatusInternalServerError {
			return
		}
		completed = true
		resp := idempotency.Response{Status: status, ContentType: ww.Header().Get("Content-Type"), Body: captured.Bytes()}
		if err := s.idempotency.Complete(ctx, key, resp); err != nil {
			logging.LogError(s.logger, "httpapi", "idempotent", err, logrus.Fields{"idempotency_key": key})
		}
	})
}
