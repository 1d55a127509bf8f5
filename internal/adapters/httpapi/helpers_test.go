package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"assetcore/internal/core"
	"assetcore/pkg/domain"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []domain.AnalysisJob
}

func (q *recordingQueue) Publish(_ context.Context, job domain.AnalysisJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

type apiFixture struct {
	svc     *core.Service
	handler http.Handler
	queue   *recordingQueue
}

func newAPI(t *testing.T, svcOpts []core.Option, opts ...Option) *apiFixture {
	t.Helper()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	q := &recordingQueue{}
	svcOpts = append([]core.Option{
		core.WithClock(core.ClockFunc(func() time.Time { return now })),
		core.WithAnalysisQueue(q),
		core.WithBaseURL("https://assets.example.com"),
	}, svcOpts...)
	svc := core.NewInMemoryService(nil, svcOpts...)
	return &apiFixture{svc: svc, handler: New(svc, opts...).Handler(), queue: q}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	case []byte:
		r = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil && header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// location creates a location over HTTP.
func (f *apiFixture) location(t *testing.T, name string) domain.Location {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/locations", map[string]string{"name": name}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[domain.Location](t, rec)
}

// activeAsset captures and activates an asset over HTTP.
func (f *apiFixture) activeAsset(t *testing.T, name, locationID string) domain.Asset {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/assets", map[string]any{"name": name, "category": "tools", "location_id": locationID}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	draft := decodeAs[domain.Asset](t, rec)
	rec = f.do(t, http.MethodPost, "/assets/"+draft.ID+"/transition", map[string]string{"status": "active"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeAs[domain.Asset](t, rec)
}
