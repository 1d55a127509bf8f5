package s3

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"assetcore/internal/blob/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

// fakeBucket answers the handful of path-style S3 calls the store makes.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		b.list(w, r.URL.Query().Get("prefix"))
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") {
			body = decodeChunked(body)
		}
		md := map[string]string{}
		for name, v := range r.Header {
			if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") {
				md[strings.ToLower(strings.TrimPrefix(strings.ToLower(name), "x-amz-meta-"))] = v[0]
			}
		}
		b.objects[key] = fakeObject{body: body, contentType: r.Header.Get("Content-Type"), metadata: md}
		w.Header().Set("ETag", `"fake"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead || r.Method == http.MethodGet:
		obj, ok := b.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.body)))
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("ETag", `"fake"`)
		w.Header().Set("Last-Modified", time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		for k, v := range obj.metadata {
			w.Header().Set("X-Amz-Meta-"+k, v)
		}
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.body)
		}
	case r.Method == http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (b *fakeBucket) list(w http.ResponseWriter, prefix string) {
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&sb, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-04-01T09:00:00Z</LastModified></Contents>", k, len(b.objects[k].body))
	}
	sb.WriteString("</ListBucketResult>")
	w.Header().Set("Content-Type", "application/xml")
	_, _ = io.WriteString(w, sb.String())
}

// decodeChunked strips aws-chunked framing: <hex>[;ext]\r\n<data>\r\n ... 0\r\n<trailers>.
func decodeChunked(b []byte) []byte {
	rd := bufio.NewReader(bytes.NewReader(b))
	var out []byte
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return out
		}
		size, err := strconv.ParseInt(strings.TrimSpace(strings.SplitN(line, ";", 2)[0]), 16, 64)
		if err != nil || size == 0 {
			return out
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(rd, chunk); err != nil {
			return out
		}
		out = append(out, chunk...)
		_, _ = rd.ReadString('\n')
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	srv := httptest.NewServer(&fakeBucket{objects: map[string]fakeObject{}})
	t.Cleanup(srv.Close)
	s, err := New(context.Background(), Config{
		Bucket:          "assets",
		Endpoint:        srv.URL,
		PathStyle:       true,
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	return s
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	assert.Equal(t, core.DriverS3, s.Driver())

	info, err := s.Put(ctx, "assets/a1/images/front.jpg", bytes.NewReader([]byte("jpeg")), core.PutOptions{
		ContentType: "image/jpeg",
		Metadata:    map[string]string{"asset_id": "a1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size)
	assert.Equal(t, "image/jpeg", info.ContentType)
	assert.Equal(t, "fake", info.ETag)

	_, err = s.Put(ctx, "assets/a1/images/front.jpg", bytes.NewReader([]byte("again")), core.PutOptions{})
	assert.ErrorIs(t, err, core.ErrExists)

	got, rc, err := s.Get(ctx, "assets/a1/images/front.jpg")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "jpeg", string(body))
	assert.Equal(t, "a1", got.Metadata["asset_id"])

	_, err = s.Put(ctx, "assets/a2/images/side.png", bytes.NewReader([]byte("png")), core.PutOptions{ContentType: "image/png"})
	require.NoError(t, err)
	list, err := s.List(ctx, "assets/a1/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "assets/a1/images/front.jpg", list[0].Key)

	ok, err := s.Delete(ctx, "assets/a1/images/front.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "assets/a1/images/front.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.Head(ctx, "assets/a1/images/front.jpg")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPresignURL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u, err := s.PresignURL(ctx, "assets/a1/images/front.jpg", core.SignedURLOptions{Expiry: time.Minute})
	require.NoError(t, err)
	assert.Contains(t, u, "X-Amz-Expires=60")
	assert.Contains(t, u, "/assets/assets/a1/images/front.jpg")

	_, err = s.PresignURL(ctx, "assets/a1/images/front.jpg", core.SignedURLOptions{Method: "PUT"})
	assert.ErrorIs(t, err, core.ErrUnsupported)
}

func TestPutRejectsBadKeys(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Put(context.Background(), "../escape", strings.NewReader("x"), core.PutOptions{})
	assert.ErrorIs(t, err, core.ErrInvalidKey)
}
