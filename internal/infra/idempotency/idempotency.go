// Package idempotency defines the record kept per Idempotency-Key so a
// retried mutating request replays the first response instead of applying
// twice. Drivers live in the memory and redis subpackages.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// DefaultTTL is how long a key and its response are remembered.
const DefaultTTL = 24 * time.Hour

var (
	// ErrInFlight means a request with the same key has not finished yet.
	ErrInFlight = errors.New("idempotency: request with this key is in progress")
	// ErrMismatch means the key was first used for a different request.
	ErrMismatch = errors.New("idempotency: key reused for a different request")
)

// Response is the stored outcome of the first request.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Record is what a driver keeps per key.
type Record struct {
	Fingerprint string   `json:"fingerprint"`
	Done        bool     `json:"done"`
	Response    Response `json:"response"`
}

// Store reserves keys and remembers responses.
//
// Begin returns (nil, nil) when the caller now owns the key and must call
// Complete or Release. It returns the stored response for a finished
// request with the same fingerprint, ErrInFlight while the first request is
// running and ErrMismatch when the fingerprint differs.
type Store interface {
	Begin(ctx context.Context, key, fingerprint string) (*Response, error)
	Complete(ctx context.Context, key string, resp Response) error
	Release(ctx context.Context, key string) error
}

// Replay applies the Begin rules to an existing record.
func Replay(rec Record, fingerprint string) (*Response, error) {
	if rec.Fingerprint != fingerprint {
		return nil, ErrMismatch
	}
	if !rec.Done {
		return nil, ErrInFlight
	}
	resp := rec.Response
	return &resp, nil
}

// Fingerprint identifies a request by method, path and body.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
