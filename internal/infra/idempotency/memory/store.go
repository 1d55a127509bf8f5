// Package memory keeps idempotency records in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"assetcore/internal/infra/idempotency"
)

type entry struct {
	rec     idempotency.Record
	expires time.Time
}

// Store implements idempotency.Store with a mutex guarded map.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]entry
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a store remembering keys for ttl (DefaultTTL when zero).
func New(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	s := &Store{ttl: ttl, now: time.Now, records: make(map[string]entry)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ idempotency.Store = (*Store)(nil)

// Begin implements idempotency.Store.
func (s *Store) Begin(_ context.Context, key, fingerprint string) (*idempotency.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.records[key]; ok && now.Before(e.expires) {
		return idempotency.Replay(e.rec, fingerprint)
	}
	s.sweep(now)
	s.records[key] = entry{rec: idempotency.Record{Fingerprint: fingerprint}, expires: now.Add(s.ttl)}
	return nil, nil
}

// Complete implements idempotency.Store.
func (s *Store) Complete(_ context.Context, key string, resp idempotency.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[key]
	if !ok {
		return nil
	}
	e.rec.Done = true
	e.rec.Response = resp
	e.expires = s.now().Add(s.ttl)
	s.records[key] = e
	return nil
}

// Release implements idempotency.Store.
func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *Store) sweep(now time.Time) {
	for k, e := range s.records {
		if !now.Before(e.expires) {
			delete(s.records, k)
		}
	}
}
