package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"assetcore/pkg/domain"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx  context.Context
	svc  *Service
	now  time.Time
	dock domain.Location
	shop domain.Location
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(ClockFunc(func() time.Time { return now }))}, opts...)
	f := &fixture{ctx: context.Background(), now: now, svc: NewInMemoryService(nil, opts...)}
	var err error
	f.dock, err = f.svc.CreateLocation(f.ctx, "Dock", "")
	require.NoError(t, err)
	f.shop, err = f.svc.CreateLocation(f.ctx, "Workshop", "")
	require.NoError(t, err)
	return f
}

// activeAsset captures a complete draft at loc and activates it.
func (f *fixture) activeAsset(t *testing.T, name, loc string) domain.Asset {
	t.Helper()
	draft, err := f.svc.CreateDraft(f.ctx, DraftInput{Name: name, Category: "tools", LocationID: loc, CreatedBy: "sam"})
	require.NoError(t, err)
	active, err := f.svc.Transition(f.ctx, draft.ID, domain.AssetActive)
	require.NoError(t, err)
	return active
}

func (f *fixture) checkout(t *testing.T, assetID, borrower string) domain.Asset {
	t.Helper()
	a, _, err := f.svc.Record(f.ctx, assetID, domain.LedgerCommand{Action: domain.ActionCheckout, ActorID: "sam", BorrowerID: borrower})
	require.NoError(t, err)
	return a
}

func (f *fixture) ledger(t *testing.T, assetID string) []domain.LedgerEntry {
	t.Helper()
	entries, err := f.svc.LedgerHistory(f.ctx, assetID)
	require.NoError(t, err)
	return entries
}

// tickingClock advances one second on every reading.
func tickingClock(start time.Time) Clock {
	var mu sync.Mutex
	cur := start
	return ClockFunc(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	})
}
