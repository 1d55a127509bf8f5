package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"assetcore/pkg/domain"
)

func seedLocation(t *testing.T, store *Store, name string) domain.Location {
	t.Helper()
	var loc domain.Location
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		loc, err = tx.CreateLocation(domain.Location{Name: name, Active: true})
		return err
	}); err != nil {
		t.Fatalf("create location: %v", err)
	}
	return loc
}

func seedAsset(t *testing.T, store *Store, code, locationID string) domain.Asset {
	t.Helper()
	var asset domain.Asset
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		asset, err = tx.CreateAsset(domain.Asset{
			Code:       code,
			Name:       "Item " + code,
			Category:   "props",
			Status:     domain.AssetActive,
			LocationID: domain.StringPtr(locationID),
			Quantity:   1,
			Condition:  domain.ConditionGood,
		})
		return err
	}); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	return asset
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	loc := seedLocation(t, store, "Store room")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		created, err := tx.CreateAsset(domain.Asset{Code: "asset-0000000a", Name: "Lamp", LocationID: domain.StringPtr(loc.ID)})
		if err != nil {
			return err
		}
		if created.ID == "" || created.Code != "ASSET-0000000A" || created.Status != domain.AssetDraft {
			t.Fatalf("unexpected created asset %+v", created)
		}
		if len(tx.Snapshot().ListAssets()) != 1 {
			t.Fatalf("snapshot should see own writes")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}

	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		if len(v.ListAssets()) != 0 {
			t.Fatalf("expected cleared state")
		}
		return nil
	})
	store.ImportState(snapshot)
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		if _, ok := v.FindAssetByCode(" asset-0000000a"); !ok {
			t.Fatalf("expected restored asset")
		}
		return nil
	})
	if store.RulesEngine() == nil || store.NowFunc() == nil {
		t.Fatalf("expected engine and clock")
	}
}

func TestStoreRollbackOnError(t *testing.T) {
	store := NewStore(nil)
	loc := seedLocation(t, store, "A")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateAsset(domain.Asset{Code: "ASSET-00000001", LocationID: domain.StringPtr(loc.ID)}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		if len(v.ListAssets()) != 0 {
			t.Fatalf("aborted transaction leaked state")
		}
		return nil
	})
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }
func (blockingRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}}, nil
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateLocation(domain.Location{Name: "Fail"})
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
}

func TestCommitHookFailureLeavesStateUntouched(t *testing.T) {
	var seen []domain.Change
	fail := true
	store := NewStore(nil, WithCommitHook(func(_ context.Context, changes []domain.Change) error {
		seen = changes
		if fail {
			return errors.New("disk full")
		}
		return nil
	}))
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateLocation(domain.Location{Name: "Dock"})
		return err
	})
	if err == nil {
		t.Fatalf("expected commit failure")
	}
	if len(seen) != 1 || seen[0].Entity != domain.EntityLocation {
		t.Fatalf("hook should see the change set, got %+v", seen)
	}
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		if len(v.ListLocations()) != 0 {
			t.Fatalf("state applied despite failed commit")
		}
		return nil
	})
	fail = false
	seedLocation(t, store, "Dock")
}

func TestDuplicateCodeRejected(t *testing.T) {
	store := NewStore(nil)
	loc := seedLocation(t, store, "A")
	seedAsset(t, store, "ASSET-00000001", loc.ID)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateAsset(domain.Asset{Code: "asset-00000001"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateCode) {
		t.Fatalf("expected duplicate code, got %v", err)
	}
}

func TestLedgerIsAppendOnly(t *testing.T) {
	store := NewStore(nil)
	loc := seedLocation(t, store, "A")
	asset := seedAsset(t, store, "ASSET-00000001", loc.ID)
	var entry domain.LedgerEntry
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		entries, err := tx.AppendLedgerEntries(domain.LedgerEntry{AssetID: asset.ID, Action: domain.ActionAudit, ActorID: "u"})
		if err != nil {
			return err
		}
		entry = entries[0]
		return nil
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.UpdateLedgerEntry(entry.ID, func(e *domain.LedgerEntry) error {
			e.Notes = "rewritten"
			return nil
		})
	})
	if !errors.Is(err, domain.ErrLedgerImmutable) {
		t.Fatalf("expected immutable error on update, got %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteLedgerEntry(entry.ID)
	})
	if !errors.Is(err, domain.ErrLedgerImmutable) {
		t.Fatalf("expected immutable error on delete, got %v", err)
	}
}

func TestSessionExclusivityUnderConcurrency(t *testing.T) {
	store := NewStore(nil)
	loc := seedLocation(t, store, "Hall")
	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
				_, err := tx.CreateSession(domain.StocktakeSession{LocationID: loc.ID, InitiatorID: "u"})
				return err
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	ok, open := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrSessionAlreadyOpen):
			open++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || open != callers-1 {
		t.Fatalf("expected exactly one session, got ok=%d open=%d", ok, open)
	}
}

func TestTagAssignmentUniqueness(t *testing.T) {
	store := NewStore(nil)
	loc := seedLocation(t, store, "A")
	a := seedAsset(t, store, "ASSET-00000001", loc.ID)
	b := seedAsset(t, store, "ASSET-00000002", loc.ID)
	var first domain.TagAssignment
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		first, err = tx.OpenTagAssignment(domain.TagAssignment{TagValue: "04:aa:bb", AssetID: a.ID, AssignedBy: "u"})
		return err
	}); err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.OpenTagAssignment(domain.TagAssignment{TagValue: "04:AA:BB", AssetID: b.ID, AssignedBy: "u"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateOpenAssignment) {
		t.Fatalf("expected duplicate open assignment, got %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CloseTagAssignment(first.ID, "u"); err != nil {
			return err
		}
		_, err := tx.OpenTagAssignment(domain.TagAssignment{TagValue: "04:AA:BB", AssetID: b.ID, AssignedBy: "u"})
		return err
	}); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		open, ok := v.FindOpenAssignment("04:aa:bb")
		if !ok || open.AssetID != b.ID {
			t.Fatalf("expected open assignment to b, got %+v", open)
		}
		if h := v.TagHistory("04:AA:BB"); len(h) != 2 {
			t.Fatalf("expected two history rows, got %d", len(h))
		}
		return nil
	})
}

func TestDuplicateSessionAuditRejected(t *testing.T) {
	store := NewStore(nil)
	loc := seedLocation(t, store, "A")
	a := seedAsset(t, store, "ASSET-00000001", loc.ID)
	entry := domain.LedgerEntry{AssetID: a.ID, Action: domain.ActionAudit, ActorID: "u", SessionID: domain.StringPtr("s1")}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AppendLedgerEntries(entry, entry)
		return err
	})
	if !errors.Is(err, domain.ErrInvalidLedgerAction) {
		t.Fatalf("expected duplicate confirmation rejection, got %v", err)
	}
}

func TestLedgerOrderedByActionTime(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewStore(nil, WithClock(func() time.Time { return now }))
	loc := seedLocation(t, store, "A")
	a := seedAsset(t, store, "ASSET-00000001", loc.ID)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AppendLedgerEntries(
			domain.LedgerEntry{AssetID: a.ID, Action: domain.ActionAudit, ActorID: "u", Timestamp: now},
			domain.LedgerEntry{AssetID: a.ID, Action: domain.ActionAudit, ActorID: "u", Timestamp: now.Add(-time.Hour)},
		)
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		entries := v.LedgerForAsset(a.ID)
		if len(entries) != 2 || !entries[0].Timestamp.Before(entries[1].Timestamp) {
			t.Fatalf("expected chronological order, got %+v", entries)
		}
		return nil
	})
}

func TestCanceledContextSkipsTransaction(t *testing.T) {
	store := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	if _, err := store.RunInTransaction(ctx, func(domain.Transaction) error {
		called = true
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if called {
		t.Fatalf("fn should not run for canceled context")
	}
}

// racingSource stands in for a shared database another writer commits to.
type racingSource struct {
	stale    bool
	snapshot Snapshot
	reloads  int
}

func (r *racingSource) Stale(context.Context) (bool, error) { return r.stale, nil }

func (r *racingSource) Reload(context.Context) (Snapshot, error) {
	r.reloads++
	r.stale = false
	return r.snapshot, nil
}

func TestLostCommitRaceIsReplannedAgainstReloadedState(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	src := &racingSource{snapshot: Snapshot{
		Locations: map[string]domain.Location{
			"loc-remote": {Base: domain.Base{ID: "loc-remote", CreatedAt: now, UpdatedAt: now}, Name: "Written elsewhere", Active: true},
		},
	}}
	conflicts := 1
	store := NewStore(nil,
		WithSource(src),
		WithCommitHook(func(context.Context, []domain.Change) error {
			if conflicts > 0 {
				conflicts--
				src.stale = true
				return fmt.Errorf("sqlite: revision 0 superseded: %w", domain.ErrConcurrentUpdate)
			}
			return nil
		}),
	)

	var attempts int
	var sawRemote bool
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		attempts++
		_, sawRemote = tx.FindLocation("loc-remote")
		_, err := tx.CreateLocation(domain.Location{Base: domain.Base{ID: "loc-local"}, Name: "Dock", Active: true})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if attempts != 2 || src.reloads != 1 {
		t.Fatalf("expected one replan after one reload, got attempts=%d reloads=%d", attempts, src.reloads)
	}
	if !sawRemote {
		t.Fatalf("replanned attempt did not see the reloaded state")
	}
	locs := store.ExportState().Locations
	if _, ok := locs["loc-remote"]; !ok {
		t.Fatalf("reloaded location missing after commit: %v", locs)
	}
	if _, ok := locs["loc-local"]; !ok {
		t.Fatalf("committed location missing: %v", locs)
	}
}

func TestConcurrentUpdateSurfacesAfterRetryBudget(t *testing.T) {
	src := &racingSource{}
	store := NewStore(nil,
		WithSource(src),
		WithCommitHook(func(context.Context, []domain.Change) error {
			src.stale = true
			return domain.ErrConcurrentUpdate
		}),
	)
	var attempts int
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		attempts++
		_, err := tx.CreateLocation(domain.Location{Name: "Dock"})
		return err
	})
	if !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected concurrent update, got %v", err)
	}
	if attempts != maxCommitAttempts {
		t.Fatalf("expected %d attempts, got %d", maxCommitAttempts, attempts)
	}
	if len(store.ExportState().Locations) != 0 {
		t.Fatalf("state advanced despite every commit failing")
	}
}

func TestViewReloadsStaleSource(t *testing.T) {
	src := &racingSource{stale: true, snapshot: Snapshot{
		Locations: map[string]domain.Location{"loc-1": {Base: domain.Base{ID: "loc-1"}, Name: "Vault", Active: true}},
	}}
	store := NewStore(nil, WithSource(src))
	var names []string
	if err := store.View(context.Background(), func(v domain.TransactionView) error {
		for _, l := range v.ListLocations() {
			names = append(names, l.Name)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(names) != 1 || names[0] != "Vault" || src.reloads != 1 {
		t.Fatalf("expected one reload exposing Vault, got %v after %d reloads", names, src.reloads)
	}
}
