// Package memory provides the in-memory transactional store used directly for
// tests and ephemeral environments and as the working set of the SQL backends.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"assetcore/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

// CommitHook durably applies a transaction's change set. It runs after rule
// evaluation and before the new state becomes visible; an error aborts the
// transaction with nothing applied.
type CommitHook func(ctx context.Context, changes []domain.Change) error

// Source is the durable copy of the state when the store is the working set
// of a shared database.
type Source interface {
	// Stale reports whether another writer committed since the last Reload
	// or commit made through this store.
	Stale(ctx context.Context) (bool, error)
	// Reload reads the durable state.
	Reload(ctx context.Context) (Snapshot, error)
}

// maxCommitAttempts bounds how often a transaction is replanned after
// losing a commit race to another writer.
const maxCommitAttempts = 3

// Option configures a Store.
type Option func(*Store)

// WithCommitHook installs the durable write step.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.commit = hook }
}

// WithSource makes every transaction and view start from the durable state
// and replans transactions whose commit fails with
// domain.ErrConcurrentUpdate.
func WithSource(src Source) Option {
	return func(s *Store) { s.source = src }
}

// WithClock overrides the transaction clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides record ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Store provides an in-memory transactional store for the core domain.
// Transactions are serialized; each works on a copy of the state that is
// swapped in only after rules pass and the commit hook succeeds.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
	newID  func() string
	commit CommitHook
	source Source
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the configured engine so callers can register rules.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store
// state. With a Source, fn may run again against reloaded state when another
// writer committed first, so fn must not have effects outside tx.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		if err := s.syncLocked(ctx); err != nil {
			return domain.Result{}, err
		}
		res, err := s.attemptLocked(ctx, fn)
		if s.source == nil || attempt >= maxCommitAttempts || !errors.Is(err, domain.ErrConcurrentUpdate) {
			return res, err
		}
	}
}

func (s *Store) attemptLocked(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	state := s.state.clone()
	tx := &transaction{
		memoryState: &state,
		store:       s,
		now:         s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, transactionView{&state}, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commit != nil && len(tx.changes) > 0 {
		if err := s.commit(ctx, tx.changes); err != nil {
			return result, fmt.Errorf("persist transaction: %w", err)
		}
	}
	s.state = state
	return result, nil
}

// syncLocked replaces the working set when the source moved on.
func (s *Store) syncLocked(ctx context.Context) error {
	if s.source == nil {
		return nil
	}
	stale, err := s.source.Stale(ctx)
	if err != nil {
		return fmt.Errorf("check durable state: %w", err)
	}
	if !stale {
		return nil
	}
	snapshot, err := s.source.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reload durable state: %w", err)
	}
	s.state = memoryStateFromSnapshot(snapshot)
	return nil
}

// View executes fn against a read-only snapshot of the store state. Committed
// state is never mutated in place, so the view needs no copy.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	var state memoryState
	if s.source != nil {
		s.mu.Lock()
		err := s.syncLocked(ctx)
		state = s.state
		s.mu.Unlock()
		if err != nil {
			return err
		}
	} else {
		s.mu.RLock()
		state = s.state
		s.mu.RUnlock()
	}
	return fn(transactionView{&state})
}

// transactionView exposes a read-only state to rules and View callers.
type transactionView struct {
	*memoryState
}
