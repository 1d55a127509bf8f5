// Package core implements the asset service: lifecycle transitions, the
// movement ledger, custody handover, bulk mutation, stocktake coordination,
// identifier resolution, draft capture and the image analysis boundary. Every
// mutating operation runs as one store transaction.
package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"assetcore/internal/blob"
	"assetcore/internal/infra/persistence/memory"
	"assetcore/pkg/domain"

	"github.com/sirupsen/logrus"
)

// BlobStore is the subset of blob.Store the service writes images to.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error)
}

// AnalysisQueue hands analysis jobs to the asynchronous collaborator.
type AnalysisQueue interface {
	Publish(ctx context.Context, job domain.AnalysisJob) error
}

// Service exposes the transactional asset operations.
type Service struct {
	store      domain.PersistentStore
	clock      Clock
	logger     logrus.FieldLogger
	metrics    MetricsRecorder
	tracer     Tracer
	blobs      BlobStore
	queue      AnalysisQueue
	codePrefix string
	baseURL    string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock. NewInMemoryService also hands it to
// the store so transaction timestamps follow it.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the per-operation metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the span factory.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithBlobStore sets where attached images are written.
func WithBlobStore(store BlobStore) Option {
	return func(s *Service) { s.blobs = store }
}

// WithAnalysisQueue sets the queue analysis jobs are published to.
func WithAnalysisQueue(q AnalysisQueue) Option {
	return func(s *Service) { s.queue = q }
}

// WithCodePrefix sets the prefix of generated permanent codes.
func WithCodePrefix(prefix string) Option {
	return func(s *Service) {
		if p := strings.ToUpper(strings.TrimSpace(prefix)); p != "" {
			s.codePrefix = p
		}
	}
}

// WithBaseURL sets the base of detail-page locators printed on labels.
func WithBaseURL(base string) Option {
	return func(s *Service) { s.baseURL = strings.TrimRight(base, "/") }
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:      store,
		clock:      systemClock{},
		logger:     discardLogger(),
		metrics:    noopMetrics{},
		tracer:     noopTracer{},
		codePrefix: domain.DefaultCodePrefix,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	probe := NewService(nil, opts...)
	store := memory.NewStore(engine, memory.WithClock(func() time.Time { return probe.clock.Now().UTC() }))
	probe.store = store
	return probe
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// run executes fn in one transaction and reports the outcome to the logger,
// the metrics recorder and the tracer.
func (s *Service) run(ctx context.Context, op string, fields logrus.Fields, fn func(tx domain.Transaction) error) (domain.Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	s.observe(ctx, op, fields, started, err)
	span.End(err)
	return res, err
}

func (s *Service) observe(ctx context.Context, op string, fields logrus.Fields, started time.Time, err error) {
	elapsed := time.Since(started)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	entry := s.logger.WithField("operation", op).WithField("duration_ms", elapsed.Milliseconds())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	switch {
	case err == nil:
		entry.Debug("operation completed")
	case isRejection(err):
		entry.WithError(err).Warn("operation rejected")
	default:
		entry.WithError(err).Error("operation failed")
	}
}

func (s *Service) view(ctx context.Context, fn func(domain.TransactionView) error) error {
	return s.store.View(ctx, fn)
}

var rejectionKinds = []error{
	domain.ErrInvalidTransition,
	domain.ErrIncompleteForActivation,
	domain.ErrInvalidLedgerAction,
	domain.ErrFutureDatedAction,
	domain.ErrDuplicateOpenAssignment,
	domain.ErrSessionAlreadyOpen,
	domain.ErrNotInExpectedSet,
	domain.ErrIneligible,
	domain.ErrNotFound,
	domain.ErrLedgerImmutable,
	domain.ErrDuplicateCode,
	domain.ErrSessionClosed,
	domain.ErrInvalidInput,
	domain.ErrConcurrentUpdate,
}

// isRejection reports whether err is a caller-facing validation outcome
// rather than an infrastructure failure.
func isRejection(err error) bool {
	for _, kind := range rejectionKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	var rv domain.RuleViolationError
	return errors.As(err, &rv)
}

func findAsset(v domain.TransactionView, id string) (domain.Asset, error) {
	a, ok := v.FindAsset(id)
	if !ok {
		return domain.Asset{}, domain.NotFoundError{Entity: domain.EntityAsset, ID: id}
	}
	return a, nil
}

func findSession(v domain.TransactionView, id string) (domain.StocktakeSession, error) {
	sess, ok := v.FindSession(id)
	if !ok {
		return domain.StocktakeSession{}, domain.NotFoundError{Entity: domain.EntityStocktakeSession, ID: id}
	}
	return sess, nil
}

func requireLocation(v domain.TransactionView, id string) error {
	if id == "" {
		return nil
	}
	if _, ok := v.FindLocation(id); !ok {
		return domain.NotFoundError{Entity: domain.EntityLocation, ID: id}
	}
	return nil
}
