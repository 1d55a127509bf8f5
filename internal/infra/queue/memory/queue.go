// Package memory is an in-process analysis queue backed by a buffered
// channel. Jobs do not survive a restart.
package memory

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"assetcore/pkg/domain"
)

// DefaultCapacity bounds the number of jobs waiting for a consumer.
const DefaultCapacity = 256

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("queue closed")

// Queue implements the analysis work queue in memory.
type Queue struct {
	jobs   chan domain.AnalysisJob
	logger logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets where handler failures are reported.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// New returns a queue holding at most capacity pending jobs. A capacity
// below one selects DefaultCapacity.
func New(capacity int, opts ...Option) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	q := &Queue{jobs: make(chan domain.AnalysisJob, capacity), logger: l, done: make(chan struct{})}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish enqueues job, blocking while the buffer is full.
func (q *Queue) Publish(ctx context.Context, job domain.AnalysisJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume hands jobs to handle until ctx is cancelled or the queue is
// closed. A failing job is logged and dropped.
func (q *Queue) Consume(ctx context.Context, handle func(context.Context, domain.AnalysisJob) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case job := <-q.jobs:
			if err := handle(ctx, job); err != nil {
				q.logger.WithFields(logrus.Fields{
					"analysis_id": job.AnalysisID,
					"asset_id":    job.AssetID,
				}).WithError(err).Warn("analysis job failed")
			}
		}
	}
}

// Len reports the number of jobs waiting.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Close stops consumers and rejects further publishes.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
