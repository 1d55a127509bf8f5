// Package redis carries analysis jobs over a Redis list. Publishers LPUSH
// JSON encoded jobs and consumers BRPOP them; jobs whose handler fails are
// moved to a dead-letter list for inspection.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"assetcore/pkg/domain"
)

// DefaultKey is the list analysis jobs are pushed to.
const DefaultKey = "assetcore:analysis:jobs"

const (
	deadSuffix   = ":dead"
	popTimeout   = time.Second
	retryBackoff = 500 * time.Millisecond
)

// Config locates the Redis server and list.
type Config struct {
	Addr     string `yaml:"addr" validate:"required,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Key      string `yaml:"key"`
}

// Queue implements the analysis work queue on a Redis list.
type Queue struct {
	client *goredis.Client
	key    string
	owned  bool
	logger logrus.FieldLogger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets where consumer failures are reported.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// New wraps an existing client. The caller keeps ownership of client.
func New(client *goredis.Client, key string, opts ...Option) *Queue {
	if key == "" {
		key = DefaultKey
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	q := &Queue{client: client, key: key, logger: l}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Dial connects to cfg.Addr and verifies the server answers.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Queue, error) {
	client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	q := New(client, cfg.Key, opts...)
	q.owned = true
	return q, nil
}

// Key returns the list name.
func (q *Queue) Key() string { return q.key }

// DeadLetterKey returns the list failed jobs are moved to.
func (q *Queue) DeadLetterKey() string { return q.key + deadSuffix }

// Publish pushes job onto the list.
func (q *Queue) Publish(ctx context.Context, job domain.AnalysisJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode analysis job: %w", err)
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Consume pops jobs in publish order until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, handle func(context.Context, domain.AnalysisJob) error) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
		switch {
		case errors.Is(err, goredis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			q.logger.WithError(err).Warn("analysis queue pop failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryBackoff):
			}
			continue
		}
		// res is [key, value].
		payload := res[1]
		var job domain.AnalysisJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			q.bury(ctx, payload, err)
			continue
		}
		if err := handle(ctx, job); err != nil {
			q.bury(ctx, payload, err)
		}
	}
}

func (q *Queue) bury(ctx context.Context, payload string, cause error) {
	entry := q.logger.WithField("queue", q.key).WithError(cause)
	if err := q.client.LPush(context.WithoutCancel(ctx), q.DeadLetterKey(), payload).Err(); err != nil {
		entry.WithField("dead_letter_error", err.Error()).Error("analysis job lost")
		return
	}
	entry.Warn("analysis job moved to dead letter list")
}

// Close releases the client when Dial created it.
func (q *Queue) Close() error {
	if q.owned {
		return q.client.Close()
	}
	return nil
}
