// Package queue selects the analysis work queue driver.
package queue

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"assetcore/internal/infra/queue/memory"
	pubsubq "assetcore/internal/infra/queue/pubsub"
	redisq "assetcore/internal/infra/queue/redis"
	"assetcore/pkg/domain"
)

// Driver names a queue implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
	DriverPubSub Driver = "pubsub"
)

// Queue publishes analysis jobs and hands them to a consumer.
type Queue interface {
	Publish(ctx context.Context, job domain.AnalysisJob) error
	Consume(ctx context.Context, handle func(context.Context, domain.AnalysisJob) error) error
	Close() error
}

// Config selects and parameterises a driver.
type Config struct {
	Driver   Driver         `yaml:"driver" validate:"omitempty,oneof=memory redis pubsub"`
	Capacity int            `yaml:"capacity" validate:"gte=0"`
	Redis    redisq.Config  `yaml:"redis" validate:"-"`
	PubSub   pubsubq.Config `yaml:"pubsub" validate:"-"`
}

// Open builds the queue described by cfg. An empty driver means memory.
func Open(ctx context.Context, cfg Config, logger logrus.FieldLogger) (Queue, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(cfg.Capacity, memory.WithLogger(logger)), nil
	case DriverRedis:
		return redisq.Dial(ctx, cfg.Redis, redisq.WithLogger(logger))
	case DriverPubSub:
		return pubsubq.Dial(ctx, cfg.PubSub, pubsubq.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
