// Package pubsub carries analysis jobs over Google Cloud Pub/Sub. The topic
// and subscription are created on first use when missing.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"assetcore/pkg/domain"
)

const ackDeadline = 20 * time.Second

// Config names the project, topic and subscription. CredentialsJSON is
// optional; without it Application Default Credentials are used and
// PUBSUB_EMULATOR_HOST is honoured by the client library.
type Config struct {
	ProjectID       string `yaml:"project_id" validate:"required"`
	TopicID         string `yaml:"topic" validate:"required"`
	SubscriptionID  string `yaml:"subscription"`
	CredentialsJSON string `yaml:"credentials_json"`
}

// Queue implements the analysis work queue on a Pub/Sub topic.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
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

// New binds a queue to topicID on an existing client, creating the topic
// when it does not exist. subscriptionID may be empty for publish-only use.
func New(ctx context.Context, client *pubsub.Client, topicID, subscriptionID string, opts ...Option) (*Queue, error) {
	topic, err := createTopicIfNotExists(ctx, client, topicID)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	q := &Queue{client: client, topic: topic, logger: l}
	for _, opt := range opts {
		opt(q)
	}
	if subscriptionID != "" {
		sub, err := createSubscriptionIfNotExists(ctx, client, subscriptionID, topic)
		if err != nil {
			topic.Stop()
			return nil, err
		}
		q.sub = sub
	}
	return q, nil
}

// Dial creates a client for cfg and binds a queue to it.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Queue, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	var clientOpts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	q, err := New(ctx, client, cfg.TopicID, cfg.SubscriptionID, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	q.owned = true
	return q, nil
}

func createTopicIfNotExists(ctx context.Context, c *pubsub.Client, id string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if id == "" {
		return nil, errors.New("topic is required")
	}
	t := c.Topic(id)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic exists: %w", err)
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", id, err)
	}
	return t, nil
}

func createSubscriptionIfNotExists(ctx context.Context, c *pubsub.Client, id string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := c.Subscription(id)
	ok, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription exists: %w", err)
	}
	if ok {
		return sub, nil
	}
	sub, err = c.CreateSubscription(ctx, id, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: ackDeadline,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %q: %w", id, err)
	}
	return sub, nil
}

// Publish sends job and waits for the server to acknowledge it.
func (q *Queue) Publish(ctx context.Context, job domain.AnalysisJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode analysis job: %w", err)
	}
	res := q.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"analysis_id": job.AnalysisID,
			"asset_id":    job.AssetID,
		},
	})
	_, err = res.Get(ctx)
	return err
}

// Consume receives jobs until ctx is cancelled. Successful jobs are acked;
// failed ones are nacked for redelivery. Undecodable messages are acked so
// they do not loop forever.
func (q *Queue) Consume(ctx context.Context, handle func(context.Context, domain.AnalysisJob) error) error {
	if q.sub == nil {
		return errors.New("pubsub queue has no subscription")
	}
	return q.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		var job domain.AnalysisJob
		if err := json.Unmarshal(m.Data, &job); err != nil {
			q.logger.WithField("message_id", m.ID).WithError(err).Error("dropping undecodable analysis job")
			m.Ack()
			return
		}
		if err := handle(ctx, job); err != nil {
			q.logger.WithFields(logrus.Fields{
				"message_id":  m.ID,
				"analysis_id": job.AnalysisID,
			}).WithError(err).Warn("analysis job failed, nacking")
			m.Nack()
			return
		}
		m.Ack()
	})
}

// Close flushes pending publishes and releases the client when Dial
// created it.
func (q *Queue) Close() error {
	q.topic.Stop()
	if q.owned {
		return q.client.Close()
	}
	return nil
}
