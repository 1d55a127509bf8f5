// Package redis keeps idempotency records in Redis so every API replica
// sees the same keys.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"assetcore/internal/infra/idempotency"
)

const keyPrefix = "assetcore:idempotency:"

// completeScript stores the finished record only while the reservation
// still exists, so a Release racing a Complete does not resurrect the key.
var completeScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// Store implements idempotency.Store on Redis.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
}

// New returns a store using client. A zero ttl selects DefaultTTL.
func New(client *goredis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

var _ idempotency.Store = (*Store)(nil)

// Begin implements idempotency.Store.
func (s *Store) Begin(ctx context.Context, key, fingerprint string) (*idempotency.Response, error) {
	pending, err := json.Marshal(idempotency.Record{Fingerprint: fingerprint})
	if err != nil {
		return nil, err
	}
	// A key can expire between SETNX and GET; one retry covers that.
	for range 2 {
		ok, err := s.client.SetNX(ctx, keyPrefix+key, pending, s.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, nil
		}
		raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec idempotency.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode idempotency record: %w", err)
		}
		return idempotency.Replay(rec, fingerprint)
	}
	return nil, idempotency.ErrInFlight
}

// Complete implements idempotency.Store.
func (s *Store) Complete(ctx context.Context, key string, resp idempotency.Response) error {
	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	var rec idempotency.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("decode idempotency record: %w", err)
	}
	rec.Done = true
	rec.Response = resp
	done, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return completeScript.Run(ctx, s.client, []string{keyPrefix + key}, done, s.ttl.Milliseconds()).Err()
}

// Release implements idempotency.Store.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}
