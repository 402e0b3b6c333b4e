// Package cache stores reconciliation reports in Redis for a short TTL.
//
// Report keys look like recon:{batch}:{kind}:{fingerprint}. Every key is
// also recorded in the set recon:{batch}:keys so a batch can be invalidated
// without scanning the keyspace.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "actarchive/pkg/domain"
	"actarchive/pkg/platform/circuit"
)

const keyPrefix = "recon:"

// DefaultTTL bounds how stale a cached report can be.
const DefaultTTL = 30 * time.Second

// ErrUnavailable is returned without touching Redis while the breaker is open.
var ErrUnavailable = errors.New("report cache unavailable")

// Redis is a JSON report cache.
type Redis struct {
	client  redis.Cmdable
	ttl     time.Duration
	breaker *circuit.Breaker
}

type Option func(*Redis)

// WithBreaker stops report reads and writes from waiting on a Redis that
// keeps failing.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Redis) {
		c.breaker = b
	}
}

// New builds a cache on client. ttl <= 0 selects DefaultTTL.
func New(client redis.Cmdable, ttl time.Duration, opts ...Option) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Redis{client: client, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Redis) allow() bool {
	return c.breaker == nil || c.breaker.Allow()
}

func (c *Redis) record(err error) {
	if c.breaker == nil {
		return
	}
	if err != nil {
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}

// Key builds the cache key for one report.
func Key(batchID id.BatchID, kind, fingerprint string) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, batchID, kind, fingerprint)
}

func indexKey(batchID id.BatchID) string {
	return keyPrefix + batchID.String() + ":keys"
}

// Get decodes the cached value at key into dst. A miss returns false, nil.
func (c *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	if !c.allow() {
		return false, ErrUnavailable
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(nil)
		return false, nil
	}
	c.record(err)
	if err != nil {
		return false, fmt.Errorf("get cached report: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached report: %w", err)
	}
	return true, nil
}

// Set stores v under key and records key in the batch index.
func (c *Redis) Set(ctx context.Context, batchID id.BatchID, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if !c.allow() {
		return ErrUnavailable
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, c.ttl)
		pipe.SAdd(ctx, indexKey(batchID), key)
		pipe.Expire(ctx, indexKey(batchID), c.ttl)
		return nil
	})
	c.record(err)
	if err != nil {
		return fmt.Errorf("store cached report: %w", err)
	}
	return nil
}

// InvalidateBatch drops every cached report for batchID.
func (c *Redis) InvalidateBatch(ctx context.Context, batchID id.BatchID) error {
	idx := indexKey(batchID)
	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("list cached reports: %w", err)
	}
	keys = append(keys, idx)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cached reports: %w", err)
	}
	return nil
}
