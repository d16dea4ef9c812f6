package idgen

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultCounterTTL keeps a day key alive a full day past its own day so
// late callers near midnight still hit the same counter.
const DefaultCounterTTL = 48 * time.Hour

// RedisCounter shares sequences across processes via INCR.
type RedisCounter struct {
	rdb redis.UniversalClient
	ttl time.Duration // 0 => keys never expire
}

var _ Counter = (*RedisCounter)(nil)

func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{rdb: client, ttl: DefaultCounterTTL}
}

// NewRedisCounterWithTTL sets the expiry refreshed on every Incr; ttl <= 0 disables it.
func NewRedisCounterWithTTL(client redis.UniversalClient, ttl time.Duration) *RedisCounter {
	return &RedisCounter{rdb: client, ttl: ttl}
}

// Incr pipelines INCR + EXPIRE in one round-trip when a ttl is set.
func (c *RedisCounter) Incr(ctx context.Context, key string) (uint64, error) {
	if c.ttl <= 0 {
		v, err := c.rdb.Incr(ctx, key).Uint64()
		if err != nil {
			return 0, errors.Wrapf(err, "idgen: incr %s", key)
		}
		return v, nil
	}

	var incr *redis.IntCmd
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "idgen: incr %s", key)
	}
	return uint64(incr.Val()), nil
}

// Close does not close the shared client.
func (c *RedisCounter) Close(context.Context) error { return nil }
