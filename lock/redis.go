package lock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only when it holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis keeps lock state in a shared Redis, visible to every process.
type Redis struct {
	rdb redis.UniversalClient
}

var _ Locker = (*Redis)(nil)

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{rdb: client}
}

func (l *Redis) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		return "", false, ErrInvalidTTL
	}
	token := newToken()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, errors.Wrapf(err, "lock: setnx %s", key)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *Redis) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Int64()
	if err != nil {
		return false, errors.Wrapf(err, "lock: release %s", key)
	}
	return n == 1, nil
}
