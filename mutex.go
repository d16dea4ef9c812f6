package flashcache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// getMutex lets one caller per key run the loader. The others back off and
// re-read until the winner has filled the entry or the budget is spent.
func (s *store[V]) getMutex(ctx context.Context, id string, load Loader[V], ttl time.Duration) (V, error) {
	var zero V
	k, lk := s.entryKey(id), s.lockKey(id)

	for attempt := 0; ; attempt++ {
		if v, done, err := s.cached(ctx, k); done || err != nil {
			return v, err
		}

		token, ok, err := s.locker.TryAcquire(ctx, lk, s.lockTTL)
		if err != nil {
			return zero, transient("lock", lk, err)
		}
		if ok {
			return s.fillLocked(ctx, id, k, lk, token, load, ttl)
		}

		if attempt+1 >= s.retry.Attempts {
			s.hooks.LockBusy(k, attempt+1)
			return zero, errors.Wrapf(ErrBusy, "%s: lock held after %d attempts", k, attempt+1)
		}
		if err := wait(ctx, s.retry.Delay(attempt)); err != nil {
			return zero, err
		}
	}
}

func (s *store[V]) fillLocked(ctx context.Context, id, k, lk, token string, load Loader[V], ttl time.Duration) (V, error) {
	defer s.release(ctx, lk, token)

	// the previous holder may have filled the entry between our miss and our acquire
	if v, done, err := s.cached(ctx, k); done || err != nil {
		return v, err
	}
	return s.fill(ctx, id, k, load, ttl)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
