package flashcache

import (
	"context"
	"time"
)

func (s *store[V]) getPassThrough(ctx context.Context, id string, load Loader[V], ttl time.Duration) (V, error) {
	k := s.entryKey(id)
	if v, done, err := s.cached(ctx, k); done || err != nil {
		return v, err
	}
	return s.fill(ctx, id, k, load, ttl)
}
