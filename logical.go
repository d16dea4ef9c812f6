package flashcache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/flashcache/internal/rebuild"
	"github.com/unkn0wn-root/flashcache/internal/wire"
)

// errLeaseExpired is reported for a refresh whose rebuild lock ran out while
// it sat in the queue. Another reader may already hold the lock again, so
// the task does nothing.
var errLeaseExpired = errors.New("flashcache: rebuild lock expired before the refresh ran")

// getLogical never calls the loader on the reader's goroutine. Expired
// entries are returned as-is and refreshed in the background.
func (s *store[V]) getLogical(ctx context.Context, id string, load Loader[V], ttl time.Duration) (V, error) {
	var zero V
	k := s.entryKey(id)

	e, ok, err := s.read(ctx, k)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrNotFound
	}

	expired := e.Expired(s.clock.Now())
	if expired {
		s.refresh(ctx, id, k, load, ttl)
	}
	if e.Absent() {
		return zero, ErrNotFound
	}
	v, ok := s.value(ctx, k, e)
	if !ok {
		return zero, ErrNotFound
	}
	if expired {
		s.hooks.StaleServed(k)
	}
	return v, nil
}

// refresh takes the rebuild lock without waiting and hands the reload to
// the pool. Failures are logged and never reach the reader.
func (s *store[V]) refresh(ctx context.Context, id, k string, load Loader[V], ttl time.Duration) {
	lk := s.lockKey(id)
	token, ok, err := s.locker.TryAcquire(ctx, lk, s.lockTTL)
	if err != nil {
		s.log.Warn("rebuild lock failed", Fields{"key": lk, "err": err})
		return
	}
	if !ok {
		return // someone else is rebuilding
	}

	// The lease runs from here, not from when a worker picks the task up.
	acquired := time.Now()
	task := func(ctx context.Context) error {
		defer s.release(ctx, lk, token)
		left := s.lockTTL - time.Since(acquired)
		if left <= 0 {
			return errors.Wrapf(errLeaseExpired, "%s: queued %s", k, time.Since(acquired))
		}
		ctx, cancel := context.WithTimeout(ctx, left)
		defer cancel()
		return s.reload(ctx, id, k, load, ttl)
	}
	if !s.pool.TrySubmit(k, task) {
		s.release(ctx, lk, token)
		s.hooks.RebuildDropped(k)
		s.log.Warn("rebuild dropped: pool full", Fields{"key": k})
	}
}

func (s *store[V]) reload(ctx context.Context, id, k string, load Loader[V], ttl time.Duration) error {
	// a refresh that finished just before we took the lock already did the work
	e, ok, err := s.read(ctx, k)
	if err != nil {
		return err
	}
	if ok && !e.Expired(s.clock.Now()) {
		return nil
	}

	v, found, err := load(ctx, id)
	if err != nil {
		return transient("load", k, err)
	}
	now := s.clock.Now()
	if !found {
		return s.write(ctx, k, wire.Encode(wire.Entry{Kind: wire.KindAbsent, ExpiresAt: now.Add(s.nullTTL)}), 0)
	}
	payload, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	return s.write(ctx, k, wire.Value(payload, now.Add(ttl)), 0)
}

func (s *store[V]) rebuildDone(r rebuild.Result) {
	if r.Err != nil {
		s.log.Warn("rebuild failed", Fields{"key": r.Key, "err": r.Err, "took": r.Duration})
	} else {
		s.log.Debug("rebuilt", Fields{"key": r.Key, "took": r.Duration})
	}
	s.hooks.RebuildDone(r.Key, r.Err, r.Duration)
}
