package flashcache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	c "github.com/unkn0wn-root/flashcache/codec"
	"github.com/unkn0wn-root/flashcache/internal/clock"
	"github.com/unkn0wn-root/flashcache/internal/keys"
	"github.com/unkn0wn-root/flashcache/internal/rebuild"
	"github.com/unkn0wn-root/flashcache/internal/wire"
	"github.com/unkn0wn-root/flashcache/lock"
	pr "github.com/unkn0wn-root/flashcache/provider"
)

type store[V any] struct {
	ns       string
	kind     string
	strategy Strategy
	provider pr.Provider
	codec    c.Codec[V]
	locker   lock.Locker
	log      Logger
	hooks    Hooks
	clock    Clock
	enabled  bool

	defaultTTL time.Duration
	nullTTL    time.Duration
	lockTTL    time.Duration
	retry      lock.Backoff

	pool *rebuild.Pool // LogicalExpire only
}

func newStore[V any](opts Options[V]) (*store[V], error) {
	if opts.Namespace == "" {
		return nil, errors.New("flashcache: namespace is required")
	}
	if opts.Kind == "" {
		return nil, errors.New("flashcache: kind is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("flashcache: provider is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("flashcache: codec is required")
	}
	switch opts.Strategy {
	case PassThrough:
	case Mutex, LogicalExpire:
		if opts.Locker == nil {
			return nil, errors.Newf("flashcache: %s strategy requires a locker", opts.Strategy)
		}
	default:
		return nil, errors.Newf("flashcache: unknown strategy %d", int(opts.Strategy))
	}

	s := &store[V]{
		ns:       opts.Namespace,
		kind:     opts.Kind,
		strategy: opts.Strategy,
		provider: opts.Provider,
		codec:    opts.Codec,
		locker:   opts.Locker,
		enabled:  !opts.Disabled,
	}

	// defaults
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.clock = coalesce[Clock](opts.Clock, clock.NewRealClock())
	s.defaultTTL = coalesce(opts.DefaultTTL, defaultTTL)
	s.nullTTL = coalesce(opts.NullTTL, defaultNullTTL)
	s.lockTTL = coalesce(opts.LockTTL, defaultLockTTL)
	s.retry = lock.Backoff{
		Attempts: coalesce(opts.RetryAttempts, defaultRetryAttempts),
		Base:     coalesce(opts.RetryBase, defaultRetryBase),
		Max:      coalesce(opts.RetryMax, defaultRetryMax),
	}

	if s.strategy == LogicalExpire {
		// a refresh must finish while it still owns the rebuild lock
		timeout := coalesce(opts.RebuildTimeout, defaultRebuildTimeout)
		if timeout > s.lockTTL {
			return nil, errors.Newf("flashcache: rebuild timeout %s exceeds lock ttl %s", timeout, s.lockTTL)
		}
		if s.enabled {
			s.pool = rebuild.New(
				coalesce(opts.RebuildWorkers, defaultRebuildWorkers),
				coalesce(opts.RebuildQueue, defaultRebuildQueue),
				timeout,
				s.rebuildDone,
			)
		}
	}
	return s, nil
}

func (s *store[V]) Enabled() bool { return s.enabled }

func (s *store[V]) Close(ctx context.Context) error {
	// drain refreshes before the provider goes away
	if s.pool != nil {
		s.pool.Close()
	}
	if s.provider != nil {
		return s.provider.Close(ctx)
	}
	return nil
}

func (s *store[V]) Get(ctx context.Context, id string, load Loader[V], ttl time.Duration) (V, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if !s.enabled {
		return s.loadDirect(ctx, id, load)
	}
	switch s.strategy {
	case Mutex:
		return s.getMutex(ctx, id, load, ttl)
	case LogicalExpire:
		return s.getLogical(ctx, id, load, ttl)
	default:
		return s.getPassThrough(ctx, id, load, ttl)
	}
}

func (s *store[V]) Set(ctx context.Context, id string, v V, ttl time.Duration) error {
	if !s.enabled {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	payload, err := s.codec.Encode(v)
	if err != nil {
		return errors.Wrap(err, "flashcache: encode")
	}
	return s.write(ctx, s.entryKey(id), wire.Value(payload, time.Time{}), ttl)
}

func (s *store[V]) SetLogical(ctx context.Context, id string, v V, ttl time.Duration) error {
	if !s.enabled {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	payload, err := s.codec.Encode(v)
	if err != nil {
		return errors.Wrap(err, "flashcache: encode")
	}
	return s.write(ctx, s.entryKey(id), wire.Value(payload, s.clock.Now().Add(ttl)), 0)
}

func (s *store[V]) Warm(ctx context.Context, id string, load Loader[V], ttl time.Duration) error {
	if !s.enabled {
		return nil
	}
	v, found, err := load(ctx, id)
	if err != nil {
		return transient("load", s.entryKey(id), err)
	}
	if !found {
		return errors.Wrapf(ErrNotFound, "warm %s", id)
	}
	return s.SetLogical(ctx, id, v, ttl)
}

func (s *store[V]) Invalidate(ctx context.Context, id string) error {
	if !s.enabled {
		return nil
	}
	k := s.entryKey(id)
	var err error
	if s.strategy == LogicalExpire {
		err = s.expire(ctx, k)
	} else if derr := s.provider.Del(ctx, k); derr != nil {
		err = transient("del", k, derr)
	}
	if err != nil {
		s.hooks.InvalidateFailed(k, err)
		s.log.Error("invalidate failed", Fields{"key": k, "err": err})
		return err
	}
	s.log.Debug("invalidated", Fields{"key": k})
	return nil
}

func (s *store[V]) Update(ctx context.Context, id string, write func(context.Context) error) error {
	if err := write(ctx); err != nil {
		return err
	}
	return s.Invalidate(ctx, id)
}

// expire rewrites a logical entry with its expiry at now so the next reader
// schedules a refresh. The stale payload stays servable meanwhile.
func (s *store[V]) expire(ctx context.Context, k string) error {
	e, ok, err := s.read(ctx, k)
	if err != nil || !ok {
		return err
	}
	e.ExpiresAt = s.clock.Now()
	return s.write(ctx, k, wire.Encode(e), 0)
}

func (s *store[V]) loadDirect(ctx context.Context, id string, load Loader[V]) (V, error) {
	var zero V
	v, found, err := load(ctx, id)
	if err != nil {
		return zero, transient("load", s.entryKey(id), err)
	}
	if !found {
		return zero, ErrNotFound
	}
	return v, nil
}

// read fetches and decodes an entry. Corrupt entries are deleted and reported
// as a miss.
func (s *store[V]) read(ctx context.Context, k string) (wire.Entry, bool, error) {
	raw, ok, err := s.provider.Get(ctx, k)
	if err != nil {
		return wire.Entry{}, false, transient("get", k, err)
	}
	if !ok {
		return wire.Entry{}, false, nil
	}
	e, err := wire.Decode(raw)
	if err != nil {
		s.heal(ctx, k, "corrupt")
		return wire.Entry{}, false, nil
	}
	return e, true, nil
}

// value decodes the payload of a value entry; ok=false means it was unreadable
// and has been deleted.
func (s *store[V]) value(ctx context.Context, k string, e wire.Entry) (V, bool) {
	v, err := s.codec.Decode(e.Payload)
	if err != nil {
		s.heal(ctx, k, "value_decode")
		var zero V
		return zero, false
	}
	return v, true
}

// cached answers from the cache if it can: done=true with either a value or
// ErrNotFound for an absent marker. Logical expiry is ignored.
func (s *store[V]) cached(ctx context.Context, k string) (v V, done bool, err error) {
	e, ok, err := s.read(ctx, k)
	if err != nil || !ok {
		return v, false, err
	}
	if e.Absent() {
		return v, true, ErrNotFound
	}
	v, ok = s.value(ctx, k, e)
	return v, ok, nil
}

// fill calls the loader and caches what it returns: the value for ttl or an
// absent marker for nullTTL. A failed cache write is logged; the loaded
// result is still returned.
func (s *store[V]) fill(ctx context.Context, id, k string, load Loader[V], ttl time.Duration) (V, error) {
	var zero V
	v, found, err := load(ctx, id)
	if err != nil {
		return zero, transient("load", k, err)
	}
	if !found {
		if werr := s.write(ctx, k, wire.Absent(), s.nullTTL); werr != nil {
			s.log.Warn("absent marker not cached", Fields{"key": k, "err": werr})
		}
		return zero, ErrNotFound
	}
	payload, err := s.codec.Encode(v)
	if err != nil {
		return zero, errors.Wrap(err, "flashcache: encode")
	}
	if werr := s.write(ctx, k, wire.Value(payload, time.Time{}), ttl); werr != nil {
		s.log.Warn("loaded value not cached", Fields{"key": k, "err": werr})
	}
	return v, nil
}

func (s *store[V]) write(ctx context.Context, k string, b []byte, ttl time.Duration) error {
	ok, err := s.provider.Set(ctx, k, b, 1, ttl)
	if err != nil {
		return transient("set", k, err)
	}
	if !ok {
		s.hooks.ProviderSetRejected(k)
		s.log.Debug("set rejected by provider (pressure)", Fields{"key": k})
	}
	return nil
}

func (s *store[V]) heal(ctx context.Context, k, reason string) {
	s.hooks.SelfHeal(k, reason)
	if err := s.provider.Del(ctx, k); err != nil {
		s.log.Warn("self-heal delete failed", Fields{"key": k, "reason": reason, "err": err})
	}
}

func (s *store[V]) entryKey(id string) string { return keys.Entry(s.ns, s.kind, id) }
func (s *store[V]) lockKey(id string) string  { return keys.Lock(s.ns, s.kind, id) }

// release frees a rebuild lock even when ctx is already cancelled.
func (s *store[V]) release(ctx context.Context, lk, token string) {
	ok, err := s.locker.Release(context.WithoutCancel(ctx), lk, token)
	switch {
	case err != nil:
		s.log.Warn("lock release failed", Fields{"key": lk, "err": err})
	case !ok:
		s.log.Warn("lock expired before release", Fields{"key": lk, "ttl": s.lockTTL})
	}
}
