package flashcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/flashcache/codec"
	"github.com/unkn0wn-root/flashcache/internal/clock"
	"github.com/unkn0wn-root/flashcache/lock"
	pr "github.com/unkn0wn-root/flashcache/provider"
)

// Loader reads id from the durable store. found=false with a nil error means
// the entity does not exist.
type Loader[V any] func(ctx context.Context, id string) (v V, found bool, err error)

// Clock is the time source used for logical expiry.
type Clock = clock.Clock

type Strategy int

const (
	PassThrough Strategy = iota
	Mutex
	LogicalExpire
)

func (s Strategy) String() string {
	switch s {
	case PassThrough:
		return "pass_through"
	case Mutex:
		return "mutex"
	case LogicalExpire:
		return "logical_expire"
	default:
		return "unknown"
	}
}

// Store is the provider-agnostic cache-aside API for one entity kind.
// V is the caller's value type. Serialization is handled by a pluggable Codec[V].
type Store[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Get returns the cached value for id, calling load according to the
	// configured strategy. ttl 0 uses Options.DefaultTTL.
	Get(ctx context.Context, id string, load Loader[V], ttl time.Duration) (V, error)

	// Set writes v with a store TTL and no logical expiry.
	Set(ctx context.Context, id string, v V, ttl time.Duration) error
	// SetLogical writes v with logical expiry now+ttl and no store TTL.
	SetLogical(ctx context.Context, id string, v V, ttl time.Duration) error
	// Warm loads id and writes it with SetLogical. Absent ids return ErrNotFound.
	Warm(ctx context.Context, id string, load Loader[V], ttl time.Duration) error

	// Invalidate deletes the entry, or under LogicalExpire marks it expired.
	Invalidate(ctx context.Context, id string) error
	// Update runs write and, if it succeeds, invalidates id.
	Update(ctx context.Context, id string, write func(context.Context) error) error
}

// Options tune the behavior of a Store.
// Namespace, Kind, Provider and Codec are required; Mutex and LogicalExpire
// also need a Locker. Everything else has a default.
type Options[V any] struct {
	// Required
	Namespace string // e.g. "app:prod"
	Kind      string // entity kind, e.g. "shop"
	Provider  pr.Provider
	Codec     c.Codec[V]

	Strategy Strategy    // default PassThrough
	Locker   lock.Locker // rebuild lock

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
	Clock  Clock  // if nil, wall time

	DefaultTTL time.Duration // 0 => 30m
	NullTTL    time.Duration // absent marker lifetime; 0 => 2m
	LockTTL    time.Duration // 0 => 10s

	RetryAttempts int           // Mutex readers; 0 => 10
	RetryBase     time.Duration // first wait; 0 => 50ms
	RetryMax      time.Duration // cap per wait; 0 => 1s

	RebuildWorkers int           // LogicalExpire; 0 => 10
	RebuildQueue   int           // 0 => 256
	RebuildTimeout time.Duration // per refresh; 0 => 5s; must not exceed LockTTL

	Disabled bool // Get calls the loader directly; writes are no-ops
}

func New[V any](opts Options[V]) (Store[V], error) {
	return newStore[V](opts)
}
