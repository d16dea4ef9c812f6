package flashcache

import "time"

const (
	defaultTTL            = 30 * time.Minute
	defaultNullTTL        = 2 * time.Minute
	defaultLockTTL        = 10 * time.Second
	defaultRetryAttempts  = 10
	defaultRetryBase      = 50 * time.Millisecond
	defaultRetryMax       = time.Second
	defaultRebuildWorkers = 10
	defaultRebuildQueue   = 256
	defaultRebuildTimeout = 5 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
