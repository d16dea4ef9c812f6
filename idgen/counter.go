package idgen

import "context"

// Counter is a shared, atomically incremented sequence per key.
// Use LocalCounter in a single process, RedisCounter across processes.
type Counter interface {
	// Incr atomically increments key and returns the new value (first call => 1).
	Incr(ctx context.Context, key string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
