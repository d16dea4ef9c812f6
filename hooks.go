package flashcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The store calls them on hot paths.
type Hooks interface {
	// An entry was deleted by the store on read.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// A Mutex reader exhausted its retry budget.
	LockBusy(storageKey string, attempts int)

	// A LogicalExpire reader was served an expired entry.
	StaleServed(storageKey string)

	// A refresh was not queued because the rebuild pool was full or closed.
	RebuildDropped(storageKey string)

	// A background refresh finished; err is nil on success.
	RebuildDone(storageKey string, err error, took time.Duration)

	// Invalidate could not reach the backend; the entry may stay stale until its TTL.
	InvalidateFailed(storageKey string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)                  {}
func (NopHooks) ProviderSetRejected(string)               {}
func (NopHooks) LockBusy(string, int)                     {}
func (NopHooks) StaleServed(string)                       {}
func (NopHooks) RebuildDropped(string)                    {}
func (NopHooks) RebuildDone(string, error, time.Duration) {}
func (NopHooks) InvalidateFailed(string, error)           {}
