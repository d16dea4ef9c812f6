// Package asynchook moves hook calls off the store's goroutines.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	    StaleEvery:    100,
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	shops, _ := flashcache.New[Shop](flashcache.Options[Shop]{
//	    Namespace: "app:prod",
//	    Kind:      "shop",
//	    Provider:  provider,
//	    Codec:     codec.JSON[Shop]{},
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/flashcache"
)

// Hooks queues events for inner and drops them when the queue is full.
type Hooks struct {
	inner   flashcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ flashcache.Hooks = (*Hooks)(nil)

func New(inner flashcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string)         { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string) { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) LockBusy(k string, n int)     { h.try(func() { h.inner.LockBusy(k, n) }) }
func (h *Hooks) StaleServed(k string)         { h.try(func() { h.inner.StaleServed(k) }) }
func (h *Hooks) RebuildDropped(k string)      { h.try(func() { h.inner.RebuildDropped(k) }) }
func (h *Hooks) InvalidateFailed(k string, err error) {
	h.try(func() { h.inner.InvalidateFailed(k, err) })
}
func (h *Hooks) RebuildDone(k string, err error, took time.Duration) {
	h.try(func() { h.inner.RebuildDone(k, err, took) })
}
