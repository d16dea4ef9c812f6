package idgen

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	n         uint64
	updatedAt time.Time
}

// LocalCounter keeps sequences in-process. Ids are unique only among
// generators sharing the same LocalCounter.
// An optional cleanup loop drops keys idle for longer than retention; day
// keys stop being touched once the day is over.
type LocalCounter struct {
	mu      sync.Mutex
	entries map[string]localEntry
	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

var _ Counter = (*LocalCounter)(nil)

func NewLocalCounter(cleanupInterval, retention time.Duration) *LocalCounter {
	c := &LocalCounter{entries: make(map[string]localEntry)}
	if cleanupInterval > 0 && retention > 0 {
		c.ticker = time.NewTicker(cleanupInterval)
		c.stopCh = make(chan struct{})
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-c.ticker.C:
					c.Cleanup(retention)
				case <-c.stopCh:
					return
				}
			}
		}()
	}
	return c
}

func (c *LocalCounter) Incr(_ context.Context, key string) (uint64, error) {
	now := time.Now()
	c.mu.Lock()
	e := c.entries[key]
	e.n++
	e.updatedAt = now
	c.entries[key] = e
	c.mu.Unlock()
	return e.n, nil
}

func (c *LocalCounter) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	c.mu.Lock()
	for k, e := range c.entries {
		if e.updatedAt.Before(cutoff) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

func (c *LocalCounter) Close(context.Context) error {
	c.once.Do(func() {
		if c.stopCh != nil {
			c.ticker.Stop()
			close(c.stopCh)
			c.wg.Wait()
		}
	})
	return nil
}
