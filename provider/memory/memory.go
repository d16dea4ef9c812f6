// Package memory is an in-process Provider with per-entry TTLs.
// It suits tests and single-node tools; it is not shared across processes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/flashcache/internal/clock"
	pr "github.com/unkn0wn-root/flashcache/provider"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Provider struct {
	mu    sync.RWMutex
	m     map[string]entry
	clock clock.Clock
}

var _ pr.Provider = (*Provider)(nil)

// New returns an empty store. A nil clock uses wall time.
func New(c clock.Clock) *Provider {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Provider{m: make(map[string]entry), clock: c}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	e, ok := p.m[key]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && !p.clock.Now().Before(e.exp) {
		p.mu.Lock()
		if cur, ok := p.m[key]; ok && cur.exp.Equal(e.exp) {
			delete(p.m, key)
		}
		p.mu.Unlock()
		return nil, false, nil
	}
	out := make([]byte, len(e.v))
	copy(out, e.v)
	return out, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = p.clock.Now().Add(ttl)
	}
	v := make([]byte, len(value))
	copy(v, value)
	p.mu.Lock()
	p.m[key] = entry{v: v, exp: exp}
	p.mu.Unlock()
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

// TTL returns the remaining store TTL for key; 0 when the key has none or is missing.
func (p *Provider) TTL(key string) time.Duration {
	p.mu.RLock()
	e, ok := p.m[key]
	p.mu.RUnlock()
	if !ok || e.exp.IsZero() {
		return 0
	}
	return e.exp.Sub(p.clock.Now())
}

func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}

func (p *Provider) Close(context.Context) error { return nil }
