// Package sloghooks logs store events through log/slog with optional
// sampling of the noisy ones and redaction of storage keys.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/flashcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	StaleEvery    uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	staleCtr    atomic.Uint64
}

var _ flashcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("flashcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("flashcache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) LockBusy(storageKey string, attempts int) {
	if h.l == nil {
		return
	}
	h.l.Warn("flashcache.lock_busy",
		"key", h.redact(storageKey),
		"attempts", attempts)
}

func (h *Hooks) StaleServed(storageKey string) {
	if h.l == nil || !sample(h.opts.StaleEvery, &h.staleCtr) {
		return
	}
	h.l.Debug("flashcache.stale_served",
		"key", h.redact(storageKey))
}

func (h *Hooks) RebuildDropped(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("flashcache.rebuild_dropped",
		"key", h.redact(storageKey))
}

func (h *Hooks) RebuildDone(storageKey string, err error, took time.Duration) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Warn("flashcache.rebuild_failed",
			"key", h.redact(storageKey),
			"took", took,
			"err", err)
		return
	}
	h.l.Debug("flashcache.rebuild_done",
		"key", h.redact(storageKey),
		"took", took)
}

func (h *Hooks) InvalidateFailed(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("flashcache.invalidate_failed",
		"key", h.redact(storageKey),
		"err", err)
}
