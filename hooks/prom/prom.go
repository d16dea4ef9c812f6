// Package promhooks exports store and purchase events as Prometheus metrics.
package promhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/seckill"
)

// Metrics holds the collectors. Storage keys are never used as labels.
type Metrics struct {
	SelfHeals             *prometheus.CounterVec
	SetRejected           prometheus.Counter
	LockBusyTotal         prometheus.Counter
	StaleServedTotal      prometheus.Counter
	RebuildsDropped       prometheus.Counter
	Rebuilds              *prometheus.CounterVec
	RebuildLatency        prometheus.Histogram
	InvalidateFailedTotal prometheus.Counter

	Purchases       *prometheus.CounterVec
	PurchaseLatency prometheus.Histogram
}

var (
	_ flashcache.Hooks = (*Metrics)(nil)
	_ seckill.Observer = (*Metrics)(nil)
)

// New registers the collectors with reg under namespace. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		SelfHeals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_self_heals_total",
			Help:      "Entries deleted on read because they could not be decoded",
		}, []string{"reason"}),
		SetRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_set_rejected_total",
			Help:      "Writes dropped by the provider under pressure",
		}),
		LockBusyTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lock_busy_total",
			Help:      "Mutex reads that gave up waiting for a rebuild",
		}),
		StaleServedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stale_served_total",
			Help:      "Logically expired entries returned to readers",
		}),
		RebuildsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_rebuilds_dropped_total",
			Help:      "Background refreshes not queued because the pool was full",
		}),
		Rebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_rebuilds_total",
			Help:      "Finished background refreshes by result",
		}, []string{"result"}),
		RebuildLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_rebuild_latency_seconds",
			Help:      "Background refresh duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		InvalidateFailedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidate_failed_total",
			Help:      "Invalidations that could not reach the backend",
		}),
		Purchases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seckill_purchases_total",
			Help:      "Purchase attempts by outcome",
		}, []string{"status"}),
		PurchaseLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "seckill_purchase_latency_seconds",
			Help:      "Purchase latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
}

func (m *Metrics) SelfHeal(_ string, reason string) { m.SelfHeals.WithLabelValues(reason).Inc() }
func (m *Metrics) ProviderSetRejected(string)       { m.SetRejected.Inc() }
func (m *Metrics) LockBusy(string, int)             { m.LockBusyTotal.Inc() }
func (m *Metrics) StaleServed(string)               { m.StaleServedTotal.Inc() }
func (m *Metrics) RebuildDropped(string)            { m.RebuildsDropped.Inc() }
func (m *Metrics) InvalidateFailed(string, error)   { m.InvalidateFailedTotal.Inc() }

func (m *Metrics) RebuildDone(_ string, err error, took time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Rebuilds.WithLabelValues(result).Inc()
	m.RebuildLatency.Observe(took.Seconds())
}

func (m *Metrics) Observe(s seckill.Status, took time.Duration) {
	m.Purchases.WithLabelValues(s.String()).Inc()
	m.PurchaseLatency.Observe(took.Seconds())
}
