package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the orchestra_* metric vectors recorded by the
// Tracker and the Analysis Cache.
type Collector struct {
	providerActiveTasks    *prometheus.GaugeVec
	providerCompletedTotal *prometheus.CounterVec
	providerFailedTotal    *prometheus.CounterVec
	providerTokensTotal    *prometheus.CounterVec
	providerLatency        *prometheus.HistogramVec

	cacheHitsTotal      *prometheus.CounterVec
	cacheMissesTotal    *prometheus.CounterVec
	cacheEvictionsTotal *prometheus.CounterVec
	cacheEntries        prometheus.Gauge
}

// NewCollector registers the orchestra metric vectors under namespace
// (typically "orchestra") using promauto, which panics on duplicate
// registration; callers should construct exactly one Collector per
// process.
func NewCollector(namespace string) *Collector {
	return &Collector{
		providerActiveTasks: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_active_tasks",
				Help:      "Number of tasks currently in flight per provider.",
			},
			[]string{"provider"},
		),
		providerCompletedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_completed_total",
				Help:      "Total tasks completed successfully per provider.",
			},
			[]string{"provider"},
		),
		providerFailedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_failed_total",
				Help:      "Total tasks that failed per provider.",
			},
			[]string{"provider"},
		),
		providerTokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_tokens_total",
				Help:      "Total tokens consumed per provider.",
			},
			[]string{"provider"},
		),
		providerLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_completion_seconds",
				Help:      "Task completion latency per provider.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
		cacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total analysis cache hits per kind.",
			},
			[]string{"kind"},
		),
		cacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total analysis cache misses per kind.",
			},
			[]string{"kind"},
		),
		cacheEvictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Total analysis cache entries evicted by TTL sweep, per kind.",
			},
			[]string{"kind"},
		),
		cacheEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Current number of live analysis cache entries.",
			},
		),
	}
}

// SetActiveTasks records the current in-flight task count for provider.
func (c *Collector) SetActiveTasks(provider string, n int) {
	c.providerActiveTasks.WithLabelValues(provider).Set(float64(n))
}

// RecordCompletion records a successful task completion and its
// latency for provider.
func (c *Collector) RecordCompletion(provider string, tokens int, latency time.Duration) {
	c.providerCompletedTotal.WithLabelValues(provider).Inc()
	c.providerTokensTotal.WithLabelValues(provider).Add(float64(tokens))
	c.providerLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordFailure records a failed task for provider.
func (c *Collector) RecordFailure(provider string) {
	c.providerFailedTotal.WithLabelValues(provider).Inc()
}

// RecordCacheHit records an Analysis Cache hit for kind ("ast" or
// "analysis").
func (c *Collector) RecordCacheHit(kind string) {
	c.cacheHitsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records an Analysis Cache miss for kind.
func (c *Collector) RecordCacheMiss(kind string) {
	c.cacheMissesTotal.WithLabelValues(kind).Inc()
}

// RecordCacheEviction records a TTL-sweep eviction for kind.
func (c *Collector) RecordCacheEviction(kind string) {
	c.cacheEvictionsTotal.WithLabelValues(kind).Inc()
}

// SetCacheEntries records the current total live entry count.
func (c *Collector) SetCacheEntries(n int) {
	c.cacheEntries.Set(float64(n))
}
