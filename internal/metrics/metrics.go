package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts events cache lookups by result (hit|miss|corrupt).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "universe_events_cache_lookups_total",
			Help: "Events cache lookups by result",
		},
		[]string{"result"},
	)

	// UpstreamFetches counts calls to the calendar API by result (success|failure).
	UpstreamFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "universe_upstream_fetches_total",
			Help: "Upstream calendar API fetches by result",
		},
		[]string{"result"},
	)

	// UpstreamLatency measures calendar API round trips.
	UpstreamLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "universe_upstream_fetch_seconds",
			Help:    "Upstream calendar API latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CacheWriteFailures counts blob writes that failed after a successful fetch.
	CacheWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "universe_events_cache_write_failures_total",
			Help: "Failed events cache writes",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "universe_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
