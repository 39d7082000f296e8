// Package observability holds the Prometheus collectors used on the request path.
package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	tileRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_requests_total",
			Help: "Tile requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Tile cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	capabilitiesFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capabilities_fetch_total",
			Help: "WMTS GetCapabilities fetches by outcome.",
		},
		[]string{"outcome"},
	)

	projectionStrategies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projection_strategy_total",
			Help: "Projection resolution attempts by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	invalidationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Admin invalidation events by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	hotKeys = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hotness_tracked_keys",
			Help: "Number of keys held by the hotness tracker.",
		},
		[]string{"tier"},
	)

	cacheOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Duration of shared cache operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	tileCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tile_cache_entries",
			Help: "Entries held by the in-process tile cache.",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		tileRequests,
		cacheResults,
		capabilitiesFetches,
		projectionStrategies,
		invalidationEvents,
		hotKeys,
		cacheOpSeconds,
		tileCacheEntries,
	}
}

var initOnce sync.Once

// Init registers the collectors with reg. Collectors keep counting when
// metrics are disabled; they are just not exported.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	initOnce.Do(func() {
		for _, c := range collectors() {
			reg.MustRegister(c)
		}
	})
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func IncTileOutcome(endpoint, outcome string) {
	tileRequests.WithLabelValues(endpoint, outcome).Inc()
}

func IncCacheHit(tier string) {
	cacheResults.WithLabelValues(tier, "hit").Inc()
}

func IncCacheMiss(tier string) {
	cacheResults.WithLabelValues(tier, "miss").Inc()
}

func IncCapabilitiesFetch(outcome string) {
	capabilitiesFetches.WithLabelValues(outcome).Inc()
}

func IncProjectionStrategy(strategy, outcome string) {
	projectionStrategies.WithLabelValues(strategy, outcome).Inc()
}

func IncInvalidation(op, outcome string) {
	invalidationEvents.WithLabelValues(op, outcome).Inc()
}

func SetHotKeysGauge(tier string, n int) {
	hotKeys.WithLabelValues(tier).Set(float64(n))
}

func SetTileCacheEntries(n int) {
	tileCacheEntries.Set(float64(n))
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}
