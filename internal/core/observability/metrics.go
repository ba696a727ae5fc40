// Package observability records Prometheus metrics for resolutions, upstream fetches and the cache.
package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	upstreamLatencySeconds     *prometheus.HistogramVec
	cacheResults               *prometheus.CounterVec
	cacheOpDurationSeconds     *prometheus.HistogramVec
	branchFailures             *prometheus.CounterVec
	invalidations              *prometheus.CounterVec
}

var active atomic.Pointer[metricSet]

// Init registers the collectors on reg. With enabled=false every recorder is a no-op.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		active.Store(nil)
		return
	}
	ms := &metricSet{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
			},
			[]string{"method", "route", "status"},
		),
		upstreamLatencySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_latency_seconds",
				Help:    "Latency of OGC API document fetches in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"document", "outcome"},
		),
		cacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capabilities_cache_results_total",
				Help: "Capabilities cache lookups by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		),
		cacheOpDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cache_op_duration_seconds",
				Help:    "Latency of shared cache operations in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"op", "result"},
		),
		branchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolution_branch_failures_total",
				Help: "Fan-out branches dropped during a resolution, by kind.",
			},
			[]string{"kind"},
		),
		invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_invalidations_total",
				Help: "Capabilities cache invalidations by scope and outcome.",
			},
			[]string{"scope", "outcome"},
		),
	}
	reg.MustRegister(
		ms.httpRequestsTotal,
		ms.httpRequestDurationSeconds,
		ms.upstreamLatencySeconds,
		ms.cacheResults,
		ms.cacheOpDurationSeconds,
		ms.branchFailures,
		ms.invalidations,
	)
	active.Store(ms)
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	ms := active.Load()
	if ms == nil {
		return
	}
	st := strconv.Itoa(status)
	ms.httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	ms.httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstream(document string, err error, durationSeconds float64) {
	ms := active.Load()
	if ms == nil {
		return
	}
	ms.upstreamLatencySeconds.WithLabelValues(document, outcome(err)).Observe(durationSeconds)
}

// ObserveCache records a cache lookup; outcome is one of hit, miss, expired, error.
func ObserveCache(tier, outcome string) {
	ms := active.Load()
	if ms == nil {
		return
	}
	ms.cacheResults.WithLabelValues(tier, outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	ms := active.Load()
	if ms == nil {
		return
	}
	ms.cacheOpDurationSeconds.WithLabelValues(op, outcome(err)).Observe(durationSeconds)
}

func IncBranchFailure(kind string) {
	ms := active.Load()
	if ms == nil {
		return
	}
	ms.branchFailures.WithLabelValues(kind).Inc()
}

func ObserveInvalidation(scope string, err error) {
	ms := active.Load()
	if ms == nil {
		return
	}
	ms.invalidations.WithLabelValues(scope, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
