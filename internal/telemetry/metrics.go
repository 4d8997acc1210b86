package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across the gateway surface.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "omnisql",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

var RateLimitDenialsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "omnisql",
		Subsystem: "ratelimit",
		Name:      "denials_total",
		Help:      "Total number of rate-limit consume calls that were denied.",
	},
	[]string{"tenant", "connector"},
)

var CacheHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "omnisql",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total number of cache lookups that returned data.",
	},
	[]string{"tenant", "connector"},
)

var CacheMissesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "omnisql",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total number of cache lookups that returned nothing.",
	},
	[]string{"tenant", "connector"},
)

var ConnectorFetchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "omnisql",
		Subsystem: "connector",
		Name:      "fetch_duration_seconds",
		Help:      "Per-connector upstream fetch duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"connector", "outcome"},
)

var DAGWaveDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "omnisql",
		Subsystem: "executor",
		Name:      "wave_duration_seconds",
		Help:      "Per-wave DAG execution duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"wave"},
)

// All returns all gateway-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		RateLimitDenialsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		ConnectorFetchDuration,
		DAGWaveDuration,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional service-specific
// collectors passed as arguments.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
