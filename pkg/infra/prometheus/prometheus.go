package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Latency buckets in milliseconds (similar to Kong's approach)
	latencyBuckets = []float64{
		5, 10, 25, // Fast responses (5-25ms)
		50, 100, 250, // Normal responses (50-250ms)
		500, 1000, 2500, // Slower responses (500ms-2.5s)
		5000, 10000, 30000, // Very slow/timeout (5s-30s)
	}

	GuardRequestTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardgate_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"method", "status"},
	)

	GuardDecisionTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "wardgate_decisions_total",
			Help: "Admission decisions by outcome",
		},
		[]string{"outcome"},
	)

	GuardRequestLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wardgate_latency_ms",
			Help:    "Request latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"type"}, // type can be "total" or "upstream"
	)

	GuardConnections = promauto.With(registerer).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wardgate_connections",
			Help: "Number of active connections",
		},
		[]string{"state"},
	)

	GuardAttackMode = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "wardgate_attack_mode",
			Help: "Whether attack mode is currently active (1 or 0)",
		},
	)

	GuardUpstreamErrorsTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "wardgate_upstream_errors_total",
			Help: "Total number of failed upstream requests",
		},
	)
)

type MetricsConfig struct {
	EnableLatency         bool // Basic latency metrics
	EnableUpstreamLatency bool // Upstream latency (extra histogram series)
	EnableConnections     bool // Connection tracking (can impact performance)
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		EnableLatency:         true,  // Basic latency is usually safe
		EnableUpstreamLatency: false, // Disabled by default
		EnableConnections:     false, // Disabled by default (performance impact)
	}
}

var Config MetricsConfig

func Initialize(cfg MetricsConfig) {
	Config = cfg
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
}
