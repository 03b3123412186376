// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and path.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kirogw_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "path"},
	)

	// RequestDuration records HTTP request duration in seconds by method and path.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kirogw_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "path"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kirogw_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// UpstreamAttemptsTotal counts generation attempts against the provider
	// by outcome ("2xx", "timeout", or the HTTP status code).
	UpstreamAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kirogw_upstream_attempts_total",
			Help: "Upstream request attempts",
		},
		[]string{"status"},
	)

	// UpstreamLatency records provider call latency in seconds per target.
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kirogw_upstream_latency_seconds",
			Help:    "Upstream latency",
			Buckets: LLMBuckets,
		},
		[]string{"target"},
	)

	// TokenRefreshTotal counts credential refreshes by outcome.
	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kirogw_token_refresh_total",
			Help: "Credential refreshes",
		},
		[]string{"outcome"},
	)

	// TokensTotal counts tokens processed by direction (input/output).
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kirogw_tokens_total",
			Help: "Token count",
		},
		[]string{"model", "direction"},
	)

	// ParseSkipsTotal counts malformed upstream event payloads that were
	// skipped to keep a stream alive.
	ParseSkipsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kirogw_parse_skips_total",
			Help: "Skipped malformed events",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		UpstreamAttemptsTotal,
		UpstreamLatency,
		TokenRefreshTotal,
		TokensTotal,
		ParseSkipsTotal,
	)
}
