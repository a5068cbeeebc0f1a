// Package metrics provides Prometheus instrumentation for Kestrel.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DecisionsRecordedTotal counts recorded decisions by threat level.
	DecisionsRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "decisions_recorded_total",
			Help:      "Total transaction decisions recorded by threat level.",
		},
		[]string{"threat_level"},
	)

	// PatternsDetectedTotal counts pattern detections by type.
	PatternsDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "patterns_detected_total",
			Help:      "Total pattern detections by pattern type.",
		},
		[]string{"pattern_type"},
	)

	// SignalsRaisedTotal counts risk signals raised.
	SignalsRaisedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "signals_raised_total",
			Help:      "Total risk signals raised for HIGH or CRITICAL decisions.",
		},
	)

	// AdaptationsTotal counts sensitivity adaptations by direction.
	AdaptationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "adaptations_total",
			Help:      "Total sensitivity adaptations by direction.",
		},
		[]string{"direction"},
	)

	// ResilienceScore tracks the current resilience score.
	ResilienceScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kestrel",
			Name:      "resilience_score",
			Help:      "Current resilience score in [0,100].",
		},
	)

	// ActiveSignals tracks currently unresolved risk signals.
	ActiveSignals = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kestrel",
			Name:      "active_signals",
			Help:      "Number of currently unresolved risk signals.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsRecordedTotal,
		PatternsDetectedTotal,
		SignalsRaisedTotal,
		AdaptationsTotal,
		ResilienceScore,
		ActiveSignals,
	)
}

// Handler returns the Prometheus metrics HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StatusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func StatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
