package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks calls to the generation endpoint.
type UpstreamMetrics struct {
	// Attempts by classified outcome
	attempts *prometheus.CounterVec

	// Attempt latency histogram
	latency *prometheus.HistogramVec

	// Responses by HTTP status code
	responses *prometheus.CounterVec

	// Upstream health (1=healthy, 0=unhealthy)
	health prometheus.Gauge
}

// NewUpstreamMetrics creates and registers upstream metrics with the provided registry.
func NewUpstreamMetrics(namespace string, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_attempts_total",
				Help:      "Total number of upstream attempts by outcome",
			},
			[]string{"outcome"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_attempt_duration_seconds",
				Help:      "Upstream attempt latency in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"outcome"},
		),

		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_responses_total",
				Help:      "Upstream responses by HTTP status code",
			},
			[]string{"code"},
		),

		health: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_healthy",
				Help:      "Upstream health status (1=healthy, 0=unhealthy)",
			},
		),
	}

	um.health.Set(1)

	registry.MustRegister(
		um.attempts,
		um.latency,
		um.responses,
		um.health,
	)

	return um
}

// RecordAttempt records one attempt.
func (um *UpstreamMetrics) RecordAttempt(outcome string, status int, duration time.Duration) {
	um.attempts.WithLabelValues(outcome).Inc()
	um.latency.WithLabelValues(outcome).Observe(duration.Seconds())
	if status != 0 {
		um.responses.WithLabelValues(statusLabel(status)).Inc()
	}
}

// UpdateHealth sets the health gauge.
func (um *UpstreamMetrics) UpdateHealth(healthy bool) {
	if healthy {
		um.health.Set(1)
	} else {
		um.health.Set(0)
	}
}
