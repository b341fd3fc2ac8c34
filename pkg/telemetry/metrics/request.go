package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks dispatches from request to reply.
type RequestMetrics struct {
	// Total dispatches by result
	dispatchesTotal *prometheus.CounterVec

	// Dispatch duration histogram
	dispatchDuration *prometheus.HistogramVec

	// Attempts per dispatch
	attempts prometheus.Histogram
}

// NewRequestMetrics creates and registers dispatch metrics with the provided registry.
func NewRequestMetrics(namespace string, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		dispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total number of chat requests dispatched, by reply kind",
			},
			[]string{"result"},
		),

		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of chat dispatches in seconds, backoff included",
				Buckets:   durationBuckets,
			},
			[]string{"result"},
		),

		attempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_attempts",
				Help:      "Number of upstream attempts per dispatch",
				Buckets:   []float64{0, 1, 2, 3, 4, 5, 10},
			},
		),
	}

	registry.MustRegister(
		rm.dispatchesTotal,
		rm.dispatchDuration,
		rm.attempts,
	)

	return rm
}

// RecordDispatch records metrics for a completed dispatch.
func (rm *RequestMetrics) RecordDispatch(result string, attempts int, duration time.Duration) {
	rm.dispatchesTotal.WithLabelValues(result).Inc()
	rm.dispatchDuration.WithLabelValues(result).Observe(duration.Seconds())
	rm.attempts.Observe(float64(attempts))
}
