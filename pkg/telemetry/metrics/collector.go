package metrics

import (
	"strconv"
	"time"

	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// durationBuckets covers sub-second upstream calls up to a fully backed-off
// dispatch (1+2+4+8 seconds of sleep plus attempts).
var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}

// Collector owns the relay's Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	requestMetrics    *RequestMetrics
	upstreamMetrics   *UpstreamMetrics
	connectionMetrics *ConnectionMetrics

	profileReloads *prometheus.CounterVec
	profileVersion prometheus.Gauge
}

// NewCollector creates the collector and registers its metrics. If registry
// is nil a fresh registry is created. It returns nil when metrics are disabled.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if !cfg.IsEnabled() {
		return nil
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}

	c := &Collector{
		registry:          registry,
		requestMetrics:    NewRequestMetrics(namespace, registry),
		upstreamMetrics:   NewUpstreamMetrics(namespace, registry),
		connectionMetrics: NewConnectionMetrics(namespace, registry),

		profileReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "profile_reloads_total",
				Help:      "Profile reload attempts by result",
			},
			[]string{"result"},
		),
		profileVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "profile_version",
				Help:      "Version of the active profile snapshot",
			},
		),
	}
	registry.MustRegister(c.profileReloads, c.profileVersion)

	return c
}

// RecordDispatch records a finished dispatch.
//
// Parameters:
//   - result: reply kind ("ok", "empty_message", "upstream_error", ...)
//   - attempts: number of upstream attempts made (0 for validation failures)
//   - duration: total dispatch duration including backoff
func (c *Collector) RecordDispatch(result string, attempts int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requestMetrics.RecordDispatch(result, attempts, duration)
}

// RecordAttempt records one upstream attempt.
//
// Parameters:
//   - outcome: "success", "retryable", "terminal" or "transport"
//   - status: HTTP status code, 0 when no response was received
//   - duration: attempt latency
func (c *Collector) RecordAttempt(outcome string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.upstreamMetrics.RecordAttempt(outcome, status, duration)
}

// UpdateUpstreamHealth sets the upstream health gauge.
func (c *Collector) UpdateUpstreamHealth(healthy bool) {
	if c == nil {
		return
	}
	c.upstreamMetrics.UpdateHealth(healthy)
}

// ConnectionOpened records an accepted client connection.
func (c *Collector) ConnectionOpened(transport string) {
	if c == nil {
		return
	}
	c.connectionMetrics.Opened(transport)
}

// ConnectionClosed records a finished client connection.
func (c *Collector) ConnectionClosed(transport string) {
	if c == nil {
		return
	}
	c.connectionMetrics.Closed(transport)
}

// RecordConnectionError records an I/O failure on a client connection.
// stage is "accept", "read" or "write".
func (c *Collector) RecordConnectionError(stage string) {
	if c == nil {
		return
	}
	c.connectionMetrics.RecordError(stage)
}

// RecordProfileReload records a profile reload attempt.
func (c *Collector) RecordProfileReload(err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.profileReloads.WithLabelValues(result).Inc()
}

// SetProfileVersion records the active profile version.
func (c *Collector) SetProfileVersion(version uint64) {
	if c == nil {
		return
	}
	c.profileVersion.Set(float64(version))
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func statusLabel(status int) string {
	if status == 0 {
		return "none"
	}
	return strconv.Itoa(status)
}
