package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConnectionMetrics tracks client connections on the socket and HTTP surfaces.
type ConnectionMetrics struct {
	active *prometheus.GaugeVec
	total  *prometheus.CounterVec
	errors *prometheus.CounterVec
}

// NewConnectionMetrics creates and registers connection metrics with the provided registry.
func NewConnectionMetrics(namespace string, registry *prometheus.Registry) *ConnectionMetrics {
	cm := &ConnectionMetrics{
		active: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connections_active",
				Help:      "Client connections currently being served",
			},
			[]string{"transport"},
		),
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total client connections accepted",
			},
			[]string{"transport"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_errors_total",
				Help:      "Client connection I/O errors by stage",
			},
			[]string{"stage"},
		),
	}

	registry.MustRegister(cm.active, cm.total, cm.errors)
	return cm
}

// Opened records an accepted connection.
func (cm *ConnectionMetrics) Opened(transport string) {
	cm.total.WithLabelValues(transport).Inc()
	cm.active.WithLabelValues(transport).Inc()
}

// Closed records a finished connection.
func (cm *ConnectionMetrics) Closed(transport string) {
	cm.active.WithLabelValues(transport).Dec()
}

// RecordError records an I/O error.
func (cm *ConnectionMetrics) RecordError(stage string) {
	cm.errors.WithLabelValues(stage).Inc()
}
