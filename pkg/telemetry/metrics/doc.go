// Package metrics provides Prometheus metrics for the relay.
//
// # Metrics
//
//   - relay_dispatches_total{result}: finished dispatches by reply kind
//   - relay_dispatch_duration_seconds{result}: wall time of a dispatch, backoff included
//   - relay_dispatch_attempts: upstream attempts per dispatch
//   - relay_upstream_attempts_total{outcome}: attempts by classified outcome
//   - relay_upstream_attempt_duration_seconds{outcome}: per-attempt latency
//   - relay_upstream_responses_total{code}: upstream HTTP status codes
//   - relay_upstream_healthy: 1 while the upstream is considered healthy
//   - relay_connections_active{transport}, relay_connections_total{transport}
//   - relay_connection_errors_total{stage}: read/write failures on client connections
//   - relay_profile_reloads_total{result}, relay_profile_version
//
// # Usage
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	collector.RecordAttempt("retryable", 503, 120*time.Millisecond)
//	mux.Handle("/metrics", collector.Handler())
//
// Every recording method is safe to call on a nil *Collector, which records
// nothing. Components take an optional collector without checking for nil.
package metrics
