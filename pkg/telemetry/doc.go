// Package telemetry groups the relay's observability packages.
//
// # Components
//
//   - logging: slog construction, request and connection ids, secret redaction
//   - metrics: Prometheus collectors for dispatches, upstream attempts,
//     connections and profile reloads
//   - tracing: OpenTelemetry spans for dispatches and upstream attempts,
//     exported over OTLP/gRPC
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json", Redact: true})
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	tracer, err := tracing.New(cfg.Telemetry.Tracing, version)
//
//	checker := health.New(0)
//	checker.RegisterCheck("upstream", client.HealthCheck)
//
// Every collector and tracer method is safe to call on a nil receiver, so
// components accept them as optional dependencies.
//
// # Redaction
//
// The upstream API key travels in the request URL by default. Log records
// mask it by exact value, by attribute name (api_key, token, authorization)
// and by pattern (key= query parameters, AIza... keys, bearer tokens).
package telemetry
