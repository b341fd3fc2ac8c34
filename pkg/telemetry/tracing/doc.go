// Package tracing provides OpenTelemetry tracing for the relay.
//
// When tracing is enabled spans are exported over OTLP/gRPC. Otherwise the
// tracer is a noop and span creation costs next to nothing, so callers never
// branch on whether tracing is on:
//
//	ctx, span := tracer.Start(ctx, "relay.dispatch")
//	defer span.End()
//
// # Spans
//
//   - relay.dispatch: one per chat request, from validation to reply
//   - relay.upstream.attempt: one per upstream call, child of relay.dispatch
//
// Incoming HTTP requests carrying a W3C traceparent header continue the
// caller's trace (see HTTPMiddleware).
package tracing
