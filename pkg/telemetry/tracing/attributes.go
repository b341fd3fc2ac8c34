package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Custom keys use the "relay." namespace.
const (
	AttrTransport     = "relay.transport"
	AttrFraming       = "relay.framing"
	AttrMessageChars  = "relay.message.chars"
	AttrReplyKind     = "relay.reply.kind"
	AttrAttempts      = "relay.attempts"
	AttrAttemptIndex  = "relay.attempt.index"
	AttrOutcome       = "relay.upstream.outcome"
	AttrStatusCode    = "http.response.status_code"
	AttrDegraded      = "relay.upstream.degraded"
	AttrBackoffMs     = "relay.backoff_ms"
	AttrProfile       = "relay.profile.version"
	AttrUpstreamModel = "relay.upstream.model"
)

// SetAttemptAttributes records the result of an upstream attempt on span.
func SetAttemptAttributes(span trace.Span, index int, outcome string, status int, degraded bool) {
	span.SetAttributes(
		attribute.Int(AttrAttemptIndex, index),
		attribute.String(AttrOutcome, outcome),
		attribute.Int(AttrStatusCode, status),
		attribute.Bool(AttrDegraded, degraded),
	)
}

// SetDispatchAttributes records how a dispatch ended on span.
func SetDispatchAttributes(span trace.Span, replyKind string, attempts int) {
	span.SetAttributes(
		attribute.String(AttrReplyKind, replyKind),
		attribute.Int(AttrAttempts, attempts),
	)
}

// AddEvent adds an event to the span with the given name and attributes.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
