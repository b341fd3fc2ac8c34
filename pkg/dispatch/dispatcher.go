package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/profile"
	"mercator-hq/relay/pkg/retry"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/upstream"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Generator performs a single upstream attempt.
// *upstream.Client implements it.
type Generator interface {
	Generate(ctx context.Context, req upstream.ChatRequest) upstream.Outcome
}

// Options configures a Dispatcher. The zero value is usable.
type Options struct {
	// Policy decides retries. Nil uses retry.DefaultPolicy().
	Policy *retry.Policy

	// Profile supplies the system context. Nil sends no system context.
	Profile *profile.Store

	// Limits bounds message length. Zero uses the defaults.
	Limits config.LimitsConfig

	// Metrics is optional.
	Metrics *metrics.Collector

	// Tracer is optional.
	Tracer *tracing.Tracer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Dispatcher runs dispatches. It holds no per-request state and is safe
// for concurrent use.
type Dispatcher struct {
	gen      Generator
	policy   *retry.Policy
	store    *profile.Store
	maxChars int
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	logger   *slog.Logger

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// attemptState tracks the attempt loop of one dispatch.
type attemptState struct {
	index int
	max   int
}

// New creates a Dispatcher that calls gen.
func New(gen Generator, opts Options) *Dispatcher {
	policy := opts.Policy
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	maxChars := opts.Limits.MaxMessageChars
	if maxChars <= 0 {
		maxChars = config.DefaultMaxMessageChars
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		gen:      gen,
		policy:   policy,
		store:    opts.Profile,
		maxChars: maxChars,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		logger:   logger,
		sleep:    retry.Sleep,
	}
}

// Handle dispatches one raw request line. Framing errors become BadRequest.
func (d *Dispatcher) Handle(ctx context.Context, raw string) Reply {
	reply, _ := d.handle(ctx, raw)
	return reply
}

// HandleLine dispatches one raw request line and returns the encoded reply
// line in the request's framing.
func (d *Dispatcher) HandleLine(ctx context.Context, raw string) []byte {
	reply, framing := d.handle(ctx, raw)
	return EncodeReply(reply, framing)
}

func (d *Dispatcher) handle(ctx context.Context, raw string) (Reply, Framing) {
	msg, framing, err := DecodeRequest(raw)
	if err != nil {
		d.logger.DebugContext(ctx, "rejected malformed request", "error", err)
		reply := Failure(BadRequest)
		d.metrics.RecordDispatch(reply.Kind.String(), 0, 0)
		return reply, framing
	}
	return d.HandleMessage(ctx, msg), framing
}

// HandleMessage dispatches an already decoded message.
func (d *Dispatcher) HandleMessage(ctx context.Context, message string) (reply Reply) {
	start := time.Now()
	state := attemptState{max: d.policy.MaxAttempts}

	ctx, span := d.tracer.Start(ctx, "relay.dispatch")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "dispatch panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			span.SetStatus(codes.Error, "panic")
			reply = Failure(InternalError)
		}

		tracing.SetDispatchAttributes(span, reply.Kind.String(), state.index)
		d.metrics.RecordDispatch(reply.Kind.String(), state.index, time.Since(start))
	}()

	text := strings.TrimSpace(message)
	span.SetAttributes(attribute.Int(tracing.AttrMessageChars, utf8.RuneCountInString(text)))

	if kind := d.validate(text); kind != KindNone {
		d.logger.DebugContext(ctx, "rejected request", "reason", kind.String())
		return Failure(kind)
	}

	// One snapshot per dispatch; every attempt sends the same context.
	req := upstream.ChatRequest{Text: text}
	if d.store != nil {
		snap := d.store.Load()
		req.SystemContext = snap.SystemContext()
		span.SetAttributes(attribute.Int64(tracing.AttrProfile, int64(snap.Version)))
	}

	return d.attempt(ctx, req, &state, start)
}

func (d *Dispatcher) validate(text string) ErrorKind {
	if text == "" {
		return EmptyMessage
	}
	if utf8.RuneCountInString(text) > d.maxChars {
		return MessageTooLong
	}
	return KindNone
}

// attempt runs the attempt loop. state.index ends as the number of
// attempts made.
func (d *Dispatcher) attempt(ctx context.Context, req upstream.ChatRequest, state *attemptState, start time.Time) Reply {
	for {
		o := d.generate(ctx, req, state.index)
		i := state.index
		state.index++

		if o.OK() {
			if o.Degraded {
				d.logger.WarnContext(ctx, "upstream reply could not be read",
					"attempt", i+1,
					"body_bytes", o.BodyBytes,
				)
			}
			d.logger.InfoContext(ctx, "dispatch completed",
				"attempts", state.index,
				"degraded", o.Degraded,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return Success(o.Text)
		}

		if !d.policy.ShouldRetry(o, i) {
			d.logger.WarnContext(ctx, "dispatch failed",
				"attempts", state.index,
				"max_attempts", state.max,
				"outcome", o.Kind.String(),
				"status", o.StatusCode,
				"reason", o.Reason,
				"snippet", o.Snippet,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return Failure(UpstreamError)
		}

		delay := d.policy.DelayFor(i)
		d.logger.InfoContext(ctx, "retrying upstream",
			"attempt", i+1,
			"outcome", o.Kind.String(),
			"status", o.StatusCode,
			"backoff_ms", delay.Milliseconds(),
		)
		if err := d.sleep(ctx, delay); err != nil {
			d.logger.WarnContext(ctx, "dispatch cancelled during backoff",
				"attempts", state.index,
				"error", err,
			)
			return Failure(UpstreamError)
		}
	}
}

func (d *Dispatcher) generate(ctx context.Context, req upstream.ChatRequest, index int) upstream.Outcome {
	ctx, span := d.tracer.Start(ctx, "relay.upstream.attempt")
	defer span.End()

	o := d.gen.Generate(ctx, req)

	tracing.SetAttemptAttributes(span, index, o.Kind.String(), o.StatusCode, o.Degraded)
	if !o.OK() {
		span.SetStatus(codes.Error, o.Kind.String())
	}
	d.metrics.RecordAttempt(o.Kind.String(), o.StatusCode, o.Duration)
	return o
}
