package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/profile"
	"mercator-hq/relay/pkg/retry"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/upstream"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// scriptedGenerator returns outcomes in order, repeating the last one.
type scriptedGenerator struct {
	mu       sync.Mutex
	outcomes []upstream.Outcome
	calls    atomic.Int32
	requests []upstream.ChatRequest
	onCall   func(n int)
}

func (g *scriptedGenerator) Generate(_ context.Context, req upstream.ChatRequest) upstream.Outcome {
	n := int(g.calls.Add(1))
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.onCall != nil {
		g.onCall(n)
	}
	i := n - 1
	if i >= len(g.outcomes) {
		i = len(g.outcomes) - 1
	}
	return g.outcomes[i]
}

func ok(text string) upstream.Outcome {
	return upstream.Outcome{Kind: upstream.Success, Text: text, StatusCode: 200}
}

func status(code int) upstream.Outcome {
	kind := upstream.TerminalFailure
	if code == 429 || code >= 500 {
		kind = upstream.RetryableFailure
	}
	return upstream.Outcome{Kind: kind, StatusCode: code}
}

func fastPolicy(maxAttempts int) *retry.Policy {
	return &retry.Policy{MaxAttempts: maxAttempts, BaseDelay: time.Millisecond}
}

func newTestDispatcher(gen Generator, opts Options) *Dispatcher {
	if opts.Policy == nil {
		opts.Policy = fastPolicy(5)
	}
	return New(gen, opts)
}

func TestHandle_Validation(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind ErrorKind
	}{
		{"empty", "", EmptyMessage},
		{"whitespace", "  \t ", EmptyMessage},
		{"json empty", `{"message": "   "}`, EmptyMessage},
		{"too long", strings.Repeat("a", 501), MessageTooLong},
		{"too long multibyte", strings.Repeat("é", 501), MessageTooLong},
		{"json too long", `{"message":"` + strings.Repeat("b", 501) + `"}`, MessageTooLong},
		{"malformed json", `{"message": "hi"`, BadRequest},
		{"missing message", `{"text": "hi"}`, BadRequest},
		{"non-string message", `{"message": 42}`, BadRequest},
		{"null message", `{"message": null}`, BadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{outcomes: []upstream.Outcome{ok("unused")}}
			d := newTestDispatcher(gen, Options{})

			reply := d.Handle(context.Background(), tt.raw)
			if reply.OK() {
				t.Fatalf("expected failure, got reply %q", reply.Text)
			}
			if reply.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", reply.Kind, tt.wantKind)
			}
			if reply.Detail != tt.wantKind.Message() {
				t.Errorf("detail = %q, want %q", reply.Detail, tt.wantKind.Message())
			}
			if n := gen.calls.Load(); n != 0 {
				t.Errorf("expected no upstream calls, got %d", n)
			}
		})
	}
}

func TestHandle_ValidLengths(t *testing.T) {
	for _, n := range []int{1, 250, 500} {
		t.Run(fmt.Sprintf("%d chars", n), func(t *testing.T) {
			gen := &scriptedGenerator{outcomes: []upstream.Outcome{ok("fine")}}
			d := newTestDispatcher(gen, Options{})

			msg := "  " + strings.Repeat("x", n) + "\n"
			reply := d.Handle(context.Background(), msg)
			if !reply.OK() {
				t.Fatalf("expected success, got %v", reply.Kind)
			}
			if gen.requests[0].Text != strings.Repeat("x", n) {
				t.Error("message was not trimmed before sending")
			}
		})
	}
}

func TestHandle_CustomLimit(t *testing.T) {
	gen := &scriptedGenerator{outcomes: []upstream.Outcome{ok("fine")}}
	d := newTestDispatcher(gen, Options{Limits: config.LimitsConfig{MaxMessageChars: 5}})

	if reply := d.Handle(context.Background(), "123456"); reply.Kind != MessageTooLong {
		t.Errorf("kind = %v, want MessageTooLong", reply.Kind)
	}
	if reply := d.Handle(context.Background(), "12345"); !reply.OK() {
		t.Errorf("kind = %v, want success", reply.Kind)
	}
}

func TestHandle_RetryScenarios(t *testing.T) {
	tests := []struct {
		name      string
		outcomes  []upstream.Outcome
		wantOK    bool
		wantText  string
		wantCalls int32
	}{
		{
			name:      "success first try",
			outcomes:  []upstream.Outcome{ok("hello")},
			wantOK:    true,
			wantText:  "hello",
			wantCalls: 1,
		},
		{
			name:      "429 twice then 200",
			outcomes:  []upstream.Outcome{status(429), status(429), ok("third time")},
			wantOK:    true,
			wantText:  "third time",
			wantCalls: 3,
		},
		{
			name:      "always 500",
			outcomes:  []upstream.Outcome{status(500)},
			wantCalls: 5,
		},
		{
			name:      "403 is terminal",
			outcomes:  []upstream.Outcome{status(403), ok("never")},
			wantCalls: 1,
		},
		{
			name: "transport failures are retried",
			outcomes: []upstream.Outcome{
				{Kind: upstream.TransportFailure, Reason: "timeout"},
				ok("recovered"),
			},
			wantOK:    true,
			wantText:  "recovered",
			wantCalls: 2,
		},
		{
			name:      "retryable then terminal",
			outcomes:  []upstream.Outcome{status(503), status(400)},
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{outcomes: tt.outcomes}
			d := newTestDispatcher(gen, Options{})

			reply := d.Handle(context.Background(), "hi")
			if reply.OK() != tt.wantOK {
				t.Fatalf("OK() = %v, want %v (kind %v)", reply.OK(), tt.wantOK, reply.Kind)
			}
			if tt.wantOK && reply.Text != tt.wantText {
				t.Errorf("text = %q, want %q", reply.Text, tt.wantText)
			}
			if !tt.wantOK && reply.Kind != UpstreamError {
				t.Errorf("kind = %v, want UpstreamError", reply.Kind)
			}
			if n := gen.calls.Load(); n != tt.wantCalls {
				t.Errorf("calls = %d, want %d", n, tt.wantCalls)
			}
		})
	}
}

func TestHandle_BackoffDelays(t *testing.T) {
	gen := &scriptedGenerator{outcomes: []upstream.Outcome{status(500)}}
	policy := (&retry.Policy{MaxAttempts: 4, BaseDelay: time.Second, Jitter: 500 * time.Millisecond}).
		WithJitterSource(func(n int64) int64 { return n - 1 })
	d := newTestDispatcher(gen, Options{Policy: policy})

	var delays []time.Duration
	d.sleep = func(_ context.Context, delay time.Duration) error {
		delays = append(delays, delay)
		return nil
	}

	d.Handle(context.Background(), "hi")

	if len(delays) != 3 {
		t.Fatalf("expected 3 sleeps for 4 attempts, got %d", len(delays))
	}
	for i, delay := range delays {
		low := time.Duration(1<<i) * time.Second
		if delay < low || delay >= low+500*time.Millisecond {
			t.Errorf("delay %d = %v, want in [%v, %v)", i, delay, low, low+500*time.Millisecond)
		}
	}
}

func TestHandle_CancelledDuringBackoff(t *testing.T) {
	gen := &scriptedGenerator{outcomes: []upstream.Outcome{status(503)}}
	d := newTestDispatcher(gen, Options{Policy: &retry.Policy{MaxAttempts: 5, BaseDelay: time.Hour}})

	ctx, cancel := context.WithCancel(context.Background())
	gen.onCall = func(int) { cancel() }

	done := make(chan Reply, 1)
	go func() { done <- d.Handle(ctx, "hi") }()

	select {
	case reply := <-done:
		if reply.Kind != UpstreamError {
			t.Errorf("kind = %v, want UpstreamError", reply.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not stop after cancellation")
	}
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(context.Context, upstream.ChatRequest) upstream.Outcome {
	panic("boom")
}

func TestHandle_PanicBecomesInternalError(t *testing.T) {
	d := newTestDispatcher(panickingGenerator{}, Options{})

	reply := d.Handle(context.Background(), "hi")
	if reply.Kind != InternalError {
		t.Fatalf("kind = %v, want InternalError", reply.Kind)
	}
	if reply.Detail != "Server error occurred" {
		t.Errorf("detail = %q", reply.Detail)
	}
}

func TestHandle_SystemContextFromSnapshot(t *testing.T) {
	store := profile.NewStore("Ada", "Go and TCP", "Be brief.")
	gen := &scriptedGenerator{outcomes: []upstream.Outcome{status(503), ok("done")}}
	d := newTestDispatcher(gen, Options{Profile: store})

	// Swap between the two attempts; the dispatch must keep its snapshot.
	gen.onCall = func(n int) {
		if n == 1 {
			store.Swap("Grace", "COBOL", "")
		}
	}

	d.Handle(context.Background(), "hi")

	want := "Identity: Ada\nKnowledge: Go and TCP\nRule: Be brief."
	for i, req := range gen.requests {
		if req.SystemContext != want {
			t.Errorf("attempt %d system context = %q, want %q", i, req.SystemContext, want)
		}
	}

	gen.calls.Store(0)
	gen.requests = nil
	gen.onCall = nil
	d.Handle(context.Background(), "again")
	if got := gen.requests[0].SystemContext; got != "Identity: Grace\nKnowledge: COBOL" {
		t.Errorf("next dispatch system context = %q", got)
	}
}

func TestHandle_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	gen := &scriptedGenerator{outcomes: []upstream.Outcome{status(429), ok("hi")}}
	d := newTestDispatcher(gen, Options{Tracer: tracing.NewWithProvider(provider)})

	d.Handle(context.Background(), "hello")

	var dispatches, attempts int
	for _, span := range recorder.Ended() {
		switch span.Name() {
		case "relay.dispatch":
			dispatches++
		case "relay.upstream.attempt":
			attempts++
		}
	}
	if dispatches != 1 || attempts != 2 {
		t.Errorf("spans: %d dispatch, %d attempt; want 1 and 2", dispatches, attempts)
	}
}

// geminiBody returns a minimal generateContent response.
func geminiBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

func newUpstreamClient(t *testing.T, url string) *upstream.Client {
	t.Helper()
	cfg := config.NewDefaultConfig().Upstream
	cfg.BaseURL = url
	cfg.APIKey = "test-key"
	cfg.AttemptTimeout = 2 * time.Second
	client, err := upstream.NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestHandle_AgainstHTTPUpstream(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, geminiBody("She said \"hi\"\\n\nnext line"))
	}))
	defer srv.Close()

	d := newTestDispatcher(newUpstreamClient(t, srv.URL), Options{})

	reply := d.Handle(context.Background(), `{"message": "hello"}`)
	if !reply.OK() {
		t.Fatalf("expected success, got %v", reply.Kind)
	}
	if reply.Text != "She said \"hi\"\\n\nnext line" {
		t.Errorf("text = %q", reply.Text)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestHandle_ConcurrentDispatches(t *testing.T) {
	delays := []time.Duration{150 * time.Millisecond, 100 * time.Millisecond, 50 * time.Millisecond, 120 * time.Millisecond}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		text := body.Contents[0].Parts[0].Text

		var i int
		fmt.Sscanf(text, "request %d", &i)
		time.Sleep(delays[i])
		fmt.Fprint(w, geminiBody("reply to "+text))
	}))
	defer srv.Close()

	d := newTestDispatcher(newUpstreamClient(t, srv.URL), Options{})

	replies := make([]Reply, len(delays))
	var wg sync.WaitGroup
	start := time.Now()
	for i := range delays {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i] = d.Handle(context.Background(), fmt.Sprintf("request %d", i))
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	for i, reply := range replies {
		want := fmt.Sprintf("reply to request %d", i)
		if reply.Text != want {
			t.Errorf("reply %d = %q, want %q", i, reply.Text, want)
		}
	}
	if elapsed > 400*time.Millisecond {
		t.Errorf("dispatches appear serialized: %v", elapsed)
	}
}

func TestHandleLine_MirrorsFraming(t *testing.T) {
	gen := &scriptedGenerator{outcomes: []upstream.Outcome{ok("two\nlines")}}
	d := newTestDispatcher(gen, Options{})

	tests := []struct {
		raw  string
		want string
	}{
		{"hello", `two\nlines` + "\n"},
		{`{"message":"hello"}`, `{"reply":"two\nlines"}` + "\n"},
		{"", "ERROR: Message cannot be empty\n"},
		{`{"message":""}`, `{"error":"Message cannot be empty"}` + "\n"},
		{`{"message":`, `{"error":"Malformed request"}` + "\n"},
	}

	for _, tt := range tests {
		if got := string(d.HandleLine(context.Background(), tt.raw)); got != tt.want {
			t.Errorf("HandleLine(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
