package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/dispatch"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type lineFunc func(ctx context.Context, raw string) []byte

func (f lineFunc) HandleLine(ctx context.Context, raw string) []byte {
	return f(ctx, raw)
}

func echoHandler() LineHandler {
	return lineFunc(func(_ context.Context, raw string) []byte {
		return []byte("echo: " + raw + "\n")
	})
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenAddress:   "127.0.0.1:0",
		ReadTimeout:     2 * time.Second,
		WriteTimeout:    2 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
}

// startServer serves h on a random port and shuts it down at cleanup.
func startServer(t *testing.T, cfg config.ServerConfig, limits config.LimitsConfig, h LineHandler) (*ConnectionServer, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := NewConnectionServer(cfg, limits, h, nil, nil)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background(), ln) }()

	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		if err := <-served; !errors.Is(err, ErrServerClosed) {
			t.Errorf("Serve() returned %v, want ErrServerClosed", err)
		}
	})
	return srv, ln.Addr().String()
}

// exchange sends one request and returns everything the server wrote.
func exchange(addr, request string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return "", fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, request); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return string(reply), nil
}

func roundTrip(t *testing.T, addr, request string) string {
	t.Helper()
	reply, err := exchange(addr, request)
	if err != nil {
		t.Fatal(err)
	}
	return reply
}

func TestConnectionServer_OneRequestOneReply(t *testing.T) {
	_, addr := startServer(t, testServerConfig(), config.LimitsConfig{}, echoHandler())

	tests := []struct {
		name    string
		request string
		want    string
	}{
		{"newline", "hello\n", "echo: hello\n"},
		{"crlf", "hello\r\n", "echo: hello\n"},
		{"no newline then close", "partial", "echo: partial\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			if tt.name == "no newline then close" {
				got = halfCloseRoundTrip(t, addr, tt.request)
			} else {
				got = roundTrip(t, addr, tt.request)
			}
			if got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func halfCloseRoundTrip(t *testing.T, addr, request string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	_, _ = io.WriteString(conn, request)
	_ = conn.(*net.TCPConn).CloseWrite()
	reply, _ := io.ReadAll(conn)
	return string(reply)
}

func TestConnectionServer_OverLongLine(t *testing.T) {
	var called atomic.Bool
	h := lineFunc(func(context.Context, string) []byte {
		called.Store(true)
		return []byte("unexpected\n")
	})
	_, addr := startServer(t, testServerConfig(), config.LimitsConfig{MaxRequestBytes: 16}, h)

	tests := []struct {
		name    string
		request string
		want    string
	}{
		{"plain", strings.Repeat("a", 64) + "\n", "ERROR: Malformed request\n"},
		{"json", `{"message":"` + strings.Repeat("b", 64) + "\"}\n", `{"error":"Malformed request"}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := roundTrip(t, addr, tt.request); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
	if called.Load() {
		t.Error("handler must not see over-long lines")
	}

	// Exactly at the limit is accepted.
	_, addr2 := startServer(t, testServerConfig(), config.LimitsConfig{MaxRequestBytes: 5}, echoHandler())
	if got := roundTrip(t, addr2, "12345\n"); got != "echo: 12345\n" {
		t.Errorf("reply at limit = %q", got)
	}
}

func TestConnectionServer_Concurrent(t *testing.T) {
	delays := map[string]time.Duration{
		"a": 200 * time.Millisecond,
		"b": 150 * time.Millisecond,
		"c": 100 * time.Millisecond,
		"d": 50 * time.Millisecond,
		"e": 180 * time.Millisecond,
	}
	h := lineFunc(func(_ context.Context, raw string) []byte {
		time.Sleep(delays[raw])
		return []byte("reply-" + raw + "\n")
	})
	_, addr := startServer(t, testServerConfig(), config.LimitsConfig{}, h)

	var wg sync.WaitGroup
	results := make(map[string]string)
	var mu sync.Mutex

	start := time.Now()
	for name := range delays {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			got, err := exchange(addr, name+"\n")
			if err != nil {
				got = err.Error()
			}
			mu.Lock()
			results[name] = got
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	elapsed := time.Since(start)

	for name := range delays {
		if want := "reply-" + name + "\n"; results[name] != want {
			t.Errorf("connection %s got %q, want %q", name, results[name], want)
		}
	}
	// The sum of delays is 680ms; concurrent handling is bounded by the max.
	if elapsed > 450*time.Millisecond {
		t.Errorf("requests appear serialized: %v", elapsed)
	}
}

func TestConnectionServer_SurvivesBrokenClients(t *testing.T) {
	cfg := testServerConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	_, addr := startServer(t, cfg, config.LimitsConfig{}, echoHandler())

	// A client that connects and goes away.
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	// A client that never sends anything.
	idle, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer idle.Close()

	time.Sleep(150 * time.Millisecond)

	if got := roundTrip(t, addr, "still here\n"); got != "echo: still here\n" {
		t.Errorf("reply = %q", got)
	}
}

func TestConnectionServer_ShutdownWaitsForInFlight(t *testing.T) {
	started := make(chan struct{})
	h := lineFunc(func(context.Context, string) []byte {
		close(started)
		time.Sleep(150 * time.Millisecond)
		return []byte("done\n")
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := NewConnectionServer(testServerConfig(), config.LimitsConfig{}, h, nil, nil)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background(), ln) }()

	replyCh := make(chan string, 1)
	go func() {
		reply, err := exchange(ln.Addr().String(), "slow\n")
		if err != nil {
			reply = err.Error()
		}
		replyCh <- reply
	}()

	<-started
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := <-replyCh; got != "done\n" {
		t.Errorf("in-flight reply = %q, want %q", got, "done\n")
	}
	if err := <-served; !errors.Is(err, ErrServerClosed) {
		t.Errorf("Serve() = %v", err)
	}
	if srv.IsRunning() {
		t.Error("server still running after shutdown")
	}
}

func TestConnectionServer_ShutdownTimeoutCancelsDispatches(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	h := lineFunc(func(ctx context.Context, _ string) []byte {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return dispatch.EncodeReply(dispatch.Failure(dispatch.UpstreamError), dispatch.FramingPlain)
	})

	cfg := testServerConfig()
	cfg.ShutdownTimeout = 50 * time.Millisecond

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := NewConnectionServer(cfg, config.LimitsConfig{}, h, nil, nil)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background(), ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	fmt.Fprint(conn, "hang\n")

	<-started
	if err := srv.Shutdown(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want deadline exceeded", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("dispatch context was not cancelled")
	}
	<-served
}

func TestConnectionServer_ContextCancelStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := NewConnectionServer(testServerConfig(), config.LimitsConfig{}, echoHandler(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	if got := roundTrip(t, ln.Addr().String(), "ping\n"); got != "echo: ping\n" {
		t.Fatalf("reply = %q", got)
	}

	cancel()
	select {
	case err := <-served:
		if !errors.Is(err, ErrServerClosed) {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}

	if err := srv.Serve(context.Background(), ln); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Serve() after shutdown = %v", err)
	}
}

func TestConnectionServer_WithDispatcher(t *testing.T) {
	d := dispatch.New(nil, dispatch.Options{})
	_, addr := startServer(t, testServerConfig(), config.LimitsConfig{}, d)

	// Validation failures never reach the (nil) generator.
	if got := roundTrip(t, addr, "   \n"); got != "ERROR: Message cannot be empty\n" {
		t.Errorf("reply = %q", got)
	}
	if got := roundTrip(t, addr, `{"message":`+"\n"); got != `{"error":"Malformed request"}`+"\n" {
		t.Errorf("reply = %q", got)
	}
}

func TestReadLine(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int
		want    string
		wantErr error
	}{
		{"simple", "hello\n", 10, "hello", nil},
		{"crlf", "hello\r\n", 10, "hello", nil},
		{"at limit", "12345\n", 5, "12345", nil},
		{"over limit", "123456\n", 5, "", errLineTooLong},
		{"over limit without newline", "123456", 5, "", errLineTooLong},
		{"eof", "tail", 10, "tail", nil},
		{"empty", "\n", 10, "", nil},
		{"longer than buffer", strings.Repeat("x", 5000) + "\n", 6000, strings.Repeat("x", 5000), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReaderSize(strings.NewReader(tt.input), 16)
			got, err := readLine(r, tt.limit)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got != tt.want {
				t.Errorf("line = %q, want %q", got, tt.want)
			}
		})
	}
}
