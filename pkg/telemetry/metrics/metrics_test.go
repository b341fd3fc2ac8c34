package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testCollector(t *testing.T) *Collector {
	t.Helper()
	cfg := config.MetricsConfig{Namespace: "test"}
	c := NewCollector(cfg, prometheus.NewRegistry())
	if c == nil {
		t.Fatal("expected non-nil collector")
	}
	return c
}

func TestNewCollector_Disabled(t *testing.T) {
	off := false
	if c := NewCollector(config.MetricsConfig{Enabled: &off}, nil); c != nil {
		t.Error("expected nil collector when metrics are disabled")
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.RecordDispatch("ok", 1, time.Second)
	c.RecordAttempt("success", 200, time.Second)
	c.UpdateUpstreamHealth(false)
	c.ConnectionOpened("socket")
	c.ConnectionClosed("socket")
	c.RecordConnectionError("read")
	c.RecordProfileReload(nil)
	c.SetProfileVersion(3)

	if c.Registry() != nil {
		t.Error("expected nil registry")
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 from nil collector, got %d", rec.Code)
	}
}

func TestCollector_RecordDispatch(t *testing.T) {
	c := testCollector(t)

	c.RecordDispatch("ok", 3, 2*time.Second)
	c.RecordDispatch("ok", 1, 100*time.Millisecond)
	c.RecordDispatch("message_too_long", 0, time.Millisecond)

	if got := testutil.ToFloat64(c.requestMetrics.dispatchesTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("expected 2 ok dispatches, got %v", got)
	}
	if got := testutil.ToFloat64(c.requestMetrics.dispatchesTotal.WithLabelValues("message_too_long")); got != 1 {
		t.Errorf("expected 1 rejected dispatch, got %v", got)
	}
	if got := testutil.CollectAndCount(c.requestMetrics.dispatchDuration); got != 2 {
		t.Errorf("expected 2 duration series, got %d", got)
	}
}

func TestCollector_RecordAttempt(t *testing.T) {
	c := testCollector(t)

	c.RecordAttempt("retryable", 429, 10*time.Millisecond)
	c.RecordAttempt("retryable", 503, 10*time.Millisecond)
	c.RecordAttempt("transport", 0, time.Second)
	c.RecordAttempt("success", 200, 50*time.Millisecond)

	if got := testutil.ToFloat64(c.upstreamMetrics.attempts.WithLabelValues("retryable")); got != 2 {
		t.Errorf("expected 2 retryable attempts, got %v", got)
	}
	if got := testutil.ToFloat64(c.upstreamMetrics.responses.WithLabelValues("429")); got != 1 {
		t.Errorf("expected one 429, got %v", got)
	}
	// Transport failures carry no status code.
	if got := testutil.CollectAndCount(c.upstreamMetrics.responses); got != 3 {
		t.Errorf("expected 3 status series, got %d", got)
	}
}

func TestCollector_UpstreamHealth(t *testing.T) {
	c := testCollector(t)

	if got := testutil.ToFloat64(c.upstreamMetrics.health); got != 1 {
		t.Errorf("expected healthy by default, got %v", got)
	}
	c.UpdateUpstreamHealth(false)
	if got := testutil.ToFloat64(c.upstreamMetrics.health); got != 0 {
		t.Errorf("expected unhealthy, got %v", got)
	}
}

func TestCollector_Connections(t *testing.T) {
	c := testCollector(t)

	c.ConnectionOpened("socket")
	c.ConnectionOpened("socket")
	c.ConnectionClosed("socket")
	c.RecordConnectionError("write")

	if got := testutil.ToFloat64(c.connectionMetrics.active.WithLabelValues("socket")); got != 1 {
		t.Errorf("expected 1 active connection, got %v", got)
	}
	if got := testutil.ToFloat64(c.connectionMetrics.total.WithLabelValues("socket")); got != 2 {
		t.Errorf("expected 2 total connections, got %v", got)
	}
	if got := testutil.ToFloat64(c.connectionMetrics.errors.WithLabelValues("write")); got != 1 {
		t.Errorf("expected 1 write error, got %v", got)
	}
}

func TestCollector_Profile(t *testing.T) {
	c := testCollector(t)

	c.RecordProfileReload(nil)
	c.RecordProfileReload(errors.New("missing file"))
	c.SetProfileVersion(4)

	if got := testutil.ToFloat64(c.profileReloads.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed reload, got %v", got)
	}
	if got := testutil.ToFloat64(c.profileVersion); got != 4 {
		t.Errorf("expected version 4, got %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := testCollector(t)
	c.RecordDispatch("ok", 1, time.Second)

	server := httptest.NewServer(c.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("failed to scrape: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `test_dispatches_total{result="ok"} 1`) {
		t.Errorf("expected dispatch counter in exposition:\n%s", body)
	}
}
