package profile

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.txt")
	writeFile(t, path, "first")

	l, err := NewLoader(Source{PersonaFile: path}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w, err := NewWatcher(l.Source().Files(), 20*time.Millisecond, l.Reload, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	}()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, "second")

	if !waitFor(t, 2*time.Second, func() bool { return l.Store().Load().Persona == "second" }) {
		t.Fatalf("profile not reloaded, persona = %q", l.Store().Load().Persona)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.txt")
	writeFile(t, path, "first")

	var reloads atomic.Int32
	w, err := NewWatcher([]string{path}, 10*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "unrelated.txt"), "noise")
	time.Sleep(100 * time.Millisecond)

	cancel()
	<-done

	if n := reloads.Load(); n != 0 {
		t.Errorf("expected no reloads, got %d", n)
	}
}

func TestWatcher_RunTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.txt")
	writeFile(t, path, "x")

	w, err := NewWatcher([]string{path}, 0, func() error { return nil }, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	if err := w.Run(ctx); err == nil {
		t.Error("expected error when running twice")
	}

	cancel()
	<-done
}

func TestNewWatcher_NoFiles(t *testing.T) {
	if _, err := NewWatcher(nil, 0, func() error { return nil }, nil); err == nil {
		t.Error("expected error with no files")
	}
}

func TestWatcher_ShouldProcessEvent(t *testing.T) {
	path := filepath.Join(os.TempDir(), "relay-profile", "persona.txt")
	w := &Watcher{files: map[string]bool{path: true}}

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write to watched file", fsnotify.Event{Name: path, Op: fsnotify.Write}, true},
		{"rename into place", fsnotify.Event{Name: path, Op: fsnotify.Create}, true},
		{"chmod only", fsnotify.Event{Name: path, Op: fsnotify.Chmod}, false},
		{"other file", fsnotify.Event{Name: path + ".swp", Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.shouldProcessEvent(tt.event); got != tt.want {
				t.Errorf("shouldProcessEvent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 debounced call, got %d", n)
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })

	time.Sleep(60 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("expected no calls after Stop, got %d", n)
	}
}
