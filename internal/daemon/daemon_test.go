package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// daemonRun records the result of one Start call. done is closed once err is set.
type daemonRun struct {
	done chan struct{}
	err  error
}

func startDaemon(t *testing.T, d *Daemon) (cancel func(), run *daemonRun) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	run = &daemonRun{done: make(chan struct{})}
	go func() {
		run.err = d.Start(ctx)
		close(run.done)
	}()
	t.Cleanup(func() {
		cancelFn()
		<-run.done
	})
	return cancelFn, run
}

func TestNew(t *testing.T) {
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name    string
		run     RunFunc
		reload  ReloadFunc
		config  *Config
		wantErr bool
	}{
		{"defaults", noop, nil, nil, false},
		{"nil run", nil, nil, nil, true},
		{"zero interval", noop, nil, &Config{Interval: 0}, true},
		{"watch without reload", noop, nil, &Config{Interval: time.Second, ConfigPath: "config.toml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.run, tt.reload, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunsImmediatelyAndOnInterval(t *testing.T) {
	var calls atomic.Int32
	run := func(context.Context) error {
		calls.Add(1)
		return nil
	}

	d, err := New(run, nil, &Config{Interval: 50 * time.Millisecond, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "three runs", func() bool { return d.Runs() >= 3 })
	if calls.Load() < 3 {
		t.Errorf("run called %d times, want >= 3", calls.Load())
	}
}

func TestRunErrorKeepsGoing(t *testing.T) {
	run := func(context.Context) error { return errors.New("api down") }

	d, err := New(run, nil, &Config{Interval: 20 * time.Millisecond, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "repeated runs after failure", func() bool { return d.Runs() >= 2 })
}

func TestStopOnCancel(t *testing.T) {
	d, err := New(func(context.Context) error { return nil }, nil, &Config{Interval: time.Hour, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	cancel, run := startDaemon(t, d)
	waitFor(t, "initial run", func() bool { return d.Runs() == 1 })
	cancel()

	select {
	case <-run.done:
		if run.err != nil {
			t.Errorf("Start() returned %v", run.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestReloadOnConfigChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# v1\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var reloads atomic.Int32
	reload := func() error {
		reloads.Add(1)
		return nil
	}

	d, err := New(func(context.Context) error { return nil }, reload, &Config{
		Interval:         time.Hour,
		DebounceInterval: 50 * time.Millisecond,
		ConfigPath:       path,
		Logger:           zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)
	waitFor(t, "initial run", func() bool { return d.Runs() == 1 })

	// A burst of writes settles into one reload.
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("# v2\n"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	waitFor(t, "reload", func() bool { return d.Reloads() == 1 })

	time.Sleep(200 * time.Millisecond)
	if n := reloads.Load(); n != 1 {
		t.Errorf("reload called %d times, want 1", n)
	}

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if n := reloads.Load(); n != 1 {
		t.Errorf("reload called %d times after unrelated write, want 1", n)
	}
}

func TestReloadFailureIsNotCounted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# v1\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var attempts atomic.Int32
	reload := func() error {
		attempts.Add(1)
		return errors.New("invalid TOML")
	}

	d, err := New(func(context.Context) error { return nil }, reload, &Config{
		Interval:         time.Hour,
		DebounceInterval: 30 * time.Millisecond,
		ConfigPath:       path,
		Logger:           zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)
	waitFor(t, "initial run", func() bool { return d.Runs() == 1 })

	if err := os.WriteFile(path, []byte("[api\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	waitFor(t, "reload attempt", func() bool { return attempts.Load() == 1 })
	if d.Reloads() != 0 {
		t.Errorf("Reloads() = %d, want 0", d.Reloads())
	}
}

func TestStartWatchFailureClosesWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "config.toml")

	var runs atomic.Int32
	d, err := New(func(context.Context) error {
		runs.Add(1)
		return nil
	}, func() error { return nil }, &Config{
		Interval:   time.Hour,
		ConfigPath: path,
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded watching a missing directory")
	}
	if runs.Load() != 0 {
		t.Errorf("run called %d times, want 0", runs.Load())
	}
	if err := d.watcher.Add(t.TempDir()); !errors.Is(err, fsnotify.ErrClosed) {
		t.Errorf("watcher.Add() after failed Start = %v, want ErrClosed", err)
	}
}
