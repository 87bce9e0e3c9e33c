// Package daemon runs sync passes on an interval and reloads the app list
// when config.toml changes.
//
// The daemon:
//  1. Runs one sync immediately
//  2. Runs again every Interval
//  3. Watches the config file and reloads it after changes settle
//  4. Handles graceful shutdown
//
// Runs never overlap: a tick that arrives while a run is in progress is
// dropped. A reload only changes what the next run sees.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// RunFunc performs one sync pass.
type RunFunc func(ctx context.Context) error

// ReloadFunc re-reads the configuration.
type ReloadFunc func() error

// Config holds configuration for the daemon.
type Config struct {
	// Interval between sync runs
	Interval time.Duration

	// DebounceInterval is how long the config file must be quiet before a reload
	DebounceInterval time.Duration

	// ConfigPath is watched for changes. Empty disables reloading.
	ConfigPath string

	Logger zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         15 * time.Minute,
		DebounceInterval: 250 * time.Millisecond,
		Logger:           zerolog.Nop(),
	}
}

// Daemon schedules sync runs.
type Daemon struct {
	run    RunFunc
	reload ReloadFunc
	config *Config
	log    zerolog.Logger

	watcher *fsnotify.Watcher

	// pending config change, zero when none
	changedAt   time.Time
	changedAtMu sync.Mutex

	running sync.Mutex

	statsMu sync.Mutex
	runs    int
	reloads int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
}

// New creates a daemon. reload may be nil when ConfigPath is empty.
func New(run RunFunc, reload ReloadFunc, config *Config) (*Daemon, error) {
	if run == nil {
		return nil, errors.New("run cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", config.Interval)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	if config.ConfigPath != "" && reload == nil {
		return nil, errors.New("reload cannot be nil when a config path is watched")
	}

	d := &Daemon{
		run:    run,
		reload: reload,
		config: config,
		log:    config.Logger.With().Str("component", "daemon").Logger(),
	}

	if config.ConfigPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		d.watcher = watcher
	}

	return d, nil
}

// Start runs until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	if d.watcher != nil {
		// Watch the directory: editors often replace the file instead of writing it.
		dir := filepath.Dir(d.config.ConfigPath)
		if err := d.watcher.Add(dir); err != nil {
			_ = d.Stop()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		d.log.Info().Str("path", d.config.ConfigPath).Msg("watching config")

		d.wg.Add(2)
		go d.watchFileEvents()
		go d.processChanges()
	}

	d.log.Info().Dur("interval", d.config.Interval).Msg("starting watch")
	d.runOnce()

	d.wg.Add(1)
	go d.pollLoop()

	<-d.ctx.Done()
	return d.Stop()
}

// Stop shuts the daemon down and waits for background work.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		if d.watcher != nil {
			err = d.watcher.Close()
		}
		d.wg.Wait()
		d.log.Info().Msg("watch stopped")
	})
	return err
}

// Runs returns how many sync runs have finished.
func (d *Daemon) Runs() int {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.runs
}

// Reloads returns how many config reloads succeeded.
func (d *Daemon) Reloads() int {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.reloads
}

func (d *Daemon) pollLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runOnce()
		}
	}
}

// runOnce runs a sync unless one is already in progress.
func (d *Daemon) runOnce() {
	if !d.running.TryLock() {
		d.log.Warn().Msg("previous sync still running, skipping tick")
		return
	}
	defer d.running.Unlock()

	if err := d.run(d.ctx); err != nil {
		if d.ctx.Err() != nil {
			return
		}
		d.log.Error().Err(err).Msg("sync failed")
	}

	d.statsMu.Lock()
	d.runs++
	d.statsMu.Unlock()
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	target := filepath.Clean(d.config.ConfigPath)
	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			d.log.Debug().Str("op", event.Op.String()).Msg("config changed")
			d.changedAtMu.Lock()
			d.changedAt = time.Now()
			d.changedAtMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// processChanges reloads once the config has been quiet for DebounceInterval.
func (d *Daemon) processChanges() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.changedAtMu.Lock()
			due := !d.changedAt.IsZero() && time.Since(d.changedAt) >= d.config.DebounceInterval
			if due {
				d.changedAt = time.Time{}
			}
			d.changedAtMu.Unlock()

			if !due {
				continue
			}
			if err := d.reload(); err != nil {
				d.log.Error().Err(err).Msg("config reload failed, keeping previous apps")
				continue
			}
			d.statsMu.Lock()
			d.reloads++
			d.statsMu.Unlock()
			d.log.Info().Msg("config reloaded")
		}
	}
}
