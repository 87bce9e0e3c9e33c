package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/asccrash/asccrash/internal/config"
	"github.com/asccrash/asccrash/internal/daemon"
	"github.com/asccrash/asccrash/internal/dashboard"
	"github.com/asccrash/asccrash/internal/sync"
	"github.com/asccrash/asccrash/internal/telemetry"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval time.Duration
	Port     int
	Host     string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync on an interval until interrupted",
		Long: `Run a sync immediately and then on every interval until SIGINT or SIGTERM.

Edits to config.toml are picked up before the next run, so apps can be added
or removed without a restart. Runs never overlap; a tick that arrives while a
run is still going is skipped.

With --port a dashboard server is started:
  ws://127.0.0.1:<port>/ws     sync_complete, new_submission and stats messages
  http://127.0.0.1:<port>/health
  http://127.0.0.1:<port>/metrics

Example:
  asccrash watch --interval 10m --port 8080`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "time between runs (default: [sync] interval or 15m)")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "serve the dashboard on this port (0 picks a free one)")
	cmd.Flags().StringVar(&opts.Host, "host", "127.0.0.1", "dashboard bind address")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	if opts.Interval < 0 {
		return NewExitError(ExitCommandError, "--interval must be positive")
	}

	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.InitTracing(ctx, "asccrash", Version)
	if err != nil {
		s.log.Warn().Err(err).Msg("tracing disabled")
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	client, err := s.remote()
	if err != nil {
		return err
	}
	metrics := telemetry.NewMetrics()
	engine, err := s.engine(client, metrics)
	if err != nil {
		return err
	}

	var handler *dashboard.Handler
	if cmd.Flags().Changed("port") {
		server := dashboard.NewServer(&dashboard.Config{
			Port:    opts.Port,
			Host:    opts.Host,
			Metrics: metrics.Handler(),
			Logger:  s.log,
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				s.log.Warn().Err(err).Msg("error during dashboard shutdown")
			}
		}()
		handler = dashboard.NewHandler(server, s.log)
		fmt.Fprintf(cmd.ErrOrStderr(), "Dashboard: http://%s (WebSocket /ws)\n", server.Addr())
	}

	run := func(ctx context.Context) error {
		rep, err := engine.Sync(ctx, sync.Options{})
		if rep != nil {
			if rerr := s.out.SyncReport(rep); rerr != nil {
				s.log.Warn().Err(rerr).Msg("failed to print report")
			}
		}
		if handler != nil {
			handler.OnSyncComplete(rep, err)
		}
		return err
	}

	reload := func() error {
		cfg, err := config.Load(s.dataDir, opts.viper)
		if err != nil {
			return err
		}
		apps := syncApps(cfg)
		engine.SetApps(apps)
		if handler != nil {
			ids := make([]string, 0, len(apps))
			for _, a := range apps {
				ids = append(ids, a.BundleID)
			}
			handler.OnConfigReloaded(ids)
		}
		return nil
	}

	interval := opts.Interval
	if interval == 0 {
		interval = s.cfg.Sync.Interval.Duration
	}

	d, err := daemon.New(run, reload, &daemon.Config{
		Interval:   interval,
		ConfigPath: config.Path(s.dataDir),
		Logger:     s.log,
	})
	if err != nil {
		return err
	}

	s.log.Info().Dur("interval", interval).Int("apps", len(engine.Apps())).Msg("watching")
	if err := d.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	s.log.Debug().Int("runs", d.Runs()).Msg("sync runs completed")
	return nil
}
