package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/asccrash/asccrash/internal/model"
	"github.com/asccrash/asccrash/internal/sync"
	"github.com/asccrash/asccrash/internal/telemetry"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	App         string
	NoCrashes   bool
	NoFeedback  bool
	MetricsFile string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull new crashes and feedback from App Store Connect",
		Long: `Pull new crashes and screenshot feedback for every configured app, newest
first, stopping at the first page that holds nothing new. Crash logs and
screenshots that were not ready on an earlier run are retried.

A failing app does not stop the others; the command then exits with status 1
after printing what did succeed.

Example:
  asccrash sync
  asccrash sync --app com.example.myapp --no-feedback
  asccrash sync --metrics-file /var/lib/node_exporter/asccrash.prom`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "sync only this app (bundle ID)")
	cmd.Flags().BoolVar(&opts.NoCrashes, "no-crashes", false, "skip crash sync (feedback only)")
	cmd.Flags().BoolVar(&opts.NoFeedback, "no-feedback", false, "skip feedback sync (crashes only)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics for this run to a textfile")

	return cmd
}

// kinds returns the streams selected by the --no-* flags.
func (o *SyncOptions) kinds() ([]model.Kind, error) {
	if o.NoCrashes && o.NoFeedback {
		return nil, NewExitError(ExitCommandError, "--no-crashes and --no-feedback leave nothing to sync")
	}
	switch {
	case o.NoCrashes:
		return []model.Kind{model.KindFeedback}, nil
	case o.NoFeedback:
		return []model.Kind{model.KindCrash}, nil
	}
	return model.Kinds, nil
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	kinds, err := opts.kinds()
	if err != nil {
		return err
	}

	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.App != "" {
		if _, ok := s.cfg.AppFor(opts.App); !ok {
			return NewExitError(ExitFailure, "no configured app matches "+opts.App)
		}
	}

	ctx := cmd.Context()
	shutdown, err := telemetry.InitTracing(ctx, "asccrash", Version)
	if err != nil {
		s.log.Warn().Err(err).Msg("tracing disabled")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				s.log.Warn().Err(err).Msg("failed to flush traces")
			}
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

	rep, runErr := engine.Sync(ctx, sync.Options{BundleID: opts.App, Kinds: kinds})
	if errors.Is(runErr, sync.ErrNoMatchingApp) {
		return WrapExitError(ExitFailure, "nothing to sync", runErr)
	}

	if rep != nil {
		if err := s.out.SyncReport(rep); err != nil {
			return err
		}
	}

	if opts.MetricsFile != "" {
		if err := metrics.WriteTextfile(opts.MetricsFile); err != nil {
			s.log.Error().Err(err).Str("path", opts.MetricsFile).Msg("failed to write metrics")
			if runErr == nil {
				return err
			}
		}
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "sync finished with errors", runErr)
	}
	return nil
}
