package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/asccrash/asccrash/internal/artifact"
	"github.com/asccrash/asccrash/internal/asc"
	"github.com/asccrash/asccrash/internal/auth"
	"github.com/asccrash/asccrash/internal/config"
	"github.com/asccrash/asccrash/internal/logging"
	"github.com/asccrash/asccrash/internal/render"
	"github.com/asccrash/asccrash/internal/store"
	"github.com/asccrash/asccrash/internal/sync"
)

// session is everything a command needs once config.toml has been loaded.
type session struct {
	dataDir string
	cfg     *config.Config
	store   *store.Store
	logger  *logging.Logger
	log     zerolog.Logger
	out     *render.Renderer
}

// renderer builds the output renderer for cmd's stdout.
func (o *RootOptions) renderer(cmd *cobra.Command) *render.Renderer {
	format, _ := render.ParseFormat(o.Format)
	opts := []render.Option{render.WithProgress(cmd.ErrOrStderr())}
	if o.NoColor {
		opts = append(opts, render.WithProfile(termenv.Ascii))
	}
	return render.New(cmd.OutOrStdout(), format, opts...)
}

// dataDir resolves the data directory to an absolute path.
func (o *RootOptions) dataDir() (string, error) {
	dir, err := config.ResolveDataDir(o.DataDir)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to resolve data directory", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to resolve data directory", err)
	}
	return abs, nil
}

// open loads the configuration, starts logging and opens the store.
// Callers must Close the session.
func (o *RootOptions) open(cmd *cobra.Command) (*session, error) {
	dataDir, err := o.dataDir()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(dataDir, o.viper)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger, err := logging.New(logging.Options{
		Level:   o.LogLevel,
		Console: cmd.ErrOrStderr(),
		File:    filepath.Join(dataDir, logging.FileName),
		NoColor: o.NoColor,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --log-level", err)
	}

	st, err := store.Open(config.DatabasePath(dataDir))
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Debug().Str("data_dir", dataDir).Msg("session opened")
	return &session{
		dataDir: dataDir,
		cfg:     cfg,
		store:   st,
		logger:  logger,
		log:     logger.Logger,
		out:     o.renderer(cmd),
	}, nil
}

// Close releases the store and the log file.
func (s *session) Close() error {
	return errors.Join(s.store.Close(), s.logger.Close())
}

// remote builds an App Store Connect client from the loaded credentials.
func (s *session) remote() (*asc.Client, error) {
	tokens, err := auth.New(s.cfg.API.IssuerID, s.cfg.API.KeyID, s.cfg.PrivateKeyPEM)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid API key", err)
	}
	client, err := asc.NewClient(asc.Options{
		BaseURL:  s.cfg.API.BaseURL,
		Tokens:   tokens,
		Timeout:  s.cfg.API.Timeout.Duration,
		PageSize: s.cfg.Sync.PageSize,
		Logger:   s.log,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create API client", err)
	}
	return client, nil
}

// engine wires a sync engine over the session store.
func (s *session) engine(remote sync.Remote, metrics sync.Recorder) (*sync.Engine, error) {
	sink := artifact.NewSink(s.dataDir)
	if err := sink.EnsureDirs(); err != nil {
		return nil, err
	}
	return sync.New(sync.Config{
		Store:    s.store,
		Remote:   remote,
		Sink:     sink,
		Apps:     syncApps(s.cfg),
		MaxPages: s.cfg.Sync.MaxPages,
		Logger:   s.log,
		Metrics:  metrics,
	}), nil
}

func syncApps(cfg *config.Config) []sync.App {
	apps := make([]sync.App, 0, len(cfg.Apps))
	for _, a := range cfg.Apps {
		apps = append(apps, sync.App{BundleID: a.BundleID, Name: a.Name})
	}
	return apps
}
