package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/asccrash/asccrash/internal/config"
	"github.com/asccrash/asccrash/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Global      bool
	Interactive bool
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a data directory with a template config and database",
		Long: `Create a data directory with logs/, screenshots/, a config.toml template
and an empty database.

By default the directory is ./asc-crashes; --global uses ~/.asc-crashes and
--data-dir picks any other location. An existing config.toml is left alone.

With --interactive the credentials and first app are asked for on the
terminal instead of writing the template.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Global, "global", false, "create ~/.asc-crashes instead of ./asc-crashes")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "prompt for credentials instead of writing the template")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	dataDir, err := initDataDir(opts)
	if err != nil {
		return err
	}

	var contents []byte
	if opts.Interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return NewExitError(ExitCommandError, "--interactive needs a terminal on stdin")
		}
		answers, err := config.Prompt()
		if err != nil {
			return fmt.Errorf("prompt cancelled: %w", err)
		}
		contents, err = config.Encode(answers.Config())
		if err != nil {
			return err
		}
	}

	res, err := config.Init(dataDir, contents)
	if err != nil {
		return err
	}

	st, err := store.Open(config.DatabasePath(dataDir))
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	if err := st.Close(); err != nil {
		return err
	}

	return opts.renderer(cmd).Initialized(res.DataDir, res.ConfigPath, res.ConfigWritten)
}

func initDataDir(opts *InitOptions) (string, error) {
	var dir string
	var err error
	if opts.DataDir != "" {
		dir, err = config.ResolveDataDir(opts.DataDir)
	} else {
		dir, err = config.InitDataDir(opts.Global)
	}
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to resolve data directory", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to resolve data directory", err)
	}
	return abs, nil
}
