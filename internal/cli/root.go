// Package cli implements the asccrash command line.
//
// Every command except init loads config.toml from the resolved data
// directory, opens crashes.db and logs to <data dir>/asccrash.log as well as
// stderr. Command output goes to stdout in the format chosen with --format.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/asccrash/asccrash/internal/config"
	"github.com/asccrash/asccrash/internal/model"
	"github.com/asccrash/asccrash/internal/render"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format   string // "text" | "json" | "yaml"
	DataDir  string
	LogLevel string
	NoColor  bool

	viper *viper.Viper
}

var globalFlags = []string{"format", "data-dir", "log-level", "no-color"}

// NewRootCommand creates the root command for the asccrash CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{viper: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "asccrash",
		Short: "Manage TestFlight crash and screenshot feedback",
		Long: `asccrash pulls TestFlight crash reports and screenshot feedback from
App Store Connect into a local database, downloads crash logs and screenshots,
and tracks a review status for every submission.

Crash commands live at the top level; the same set for screenshot feedback
lives under "asccrash feedback".`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          noSubcommand,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.Format, "format", "f", string(render.FormatText), "output format (text|json|yaml)")
	flags.StringVar(&opts.DataDir, "data-dir", "", "data directory (default: ./asc-crashes or ~/.asc-crashes)")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	flags.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	for _, name := range globalFlags {
		_ = opts.viper.BindPFlag(name, flags.Lookup(name))
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewAppsCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	for _, sub := range newSubmissionCommands(opts, model.KindCrash) {
		cmd.AddCommand(sub)
	}
	cmd.AddCommand(NewFeedbackCommand(opts))

	return cmd
}

// NewFeedbackCommand groups the screenshot feedback commands.
func NewFeedbackCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Manage screenshot feedback submissions",
		Args:  noSubcommand,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	for _, sub := range newSubmissionCommands(opts, model.KindFeedback) {
		cmd.AddCommand(sub)
	}
	return cmd
}

// resolve reads the global settings back through viper, so ASCCRASH_FORMAT,
// ASCCRASH_DATA_DIR and friends apply when the flag is not given.
func (o *RootOptions) resolve() error {
	o.Format = o.viper.GetString("format")
	o.DataDir = o.viper.GetString("data-dir")
	o.LogLevel = o.viper.GetString("log-level")
	o.NoColor = o.viper.GetBool("no-color")

	if _, err := render.ParseFormat(o.Format); err != nil {
		return WrapExitError(ExitCommandError, "invalid --format", err)
	}
	return nil
}

func noSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown command %q for %q", args[0], cmd.CommandPath()))
	}
	return nil
}

// Run executes the CLI with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(stderr, "Error: %s\n", strings.TrimRight(err.Error(), "\n"))
	return GetExitCode(err)
}

// Execute runs the CLI against the process arguments and standard streams.
func Execute() int {
	return Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}
