package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/asccrash/asccrash/internal/model"
	"github.com/asccrash/asccrash/internal/render"
	"github.com/asccrash/asccrash/internal/review"
	"github.com/asccrash/asccrash/internal/store"
)

// newSubmissionCommands builds the read and review commands for one kind.
// Crashes get them at the top level, feedback under "feedback".
func newSubmissionCommands(opts *RootOptions, kind model.Kind) []*cobra.Command {
	return []*cobra.Command{
		newListCommand(opts, kind),
		newShowCommand(opts, kind),
		newArtifactCommand(opts, kind),
		newStatusCommand(opts, kind, review.ActionFix),
		newStatusCommand(opts, kind, review.ActionInvestigate),
		newStatusCommand(opts, kind, review.ActionWontFix),
		newStatusCommand(opts, kind, review.ActionDuplicate),
		newStatusCommand(opts, kind, review.ActionReopen),
		newStatsCommand(opts, kind),
	}
}

// ListOptions holds flags for the list commands.
type ListOptions struct {
	*RootOptions
	Status string
	Since  string
	App    string
	Limit  int
}

// filter validates the flags into a store filter.
func (o *ListOptions) filter(kind model.Kind, now time.Time) (model.Filter, error) {
	f := model.Filter{Kind: kind, BundleID: o.App, Limit: o.Limit}

	if o.Status != "" {
		statuses, err := model.ParseStatusList(o.Status)
		if err != nil {
			return f, WrapExitError(ExitCommandError, "invalid --status", err)
		}
		f.Statuses = statuses
	}
	if o.Since != "" {
		since, err := parseSince(o.Since, now)
		if err != nil {
			return f, WrapExitError(ExitCommandError, "invalid --since", err)
		}
		f.Since = &since
	}
	if o.Limit <= 0 {
		return f, NewExitError(ExitCommandError, fmt.Sprintf("invalid --limit %d: must be positive", o.Limit))
	}
	return f, nil
}

func newListCommand(rootOpts *RootOptions, kind model.Kind) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %s, newest first", kindNoun(kind)),
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.filter(kind, time.Now())
			if err != nil {
				return err
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			subs, err := s.store.ListSubmissions(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return s.out.List(kind, subs)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (comma-separated: new,investigating,fixed,wontfix,duplicate)")
	cmd.Flags().StringVar(&opts.Since, "since", "", fmt.Sprintf("show only %s since this date (ISO 8601 or e.g. \"last week\")", kindNoun(kind)))
	cmd.Flags().StringVar(&opts.App, "app", "", "filter by app bundle ID")
	cmd.Flags().IntVar(&opts.Limit, "limit", model.DefaultListLimit, "max results")

	return cmd
}

func newShowCommand(opts *RootOptions, kind model.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: fmt.Sprintf("Show full details of a %s", kind.Label()),
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			sub, err := getSubmission(cmd, s, kind, id)
			if err != nil {
				return err
			}

			var preview *render.LogPreview
			if kind == model.KindCrash && !s.out.Structured() && sub.HasArtifact && sub.ArtifactPath != nil {
				preview, err = render.ReadPreview(*sub.ArtifactPath, render.PreviewLines)
				if err != nil {
					s.log.Warn().Err(err).Str("path", *sub.ArtifactPath).Msg("could not read crash log")
				}
			}
			return s.out.Show(sub, preview)
		},
	}
}

// newArtifactCommand builds "log" for crashes and "screenshot" for feedback.
func newArtifactCommand(opts *RootOptions, kind model.Kind) *cobra.Command {
	label := kind.ArtifactLabel()
	short := "Print the absolute path to a crash log file"
	if kind == model.KindFeedback {
		short = "Print the absolute path to a screenshot file"
	}

	return &cobra.Command{
		Use:   label + " <id>",
		Short: short,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			sub, err := getSubmission(cmd, s, kind, id)
			if err != nil {
				return err
			}
			if !sub.HasArtifact || sub.ArtifactPath == nil {
				return NewExitError(ExitFailure, fmt.Sprintf("%s #%d: no %s available", kind.Label(), id, label))
			}
			return s.out.ArtifactPath(sub)
		},
	}
}

// StatusOptions holds flags for the review commands.
type StatusOptions struct {
	*RootOptions
	Notes string
	Of    int64
}

func newStatusCommand(rootOpts *RootOptions, kind model.Kind, action review.Action) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}
	noun := kind.Label()

	cmd := &cobra.Command{
		Use:  string(action) + " <id>",
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			t := review.Transition{Action: action}
			if cmd.Flags().Changed("notes") {
				notes := opts.Notes
				t.Notes = &notes
			}
			if action == review.ActionDuplicate {
				if opts.Of <= 0 {
					return NewExitError(ExitCommandError, "--of must name the original "+noun)
				}
				t.Of = opts.Of
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			sub, err := review.New(s.store).Apply(cmd.Context(), kind, id, t)
			if err != nil {
				return reviewError(err)
			}
			s.log.Info().Str("kind", string(kind)).Int64("id", id).Str("status", string(sub.Status)).Msg("status changed")
			return s.out.Transitioned(sub, action == review.ActionReopen)
		},
	}

	switch action {
	case review.ActionFix:
		cmd.Short = fmt.Sprintf("Mark a %s as fixed", noun)
		cmd.Flags().StringVar(&opts.Notes, "notes", "", "fix notes")
	case review.ActionInvestigate:
		cmd.Short = fmt.Sprintf("Mark a %s as under investigation", noun)
	case review.ActionWontFix:
		cmd.Short = fmt.Sprintf("Mark a %s as won't fix", noun)
		cmd.Flags().StringVar(&opts.Notes, "notes", "", "reason for not fixing")
	case review.ActionDuplicate:
		cmd.Short = fmt.Sprintf("Mark a %s as a duplicate of another", noun)
		cmd.Flags().Int64Var(&opts.Of, "of", 0, fmt.Sprintf("the ID of the original %s", noun))
	case review.ActionReopen:
		cmd.Short = fmt.Sprintf("Reset a %s status to \"new\"", noun)
	}

	return cmd
}

// reviewError maps review failures to exit codes.
func reviewError(err error) error {
	switch {
	case errors.Is(err, review.ErrNotFound), errors.Is(err, review.ErrTargetNotFound):
		return NewExitError(ExitFailure, err.Error())
	case errors.Is(err, review.ErrSelfDuplicate):
		return WrapExitError(ExitCommandError, "invalid duplicate", err)
	}
	return err
}

// StatsOptions holds flags for the stats commands.
type StatsOptions struct {
	*RootOptions
	App string
}

func newStatsCommand(rootOpts *RootOptions, kind model.Kind) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: fmt.Sprintf("Show %s statistics", kind.Label()),
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.store.Stats(cmd.Context(), kind, opts.App)
			if err != nil {
				return err
			}
			return s.out.Stats(stats)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "restrict to one app bundle ID")

	return cmd
}

func getSubmission(cmd *cobra.Command, s *session, kind model.Kind, id int64) (*model.Submission, error) {
	sub, err := s.store.GetSubmission(cmd.Context(), kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewExitError(ExitFailure, fmt.Sprintf("%s #%d not found", kind.Label(), id))
	}
	return sub, err
}

func kindNoun(kind model.Kind) string {
	if kind == model.KindFeedback {
		return "screenshot feedback"
	}
	return "crashes"
}
