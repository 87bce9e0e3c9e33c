package cli

import (
	"github.com/spf13/cobra"
)

// NewAppsCommand creates the apps command.
func NewAppsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "Verify API credentials and list visible apps",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			client, err := s.remote()
			if err != nil {
				return err
			}
			apps, err := client.ListApps(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "could not list apps", err)
			}
			return s.out.Apps(apps)
		},
	}
}
