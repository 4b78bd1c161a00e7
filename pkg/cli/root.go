// Package cli holds the ekaya-adsync command tree. Every command loads the
// same configuration and builds only the parts of the service it needs.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

const appName = "ekaya-adsync"

// Execute runs the root command.
func Execute(version string) error {
	return NewRootCommand(version).Execute()
}

// NewRootCommand builds the command tree. Running the root without a
// subcommand starts the server.
func NewRootCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Meta Ads spend and lead ingestion service",
		Long:          "ekaya-adsync mirrors Meta ad accounts, campaigns, insights and lead form submissions into PostgreSQL and serves them over HTTP.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), version)
		},
	}

	cmd.AddCommand(newServeCommand(version))
	cmd.AddCommand(newMigrateCommand(version))
	cmd.AddCommand(newSyncCommand(version))
	cmd.AddCommand(newSyncLeadsCommand(version))
	cmd.AddCommand(newMappingsCommand(version))

	return cmd
}

var errSubcommandRequired = errors.New("subcommand required")

func requireSubcommand(cmd *cobra.Command, _ []string) error {
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s requires a subcommand\n", cmd.CommandPath())
	_ = cmd.Usage()
	return fmt.Errorf("%s: %w", cmd.CommandPath(), errSubcommandRequired)
}
