package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(version)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return migrate(cfg, logger)
		},
	}
}

func newSyncCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one spend sync in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, version, true, func(a *app) error {
				progress, err := a.sync.Run(cmd.Context())
				if printErr := printJSON(cmd, progress); printErr != nil {
					a.logger.Error("Failed to print progress", zap.Error(printErr))
				}
				return err
			})
		},
	}
}

func newSyncLeadsCommand(version string) *cobra.Command {
	var formID string
	cmd := &cobra.Command{
		Use:   "sync-leads",
		Short: "Run one lead sync in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, version, true, func(a *app) error {
				if formID != "" {
					result, err := a.leadSync.SyncForm(cmd.Context(), formID)
					if err != nil {
						return err
					}
					return printJSON(cmd, result)
				}
				progress, err := a.leadSync.Run(cmd.Context())
				if printErr := printJSON(cmd, progress); printErr != nil {
					a.logger.Error("Failed to print progress", zap.Error(printErr))
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "Sync a single lead form by id")
	return cmd
}

func newMappingsCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Manage lead field name mappings",
		RunE:  requireSubcommand,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Upsert the built-in multilingual field mappings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, version, false, func(a *app) error {
				n, err := a.fieldMappings.Seed(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d field mappings\n", n)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "backfill",
		Short: "Fill canonical names on stored lead field values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, version, false, func(a *app) error {
				result, err := a.fieldMappings.Backfill(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	})

	return cmd
}

// withApp builds the wired service for the duration of fn. needsGraph
// rejects the command early when Graph credentials are missing.
func withApp(cmd *cobra.Command, version string, needsGraph bool, fn func(*app) error) error {
	cfg, logger, err := loadConfig(version)
	if err != nil {
		return err
	}
	if needsGraph {
		if err := cfg.ValidateForSync(); err != nil {
			return err
		}
	}
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
