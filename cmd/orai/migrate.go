package main

import (
	"github.com/spf13/cobra"

	"github.com/Hexploration-Inc/orai/internal/display"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long: `Apply the orai schema to the configured database.

The schema is applied idempotently, so running this against an existing
database is safe. serve applies it on startup as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.Migrate(cmd.Context()); err != nil {
			return err
		}
		if err := store.Ping(cmd.Context()); err != nil {
			return err
		}
		if !quietFlag {
			display.SuccessMsg(cmd.OutOrStdout(), "Schema applied to %s", store.Path())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
