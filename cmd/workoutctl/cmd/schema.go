package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/workouts/internal/config"
	"example.com/workouts/internal/persistence/postgres"
	"example.com/workouts/internal/persistence/sqlite"
)

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the DDL for the configured driver",
		Long: `Print the CREATE statements the service applies on startup.

The statements are idempotent, so the output can be piped into psql or
sqlite3 to prepare a database ahead of the first deploy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			switch cfg.StoreDriver {
			case config.DriverPostgres:
				cmd.Print(postgres.Schema())
			case config.DriverSQLite:
				cmd.Print(sqlite.Schema())
			default:
				return fmt.Errorf("driver %q has no schema", cfg.StoreDriver)
			}
			return nil
		},
	}
}
