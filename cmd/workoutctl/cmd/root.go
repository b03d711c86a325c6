package cmd

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"example.com/workouts/internal/bootstrap"
	"example.com/workouts/internal/config"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCmd builds the workoutctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "workoutctl",
		Short: "workoutctl manages the workout service's database and event outbox",
		Long: `workoutctl is the operator tool for the workout service.

It talks to the same store the API server uses, selected by STORE_DRIVER
(postgres, sqlite or memory) or the --driver flag.

Common workflows:

  Print the DDL for a driver:
    workoutctl schema --driver postgres

  Drop and recreate the workouts table:
    workoutctl reset-db --force

  Inspect and requeue parked change events (postgres only):
    workoutctl outbox status
    workoutctl outbox requeue

Configuration:
  Settings come from environment variables (HTTP_ADDRESS, STORE_DRIVER,
  POSTGRES_URL, SQLITE_PATH, ...) or a YAML file passed with --config.
  Flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML)")

	root.PersistentFlags().String("driver", "", "store driver: postgres, sqlite or memory")
	_ = a.v.BindPFlag("STORE_DRIVER", root.PersistentFlags().Lookup("driver"))

	root.PersistentFlags().String("sqlite-path", "", "SQLite database file")
	_ = a.v.BindPFlag("SQLITE_PATH", root.PersistentFlags().Lookup("sqlite-path"))

	root.PersistentFlags().String("postgres-url", "", "Postgres connection URL")
	_ = a.v.BindPFlag("POSTGRES_URL", root.PersistentFlags().Lookup("postgres-url"))

	root.AddCommand(
		newSchemaCmd(a),
		newResetDBCmd(a),
		newOutboxCmd(a),
	)
	return root
}

func (a *app) config() (config.Config, error) {
	return config.FromViper(a.v, a.cfgFile)
}

// openStore opens the configured store with logging silenced; command output
// goes through cobra.
func (a *app) openStore(ctx context.Context) (*bootstrap.Store, config.Config, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, config.Config{}, err
	}
	st, err := bootstrap.OpenStore(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return nil, config.Config{}, err
	}
	return st, cfg, nil
}
