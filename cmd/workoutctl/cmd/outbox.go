package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"example.com/workouts/internal/bootstrap"
	"example.com/workouts/internal/config"
	"example.com/workouts/internal/outbox"
)

var errOutboxNeedsPostgres = errors.New("the outbox is only kept by the postgres driver")

func newOutboxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the workout change event outbox",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Count pending, parked and published events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withOutbox(cmd.Context(), func(st *bootstrap.Store, cfg config.Config) error {
				status, err := outbox.Inspect(cmd.Context(), st.Pool, cfg.OutboxMaxAttempts)
				if err != nil {
					return err
				}
				cmd.Printf("Pending:   %d\n", status.Pending)
				cmd.Printf("Parked:    %d\n", status.Parked)
				cmd.Printf("Published: %d\n", status.Published)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "requeue",
		Short: "Give parked events a fresh set of delivery attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withOutbox(cmd.Context(), func(st *bootstrap.Store, cfg config.Config) error {
				n, err := outbox.Requeue(cmd.Context(), st.Pool, cfg.OutboxMaxAttempts)
				if err != nil {
					return err
				}
				cmd.Printf("Requeued %d event(s)\n", n)
				return nil
			})
		},
	})

	return cmd
}

func (a *app) withOutbox(ctx context.Context, fn func(*bootstrap.Store, config.Config) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return errOutboxNeedsPostgres
	}
	st, cfg, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st, cfg)
}
