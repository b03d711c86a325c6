package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newResetDBCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset-db",
		Short: "Drop and recreate the workout tables",
		Long: `Drop every workout table and recreate the schema.

All workouts are deleted and ids start again from 1. With the postgres
driver the outbox and event log tables are dropped too.

WARNING: This cannot be undone!`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if !force && !confirm(cmd, fmt.Sprintf("Reset the %s database? All workouts will be lost.", cfg.StoreDriver)) {
				cmd.Println("Reset cancelled")
				return nil
			}

			if err := st.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("reset database: %w", err)
			}
			cmd.Printf("Reset %s database\n", cfg.StoreDriver)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	cmd.Printf("%s [y/N]: ", prompt)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
