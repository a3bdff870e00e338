package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uma-arai/sbcntr-booking/internal/common/config"
	"github.com/uma-arai/sbcntr-booking/internal/common/database"
	"github.com/uma-arai/sbcntr-booking/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig("")
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()
			ctx, end := configureTracing(ctx, cfg, cmd.Name())
			defer end()

			db, err := database.NewDB(cfg.DB)
			if err != nil {
				return fmt.Errorf("failed to create database connection: %w", err)
			}
			defer db.Close()

			if err := migrate.Up(ctx, db.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
