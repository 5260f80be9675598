package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"vapay/internal/config"
	"vapay/internal/logger"
	"vapay/internal/store"
)

func migrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			log := logger.WithComponent("migrate")

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("db: %w", err)
			}
			defer pool.Close()

			if err := store.New(pool).Migrate(ctx); err != nil {
				return err
			}
			log.Info().Msg("schema applied")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "maximum time to apply the schema")
	return cmd
}
