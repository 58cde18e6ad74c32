package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/research-office/research-registry/internal/config"
	"github.com/research-office/research-registry/internal/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}

			ctx := cmd.Context()
			pool, err := db.ConnectWithRetry(ctx, cfg.Database)
			if err != nil {
				return withCode(exitDB, fmt.Errorf("connect: %w", err))
			}
			defer pool.Close()

			if err := db.RunMigrations(ctx, pool); err != nil {
				return withCode(exitDB, fmt.Errorf("migrate: %w", err))
			}

			files, err := db.MigrationFiles()
			if err != nil {
				return withCode(exitDB, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations up to date (%d files)\n", len(files))
			return nil
		},
	}
}
