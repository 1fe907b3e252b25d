package cli

import (
	"fmt"

	"github.com/captep/studio/engine/infra/postgres"
	"github.com/captep/studio/pkg/config"
	"github.com/captep/studio/pkg/logger"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(migrateUpCmd(), migrateStatusCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			dsn := config.FromContext(ctx).Database.DSN()
			if err := postgres.ApplyMigrationsWithLock(ctx, dsn); err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}
			logger.FromContext(ctx).Info("Migrations applied")
			return nil
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ver, err := postgres.MigrationStatus(ctx, config.FromContext(ctx).Database.DSN())
			if err != nil {
				return fmt.Errorf("failed to read migration status: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", ver)
			return err
		},
	}
}
