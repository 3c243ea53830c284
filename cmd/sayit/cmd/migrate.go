package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sayit/api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if store.DialectFor(cfg.Database.URL) == store.SQLite {
			if err := ensureSQLiteDir(cfg.Database.URL); err != nil {
				return err
			}
		}
		db, dialect, err := store.Open(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		if err := store.ApplyMigrations(ctx, db, dialect, cfg.Database.MigrationsDir); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		logger.Info().Str("dialect", dialect.String()).Str("dir", cfg.Database.MigrationsDir).Msg("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
