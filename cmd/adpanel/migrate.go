package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/adpanel/internal/adapter/driven/sqlite"
)

var migrateDBPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := sqliteadapter.NewDB(cmd.Context(), migrateDBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()

		version, err := sqliteadapter.RunMigrations(db.Writer)
		if err != nil {
			return err
		}

		slog.Info("migrations applied successfully", "path", migrateDBPath, "version", version)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDBPath, "db", "adpanel.db", "path to the SQLite database file")
}
