package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/felixkade/ledgersync/internal/config"
	"github.com/felixkade/ledgersync/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Migrations also seed the default categories and system rules, so this is
the first command to run on a new machine.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	dbPath := config.ExpandPath(viper.GetString("database.path"))
	slog.Info("running database migrations", "database", dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	cmd.Printf("Database ready at %s (schema version %d)\n", dbPath, storage.ExpectedSchemaVersion)
	return nil
}
