package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/recurrent/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

A copy of an existing database is taken before pending migrations are applied.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")
	cmd.Flags().Bool("no-backup", false, "Skip the pre-migration backup")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")
	noBackup, _ := cmd.Flags().GetBool("no-backup")
	ctx := cmd.Context()

	dbPath := loadedConfig.DatabasePath
	slog.Info("Starting database migration", "database", dbPath, "status_only", status)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if status {
		slog.Info("📊 Database migration status",
			"database", dbPath,
			"current_version", version,
			"latest_version", storage.ExpectedSchemaVersion)
		if version < storage.ExpectedSchemaVersion {
			slog.Warn("Migrations pending", "count", storage.ExpectedSchemaVersion-version)
		}
		return nil
	}

	if !noBackup {
		backupPath, err := store.BackupBeforeMigrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to back up database: %w", err)
		}
		if backupPath != "" {
			slog.Info("Backed up database", "path", backupPath)
		}
	}

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("✅ Database migrations completed successfully!",
		"from_version", version,
		"to_version", storage.ExpectedSchemaVersion)
	return nil
}
