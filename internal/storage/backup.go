package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Backup writes a consistent copy of the database to destPath.
func (s *SQLiteStorage) Backup(ctx context.Context, destPath string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(destPath, "destPath"); err != nil {
		return err
	}

	// Validate destPath since VACUUM INTO cannot take a bound parameter
	if strings.ContainsAny(destPath, "'\";") {
		return fmt.Errorf("invalid backup path %q: contains forbidden characters", destPath)
	}
	if !filepath.IsAbs(destPath) || filepath.Clean(destPath) != destPath {
		return fmt.Errorf("invalid backup path %q: must be absolute and clean", destPath)
	}

	// Fold the WAL into the main file first
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}

	// #nosec G201 - destPath is validated above
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}

	slog.Info("Backed up database", "path", destPath)
	return nil
}

// BackupBeforeMigrate copies the database next to itself when migrations are
// pending. It returns the backup path, or "" when nothing was copied.
func (s *SQLiteStorage) BackupBeforeMigrate(ctx context.Context) (string, error) {
	if s.dbPath == ":memory:" {
		return "", nil
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return "", err
	}
	if version == 0 || version >= ExpectedSchemaVersion {
		return "", nil
	}

	absPath, err := filepath.Abs(s.dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}

	dest := fmt.Sprintf("%s.v%d-%s.bak", absPath, version, time.Now().UTC().Format("20060102-150405"))
	if err := s.Backup(ctx, dest); err != nil {
		return "", err
	}
	return dest, nil
}
