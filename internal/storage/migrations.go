package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT UNIQUE NOT NULL,
					tier TEXT NOT NULL DEFAULT 'FREE',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS bank_accounts (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					currency TEXT NOT NULL,
					current_balance INTEGER NOT NULL DEFAULT 0,
					scheduled_inflows INTEGER NOT NULL DEFAULT 0 CHECK (scheduled_inflows >= 0),
					scheduled_outflows INTEGER NOT NULL DEFAULT 0 CHECK (scheduled_outflows >= 0),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_bank_accounts_user ON bank_accounts(user_id)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					bank_account_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					name TEXT NOT NULL,
					merchant_name TEXT,
					amount INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (bank_account_id) REFERENCES bank_accounts(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_transactions_account_date ON transactions(bank_account_id, date)`,
				`CREATE INDEX idx_transactions_merchant ON transactions(merchant_name)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add recurring transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS recurring_transactions (
					id TEXT PRIMARY KEY,
					bank_account_id TEXT NOT NULL,
					target_account_id TEXT,
					title TEXT NOT NULL,
					amount INTEGER NOT NULL,
					currency TEXT NOT NULL,
					frequency TEXT NOT NULL,
					interval INTEGER NOT NULL DEFAULT 1 CHECK (interval >= 1),
					start_date DATETIME NOT NULL,
					end_date DATETIME,
					next_scheduled_date DATETIME NOT NULL,
					day_of_month INTEGER,
					day_of_week INTEGER,
					week_of_month INTEGER,
					month_of_year INTEGER,
					status TEXT NOT NULL DEFAULT 'ACTIVE',
					is_variable BOOLEAN NOT NULL DEFAULT 0,
					is_automated BOOLEAN NOT NULL DEFAULT 0,
					requires_approval BOOLEAN NOT NULL DEFAULT 0,
					affect_available_balance BOOLEAN NOT NULL DEFAULT 0,
					merchant_name TEXT,
					merchant_id TEXT,
					category_slug TEXT,
					tags TEXT NOT NULL DEFAULT '[]',
					notes TEXT,
					initial_account_balance INTEGER NOT NULL DEFAULT 0,
					execution_count INTEGER NOT NULL DEFAULT 0,
					total_executed INTEGER NOT NULL DEFAULT 0,
					last_modified_by TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					FOREIGN KEY (bank_account_id) REFERENCES bank_accounts(id) ON DELETE CASCADE,
					FOREIGN KEY (target_account_id) REFERENCES bank_accounts(id) ON DELETE SET NULL
				)`,
				`CREATE INDEX idx_recurring_account ON recurring_transactions(bank_account_id)`,
				`CREATE INDEX idx_recurring_status ON recurring_transactions(status)`,
				`CREATE INDEX idx_recurring_next_date ON recurring_transactions(next_scheduled_date)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add transaction back-references, assignee, and account timestamps",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE transactions ADD COLUMN recurring_transaction_id TEXT
					REFERENCES recurring_transactions(id) ON DELETE SET NULL`,
				`CREATE INDEX idx_transactions_recurring ON transactions(recurring_transaction_id)`,

				`ALTER TABLE recurring_transactions ADD COLUMN assigned_to TEXT`,

				`CREATE TRIGGER IF NOT EXISTS bank_accounts_touch
					AFTER UPDATE OF current_balance, scheduled_inflows, scheduled_outflows ON bank_accounts
					BEGIN
						UPDATE bank_accounts SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
					END`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate runs all database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
