// Package testutil provides test utilities for the recurrent project: a migrated
// database per test plus small fixture builders for users and bank accounts.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/service"
	"github.com/Veraticus/recurrent/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	user := db.MustCreateUser(model.TierFree)
//	account := db.MustCreateAccount(user.ID, "Checking")
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	// Create in-memory SQLite storage
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	ctx := context.Background()

	// Run migrations unless skipped
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	// Run custom setup
	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	// Register cleanup
	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// MustCreateUser inserts a user on the given tier or fails the test.
func (db *TestDB) MustCreateUser(tier model.Tier) *model.User {
	db.t.Helper()

	id := uuid.NewString()
	user := &model.User{
		ID:    id,
		Email: fmt.Sprintf("%s@example.com", id[:8]),
		Tier:  tier,
	}
	if err := db.Storage.CreateUser(context.Background(), user); err != nil {
		db.t.Fatalf("failed to create user: %v", err)
	}
	return user
}

// MustCreateAccount inserts a USD account with empty projections or fails the test.
func (db *TestDB) MustCreateAccount(userID, name string) *model.BankAccount {
	db.t.Helper()

	account := &model.BankAccount{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           name,
		Currency:       "USD",
		CurrentBalance: decimal.NewFromInt(5000),
	}
	if err := db.Storage.CreateBankAccount(context.Background(), account); err != nil {
		db.t.Fatalf("failed to create bank account %q: %v", name, err)
	}
	return account
}

// MustGetAccount reloads an account or fails the test.
func (db *TestDB) MustGetAccount(id string) *model.BankAccount {
	db.t.Helper()

	account, err := db.Storage.GetBankAccount(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to get bank account %s: %v", id, err)
	}
	return account
}

// WithTransaction executes the given function within a database transaction.
// The transaction is automatically rolled back after the function completes.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}
