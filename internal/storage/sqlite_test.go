package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

// seedAccount creates a user and one USD account owned by them.
func seedAccount(t *testing.T, store *SQLiteStorage, userID, accountID string) *model.BankAccount {
	t.Helper()
	ctx := context.Background()

	if _, err := store.GetUser(ctx, userID); errors.Is(err, common.ErrNotFound) {
		require.NoError(t, store.CreateUser(ctx, &model.User{
			ID:    userID,
			Email: userID + "@example.com",
			Tier:  model.TierFree,
		}))
	}

	account := &model.BankAccount{
		ID:             accountID,
		UserID:         userID,
		Name:           "Checking " + accountID,
		Currency:       "USD",
		CurrentBalance: decimal.RequireFromString("2500.00"),
	}
	require.NoError(t, store.CreateBankAccount(ctx, account))
	return account
}

// Helper function to create test transactions.
func createTestTransactions(accountID string, count int) []model.Transaction {
	txns := make([]model.Transaction, count)
	baseTime := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		txns[i] = model.Transaction{
			ID:            fmt.Sprintf("txn-%s-%d", accountID, i+1),
			Date:          baseTime.AddDate(0, 0, 7*i),
			Name:          fmt.Sprintf("Transaction #%d", i+1),
			MerchantName:  fmt.Sprintf("Merchant #%d", (i%3)+1),
			Amount:        decimal.NewFromFloat(-10.50).Mul(decimal.NewFromInt(int64(i + 1))),
			BankAccountID: accountID,
		}
		txns[i].Hash = txns[i].GenerateHash()
	}
	return txns
}

func TestNewSQLiteStorage(t *testing.T) {
	t.Run("rejects empty path", func(t *testing.T) {
		_, err := NewSQLiteStorage("  ")
		assert.ErrorIs(t, err, ErrEmptyString)
	})

	t.Run("creates missing directories", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "recur.db")
		store, err := NewSQLiteStorage(dbPath)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		assert.Equal(t, dbPath, store.Path())
	})

	t.Run("supports in-memory databases", func(t *testing.T) {
		store, err := NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		require.NoError(t, store.Migrate(context.Background()))
	})
}

func TestSQLiteStorage_Users(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	user := &model.User{ID: "user-1", Email: "ada@example.com", Tier: model.TierPro}
	require.NoError(t, store.CreateUser(ctx, user))
	assert.False(t, user.CreatedAt.IsZero())

	got, err := store.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, model.TierPro, got.Tier)

	err = store.CreateUser(ctx, &model.User{ID: "user-2", Email: "ada@example.com", Tier: model.TierFree})
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	_, err = store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = store.CreateUser(ctx, &model.User{ID: "user-3", Email: "x@example.com", Tier: "GOLD"})
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestSQLiteStorage_Transaction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	seedAccount(t, store, "user-1", "acc-1")

	t.Run("rollback discards every write", func(t *testing.T) {
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)

		require.NoError(t, tx.AdjustProjections(ctx, "acc-1", decimal.Zero, decimal.NewFromInt(100)))
		require.NoError(t, tx.CreateRecurring(ctx, testRecurring("rec-rollback", "acc-1")))
		require.NoError(t, tx.Rollback())

		account, err := store.GetBankAccount(ctx, "acc-1")
		require.NoError(t, err)
		assert.True(t, account.ScheduledOutflows.IsZero())

		_, err = store.GetRecurring(ctx, "rec-rollback")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("commit applies every write", func(t *testing.T) {
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)

		require.NoError(t, tx.AdjustProjections(ctx, "acc-1", decimal.Zero, decimal.NewFromInt(100)))
		require.NoError(t, tx.CreateRecurring(ctx, testRecurring("rec-commit", "acc-1")))

		inTx, err := tx.GetBankAccount(ctx, "acc-1")
		require.NoError(t, err)
		assert.True(t, inTx.ScheduledOutflows.Equal(decimal.NewFromInt(100)))

		require.NoError(t, tx.Commit())

		account, err := store.GetBankAccount(ctx, "acc-1")
		require.NoError(t, err)
		assert.True(t, account.ScheduledOutflows.Equal(decimal.NewFromInt(100)))

		_, err = store.GetRecurring(ctx, "rec-commit")
		assert.NoError(t, err)
	})
}

func TestRetryable(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	locked := sqlite3.Error{Code: sqlite3.ErrLocked}
	constraint := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}

	assert.True(t, common.IsRetryable(retryable(fmt.Errorf("exec: %w", busy))))
	assert.True(t, common.IsRetryable(retryable(locked)))
	assert.False(t, common.IsRetryable(retryable(constraint)))
	assert.False(t, common.IsRetryable(retryable(errors.New("boom"))))
	assert.NoError(t, retryable(nil))

	assert.True(t, isConstraint(fmt.Errorf("wrapped: %w", constraint), sqlite3.ErrConstraintCheck))
	assert.False(t, isConstraint(busy, sqlite3.ErrConstraintCheck))
}
