// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/recurrent/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate     *time.Time
	EndDate       *time.Time
	BankAccountID string
	UserID        string
	Limit         int
	Offset        int
}

// RecurringFilter defines filtering options for recurring series queries.
// Zero values match everything.
type RecurringFilter struct {
	UserID        string
	BankAccountID string
	Status        model.RecurringStatus
	Tag           string // Case-insensitive
	Limit         int
	Offset        int
}

// Queries is the set of storage operations available both on the store and inside
// a storage transaction.
type Queries interface {
	// User operations
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)

	// Bank account operations
	CreateBankAccount(ctx context.Context, account *model.BankAccount) error
	GetBankAccount(ctx context.Context, id string) (*model.BankAccount, error)
	ListBankAccounts(ctx context.Context, userID string) ([]model.BankAccount, error)
	CountBankAccountsByUser(ctx context.Context, userID string) (int, error)
	SetCurrentBalance(ctx context.Context, accountID string, balance decimal.Decimal) error
	// AdjustProjections atomically adds the deltas to the account's projection
	// counters. Deltas may be negative; counters never go below zero.
	AdjustProjections(ctx context.Context, accountID string, inflowDelta, outflowDelta decimal.Decimal) error

	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	LinkTransactions(ctx context.Context, recurringID string, transactionIDs []string) error

	// Recurring series operations
	CreateRecurring(ctx context.Context, recurring *model.RecurringTransaction) error
	GetRecurring(ctx context.Context, id string) (*model.RecurringTransaction, error)
	UpdateRecurring(ctx context.Context, recurring *model.RecurringTransaction) error
	DeleteRecurring(ctx context.Context, id string) error
	ListRecurring(ctx context.Context, filter RecurringFilter) ([]model.RecurringTransaction, error)
	CountRecurringByUser(ctx context.Context, userID string) (int, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	Queries

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Queries
	Commit() error
	Rollback() error
}
