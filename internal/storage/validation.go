// Package storage provides the data persistence layer for the recurring transaction engine.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/recurrent/internal/model"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrNilParameter        = errors.New("parameter cannot be nil")
	ErrEmptySlice          = errors.New("slice cannot be empty")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrInvalidUser         = errors.New("invalid user")
	ErrInvalidBankAccount  = errors.New("invalid bank account")
	ErrInvalidRecurring    = errors.New("invalid recurring transaction")
	ErrProjectionUnderflow = errors.New("projection counter cannot go below zero")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i, txn := range transactions {
		if err := validateTransaction(&txn); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.Name == "" && txn.MerchantName == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidTransaction)
	}
	if txn.BankAccountID == "" {
		return fmt.Errorf("%w: missing bank account ID", ErrInvalidTransaction)
	}
	if !model.HasMinorUnitPrecision(txn.Amount) {
		return fmt.Errorf("%w: amount %s has more than %d decimal places", ErrInvalidTransaction, txn.Amount, model.MinorUnitExponent)
	}
	return nil
}

// validateUser validates a user.
func validateUser(user *model.User) error {
	if user == nil {
		return fmt.Errorf("%w: user", ErrNilParameter)
	}
	if user.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidUser)
	}
	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("%w: missing email", ErrInvalidUser)
	}
	if !user.Tier.Valid() {
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidUser, user.Tier)
	}
	return nil
}

// validateBankAccount validates a bank account.
func validateBankAccount(account *model.BankAccount) error {
	if account == nil {
		return fmt.Errorf("%w: bank account", ErrNilParameter)
	}
	if account.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidBankAccount)
	}
	if account.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidBankAccount)
	}
	if strings.TrimSpace(account.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidBankAccount)
	}
	if len(account.Currency) != 3 {
		return fmt.Errorf("%w: currency %q must be a 3-letter code", ErrInvalidBankAccount, account.Currency)
	}
	if account.ScheduledInflows.IsNegative() || account.ScheduledOutflows.IsNegative() {
		return fmt.Errorf("%w: projection counters cannot be negative", ErrInvalidBankAccount)
	}
	return nil
}

// validateRecurring validates the persisted shape of a recurring series. Business
// rules live in the recurring package; this only guards the table constraints.
func validateRecurring(r *model.RecurringTransaction) error {
	if r == nil {
		return fmt.Errorf("%w: recurring transaction", ErrNilParameter)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidRecurring)
	}
	if r.BankAccountID == "" {
		return fmt.Errorf("%w: missing bank account ID", ErrInvalidRecurring)
	}
	if !r.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurring, r.Frequency)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecurring, r.Status)
	}
	if r.Interval < 1 || r.Interval > r.Frequency.MaxInterval() {
		return fmt.Errorf("%w: interval %d must be between 1 and %d", ErrInvalidRecurring, r.Interval, r.Frequency.MaxInterval())
	}
	if r.StartDate.IsZero() || r.NextScheduledDate.IsZero() {
		return fmt.Errorf("%w: missing schedule dates", ErrInvalidRecurring)
	}
	return nil
}
