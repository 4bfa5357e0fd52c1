// Package model defines the core data structures for the recurring transaction engine.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single normalized bank transaction.
type Transaction struct {
	Date                   time.Time
	RecurringTransactionID *string // Back-reference stamped once matched to a series
	ID                     string
	BankAccountID          string
	Name                   string // Raw transaction description
	MerchantName           string // Cleaned merchant name, optional
	Hash                   string
	Amount                 decimal.Decimal // Negative is an outflow, positive an inflow
}

// MerchantKey returns the identity used to group transactions by payee.
func (t *Transaction) MerchantKey() string {
	if name := strings.TrimSpace(t.MerchantName); name != "" {
		return name
	}
	return strings.TrimSpace(t.Name)
}

// IsOutflow reports whether money leaves the account.
func (t *Transaction) IsOutflow() bool {
	return t.Amount.IsNegative()
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.MerchantKey(),
		t.BankAccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
