package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the principal that owns bank accounts.
type User struct {
	CreatedAt time.Time
	ID        string
	Email     string
	Tier      Tier
}

// BankAccount is the owning account of recurring series. Only the two projection
// counters are mutated by the recurring engine.
type BankAccount struct {
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ID                string
	UserID            string
	Name              string
	Currency          string
	CurrentBalance    decimal.Decimal
	ScheduledInflows  decimal.Decimal
	ScheduledOutflows decimal.Decimal
}

// AvailableBalance is the current balance net of scheduled flows.
func (a *BankAccount) AvailableBalance() decimal.Decimal {
	return a.CurrentBalance.Add(a.ScheduledInflows).Sub(a.ScheduledOutflows)
}

// OwnedBy reports whether userID owns the account.
func (a *BankAccount) OwnedBy(userID string) bool {
	return a != nil && userID != "" && a.UserID == userID
}
