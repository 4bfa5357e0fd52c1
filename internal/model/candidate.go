package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurringCandidate is an unpersisted suggestion produced by the pattern detector.
// It only becomes a RecurringTransaction when a caller accepts it.
type RecurringCandidate struct {
	StartDate         time.Time       `json:"start_date" yaml:"start_date"`
	NextScheduledDate time.Time       `json:"next_scheduled_date" yaml:"next_scheduled_date"`
	LastDate          time.Time       `json:"last_date" yaml:"last_date"`
	DayOfMonth        *int            `json:"day_of_month,omitempty" yaml:"day_of_month,omitempty"`
	DayOfWeek         *int            `json:"day_of_week,omitempty" yaml:"day_of_week,omitempty"`
	BankAccountID     string          `json:"bank_account_id" yaml:"bank_account_id"`
	Title             string          `json:"title" yaml:"title"`
	Frequency         Frequency       `json:"frequency" yaml:"frequency"`
	TransactionIDs    []string        `json:"transaction_ids" yaml:"transaction_ids"`
	Amount            decimal.Decimal `json:"amount" yaml:"amount"`
	AverageInterval   float64         `json:"average_interval_days" yaml:"average_interval_days"`
	IntervalStdDev    float64         `json:"interval_std_dev" yaml:"interval_std_dev"`
	ConfidenceScore   float64         `json:"confidence_score" yaml:"confidence_score"`
	Interval          int             `json:"interval" yaml:"interval"`
	Occurrences       int             `json:"occurrences" yaml:"occurrences"`
	IsVariable        bool            `json:"is_variable" yaml:"is_variable"`
}

// Anchors returns the schedule anchors implied by the candidate.
func (c *RecurringCandidate) Anchors() Anchors {
	return Anchors{
		DayOfMonth: c.DayOfMonth,
		DayOfWeek:  c.DayOfWeek,
	}
}
