package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the base period of a recurring series.
type Frequency string

// Supported frequencies.
const (
	FrequencyWeekly      Frequency = "WEEKLY"
	FrequencyBiweekly    Frequency = "BIWEEKLY"
	FrequencySemiMonthly Frequency = "SEMI_MONTHLY"
	FrequencyMonthly     Frequency = "MONTHLY"
	FrequencyAnnually    Frequency = "ANNUALLY"
	FrequencyIrregular   Frequency = "IRREGULAR"
)

// Frequencies lists every valid frequency.
var Frequencies = []Frequency{
	FrequencyWeekly,
	FrequencyBiweekly,
	FrequencySemiMonthly,
	FrequencyMonthly,
	FrequencyAnnually,
	FrequencyIrregular,
}

// Valid reports whether f belongs to the closed frequency set.
func (f Frequency) Valid() bool {
	for _, known := range Frequencies {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFrequency parses a frequency name case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown frequency %q", s)
	}
	return f, nil
}

// maxCycleDays bounds how far apart two occurrences of a series may be.
const maxCycleDays = 36525

// MaxInterval returns the largest interval whose cycle spans at most a century.
func (f Frequency) MaxInterval() int {
	switch f {
	case FrequencyWeekly:
		return maxCycleDays / 7
	case FrequencyBiweekly:
		return maxCycleDays / 14
	case FrequencySemiMonthly, FrequencyMonthly:
		return 1200
	case FrequencyAnnually:
		return 100
	default:
		return maxCycleDays
	}
}

// RecurringStatus is the lifecycle state of a series.
type RecurringStatus string

// Lifecycle states. CANCELLED is terminal.
const (
	StatusActive    RecurringStatus = "ACTIVE"
	StatusPaused    RecurringStatus = "PAUSED"
	StatusCancelled RecurringStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s RecurringStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (RecurringStatus, error) {
	status := RecurringStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return status, nil
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Re-applying the current status is a no-op and allowed, except on CANCELLED.
func (s RecurringStatus) CanTransitionTo(next RecurringStatus) bool {
	switch s {
	case StatusActive:
		return next == StatusActive || next == StatusPaused || next == StatusCancelled
	case StatusPaused:
		return next == StatusActive || next == StatusPaused || next == StatusCancelled
	default:
		return false
	}
}

// LastWeekOfMonth is the WeekOfMonth value meaning "the last such weekday".
const LastWeekOfMonth = -1

// Anchors pin a schedule to calendar positions. Which anchors matter depends on the
// frequency; unset anchors are nil.
type Anchors struct {
	DayOfMonth  *int `json:"day_of_month,omitempty" yaml:"day_of_month,omitempty"`
	DayOfWeek   *int `json:"day_of_week,omitempty" yaml:"day_of_week,omitempty"` // 0 = Sunday
	WeekOfMonth *int `json:"week_of_month,omitempty" yaml:"week_of_month,omitempty"`
	MonthOfYear *int `json:"month_of_year,omitempty" yaml:"month_of_year,omitempty"`
}

// RecurringTransaction is a persisted recurring payment schedule.
type RecurringTransaction struct {
	Anchors `yaml:",inline"`

	StartDate              time.Time       `json:"start_date" yaml:"start_date"`
	NextScheduledDate      time.Time       `json:"next_scheduled_date" yaml:"next_scheduled_date"`
	CreatedAt              time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at" yaml:"updated_at"`
	EndDate                *time.Time      `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	TargetAccountID        *string         `json:"target_account_id,omitempty" yaml:"target_account_id,omitempty"`
	AssignedTo             *string         `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
	ID                     string          `json:"id" yaml:"id"`
	BankAccountID          string          `json:"bank_account_id" yaml:"bank_account_id"`
	Title                  string          `json:"title" yaml:"title"`
	Currency               string          `json:"currency" yaml:"currency"`
	MerchantName           string          `json:"merchant_name,omitempty" yaml:"merchant_name,omitempty"`
	MerchantID             string          `json:"merchant_id,omitempty" yaml:"merchant_id,omitempty"`
	CategorySlug           string          `json:"category_slug,omitempty" yaml:"category_slug,omitempty"`
	Notes                  string          `json:"notes,omitempty" yaml:"notes,omitempty"`
	LastModifiedBy         string          `json:"last_modified_by" yaml:"last_modified_by"`
	Frequency              Frequency       `json:"frequency" yaml:"frequency"`
	Status                 RecurringStatus `json:"status" yaml:"status"`
	Tags                   []string        `json:"tags,omitempty" yaml:"tags,omitempty"`
	Amount                 decimal.Decimal `json:"amount" yaml:"amount"`
	TotalExecuted          decimal.Decimal `json:"total_executed" yaml:"total_executed"`
	InitialAccountBalance  decimal.Decimal `json:"initial_account_balance" yaml:"initial_account_balance"`
	Interval               int             `json:"interval" yaml:"interval"`
	ExecutionCount         int             `json:"execution_count" yaml:"execution_count"`
	IsVariable             bool            `json:"is_variable" yaml:"is_variable"`
	IsAutomated            bool            `json:"is_automated" yaml:"is_automated"`
	RequiresApproval       bool            `json:"requires_approval" yaml:"requires_approval"`
	AffectAvailableBalance bool            `json:"affect_available_balance" yaml:"affect_available_balance"`
}

// IsTerminal reports whether the series can no longer be edited.
func (r *RecurringTransaction) IsTerminal() bool {
	return r.Status == StatusCancelled
}

// Clone returns a deep copy so callers can diff before/after states.
func (r *RecurringTransaction) Clone() *RecurringTransaction {
	if r == nil {
		return nil
	}
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	c.EndDate = clonePtr(r.EndDate)
	c.TargetAccountID = clonePtr(r.TargetAccountID)
	c.AssignedTo = clonePtr(r.AssignedTo)
	c.DayOfMonth = clonePtr(r.DayOfMonth)
	c.DayOfWeek = clonePtr(r.DayOfWeek)
	c.WeekOfMonth = clonePtr(r.WeekOfMonth)
	c.MonthOfYear = clonePtr(r.MonthOfYear)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
