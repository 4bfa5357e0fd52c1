package recurring

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/schedule"
)

// CreateInput is the command payload for a new series.
type CreateInput struct {
	model.Anchors

	StartDate              time.Time
	EndDate                *time.Time
	TargetAccountID        *string
	BankAccountID          string
	Title                  string
	Currency               string // Defaults to the account's currency
	MerchantName           string
	MerchantID             string
	CategorySlug           string
	Notes                  string
	Frequency              model.Frequency
	Tags                   []string
	Amount                 decimal.Decimal
	Interval               int
	IsVariable             bool
	IsAutomated            bool
	RequiresApproval       bool
	AffectAvailableBalance bool
}

// UpdateInput is a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	StartDate              *time.Time
	EndDate                *time.Time
	BankAccountID          *string
	TargetAccountID        *string
	Title                  *string
	Currency               *string
	MerchantName           *string
	MerchantID             *string
	CategorySlug           *string
	Notes                  *string
	Frequency              *model.Frequency
	Status                 *model.RecurringStatus
	Amount                 *decimal.Decimal
	Interval               *int
	DayOfMonth             *int
	DayOfWeek              *int
	WeekOfMonth            *int
	MonthOfYear            *int
	IsVariable             *bool
	IsAutomated            *bool
	RequiresApproval       *bool
	AffectAvailableBalance *bool
	Tags                   []string // Full replace when non-nil
	ClearEndDate           bool
	ClearTargetAccount     bool
	ClearAnchors           bool // Drop all anchors before applying any new ones
}

// schedulingChanged reports whether the update touches fields that drive the
// next scheduled date.
func (in *UpdateInput) schedulingChanged() bool {
	return in.Frequency != nil || in.StartDate != nil || in.Interval != nil ||
		in.DayOfMonth != nil || in.DayOfWeek != nil || in.WeekOfMonth != nil ||
		in.MonthOfYear != nil || in.ClearAnchors
}

// apply merges the update into r.
func (in *UpdateInput) apply(r *model.RecurringTransaction) {
	if in.BankAccountID != nil {
		r.BankAccountID = *in.BankAccountID
	}
	if in.ClearTargetAccount {
		r.TargetAccountID = nil
	}
	if in.TargetAccountID != nil {
		target := *in.TargetAccountID
		r.TargetAccountID = &target
	}
	if in.Title != nil {
		r.Title = strings.TrimSpace(*in.Title)
	}
	if in.Amount != nil {
		r.Amount = *in.Amount
	}
	if in.Currency != nil {
		r.Currency = strings.ToUpper(strings.TrimSpace(*in.Currency))
	}
	if in.Frequency != nil {
		r.Frequency = *in.Frequency
	}
	if in.Interval != nil {
		r.Interval = *in.Interval
	}
	if in.StartDate != nil {
		r.StartDate = schedule.Day(*in.StartDate)
	}
	if in.ClearEndDate {
		r.EndDate = nil
	}
	if in.EndDate != nil {
		end := schedule.Day(*in.EndDate)
		r.EndDate = &end
	}
	if in.ClearAnchors {
		r.Anchors = model.Anchors{}
	}
	if in.DayOfMonth != nil {
		r.DayOfMonth = intRef(*in.DayOfMonth)
	}
	if in.DayOfWeek != nil {
		r.DayOfWeek = intRef(*in.DayOfWeek)
	}
	if in.WeekOfMonth != nil {
		r.WeekOfMonth = intRef(*in.WeekOfMonth)
	}
	if in.MonthOfYear != nil {
		r.MonthOfYear = intRef(*in.MonthOfYear)
	}
	if in.Status != nil {
		r.Status = *in.Status
	}
	if in.IsVariable != nil {
		r.IsVariable = *in.IsVariable
	}
	if in.IsAutomated != nil {
		r.IsAutomated = *in.IsAutomated
	}
	if in.RequiresApproval != nil {
		r.RequiresApproval = *in.RequiresApproval
	}
	if in.AffectAvailableBalance != nil {
		r.AffectAvailableBalance = *in.AffectAvailableBalance
	}
	if in.MerchantName != nil {
		r.MerchantName = strings.TrimSpace(*in.MerchantName)
	}
	if in.MerchantID != nil {
		r.MerchantID = strings.TrimSpace(*in.MerchantID)
	}
	if in.CategorySlug != nil {
		r.CategorySlug = strings.TrimSpace(*in.CategorySlug)
	}
	if in.Notes != nil {
		r.Notes = *in.Notes
	}
	if in.Tags != nil {
		r.Tags = model.NormalizeTags(in.Tags)
	}
}

// validateSeries checks the business rules every persisted series satisfies.
func validateSeries(r *model.RecurringTransaction) error {
	if r.Title == "" {
		return common.Validationf("title is required")
	}
	if !r.Frequency.Valid() {
		return common.Validationf("unknown frequency %q", r.Frequency)
	}
	if r.Interval < 1 {
		return common.Validationf("interval %d must be at least 1", r.Interval)
	}
	if limit := r.Frequency.MaxInterval(); r.Interval > limit {
		return common.Validationf("interval %d exceeds %d for %s", r.Interval, limit, r.Frequency)
	}
	if !model.HasMinorUnitPrecision(r.Amount) {
		return common.Validationf("amount %s has more than %d decimal places", r.Amount, model.MinorUnitExponent)
	}
	if len(r.Currency) != 3 || strings.ToUpper(r.Currency) != r.Currency {
		return common.Validationf("currency %q must be a 3-letter ISO code", r.Currency)
	}
	if r.StartDate.IsZero() {
		return common.Validationf("start date is required")
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return common.Validationf("end date %s is before start date %s",
			r.EndDate.Format(time.DateOnly), r.StartDate.Format(time.DateOnly))
	}
	if r.TargetAccountID != nil && *r.TargetAccountID == r.BankAccountID {
		return common.Validationf("target account must differ from the bank account")
	}
	if !r.Status.Valid() {
		return common.Validationf("unknown status %q", r.Status)
	}
	return schedule.ValidateAnchors(r.Anchors)
}

func intRef(v int) *int {
	return &v
}
