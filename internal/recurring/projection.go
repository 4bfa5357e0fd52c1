package recurring

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/service"
)

// Contribution is one series' share of its bank account's projection counters.
// Both sides are non-negative magnitudes.
type Contribution struct {
	Inflow  decimal.Decimal
	Outflow decimal.Decimal
}

// ContributionOf returns what r adds to its account's counters. Series that do not
// affect the available balance, and zero amounts, contribute nothing. Status is
// deliberately not consulted: a paused series keeps its contribution.
func ContributionOf(r *model.RecurringTransaction) Contribution {
	c := Contribution{Inflow: decimal.Zero, Outflow: decimal.Zero}
	if r == nil || !r.AffectAvailableBalance {
		return c
	}

	switch r.Amount.Sign() {
	case -1:
		c.Outflow = r.Amount.Abs()
	case 1:
		c.Inflow = r.Amount
	}
	return c
}

// Adjustment is a signed change to one account's projection counters.
type Adjustment struct {
	BankAccountID string
	InflowDelta   decimal.Decimal
	OutflowDelta  decimal.Decimal
}

// IsZero reports whether the adjustment changes nothing.
func (a Adjustment) IsZero() bool {
	return a.InflowDelta.IsZero() && a.OutflowDelta.IsZero()
}

// Reconcile returns the counter adjustments that move the projections from
// before to after. Either side may be nil for create (before == nil) and delete
// (after == nil). On the same account the result is contribution(after) minus
// contribution(before), which covers every sign transition and flag toggle. When
// the series moves between accounts, the old account loses its contribution and
// the new one gains it. Zero adjustments are omitted.
func Reconcile(before, after *model.RecurringTransaction) []Adjustment {
	var adjustments []Adjustment
	add := func(accountID string, inflow, outflow decimal.Decimal) {
		adj := Adjustment{BankAccountID: accountID, InflowDelta: inflow, OutflowDelta: outflow}
		if !adj.IsZero() {
			adjustments = append(adjustments, adj)
		}
	}

	old := ContributionOf(before)
	next := ContributionOf(after)

	switch {
	case before == nil && after == nil:
	case before == nil:
		add(after.BankAccountID, next.Inflow, next.Outflow)
	case after == nil:
		add(before.BankAccountID, old.Inflow.Neg(), old.Outflow.Neg())
	case before.BankAccountID == after.BankAccountID:
		add(after.BankAccountID, next.Inflow.Sub(old.Inflow), next.Outflow.Sub(old.Outflow))
	default:
		add(before.BankAccountID, old.Inflow.Neg(), old.Outflow.Neg())
		add(after.BankAccountID, next.Inflow, next.Outflow)
	}

	return adjustments
}

// applyAdjustments issues each adjustment as one atomic counter update inside q.
func applyAdjustments(ctx context.Context, q service.Queries, adjustments []Adjustment) error {
	for _, adj := range adjustments {
		if err := q.AdjustProjections(ctx, adj.BankAccountID, adj.InflowDelta, adj.OutflowDelta); err != nil {
			return err
		}
	}
	return nil
}
