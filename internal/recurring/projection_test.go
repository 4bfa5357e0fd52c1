package recurring

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/recurrent/internal/model"
)

func series(accountID, amount string, affects bool) *model.RecurringTransaction {
	return &model.RecurringTransaction{
		BankAccountID:          accountID,
		Amount:                 decimal.RequireFromString(amount),
		AffectAvailableBalance: affects,
	}
}

func TestContributionOf(t *testing.T) {
	tests := []struct {
		r           *model.RecurringTransaction
		name        string
		wantInflow  string
		wantOutflow string
	}{
		{name: "outflow", r: series("a", "-1500.00", true), wantInflow: "0", wantOutflow: "1500"},
		{name: "inflow", r: series("a", "3200.50", true), wantInflow: "3200.50", wantOutflow: "0"},
		{name: "zero amount", r: series("a", "0", true), wantInflow: "0", wantOutflow: "0"},
		{name: "flag off", r: series("a", "-99.99", false), wantInflow: "0", wantOutflow: "0"},
		{name: "nil series", r: nil, wantInflow: "0", wantOutflow: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ContributionOf(tt.r)
			assert.True(t, c.Inflow.Equal(decimal.RequireFromString(tt.wantInflow)), "inflow %s", c.Inflow)
			assert.True(t, c.Outflow.Equal(decimal.RequireFromString(tt.wantOutflow)), "outflow %s", c.Outflow)
		})
	}
}

func TestContributionOf_IgnoresStatus(t *testing.T) {
	r := series("a", "-50", true)
	for _, status := range []model.RecurringStatus{model.StatusActive, model.StatusPaused, model.StatusCancelled} {
		r.Status = status
		assert.True(t, ContributionOf(r).Outflow.Equal(decimal.NewFromInt(50)), "status %s", status)
	}
}

func TestReconcile(t *testing.T) {
	type delta struct {
		account string
		inflow  string
		outflow string
	}

	tests := []struct {
		before *model.RecurringTransaction
		after  *model.RecurringTransaction
		name   string
		want   []delta
	}{
		{
			name:  "create outflow",
			after: series("a", "-1500", true),
			want:  []delta{{account: "a", inflow: "0", outflow: "1500"}},
		},
		{
			name:   "delete inflow",
			before: series("a", "300", true),
			want:   []delta{{account: "a", inflow: "-300", outflow: "0"}},
		},
		{
			name:   "outflow grows",
			before: series("a", "-1500", true),
			after:  series("a", "-1800", true),
			want:   []delta{{account: "a", inflow: "0", outflow: "300"}},
		},
		{
			name:   "outflow shrinks",
			before: series("a", "-1800", true),
			after:  series("a", "-1200", true),
			want:   []delta{{account: "a", inflow: "0", outflow: "-600"}},
		},
		{
			name:   "inflow to inflow",
			before: series("a", "1000", true),
			after:  series("a", "1250.25", true),
			want:   []delta{{account: "a", inflow: "250.25", outflow: "0"}},
		},
		{
			name:   "outflow to inflow",
			before: series("a", "-1200", true),
			after:  series("a", "300", true),
			want:   []delta{{account: "a", inflow: "300", outflow: "-1200"}},
		},
		{
			name:   "inflow to outflow",
			before: series("a", "300", true),
			after:  series("a", "-1200", true),
			want:   []delta{{account: "a", inflow: "-300", outflow: "1200"}},
		},
		{
			name:   "flag switched off",
			before: series("a", "-40", true),
			after:  series("a", "-40", false),
			want:   []delta{{account: "a", inflow: "0", outflow: "-40"}},
		},
		{
			name:   "flag switched on with new amount",
			before: series("a", "-40", false),
			after:  series("a", "-45", true),
			want:   []delta{{account: "a", inflow: "0", outflow: "45"}},
		},
		{
			name:   "moved between accounts",
			before: series("a", "-1500", true),
			after:  series("b", "-1500", true),
			want: []delta{
				{account: "a", inflow: "0", outflow: "-1500"},
				{account: "b", inflow: "0", outflow: "1500"},
			},
		},
		{
			name:   "unchanged",
			before: series("a", "-1500", true),
			after:  series("a", "-1500", true),
		},
		{
			name:   "never affected balance",
			before: series("a", "-10", false),
			after:  series("b", "20", false),
		},
		{
			name: "nothing on either side",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.before, tt.after)
			require.Len(t, got, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want.account, got[i].BankAccountID)
				assert.True(t, got[i].InflowDelta.Equal(decimal.RequireFromString(want.inflow)),
					"inflow delta %s, want %s", got[i].InflowDelta, want.inflow)
				assert.True(t, got[i].OutflowDelta.Equal(decimal.RequireFromString(want.outflow)),
					"outflow delta %s, want %s", got[i].OutflowDelta, want.outflow)
			}
		})
	}
}

func TestReconcile_RoundTrip(t *testing.T) {
	amounts := []string{"-1500", "300", "0", "-0.01", "999999.99"}
	for _, amount := range amounts {
		r := series("a", amount, true)

		sum := Contribution{Inflow: decimal.Zero, Outflow: decimal.Zero}
		for _, adj := range append(Reconcile(nil, r), Reconcile(r, nil)...) {
			sum.Inflow = sum.Inflow.Add(adj.InflowDelta)
			sum.Outflow = sum.Outflow.Add(adj.OutflowDelta)
		}
		assert.True(t, sum.Inflow.IsZero(), "amount %s", amount)
		assert.True(t, sum.Outflow.IsZero(), "amount %s", amount)
	}
}
