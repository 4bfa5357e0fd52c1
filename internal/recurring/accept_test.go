package recurring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/detection"
	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/service"
)

// seedNetflix stores six monthly charges on the account and returns them.
func seedNetflix(t *testing.T, f *fixture) []model.Transaction {
	t.Helper()

	var txns []model.Transaction
	for i := 0; i < 6; i++ {
		txns = append(txns, model.Transaction{
			ID:            fmt.Sprintf("netflix-%d", i),
			BankAccountID: f.account.ID,
			Date:          date(2026, time.Month(4+i), 29),
			Name:          "NETFLIX.COM 866-579-7172",
			MerchantName:  "Netflix",
			Amount:        decimal.RequireFromString("-15.99"),
		})
	}
	require.NoError(t, f.db.Storage.SaveTransactions(context.Background(), txns))
	return txns
}

func detectOne(t *testing.T, f *fixture) model.RecurringCandidate {
	t.Helper()
	ctx := context.Background()

	stored, err := f.db.Storage.GetTransactions(ctx, service.TransactionFilter{UserID: f.user.ID})
	require.NoError(t, err)

	detector := detection.NewDetector(detection.WithClock(func() time.Time { return testNow }))
	candidates, err := detector.Detect(ctx, stored, detection.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	return candidates[0]
}

func TestManager_AcceptCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txns := seedNetflix(t, f)
	candidate := detectOne(t, f)

	r, err := f.mgr.AcceptCandidate(ctx, f.user.ID, candidate, AcceptOptions{
		CategorySlug:           "subscriptions",
		Tags:                   []string{"streaming"},
		AffectAvailableBalance: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Netflix", r.Title)
	assert.Equal(t, "Netflix", r.MerchantName)
	assert.Equal(t, model.FrequencyMonthly, r.Frequency)
	assert.Equal(t, 1, r.Interval)
	assert.True(t, r.Amount.Equal(decimal.RequireFromString("-15.99")))
	assert.Equal(t, date(2026, 4, 29), r.StartDate)
	assert.Equal(t, date(2026, 10, 29), r.NextScheduledDate)
	require.NotNil(t, r.DayOfMonth)
	assert.Equal(t, 29, *r.DayOfMonth)
	assert.Equal(t, "subscriptions", r.CategorySlug)
	assert.Equal(t, []string{"streaming"}, r.Tags)
	f.assertCounters(t, f.account.ID, "0", "15.99")

	linked, err := f.db.Storage.GetTransactions(ctx, service.TransactionFilter{BankAccountID: f.account.ID})
	require.NoError(t, err)
	require.Len(t, linked, len(txns))
	for _, txn := range linked {
		require.NotNil(t, txn.RecurringTransactionID, "transaction %s", txn.ID)
		assert.Equal(t, r.ID, *txn.RecurringTransactionID)
	}
}

func TestManager_AcceptCandidateCustomTitle(t *testing.T) {
	f := newFixture(t)
	seedNetflix(t, f)
	candidate := detectOne(t, f)

	r, err := f.mgr.AcceptCandidate(context.Background(), f.user.ID, candidate, AcceptOptions{Title: "Streaming"})
	require.NoError(t, err)
	assert.Equal(t, "Streaming", r.Title)
	assert.Equal(t, "Netflix", r.MerchantName)
	f.assertCounters(t, f.account.ID, "0", "0")
}

func TestManager_AcceptCandidateFailures(t *testing.T) {
	tests := []struct {
		mutate  func(t *testing.T, f *fixture, c *model.RecurringCandidate)
		wantErr error
		name    string
	}{
		{
			name:    "no matched transactions",
			mutate:  func(_ *testing.T, _ *fixture, c *model.RecurringCandidate) { c.TransactionIDs = nil },
			wantErr: common.ErrValidation,
		},
		{
			name: "unknown transaction",
			mutate: func(_ *testing.T, _ *fixture, c *model.RecurringCandidate) {
				c.TransactionIDs = append(c.TransactionIDs, "missing-transaction")
			},
			wantErr: common.ErrValidation,
		},
		{
			name: "transaction on another of the user's accounts",
			mutate: func(t *testing.T, f *fixture, c *model.RecurringCandidate) {
				savings := f.db.MustCreateAccount(f.user.ID, "Savings")
				require.NoError(t, f.db.Storage.SaveTransactions(context.Background(), []model.Transaction{{
					ID:            "savings-netflix",
					BankAccountID: savings.ID,
					Date:          date(2026, 10, 1),
					Name:          "NETFLIX.COM",
					Amount:        decimal.RequireFromString("-15.99"),
				}}))
				c.TransactionIDs = append(c.TransactionIDs, "savings-netflix")
			},
			wantErr: common.ErrValidation,
		},
		{
			name: "account owned by someone else",
			mutate: func(_ *testing.T, f *fixture, c *model.RecurringCandidate) {
				other := f.db.MustCreateUser(model.TierFree)
				c.BankAccountID = f.db.MustCreateAccount(other.ID, "Other").ID
			},
			wantErr: common.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			seedNetflix(t, f)
			candidate := detectOne(t, f)
			tt.mutate(t, f, &candidate)

			_, err := f.mgr.AcceptCandidate(ctx, f.user.ID, candidate, AcceptOptions{AffectAvailableBalance: true})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotErrorIs(t, err, common.ErrInternal)

			f.assertCounters(t, f.account.ID, "0", "0")
			list, err := f.mgr.List(ctx, f.user.ID, service.RecurringFilter{})
			require.NoError(t, err)
			assert.Empty(t, list)

			txns, err := f.db.Storage.GetTransactions(ctx, service.TransactionFilter{BankAccountID: f.account.ID})
			require.NoError(t, err)
			for _, txn := range txns {
				assert.Nil(t, txn.RecurringTransactionID)
			}
		})
	}
}

func TestManager_AcceptCandidateAlreadyLinked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedNetflix(t, f)
	candidate := detectOne(t, f)

	first, err := f.mgr.AcceptCandidate(ctx, f.user.ID, candidate, AcceptOptions{AffectAvailableBalance: true})
	require.NoError(t, err)

	_, err = f.mgr.AcceptCandidate(ctx, f.user.ID, candidate, AcceptOptions{AffectAvailableBalance: true})
	require.ErrorIs(t, err, common.ErrConflict)
	assert.NotErrorIs(t, err, common.ErrInternal)

	f.assertCounters(t, f.account.ID, "0", "15.99")
	list, err := f.mgr.List(ctx, f.user.ID, service.RecurringFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)
}

func TestManager_AcceptCandidateLinkFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedNetflix(t, f)
	candidate := detectOne(t, f)

	faulty := &faultyStorage{Storage: f.db.Storage, failOn: "LinkTransactions", remaining: -1, err: assert.AnError}
	_, err := newTestManager(faulty).AcceptCandidate(ctx, f.user.ID, candidate, AcceptOptions{AffectAvailableBalance: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)

	f.assertCounters(t, f.account.ID, "0", "0")
	list, err := f.mgr.List(ctx, f.user.ID, service.RecurringFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
