package detection

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
)

var testNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newTestDetector() *Detector {
	return NewDetector(WithClock(func() time.Time { return testNow }))
}

// series builds transactions for one merchant with the given day gaps.
func series(account, merchant string, start time.Time, amount string, gaps ...int) []model.Transaction {
	date := start
	txns := []model.Transaction{{
		ID:            fmt.Sprintf("%s-%d", merchant, 0),
		BankAccountID: account,
		Name:          "POS " + merchant,
		MerchantName:  merchant,
		Amount:        decimal.RequireFromString(amount),
		Date:          date,
	}}
	for i, gap := range gaps {
		date = date.AddDate(0, 0, gap)
		txns = append(txns, model.Transaction{
			ID:            fmt.Sprintf("%s-%d", merchant, i+1),
			BankAccountID: account,
			Name:          "POS " + merchant,
			MerchantName:  merchant,
			Amount:        decimal.RequireFromString(amount),
			Date:          date,
		})
	}
	return txns
}

func TestDetector_NetflixMonthly(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	txns := series("acc-1", "Netflix", start, "-15.99", 30, 30, 30, 30)

	opts := DefaultOptions()
	opts.MinConfidence = 0.7

	candidates, err := newTestDetector().Detect(context.Background(), txns, opts)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "Netflix", c.Title)
	assert.Equal(t, "acc-1", c.BankAccountID)
	assert.Equal(t, model.FrequencyMonthly, c.Frequency)
	assert.Equal(t, 1, c.Interval)
	assert.False(t, c.IsVariable)
	assert.GreaterOrEqual(t, c.ConfidenceScore, 0.9)
	assert.True(t, c.Amount.Equal(decimal.RequireFromString("-15.99")), "amount %s", c.Amount)
	assert.Equal(t, start, c.StartDate)
	assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), c.LastDate)
	assert.Equal(t, time.Date(2026, 9, 29, 0, 0, 0, 0, time.UTC), c.NextScheduledDate)
	require.NotNil(t, c.DayOfMonth)
	assert.Equal(t, 29, *c.DayOfMonth)
	assert.Nil(t, c.DayOfWeek)
	assert.Equal(t, 5, c.Occurrences)
	assert.Equal(t, []string{"Netflix-0", "Netflix-1", "Netflix-2", "Netflix-3", "Netflix-4"}, c.TransactionIDs)
}

func TestDetector_ClassifiesFromIntervals(t *testing.T) {
	tests := []struct {
		name         string
		gaps         []int
		wantFreq     model.Frequency
		wantInterval int
	}{
		{name: "monthly with jitter", gaps: []int{30, 31, 29, 30}, wantFreq: model.FrequencyMonthly, wantInterval: 1},
		{name: "weekly with jitter", gaps: []int{6, 8, 7}, wantFreq: model.FrequencyWeekly, wantInterval: 1},
		{name: "fortnightly edge", gaps: []int{16, 16, 16}, wantFreq: model.FrequencyBiweekly, wantInterval: 1},
		{name: "every other month", gaps: []int{61, 60, 61}, wantFreq: model.FrequencyMonthly, wantInterval: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := testNow.AddDate(0, 0, -300)
			txns := series("acc-1", "Gym", start, "-40.00", tt.gaps...)

			opts := DefaultOptions()
			opts.MinConfidence = 0

			candidates, err := newTestDetector().Detect(context.Background(), txns, opts)
			require.NoError(t, err)
			require.Len(t, candidates, 1)
			assert.Equal(t, tt.wantFreq, candidates[0].Frequency)
			assert.Equal(t, tt.wantInterval, candidates[0].Interval)
		})
	}
}

func TestDetector_WeeklyCarriesDayOfWeek(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) // Tuesday
	txns := series("acc-1", "Cleaner", start, "-80.00", 7, 7, 7)

	candidates, err := newTestDetector().Detect(context.Background(), txns, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	require.NotNil(t, c.DayOfWeek)
	assert.Equal(t, int(time.Tuesday), *c.DayOfWeek)
	assert.Nil(t, c.DayOfMonth)
	assert.Equal(t, time.Date(2026, 9, 29, 0, 0, 0, 0, time.UTC), c.NextScheduledDate)
}

func TestDetector_MinimumOccurrences(t *testing.T) {
	start := testNow.AddDate(0, 0, -90)
	txns := series("acc-1", "Spotify", start, "-9.99", 30)

	opts := DefaultOptions()
	opts.MinimumOccurrences = 3
	opts.MinConfidence = 0

	candidates, err := newTestDetector().Detect(context.Background(), txns, opts)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDetector_RejectsLowConfidence(t *testing.T) {
	start := testNow.AddDate(0, 0, -200)
	txns := series("acc-1", "Hardware Store", start, "-25.00", 5, 60, 10, 40)

	candidates, err := newTestDetector().Detect(context.Background(), txns, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDetector_VariableAmounts(t *testing.T) {
	start := testNow.AddDate(0, 0, -120)
	txns := series("acc-1", "Electric Co", start, "-50.00", 30, 30, 30)
	txns[1].Amount = decimal.RequireFromString("-80.00")
	txns[2].Amount = decimal.RequireFromString("-65.00")

	candidates, err := newTestDetector().Detect(context.Background(), txns, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.True(t, candidates[0].IsVariable)
	assert.True(t, candidates[0].Amount.Equal(decimal.RequireFromString("-61.25")), "amount %s", candidates[0].Amount)
}

func TestDetector_LookbackAndAccountFilter(t *testing.T) {
	old := series("acc-1", "Old Gym", testNow.AddDate(-3, 0, 0), "-30.00", 30, 30, 30)
	mine := series("acc-1", "Rent", testNow.AddDate(0, -4, 0), "-1500.00", 30, 31, 30)
	other := series("acc-2", "Salary", testNow.AddDate(0, -4, 0), "3000.00", 14, 14, 14, 14)

	all := append(append(append([]model.Transaction{}, old...), mine...), other...)

	opts := DefaultOptions()
	opts.BankAccountID = "acc-1"

	candidates, err := newTestDetector().Detect(context.Background(), all, opts)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Rent", candidates[0].Title)
}

func TestDetector_GroupsPerAccount(t *testing.T) {
	start := testNow.AddDate(0, -5, 0)
	a := series("acc-1", "Insurance", start, "-120.00", 30, 30, 30)
	b := series("acc-2", "Insurance", start.AddDate(0, 0, 3), "-120.00", 30, 30, 30)

	candidates, err := newTestDetector().Detect(context.Background(), append(a, b...), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.ElementsMatch(t, []string{"acc-1", "acc-2"}, []string{candidates[0].BankAccountID, candidates[1].BankAccountID})
}

func TestDetector_FallsBackToName(t *testing.T) {
	txns := series("acc-1", "", testNow.AddDate(0, -4, 0), "-12.00", 30, 30, 30)
	for i := range txns {
		txns[i].Name = "ACH WATER UTILITY"
	}

	candidates, err := newTestDetector().Detect(context.Background(), txns, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "ACH WATER UTILITY", candidates[0].Title)
}

func TestDetector_SameDayGroupIsNotRecurring(t *testing.T) {
	txns := series("acc-1", "Coffee", testNow.AddDate(0, 0, -3), "-4.50", 0, 0, 0)

	opts := DefaultOptions()
	opts.MinConfidence = 0

	candidates, err := newTestDetector().Detect(context.Background(), txns, opts)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDetector_MerchantSimilarity(t *testing.T) {
	start := testNow.AddDate(0, -6, 0)
	txns := series("acc-1", "NETFLIX.COM", start, "-15.99", 30, 30)
	more := series("acc-1", "NETFLIX COM", start.AddDate(0, 0, 90), "-15.99", 30, 30)
	for i := range more {
		more[i].ID = fmt.Sprintf("alt-%d", i)
	}
	all := append(txns, more...)

	opts := DefaultOptions()
	opts.MinimumOccurrences = 4

	candidates, err := newTestDetector().Detect(context.Background(), all, opts)
	require.NoError(t, err)
	assert.Empty(t, candidates, "exact keys keep the two spellings apart")

	opts.MerchantSimilarity = 0.85
	candidates, err = newTestDetector().Detect(context.Background(), all, opts)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "NETFLIX.COM", candidates[0].Title)
	assert.Equal(t, 6, candidates[0].Occurrences)
}

func TestDetector_EmptyInput(t *testing.T) {
	candidates, err := newTestDetector().Detect(context.Background(), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDetector_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "confidence above one", opts: Options{MinConfidence: 1.5, MinimumOccurrences: 3, LookbackDays: 30}},
		{name: "single occurrence", opts: Options{MinConfidence: 0.5, MinimumOccurrences: 1, LookbackDays: 30}},
		{name: "no lookback", opts: Options{MinConfidence: 0.5, MinimumOccurrences: 3, LookbackDays: 0}},
		{name: "similarity above one", opts: Options{MinConfidence: 0.5, MinimumOccurrences: 3, LookbackDays: 30, MerchantSimilarity: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestDetector().Detect(context.Background(), nil, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestDetector_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	txns := series("acc-1", "Netflix", testNow.AddDate(0, -5, 0), "-15.99", 30, 30, 30)

	_, err := newTestDetector().Detect(ctx, txns, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetector_SortsByConfidence(t *testing.T) {
	start := testNow.AddDate(0, -6, 0)
	steady := series("acc-1", "Steady", start, "-10.00", 30, 30, 30, 30)
	shaky := series("acc-1", "Shaky", start, "-10.00", 28, 33, 27, 32)

	opts := DefaultOptions()
	opts.MinConfidence = 0

	candidates, err := newTestDetector().Detect(context.Background(), append(shaky, steady...), opts)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "Steady", candidates[0].Title)
	assert.Greater(t, candidates[0].ConfidenceScore, candidates[1].ConfidenceScore)
}
