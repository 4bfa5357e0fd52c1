package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
)

func TestCreateInputFromFlags(t *testing.T) {
	cmd := recurringCreateCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--account", "acct-1",
		"--title", "Rent",
		"--amount", "-1500",
		"--frequency", "monthly",
		"--start", "2026-01-01",
		"--end", "2026-12-31",
		"--day-of-month", "1",
		"--tags", "housing,fixed",
		"--affect-balance=false",
	}))

	input, err := createInputFromFlags(cmd.Flags())
	require.NoError(t, err)

	assert.Equal(t, "acct-1", input.BankAccountID)
	assert.Equal(t, "Rent", input.Title)
	assert.True(t, input.Amount.Equal(decimal.NewFromInt(-1500)))
	assert.Equal(t, model.FrequencyMonthly, input.Frequency)
	assert.Equal(t, 1, input.Interval)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), input.StartDate)
	require.NotNil(t, input.EndDate)
	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), *input.EndDate)
	require.NotNil(t, input.DayOfMonth)
	assert.Equal(t, 1, *input.DayOfMonth)
	assert.Nil(t, input.DayOfWeek)
	assert.Nil(t, input.TargetAccountID)
	assert.Equal(t, []string{"housing", "fixed"}, input.Tags)
	assert.False(t, input.AffectAvailableBalance)
}

func TestCreateInputFromFlags_Invalid(t *testing.T) {
	base := []string{"--account", "acct-1", "--title", "Rent"}

	tests := []struct {
		name string
		args []string
	}{
		{name: "bad amount", args: []string{"--amount", "lots", "--frequency", "monthly", "--start", "2026-01-01"}},
		{name: "bad frequency", args: []string{"--amount", "-10", "--frequency", "fortnightly", "--start", "2026-01-01"}},
		{name: "bad start", args: []string{"--amount", "-10", "--frequency", "monthly", "--start", "01/01/2026"}},
		{name: "bad end", args: []string{"--amount", "-10", "--frequency", "monthly", "--start", "2026-01-01", "--end", "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := recurringCreateCmd()
			require.NoError(t, cmd.ParseFlags(append(append([]string{}, base...), tt.args...)))

			_, err := createInputFromFlags(cmd.Flags())
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestUpdateInputFromFlags(t *testing.T) {
	t.Run("only changed flags are set", func(t *testing.T) {
		cmd := recurringUpdateCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--amount", "-1600", "--status", "paused"}))

		input, err := updateInputFromFlags(cmd.Flags())
		require.NoError(t, err)

		require.NotNil(t, input.Amount)
		assert.True(t, input.Amount.Equal(decimal.NewFromInt(-1600)))
		require.NotNil(t, input.Status)
		assert.Equal(t, model.StatusPaused, *input.Status)
		assert.Nil(t, input.Title)
		assert.Nil(t, input.Interval)
		assert.Nil(t, input.AffectAvailableBalance)
		assert.Nil(t, input.StartDate)
		assert.Nil(t, input.Tags)
	})

	t.Run("dates and toggles", func(t *testing.T) {
		cmd := recurringUpdateCmd()
		require.NoError(t, cmd.ParseFlags([]string{
			"--start", "2026-09-20",
			"--affect-balance=false",
			"--clear-end",
			"--day-of-month", "20",
		}))

		input, err := updateInputFromFlags(cmd.Flags())
		require.NoError(t, err)

		require.NotNil(t, input.StartDate)
		assert.Equal(t, time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC), *input.StartDate)
		assert.Nil(t, input.EndDate)
		require.NotNil(t, input.AffectAvailableBalance)
		assert.False(t, *input.AffectAvailableBalance)
		assert.True(t, input.ClearEndDate)
		require.NotNil(t, input.DayOfMonth)
		assert.Equal(t, 20, *input.DayOfMonth)
	})

	t.Run("empty tags clear", func(t *testing.T) {
		cmd := recurringUpdateCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--tags", ""}))

		input, err := updateInputFromFlags(cmd.Flags())
		require.NoError(t, err)
		assert.NotNil(t, input.Tags)
		assert.Empty(t, input.Tags)
	})

	t.Run("bad status", func(t *testing.T) {
		cmd := recurringUpdateCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--status", "archived"}))

		_, err := updateInputFromFlags(cmd.Flags())
		assert.ErrorIs(t, err, common.ErrValidation)
	})
}

func TestOptionalArg(t *testing.T) {
	assert.Empty(t, optionalArg(nil))
	assert.Equal(t, "groceries", optionalArg([]string{"groceries"}))
}
