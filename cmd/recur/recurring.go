package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Veraticus/recurrent/internal/cli"
	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/recurring"
	"github.com/Veraticus/recurrent/internal/schedule"
	"github.com/Veraticus/recurrent/internal/service"
)

func recurringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recurring",
		Aliases: []string{"rec"},
		Short:   "Manage recurring series",
		Long: `Create and maintain recurring bills, subscriptions and income.

Every change keeps the owning account's scheduled inflows and outflows in step
with the series that affect its available balance.`,
	}

	cmd.AddCommand(recurringCreateCmd())
	cmd.AddCommand(recurringUpdateCmd())
	cmd.AddCommand(recurringDeleteCmd())
	cmd.AddCommand(recurringListCmd())
	cmd.AddCommand(recurringShowCmd())
	cmd.AddCommand(recurringStatusCmd("pause", "Pause a series (its projection is kept, see --affect-balance)", (*recurring.Manager).Pause))
	cmd.AddCommand(recurringStatusCmd("resume", "Resume a paused series", (*recurring.Manager).Resume))
	cmd.AddCommand(recurringStatusCmd("cancel", "Cancel a series permanently", (*recurring.Manager).Cancel))
	cmd.AddCommand(recurringTagsCmd())
	cmd.AddCommand(recurringNotesCmd())
	cmd.AddCommand(recurringCategoryCmd())
	cmd.AddCommand(recurringMerchantCmd())
	cmd.AddCommand(recurringAssignCmd())

	return cmd
}

// withManager opens storage and hands the command a lifecycle manager for the
// acting user.
func withManager(cmd *cobra.Command, fn func(m *recurring.Manager, userID string, enc *cli.Encoder) error) error {
	userID, err := actingUser()
	if err != nil {
		return err
	}
	enc, err := newEncoder(cmd)
	if err != nil {
		return err
	}

	store, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(recurring.NewManager(store), userID, enc)
}

// addSeriesFlags registers the flags shared by create and update.
func addSeriesFlags(flags *pflag.FlagSet) {
	flags.String("account", "", "owning bank account")
	flags.String("title", "", "series title")
	flags.String("amount", "", "signed amount per occurrence, negative for outflows")
	flags.String("frequency", "", "WEEKLY, BIWEEKLY, SEMI_MONTHLY, MONTHLY, ANNUALLY or IRREGULAR")
	flags.Int("interval", 1, "number of base periods per cycle")
	flags.String("start", "", "first occurrence (YYYY-MM-DD)")
	flags.String("end", "", "last possible occurrence (YYYY-MM-DD)")
	flags.String("target-account", "", "destination account for transfers")
	flags.String("currency", "", "ISO 4217 currency (defaults to the account's)")
	flags.String("merchant", "", "merchant name")
	flags.String("merchant-id", "", "external merchant id")
	flags.String("category", "", "category slug")
	flags.String("notes", "", "free-form notes")
	flags.StringSlice("tags", nil, "comma-separated tags")
	flags.Int("day-of-month", 0, "anchor day of month (1-31)")
	flags.Int("day-of-week", 0, "anchor weekday (0 = Sunday)")
	flags.Int("week-of-month", 0, "anchor week of month (1-5, or -1 for last)")
	flags.Int("month-of-year", 0, "anchor month (1-12)")
	flags.Bool("variable", false, "amount varies between occurrences")
	flags.Bool("automated", false, "paid automatically")
	flags.Bool("requires-approval", false, "each occurrence needs approval")
	flags.Bool("affect-balance", true, "count toward the account's projections")
}

func recurringCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a recurring series",
		Example: `  recur recurring create --account ACCOUNT_ID --title Rent --amount -1500 \
    --frequency monthly --start 2026-01-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, err := createInputFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			return withManager(cmd, func(m *recurring.Manager, userID string, enc *cli.Encoder) error {
				r, err := m.Create(cmd.Context(), userID, input)
				if err != nil {
					return err
				}
				return showSeries(enc, r)
			})
		},
	}

	addSeriesFlags(cmd.Flags())
	for _, name := range []string{"account", "title", "amount", "frequency", "start"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func createInputFromFlags(flags *pflag.FlagSet) (recurring.CreateInput, error) {
	var input recurring.CreateInput

	amountText, _ := flags.GetString("amount")
	amount, err := parseAmount(amountText)
	if err != nil {
		return input, err
	}
	freqText, _ := flags.GetString("frequency")
	freq, err := model.ParseFrequency(freqText)
	if err != nil {
		return input, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	startText, _ := flags.GetString("start")
	start, err := parseDate(startText)
	if err != nil {
		return input, err
	}

	input.BankAccountID, _ = flags.GetString("account")
	input.Title, _ = flags.GetString("title")
	input.Amount = amount
	input.Frequency = freq
	input.StartDate = start
	input.Interval, _ = flags.GetInt("interval")
	input.Currency, _ = flags.GetString("currency")
	input.MerchantName, _ = flags.GetString("merchant")
	input.MerchantID, _ = flags.GetString("merchant-id")
	input.CategorySlug, _ = flags.GetString("category")
	input.Notes, _ = flags.GetString("notes")
	input.Tags, _ = flags.GetStringSlice("tags")
	input.IsVariable, _ = flags.GetBool("variable")
	input.IsAutomated, _ = flags.GetBool("automated")
	input.RequiresApproval, _ = flags.GetBool("requires-approval")
	input.AffectAvailableBalance, _ = flags.GetBool("affect-balance")

	if flags.Changed("end") {
		endText, _ := flags.GetString("end")
		end, err := parseDate(endText)
		if err != nil {
			return input, err
		}
		input.EndDate = &end
	}
	if flags.Changed("target-account") {
		target, _ := flags.GetString("target-account")
		input.TargetAccountID = &target
	}

	input.DayOfMonth = changedInt(flags, "day-of-month")
	input.DayOfWeek = changedInt(flags, "day-of-week")
	input.WeekOfMonth = changedInt(flags, "week-of-month")
	input.MonthOfYear = changedInt(flags, "month-of-year")

	return input, nil
}

func recurringUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update SERIES_ID",
		Short: "Update fields of a recurring series",
		Long: `Update only the fields whose flags are given.

Changing the amount, the account or the balance flag moves the series'
contribution between projection counters in the same transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := updateInputFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			return withManager(cmd, func(m *recurring.Manager, userID string, enc *cli.Encoder) error {
				r, err := m.Update(cmd.Context(), userID, args[0], input)
				if err != nil {
					return err
				}
				return showSeries(enc, r)
			})
		},
	}

	addSeriesFlags(cmd.Flags())
	cmd.Flags().String("status", "", "ACTIVE, PAUSED or CANCELLED")
	cmd.Flags().Bool("clear-end", false, "remove the end date")
	cmd.Flags().Bool("clear-target", false, "remove the target account")
	cmd.Flags().Bool("clear-anchors", false, "remove all calendar anchors before applying new ones")

	return cmd
}

func updateInputFromFlags(flags *pflag.FlagSet) (recurring.UpdateInput, error) {
	var input recurring.UpdateInput

	if flags.Changed("amount") {
		text, _ := flags.GetString("amount")
		amount, err := parseAmount(text)
		if err != nil {
			return input, err
		}
		input.Amount = &amount
	}
	if flags.Changed("frequency") {
		text, _ := flags.GetString("frequency")
		freq, err := model.ParseFrequency(text)
		if err != nil {
			return input, fmt.Errorf("%w: %w", common.ErrValidation, err)
		}
		input.Frequency = &freq
	}
	if flags.Changed("status") {
		text, _ := flags.GetString("status")
		status, err := model.ParseStatus(text)
		if err != nil {
			return input, fmt.Errorf("%w: %w", common.ErrValidation, err)
		}
		input.Status = &status
	}
	for name, dst := range map[string]**time.Time{"start": &input.StartDate, "end": &input.EndDate} {
		if !flags.Changed(name) {
			continue
		}
		text, _ := flags.GetString(name)
		date, err := parseDate(text)
		if err != nil {
			return input, err
		}
		*dst = &date
	}

	input.BankAccountID = changedString(flags, "account")
	input.TargetAccountID = changedString(flags, "target-account")
	input.Title = changedString(flags, "title")
	input.Currency = changedString(flags, "currency")
	input.MerchantName = changedString(flags, "merchant")
	input.MerchantID = changedString(flags, "merchant-id")
	input.CategorySlug = changedString(flags, "category")
	input.Notes = changedString(flags, "notes")
	input.Interval = changedInt(flags, "interval")
	input.DayOfMonth = changedInt(flags, "day-of-month")
	input.DayOfWeek = changedInt(flags, "day-of-week")
	input.WeekOfMonth = changedInt(flags, "week-of-month")
	input.MonthOfYear = changedInt(flags, "month-of-year")
	input.IsVariable = changedBool(flags, "variable")
	input.IsAutomated = changedBool(flags, "automated")
	input.RequiresApproval = changedBool(flags, "requires-approval")
	input.AffectAvailableBalance = changedBool(flags, "affect-balance")

	if flags.Changed("tags") {
		input.Tags, _ = flags.GetStringSlice("tags")
		if input.Tags == nil {
			input.Tags = []string{}
		}
	}
	input.ClearEndDate, _ = flags.GetBool("clear-end")
	input.ClearTargetAccount, _ = flags.GetBool("clear-target")
	input.ClearAnchors, _ = flags.GetBool("clear-anchors")

	return input, nil
}

func recurringDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete SERIES_ID",
		Short: "Delete a recurring series and release its projection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(m *recurring.Manager, userID string, enc *cli.Encoder) error {
				if err := m.Delete(cmd.Context(), userID, args[0]); err != nil {
					return err
				}
				printSuccess(cmd, enc, "Deleted series %s", args[0])
				return nil
			})
		},
	}
}

func recurringListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recurring series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter service.RecurringFilter
			filter.BankAccountID, _ = cmd.Flags().GetString("account")
			filter.Tag, _ = cmd.Flags().GetString("tag")
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			if cmd.Flags().Changed("status") {
				text, _ := cmd.Flags().GetString("status")
				status, err := model.ParseStatus(text)
				if err != nil {
					return fmt.Errorf("%w: %w", common.ErrValidation, err)
				}
				filter.Status = status
			}

			return withManager(cmd, func(m *recurring.Manager, userID string, enc *cli.Encoder) error {
				list, err := m.List(cmd.Context(), userID, filter)
				if err != nil {
					return err
				}
				return enc.Series(list)
			})
		},
	}

	cmd.Flags().String("account", "", "only series on this account")
	cmd.Flags().String("status", "", "only series in this status")
	cmd.Flags().String("tag", "", "only series carrying this tag")
	cmd.Flags().Int("limit", 0, "maximum number of series (0 = all)")

	return cmd
}

func recurringShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show SERIES_ID",
		Short: "Show a series and its upcoming occurrences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("upcoming")
			return withManager(cmd, func(m *recurring.Manager, userID string, enc *cli.Encoder) error {
				r, err := m.Get(cmd.Context(), userID, args[0])
				if err != nil {
					return err
				}

				var upcoming []time.Time
				if r.Status == model.StatusActive {
					upcoming = schedule.Upcoming(r.NextScheduledDate, r.Frequency, r.Interval, r.Anchors, count, r.EndDate)
				}
				return enc.SeriesDetail(r, upcoming)
			})
		},
	}

	cmd.Flags().Int("upcoming", 5, "number of upcoming occurrences to list")

	return cmd
}

type statusFunc func(m *recurring.Manager, ctx context.Context, userID, id string) (*model.RecurringTransaction, error)

func recurringStatusCmd(use, short string, apply statusFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " SERIES_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(m *recurring.Manager, userID string, enc *cli.Encoder) error {
				r, err := apply(m, cmd.Context(), userID, args[0])
				if err != nil {
					return err
				}
				if enc.Structured() {
					return enc.Value(r)
				}
				printSuccess(cmd, enc, "%s is now %s", r.Title, r.Status)
				return nil
			})
		},
	}
}

func showSeries(enc *cli.Encoder, r *model.RecurringTransaction) error {
	if enc.Structured() {
		return enc.Value(r)
	}
	return enc.SeriesDetail(r, nil)
}

func changedString(flags *pflag.FlagSet, name string) *string {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetString(name)
	return &v
}

func changedInt(flags *pflag.FlagSet, name string) *int {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetInt(name)
	return &v
}

func changedBool(flags *pflag.FlagSet, name string) *bool {
	if !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetBool(name)
	return &v
}
