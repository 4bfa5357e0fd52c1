package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/recurrent/internal/accounts"
	"github.com/Veraticus/recurrent/internal/cli"
	"github.com/Veraticus/recurrent/internal/detection"
	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/recurring"
	"github.com/Veraticus/recurrent/internal/service"
)

func detectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect recurring series in imported transactions",
		Long: `Scan imported transactions for merchants that charge or pay on a regular
schedule and list them as candidates.

Transactions already linked to a series are ignored. With --accept every
candidate becomes a series; with --interactive each one is reviewed in turn.`,
		Args: cobra.NoArgs,
		RunE: runDetect,
	}

	cmd.Flags().String("account", "", "only scan this bank account")
	cmd.Flags().Bool("accept", false, "create a series for every candidate")
	cmd.Flags().BoolP("interactive", "i", false, "review candidates one at a time")
	cmd.Flags().Bool("affect-balance", true, "accepted series count toward the account's projections")
	cmd.Flags().Float64("min-confidence", 0, "override detection.min_confidence")
	cmd.Flags().Int("min-occurrences", 0, "override detection.minimum_occurrences")
	cmd.Flags().Int("lookback-days", 0, "override detection.lookback_days")
	cmd.Flags().Float64("merchant-similarity", -1, "override detection.merchant_similarity")
	cmd.MarkFlagsMutuallyExclusive("accept", "interactive")

	return cmd
}

func detectionOptions(cmd *cobra.Command) detection.Options {
	opts := loadedConfig.Detection

	if cmd.Flags().Changed("min-confidence") {
		opts.MinConfidence, _ = cmd.Flags().GetFloat64("min-confidence")
	}
	if cmd.Flags().Changed("min-occurrences") {
		opts.MinimumOccurrences, _ = cmd.Flags().GetInt("min-occurrences")
	}
	if cmd.Flags().Changed("lookback-days") {
		opts.LookbackDays, _ = cmd.Flags().GetInt("lookback-days")
	}
	if cmd.Flags().Changed("merchant-similarity") {
		opts.MerchantSimilarity, _ = cmd.Flags().GetFloat64("merchant-similarity")
	}
	opts.BankAccountID, _ = cmd.Flags().GetString("account")

	return opts
}

func runDetect(cmd *cobra.Command, _ []string) error {
	accept, _ := cmd.Flags().GetBool("accept")
	interactive, _ := cmd.Flags().GetBool("interactive")
	affectBalance, _ := cmd.Flags().GetBool("affect-balance")
	opts := detectionOptions(cmd)

	userID, err := actingUser()
	if err != nil {
		return err
	}
	enc, err := newEncoder(cmd)
	if err != nil {
		return err
	}

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Detection interrupted")
	ctx := handler.HandleInterrupts(cmd.Context())
	defer handler.Stop()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if opts.BankAccountID != "" {
		if _, err := accounts.NewService(store).GetAccount(ctx, userID, opts.BankAccountID); err != nil {
			return err
		}
	}
	manager := recurring.NewManager(store)

	transactions, err := store.GetTransactions(ctx, service.TransactionFilter{
		UserID:        userID,
		BankAccountID: opts.BankAccountID,
	})
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}

	unlinked := transactions[:0]
	for _, txn := range transactions {
		if txn.RecurringTransactionID == nil {
			unlinked = append(unlinked, txn)
		}
	}

	candidates, err := detection.NewDetector().Detect(ctx, unlinked, opts)
	if err != nil {
		return err
	}

	slog.Info("🔎 Detection complete",
		"transactions", len(unlinked),
		"candidates", len(candidates))

	acceptOpts := recurring.AcceptOptions{AffectAvailableBalance: affectBalance}

	switch {
	case accept:
		return acceptCandidates(cmd, enc, manager, userID, candidates, acceptOpts)
	case interactive:
		return reviewCandidates(cmd, manager, userID, candidates, acceptOpts)
	default:
		return enc.Candidates(candidates)
	}
}

func acceptCandidates(cmd *cobra.Command, enc *cli.Encoder, manager *recurring.Manager, userID string, candidates []model.RecurringCandidate, opts recurring.AcceptOptions) error {
	created := make([]model.RecurringTransaction, 0, len(candidates))
	for _, candidate := range candidates {
		series, err := manager.AcceptCandidate(cmd.Context(), userID, candidate, opts)
		if err != nil {
			return fmt.Errorf("failed to accept %q: %w", candidate.Title, err)
		}
		created = append(created, *series)
	}
	return enc.Series(created)
}

func reviewCandidates(cmd *cobra.Command, manager *recurring.Manager, userID string, candidates []model.RecurringCandidate, opts recurring.AcceptOptions) error {
	if len(candidates) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No recurring candidates found"))
		return nil
	}

	ctx := cmd.Context()
	prompter := cli.NewPrompter(os.Stdin, cmd.OutOrStdout())

	for i, candidate := range candidates {
		decision, err := prompter.ReviewCandidate(ctx, i+1, len(candidates), candidate)
		if err != nil {
			if errors.Is(err, cli.ErrInputTerminated) {
				break
			}
			return err
		}
		if decision == cli.DecisionQuit {
			break
		}
		if decision != cli.DecisionAccept {
			continue
		}

		series, err := manager.AcceptCandidate(ctx, userID, candidate, opts)
		if err != nil {
			return fmt.Errorf("failed to accept %q: %w", candidate.Title, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created series %s (%s)", series.Title, series.ID)))
	}

	prompter.ShowCompletion()
	return nil
}
