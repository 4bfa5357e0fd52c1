package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/recurrent/internal/accounts"
	"github.com/Veraticus/recurrent/internal/cli"
	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/ofx"
)

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-ofx [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import transactions from OFX or QFX (Quicken) files exported from your bank.

Imported transactions feed recurring series detection. Re-importing the same
statement is safe: transactions are identified by the bank's FITID.

Examples:
  # Import single file
  recur import-ofx --account ACCOUNT_ID ~/Downloads/chase_jan_2026.qfx

  # Import every statement in a directory and record the closing balance
  recur import-ofx --account ACCOUNT_ID --update-balance ~/Downloads/Chase/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}

	cmd.Flags().String("account", "", "bank account the statements belong to (required)")
	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")
	cmd.Flags().Bool("update-balance", false, "Set the account balance from the newest statement's ledger balance")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	accountID, _ := cmd.Flags().GetString("account")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	updateBalance, _ := cmd.Flags().GetBool("update-balance")

	userID, err := actingUser()
	if err != nil {
		return err
	}

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Import interrupted, nothing further will be saved")
	ctx := handler.HandleInterrupts(cmd.Context())
	defer handler.Stop()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := accounts.NewService(store)
	account, err := svc.GetAccount(ctx, userID, accountID)
	if err != nil {
		return err
	}

	slog.Info("📥 Importing OFX files...",
		"account", account.Name,
		"file_count", len(files),
		"dry_run", dryRun)

	transactions, latest, err := parseStatements(ctx, cmd, files, account.ID)
	if err != nil {
		return err
	}

	if len(transactions) == 0 {
		slog.Warn("No transactions found in any file")
		return nil
	}

	if dryRun {
		slog.Info("🔍 Dry run complete - no data saved", "transactions", len(transactions))
		return nil
	}

	if err := store.SaveTransactions(ctx, transactions); err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}

	if updateBalance && latest != nil && latest.LedgerBalance != nil {
		if err := svc.SetBalance(ctx, userID, account.ID, *latest.LedgerBalance); err != nil {
			return err
		}
		slog.Info("Updated account balance",
			"balance", latest.LedgerBalance.StringFixed(2),
			"as_of", latest.BalanceAsOf.Format("2006-01-02"))
	}

	printSuccess(cmd, nil, "Imported %d transactions into %s", len(transactions), account.Name)
	return nil
}

// expandFiles resolves glob patterns, keeping literal paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) > 0 {
			files = append(files, matches...)
			continue
		}
		if _, err := os.Stat(pattern); err == nil {
			files = append(files, pattern)
		} else {
			slog.Warn("No files found matching pattern", "pattern", pattern)
		}
	}

	if len(files) == 0 {
		return nil, errors.New("no files found to import")
	}
	return files, nil
}

// parseStatements parses every file, dropping transactions repeated across files.
// It also returns the statement with the newest balance date.
func parseStatements(ctx context.Context, cmd *cobra.Command, files []string, accountID string) ([]model.Transaction, *ofx.Statement, error) {
	parser := ofx.NewParser()
	bar := cli.NewProgressBar(cmd.ErrOrStderr(), len(files), "Parsing statements...")

	var (
		all    []model.Transaction
		latest *ofx.Statement
	)
	seen := make(map[string]bool)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		statement, err := parseStatementFile(ctx, parser, path, accountID)
		_ = bar.Add(1)
		if err != nil {
			slog.Error("Failed to parse OFX file", "file", path, "error", err)
			continue
		}

		added := 0
		for _, txn := range statement.Transactions {
			if seen[txn.ID] {
				continue
			}
			seen[txn.ID] = true
			all = append(all, txn)
			added++
		}

		if latest == nil || statement.BalanceAsOf.After(latest.BalanceAsOf) {
			latest = statement
		}

		slog.Debug("Processed file",
			"file", filepath.Base(path),
			"transactions_found", len(statement.Transactions),
			"added", added,
			"duplicates", len(statement.Transactions)-added)
	}

	return all, latest, nil
}

func parseStatementFile(ctx context.Context, parser *ofx.Parser, path, accountID string) (*ofx.Statement, error) {
	f, err := os.Open(path) //nolint:gosec // paths come from the user's own arguments
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return parser.ParseFile(ctx, f, accountID)
}
