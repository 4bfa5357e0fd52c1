package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/recurrent/internal/cli"
	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/config"
	"github.com/Veraticus/recurrent/internal/storage"
)

// loadedConfig is populated by initConfig before any command runs.
var loadedConfig *config.Config

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := config.DefaultDatabasePath()
	if loadedConfig != nil {
		dbPath = loadedConfig.DatabasePath
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// actingUser returns the user every command acts on behalf of.
func actingUser() (string, error) {
	userID := strings.TrimSpace(viper.GetString("user"))
	if userID == "" {
		return "", common.NewUserError("no user selected, pass --user or set RECUR_USER", common.ErrForbidden)
	}
	return userID, nil
}

func newEncoder(cmd *cobra.Command) (*cli.Encoder, error) {
	format, err := cli.ParseFormat(viper.GetString("output"))
	if err != nil {
		return nil, err
	}
	return cli.NewEncoder(cmd.OutOrStdout(), format), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, common.Validationf("invalid amount %q", s)
	}
	return amount, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, common.Validationf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// printSuccess writes a success line unless structured output is selected, in
// which case stdout is reserved for the encoded value.
func printSuccess(cmd *cobra.Command, enc *cli.Encoder, format string, args ...any) {
	if enc != nil && enc.Structured() {
		fmt.Fprintln(os.Stderr, cli.FormatSuccess(fmt.Sprintf(format, args...)))
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(format, args...)))
}
