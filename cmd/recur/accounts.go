package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/recurrent/internal/accounts"
	"github.com/Veraticus/recurrent/internal/cli"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account"},
		Short:   "Manage bank accounts",
	}
	cmd.AddCommand(accountsCreateCmd())
	cmd.AddCommand(accountsListCmd())
	cmd.AddCommand(accountsShowCmd())
	cmd.AddCommand(accountsSetBalanceCmd())
	return cmd
}

// withAccounts opens storage and hands the command an account service for the
// acting user.
func withAccounts(cmd *cobra.Command, fn func(svc *accounts.Service, userID string, enc *cli.Encoder) error) error {
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

	return fn(accounts.NewService(store), userID, enc)
}

func accountsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Open a bank account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			currency, _ := cmd.Flags().GetString("currency")
			balanceText, _ := cmd.Flags().GetString("balance")

			balance, err := parseAmount(balanceText)
			if err != nil {
				return err
			}

			return withAccounts(cmd, func(svc *accounts.Service, userID string, enc *cli.Encoder) error {
				account, err := svc.OpenAccount(cmd.Context(), userID, accounts.OpenAccountInput{
					Name:           args[0],
					Currency:       currency,
					CurrentBalance: balance,
				})
				if err != nil {
					return err
				}
				if enc.Structured() {
					return enc.Value(account)
				}
				printSuccess(cmd, enc, "Opened account %s (%s)", account.Name, account.ID)
				return nil
			})
		},
	}

	cmd.Flags().String("currency", "USD", "ISO 4217 currency code")
	cmd.Flags().String("balance", "0", "opening balance")

	return cmd
}

func accountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your bank accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAccounts(cmd, func(svc *accounts.Service, userID string, enc *cli.Encoder) error {
				list, err := svc.ListAccounts(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return enc.Accounts(list)
			})
		},
	}
}

func accountsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ACCOUNT_ID",
		Short: "Show an account and its projected available balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(cmd, func(svc *accounts.Service, userID string, enc *cli.Encoder) error {
				account, err := svc.GetAccount(cmd.Context(), userID, args[0])
				if err != nil {
					return err
				}
				if enc.Structured() {
					return enc.Value(account)
				}

				content := fmt.Sprintf("Current balance:    %s\nScheduled inflows:  %s\nScheduled outflows: %s\nAvailable balance:  %s",
					cli.FormatAmount(account.CurrentBalance, account.Currency),
					cli.FormatAmount(account.ScheduledInflows, account.Currency),
					cli.FormatAmount(account.ScheduledOutflows, account.Currency),
					cli.FormatAmount(account.AvailableBalance(), account.Currency))
				_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(account.Name, content))
				return err
			})
		},
	}
}

func accountsSetBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-balance ACCOUNT_ID AMOUNT",
		Short: "Record the account's current balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			balance, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return withAccounts(cmd, func(svc *accounts.Service, userID string, enc *cli.Encoder) error {
				if err := svc.SetBalance(cmd.Context(), userID, args[0], balance); err != nil {
					return err
				}
				printSuccess(cmd, enc, "Balance updated")
				return nil
			})
		},
	}
}
