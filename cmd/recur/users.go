package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/recurrent/internal/accounts"
	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
)

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}
	cmd.AddCommand(usersCreateCmd())
	return cmd
}

func usersCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user on a plan tier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			tierName, _ := cmd.Flags().GetString("tier")

			tier, err := model.ParseTier(tierName)
			if err != nil {
				return fmt.Errorf("%w: %w", common.ErrValidation, err)
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			user, err := accounts.NewService(store).CreateUser(ctx, email, tier)
			if err != nil {
				return err
			}

			enc, err := newEncoder(cmd)
			if err != nil {
				return err
			}
			if enc.Structured() {
				return enc.Value(user)
			}
			printSuccess(cmd, enc, "Created %s user %s (%s)", user.Tier, user.ID, user.Email)
			return nil
		},
	}

	cmd.Flags().String("email", "", "email address (required)")
	cmd.Flags().String("tier", string(model.TierFree), "plan tier (FREE, PRO, BUSINESS)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
