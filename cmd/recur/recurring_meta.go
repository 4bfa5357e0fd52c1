package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Veraticus/recurrent/internal/cli"
	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/recurring"
)

type mutateFunc func(ctx context.Context, m *recurring.Manager, userID, id string, args []string) (*model.RecurringTransaction, error)

// metadataCmd builds a subcommand that runs one metadata mutator against the
// series named by the first argument.
func metadataCmd(use, short string, args cobra.PositionalArgs, mutate mutateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd, func(m *recurring.Manager, userID string, enc *cli.Encoder) error {
				r, err := mutate(cmd.Context(), m, userID, args[0], args[1:])
				if err != nil {
					return err
				}
				return showSeries(enc, r)
			})
		},
	}
}

func recurringTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Edit a series' tags",
	}

	cmd.AddCommand(metadataCmd("set SERIES_ID [TAG...]", "Replace all tags (no tags clears them)", cobra.MinimumNArgs(1),
		func(ctx context.Context, m *recurring.Manager, userID, id string, tags []string) (*model.RecurringTransaction, error) {
			return m.SetTags(ctx, userID, id, tags)
		}))
	cmd.AddCommand(metadataCmd("add SERIES_ID TAG...", "Add tags, ignoring ones already present", cobra.MinimumNArgs(2),
		func(ctx context.Context, m *recurring.Manager, userID, id string, tags []string) (*model.RecurringTransaction, error) {
			return m.AddTags(ctx, userID, id, tags)
		}))
	cmd.AddCommand(metadataCmd("remove SERIES_ID TAG...", "Remove tags", cobra.MinimumNArgs(2),
		func(ctx context.Context, m *recurring.Manager, userID, id string, tags []string) (*model.RecurringTransaction, error) {
			return m.RemoveTags(ctx, userID, id, tags)
		}))

	return cmd
}

func recurringNotesCmd() *cobra.Command {
	return metadataCmd("notes SERIES_ID [TEXT]", "Set or clear a series' notes", cobra.RangeArgs(1, 2),
		func(ctx context.Context, m *recurring.Manager, userID, id string, args []string) (*model.RecurringTransaction, error) {
			return m.SetNotes(ctx, userID, id, optionalArg(args))
		})
}

func recurringCategoryCmd() *cobra.Command {
	return metadataCmd("category SERIES_ID [SLUG]", "Set or clear a series' category", cobra.RangeArgs(1, 2),
		func(ctx context.Context, m *recurring.Manager, userID, id string, args []string) (*model.RecurringTransaction, error) {
			return m.SetCategory(ctx, userID, id, optionalArg(args))
		})
}

func recurringMerchantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merchant SERIES_ID [NAME]",
		Short: "Set or clear a series' merchant",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			merchantID, _ := cmd.Flags().GetString("merchant-id")
			return withManager(cmd, func(m *recurring.Manager, userID string, enc *cli.Encoder) error {
				r, err := m.SetMerchant(cmd.Context(), userID, args[0], optionalArg(args[1:]), merchantID)
				if err != nil {
					return err
				}
				return showSeries(enc, r)
			})
		},
	}

	cmd.Flags().String("merchant-id", "", "external merchant id")

	return cmd
}

func recurringAssignCmd() *cobra.Command {
	return metadataCmd("assign SERIES_ID [USER_ID]", "Assign a series to a user, or unassign it", cobra.RangeArgs(1, 2),
		func(ctx context.Context, m *recurring.Manager, userID, id string, args []string) (*model.RecurringTransaction, error) {
			return m.Assign(ctx, userID, id, optionalArg(args))
		})
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
