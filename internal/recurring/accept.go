package recurring

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/service"
)

// AcceptOptions customizes the series created from a detector candidate.
type AcceptOptions struct {
	Title                  string // Defaults to the candidate's merchant key
	CategorySlug           string
	Tags                   []string
	AffectAvailableBalance bool
}

// AcceptCandidate persists a detected candidate as a new series and stamps the
// back-reference on every matched transaction, in one transaction.
func (m *Manager) AcceptCandidate(ctx context.Context, userID string, candidate model.RecurringCandidate, opts AcceptOptions) (*model.RecurringTransaction, error) {
	if len(candidate.TransactionIDs) == 0 {
		return nil, common.Validationf("candidate %q has no matched transactions", candidate.Title)
	}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = candidate.Title
	}

	input := CreateInput{
		Anchors:                candidate.Anchors(),
		BankAccountID:          candidate.BankAccountID,
		Title:                  title,
		MerchantName:           candidate.Title,
		CategorySlug:           opts.CategorySlug,
		Amount:                 candidate.Amount,
		Frequency:              candidate.Frequency,
		Interval:               candidate.Interval,
		StartDate:              candidate.StartDate,
		IsVariable:             candidate.IsVariable,
		Tags:                   opts.Tags,
		AffectAvailableBalance: opts.AffectAvailableBalance,
	}

	var created *model.RecurringTransaction
	err := m.inTx(ctx, "accept recurring candidate", func(tx service.Transaction) error {
		if err := requirePrincipal(userID); err != nil {
			return err
		}
		if _, err := ownedAccount(ctx, tx, userID, candidate.BankAccountID); err != nil {
			return err
		}
		if err := checkMatched(ctx, tx, candidate); err != nil {
			return err
		}

		r, err := m.createTx(ctx, tx, userID, input)
		if err != nil {
			return err
		}
		if err := tx.LinkTransactions(ctx, r.ID, candidate.TransactionIDs); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.Validationf("matched transactions changed: %v", err)
			}
			return common.Internal("link matched transactions", err)
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	common.LogInfo("Accepted recurring candidate", common.Fields{
		"recurring_id":    created.ID,
		"bank_account_id": created.BankAccountID,
		"linked":          len(candidate.TransactionIDs),
		"confidence":      candidate.ConfidenceScore,
	})
	return created, nil
}

// checkMatched verifies every matched transaction is on the candidate's account
// and not yet linked to a series.
func checkMatched(ctx context.Context, q service.Queries, candidate model.RecurringCandidate) error {
	stored, err := q.GetTransactions(ctx, service.TransactionFilter{BankAccountID: candidate.BankAccountID})
	if err != nil {
		return common.Internal("load matched transactions", err)
	}

	byID := make(map[string]model.Transaction, len(stored))
	for _, txn := range stored {
		byID[txn.ID] = txn
	}

	for _, id := range candidate.TransactionIDs {
		txn, ok := byID[id]
		if !ok {
			return common.Validationf("transaction %s is not on bank account %s", id, candidate.BankAccountID)
		}
		if txn.RecurringTransactionID != nil {
			return fmt.Errorf("%w: transaction %s already belongs to series %s", common.ErrConflict, id, *txn.RecurringTransactionID)
		}
	}
	return nil
}
