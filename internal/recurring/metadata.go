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

// Metadata mutators change descriptive fields only. They never touch the
// projection counters or the schedule.

// errUnchanged tells mutate the series needs no write.
var errUnchanged = errors.New("unchanged")

// replaceTags swaps in tags unless they hold the same set as the current ones.
// Merging and removal keep existing spellings, so an equal set means nothing changed.
func replaceTags(r *model.RecurringTransaction, tags []string) error {
	if model.SameTags(r.Tags, tags) {
		return errUnchanged
	}
	r.Tags = tags
	return nil
}

// SetTags replaces the series' tags.
func (m *Manager) SetTags(ctx context.Context, userID, id string, tags []string) (*model.RecurringTransaction, error) {
	return m.mutate(ctx, userID, id, "set tags", func(_ service.Queries, r *model.RecurringTransaction) error {
		r.Tags = model.NormalizeTags(tags)
		return nil
	})
}

// AddTags merges tags into the existing set. Matching ignores case and the first
// spelling seen is kept.
func (m *Manager) AddTags(ctx context.Context, userID, id string, tags []string) (*model.RecurringTransaction, error) {
	return m.mutate(ctx, userID, id, "add tags", func(_ service.Queries, r *model.RecurringTransaction) error {
		return replaceTags(r, model.MergeTags(r.Tags, tags))
	})
}

// RemoveTags drops tags, ignoring case.
func (m *Manager) RemoveTags(ctx context.Context, userID, id string, tags []string) (*model.RecurringTransaction, error) {
	return m.mutate(ctx, userID, id, "remove tags", func(_ service.Queries, r *model.RecurringTransaction) error {
		return replaceTags(r, model.RemoveTags(r.Tags, tags))
	})
}

// SetNotes replaces the notes.
func (m *Manager) SetNotes(ctx context.Context, userID, id, notes string) (*model.RecurringTransaction, error) {
	return m.mutate(ctx, userID, id, "set notes", func(_ service.Queries, r *model.RecurringTransaction) error {
		r.Notes = notes
		return nil
	})
}

// SetCategory replaces the category slug. An empty slug clears it.
func (m *Manager) SetCategory(ctx context.Context, userID, id, slug string) (*model.RecurringTransaction, error) {
	return m.mutate(ctx, userID, id, "set category", func(_ service.Queries, r *model.RecurringTransaction) error {
		r.CategorySlug = strings.TrimSpace(slug)
		return nil
	})
}

// SetMerchant replaces the merchant name and reference.
func (m *Manager) SetMerchant(ctx context.Context, userID, id, name, merchantID string) (*model.RecurringTransaction, error) {
	return m.mutate(ctx, userID, id, "set merchant", func(_ service.Queries, r *model.RecurringTransaction) error {
		r.MerchantName = strings.TrimSpace(name)
		r.MerchantID = strings.TrimSpace(merchantID)
		return nil
	})
}

// Assign hands the series to another user. An empty assignee clears it.
func (m *Manager) Assign(ctx context.Context, userID, id, assigneeID string) (*model.RecurringTransaction, error) {
	return m.mutate(ctx, userID, id, "assign", func(q service.Queries, r *model.RecurringTransaction) error {
		assigneeID = strings.TrimSpace(assigneeID)
		if assigneeID == "" {
			r.AssignedTo = nil
			return nil
		}

		_, err := q.GetUser(ctx, assigneeID)
		if errors.Is(err, common.ErrNotFound) {
			return common.Validationf("assignee %s does not exist", assigneeID)
		}
		if err != nil {
			return common.Internal("load assignee", err)
		}
		r.AssignedTo = &assigneeID
		return nil
	})
}

// mutate loads an owned, non-cancelled series, applies fn, stamps the editor and
// persists the result.
func (m *Manager) mutate(ctx context.Context, userID, id, op string, fn func(q service.Queries, r *model.RecurringTransaction) error) (*model.RecurringTransaction, error) {
	var result *model.RecurringTransaction
	err := m.inTx(ctx, op, func(tx service.Transaction) error {
		r, _, err := m.loadOwned(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if r.IsTerminal() {
			return fmt.Errorf("%w: recurring transaction %s is %s", common.ErrConflict, id, r.Status)
		}

		if err := fn(tx, r); err != nil {
			if errors.Is(err, errUnchanged) {
				result = r
				return nil
			}
			return err
		}

		r.LastModifiedBy = userID
		r.UpdatedAt = m.now().UTC()
		if err := tx.UpdateRecurring(ctx, r); err != nil {
			return common.Internal(op, err)
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	common.LogDebug("Updated recurring metadata", common.Fields{
		"recurring_id": id,
		"operation":    op,
	})
	return result, nil
}
