// Package recurring manages the lifecycle of recurring transaction series and
// keeps the owning bank accounts' projection counters in step with them.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/schedule"
	"github.com/Veraticus/recurrent/internal/service"
)

// Manager creates, edits and deletes recurring series. Every mutation runs as one
// storage transaction so the series and its projection move together.
type Manager struct {
	store service.Storage
	now   func() time.Time
	newID func() string
	retry common.RetryOptions
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the manager's notion of "now".
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides how new series IDs are generated.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// WithRetryOptions sets how transient storage failures are retried.
func WithRetryOptions(opts common.RetryOptions) Option {
	return func(m *Manager) {
		m.retry = opts
	}
}

// NewManager creates a lifecycle manager over store.
func NewManager(store service.Storage, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a series the user owns.
func (m *Manager) Get(ctx context.Context, userID, id string) (*model.RecurringTransaction, error) {
	r, _, err := m.loadOwned(ctx, m.store, userID, id)
	return r, err
}

// List returns the user's series matching filter. Filtering by an account the user
// does not own is forbidden.
func (m *Manager) List(ctx context.Context, userID string, filter service.RecurringFilter) ([]model.RecurringTransaction, error) {
	if err := requirePrincipal(userID); err != nil {
		return nil, err
	}
	if filter.BankAccountID != "" {
		if _, err := ownedAccount(ctx, m.store, userID, filter.BankAccountID); err != nil {
			return nil, err
		}
	}

	filter.UserID = userID
	series, err := m.store.ListRecurring(ctx, filter)
	if err != nil {
		return nil, common.Internal("list recurring transactions", err)
	}
	return series, nil
}

// Create validates and persists a new series, adding its contribution to the
// account's projection counters in the same transaction.
func (m *Manager) Create(ctx context.Context, userID string, input CreateInput) (*model.RecurringTransaction, error) {
	var created *model.RecurringTransaction
	err := m.inTx(ctx, "create recurring transaction", func(tx service.Transaction) error {
		r, err := m.createTx(ctx, tx, userID, input)
		if err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	common.LogInfo("Created recurring transaction", common.Fields{
		"recurring_id":    created.ID,
		"bank_account_id": created.BankAccountID,
		"frequency":       string(created.Frequency),
		"amount":          created.Amount.String(),
	})
	return created, nil
}

func (m *Manager) createTx(ctx context.Context, tx service.Transaction, userID string, input CreateInput) (*model.RecurringTransaction, error) {
	if err := requirePrincipal(userID); err != nil {
		return nil, err
	}

	account, err := ownedAccount(ctx, tx, userID, input.BankAccountID)
	if err != nil {
		return nil, err
	}
	if input.TargetAccountID != nil {
		if _, err := ownedAccount(ctx, tx, userID, *input.TargetAccountID); err != nil {
			return nil, err
		}
	}
	if err := m.checkLimit(ctx, tx, userID); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	r := &model.RecurringTransaction{
		Anchors:                cloneAnchors(input.Anchors),
		ID:                     m.newID(),
		BankAccountID:          account.ID,
		TargetAccountID:        input.TargetAccountID,
		Title:                  strings.TrimSpace(input.Title),
		Amount:                 input.Amount,
		Currency:               strings.ToUpper(strings.TrimSpace(input.Currency)),
		Frequency:              input.Frequency,
		Interval:               input.Interval,
		StartDate:              schedule.Day(input.StartDate),
		Status:                 model.StatusActive,
		IsVariable:             input.IsVariable,
		IsAutomated:            input.IsAutomated,
		RequiresApproval:       input.RequiresApproval,
		AffectAvailableBalance: input.AffectAvailableBalance,
		MerchantName:           strings.TrimSpace(input.MerchantName),
		MerchantID:             strings.TrimSpace(input.MerchantID),
		CategorySlug:           strings.TrimSpace(input.CategorySlug),
		Tags:                   model.NormalizeTags(input.Tags),
		Notes:                  input.Notes,
		InitialAccountBalance:  account.CurrentBalance,
		LastModifiedBy:         userID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if r.Currency == "" {
		r.Currency = account.Currency
	}
	if input.EndDate != nil {
		end := schedule.Day(*input.EndDate)
		r.EndDate = &end
	}

	if err := validateSeries(r); err != nil {
		return nil, err
	}
	r.NextScheduledDate = schedule.AdvanceUntil(r.StartDate, r.Frequency, r.Interval, r.Anchors, now)

	if err := tx.CreateRecurring(ctx, r); err != nil {
		return nil, common.Internal("persist recurring transaction", err)
	}
	if err := applyAdjustments(ctx, tx, Reconcile(nil, r)); err != nil {
		return nil, common.Internal("adjust projections", err)
	}
	return r, nil
}

// Update applies a partial update. Projection counters are reconciled against the
// previous state and the next scheduled date is recomputed when the schedule
// changes, all in one transaction.
func (m *Manager) Update(ctx context.Context, userID, id string, input UpdateInput) (*model.RecurringTransaction, error) {
	var updated *model.RecurringTransaction
	err := m.inTx(ctx, "update recurring transaction", func(tx service.Transaction) error {
		current, _, err := m.loadOwned(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return fmt.Errorf("%w: recurring transaction %s is %s", common.ErrConflict, id, current.Status)
		}
		if input.Status != nil && !current.Status.CanTransitionTo(*input.Status) {
			return fmt.Errorf("%w: cannot move from %s to %s", common.ErrConflict, current.Status, *input.Status)
		}

		next := current.Clone()
		input.apply(next)

		if next.BankAccountID != current.BankAccountID {
			if _, err := ownedAccount(ctx, tx, userID, next.BankAccountID); err != nil {
				return err
			}
		}
		if next.TargetAccountID != nil && !sameString(next.TargetAccountID, current.TargetAccountID) {
			if _, err := ownedAccount(ctx, tx, userID, *next.TargetAccountID); err != nil {
				return err
			}
		}
		if err := validateSeries(next); err != nil {
			return err
		}

		now := m.now().UTC()
		if input.schedulingChanged() {
			next.NextScheduledDate = schedule.AdvanceUntil(next.StartDate, next.Frequency, next.Interval, next.Anchors, now)
		}
		next.LastModifiedBy = userID
		next.UpdatedAt = now

		if err := tx.UpdateRecurring(ctx, next); err != nil {
			return common.Internal("persist recurring transaction", err)
		}
		if err := applyAdjustments(ctx, tx, Reconcile(current, next)); err != nil {
			return common.Internal("adjust projections", err)
		}

		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	common.LogInfo("Updated recurring transaction", common.Fields{
		"recurring_id":    updated.ID,
		"bank_account_id": updated.BankAccountID,
	})
	return updated, nil
}

// Delete removes a series and reverses its projection contribution. Cancelled
// series may be deleted.
func (m *Manager) Delete(ctx context.Context, userID, id string) error {
	err := m.inTx(ctx, "delete recurring transaction", func(tx service.Transaction) error {
		current, _, err := m.loadOwned(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		if err := applyAdjustments(ctx, tx, Reconcile(current, nil)); err != nil {
			return common.Internal("adjust projections", err)
		}
		if err := tx.DeleteRecurring(ctx, id); err != nil {
			return common.Internal("delete recurring transaction", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	common.LogInfo("Deleted recurring transaction", common.Fields{"recurring_id": id})
	return nil
}

// SetStatus moves a series along its lifecycle. Re-applying the current status
// is a no-op. Status never changes the projection contribution.
func (m *Manager) SetStatus(ctx context.Context, userID, id string, status model.RecurringStatus) (*model.RecurringTransaction, error) {
	if !status.Valid() {
		return nil, common.Validationf("unknown status %q", status)
	}

	var result *model.RecurringTransaction
	err := m.inTx(ctx, "set recurring status", func(tx service.Transaction) error {
		current, _, err := m.loadOwned(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: cannot move from %s to %s", common.ErrConflict, current.Status, status)
		}
		if current.Status == status {
			result = current
			return nil
		}

		current.Status = status
		current.LastModifiedBy = userID
		current.UpdatedAt = m.now().UTC()
		if err := tx.UpdateRecurring(ctx, current); err != nil {
			return common.Internal("persist recurring status", err)
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	common.LogDebug("Set recurring status", common.Fields{
		"recurring_id": id,
		"status":       string(result.Status),
	})
	return result, nil
}

// Pause suspends an active series.
func (m *Manager) Pause(ctx context.Context, userID, id string) (*model.RecurringTransaction, error) {
	return m.SetStatus(ctx, userID, id, model.StatusPaused)
}

// Resume reactivates a paused series.
func (m *Manager) Resume(ctx context.Context, userID, id string) (*model.RecurringTransaction, error) {
	return m.SetStatus(ctx, userID, id, model.StatusActive)
}

// Cancel ends a series permanently.
func (m *Manager) Cancel(ctx context.Context, userID, id string) (*model.RecurringTransaction, error) {
	return m.SetStatus(ctx, userID, id, model.StatusCancelled)
}

// inTx runs fn inside one storage transaction. Transient storage failures retry the
// whole unit; any other error rolls it back and is returned unchanged.
func (m *Manager) inTx(ctx context.Context, op string, fn func(tx service.Transaction) error) error {
	return common.WithRetry(ctx, func() error {
		tx, err := m.store.BeginTx(ctx)
		if err != nil {
			return common.Internal(op, err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return common.Internal(op, err)
		}
		return nil
	}, m.retry)
}

// loadOwned loads a series and checks that userID owns its bank account.
func (m *Manager) loadOwned(ctx context.Context, q service.Queries, userID, id string) (*model.RecurringTransaction, *model.BankAccount, error) {
	if err := requirePrincipal(userID); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, nil, common.Validationf("recurring transaction id is required")
	}

	r, err := q.GetRecurring(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: recurring transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, nil, common.Internal("load recurring transaction", err)
	}

	account, err := ownedAccount(ctx, q, userID, r.BankAccountID)
	if err != nil {
		return nil, nil, err
	}
	return r, account, nil
}

// checkLimit enforces the user's tier quota on recurring series.
func (m *Manager) checkLimit(ctx context.Context, q service.Queries, userID string) error {
	user, err := q.GetUser(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("%w: unknown user %s", common.ErrForbidden, userID)
	}
	if err != nil {
		return common.Internal("load user", err)
	}

	count, err := q.CountRecurringByUser(ctx, userID)
	if err != nil {
		return common.Internal("count recurring transactions", err)
	}

	limit := model.LimitFor(user.Tier, model.ResourceRecurringTransactions)
	if !limit.Allows(count) {
		return fmt.Errorf("%w: %s plan allows %s recurring transactions", common.ErrLimitExceeded, user.Tier, limit)
	}
	return nil
}

// ownedAccount returns the account when userID owns it. A missing account is
// reported as forbidden so other users' accounts stay invisible.
func ownedAccount(ctx context.Context, q service.Queries, userID, accountID string) (*model.BankAccount, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, common.Validationf("bank account id is required")
	}

	account, err := q.GetBankAccount(ctx, accountID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: bank account %s", common.ErrForbidden, accountID)
	}
	if err != nil {
		return nil, common.Internal("load bank account", err)
	}
	if !account.OwnedBy(userID) {
		return nil, fmt.Errorf("%w: bank account %s", common.ErrForbidden, accountID)
	}
	return account, nil
}

func requirePrincipal(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: no acting user", common.ErrForbidden)
	}
	return nil
}

func cloneAnchors(a model.Anchors) model.Anchors {
	c := model.Anchors{}
	if a.DayOfMonth != nil {
		c.DayOfMonth = intRef(*a.DayOfMonth)
	}
	if a.DayOfWeek != nil {
		c.DayOfWeek = intRef(*a.DayOfWeek)
	}
	if a.WeekOfMonth != nil {
		c.WeekOfMonth = intRef(*a.WeekOfMonth)
	}
	if a.MonthOfYear != nil {
		c.MonthOfYear = intRef(*a.MonthOfYear)
	}
	return c
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
