package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/service"
)

const recurringColumns = `
	r.id, r.bank_account_id, r.target_account_id, r.title, r.amount, r.currency,
	r.frequency, r.interval, r.start_date, r.end_date, r.next_scheduled_date,
	r.day_of_month, r.day_of_week, r.week_of_month, r.month_of_year,
	r.status, r.is_variable, r.is_automated, r.requires_approval, r.affect_available_balance,
	r.merchant_name, r.merchant_id, r.category_slug, r.tags, r.notes, r.assigned_to,
	r.initial_account_balance, r.execution_count, r.total_executed,
	r.last_modified_by, r.created_at, r.updated_at`

// CreateRecurring inserts a new recurring series.
func (s *SQLiteStorage) CreateRecurring(ctx context.Context, recurring *model.RecurringTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecurring(recurring); err != nil {
		return err
	}
	return s.createRecurringTx(ctx, s.db, recurring)
}

func (s *SQLiteStorage) createRecurringTx(ctx context.Context, q queryable, r *model.RecurringTransaction) error {
	tags, err := encodeTags(r.Tags)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO recurring_transactions (
			id, bank_account_id, target_account_id, title, amount, currency,
			frequency, interval, start_date, end_date, next_scheduled_date,
			day_of_month, day_of_week, week_of_month, month_of_year,
			status, is_variable, is_automated, requires_approval, affect_available_balance,
			merchant_name, merchant_id, category_slug, tags, notes, assigned_to,
			initial_account_balance, execution_count, total_executed,
			last_modified_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.BankAccountID,
		nullString(r.TargetAccountID),
		r.Title,
		model.ToMinorUnits(r.Amount),
		r.Currency,
		string(r.Frequency),
		r.Interval,
		r.StartDate.UTC(),
		nullTime(r.EndDate),
		r.NextScheduledDate.UTC(),
		nullInt(r.DayOfMonth),
		nullInt(r.DayOfWeek),
		nullInt(r.WeekOfMonth),
		nullInt(r.MonthOfYear),
		string(r.Status),
		r.IsVariable,
		r.IsAutomated,
		r.RequiresApproval,
		r.AffectAvailableBalance,
		r.MerchantName,
		r.MerchantID,
		r.CategorySlug,
		tags,
		r.Notes,
		nullString(r.AssignedTo),
		model.ToMinorUnits(r.InitialAccountBalance),
		r.ExecutionCount,
		model.ToMinorUnits(r.TotalExecuted),
		r.LastModifiedBy,
		r.CreatedAt.UTC(),
		r.UpdatedAt.UTC(),
	)
	if err != nil {
		switch {
		case isConstraint(err, sqlite3.ErrConstraintPrimaryKey):
			return fmt.Errorf("%w: recurring transaction %s", common.ErrDuplicateEntry, r.ID)
		case isConstraint(err, sqlite3.ErrConstraintForeignKey):
			return fmt.Errorf("%w: bank account %s", common.ErrNotFound, r.BankAccountID)
		}
		return retryable(fmt.Errorf("failed to create recurring transaction: %w", err))
	}
	return nil
}

// GetRecurring retrieves a recurring series by ID.
func (s *SQLiteStorage) GetRecurring(ctx context.Context, id string) (*model.RecurringTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getRecurringTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getRecurringTx(ctx context.Context, q queryable, id string) (*model.RecurringTransaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+recurringColumns+` FROM recurring_transactions r WHERE r.id = ?`, id)

	r, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: recurring transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, retryable(fmt.Errorf("failed to get recurring transaction: %w", err))
	}
	return r, nil
}

// UpdateRecurring overwrites every mutable column of an existing series.
func (s *SQLiteStorage) UpdateRecurring(ctx context.Context, recurring *model.RecurringTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecurring(recurring); err != nil {
		return err
	}
	return s.updateRecurringTx(ctx, s.db, recurring)
}

func (s *SQLiteStorage) updateRecurringTx(ctx context.Context, q queryable, r *model.RecurringTransaction) error {
	tags, err := encodeTags(r.Tags)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE recurring_transactions SET
			bank_account_id = ?, target_account_id = ?, title = ?, amount = ?, currency = ?,
			frequency = ?, interval = ?, start_date = ?, end_date = ?, next_scheduled_date = ?,
			day_of_month = ?, day_of_week = ?, week_of_month = ?, month_of_year = ?,
			status = ?, is_variable = ?, is_automated = ?, requires_approval = ?, affect_available_balance = ?,
			merchant_name = ?, merchant_id = ?, category_slug = ?, tags = ?, notes = ?, assigned_to = ?,
			execution_count = ?, total_executed = ?,
			last_modified_by = ?, updated_at = ?
		WHERE id = ?
	`,
		r.BankAccountID,
		nullString(r.TargetAccountID),
		r.Title,
		model.ToMinorUnits(r.Amount),
		r.Currency,
		string(r.Frequency),
		r.Interval,
		r.StartDate.UTC(),
		nullTime(r.EndDate),
		r.NextScheduledDate.UTC(),
		nullInt(r.DayOfMonth),
		nullInt(r.DayOfWeek),
		nullInt(r.WeekOfMonth),
		nullInt(r.MonthOfYear),
		string(r.Status),
		r.IsVariable,
		r.IsAutomated,
		r.RequiresApproval,
		r.AffectAvailableBalance,
		r.MerchantName,
		r.MerchantID,
		r.CategorySlug,
		tags,
		r.Notes,
		nullString(r.AssignedTo),
		r.ExecutionCount,
		model.ToMinorUnits(r.TotalExecuted),
		r.LastModifiedBy,
		r.UpdatedAt.UTC(),
		r.ID,
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return fmt.Errorf("%w: bank account %s", common.ErrNotFound, r.BankAccountID)
		}
		return retryable(fmt.Errorf("failed to update recurring transaction: %w", err))
	}
	return requireAffected(result, "recurring transaction", r.ID)
}

// DeleteRecurring removes a series. Linked transactions keep their data and lose
// the back-reference.
func (s *SQLiteStorage) DeleteRecurring(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return s.deleteRecurringTx(ctx, s.db, id)
}

func (s *SQLiteStorage) deleteRecurringTx(ctx context.Context, q queryable, id string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM recurring_transactions WHERE id = ?`, id)
	if err != nil {
		return retryable(fmt.Errorf("failed to delete recurring transaction: %w", err))
	}
	return requireAffected(result, "recurring transaction", id)
}

// ListRecurring returns the series matching the filter ordered by next due date.
func (s *SQLiteStorage) ListRecurring(ctx context.Context, filter service.RecurringFilter) ([]model.RecurringTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listRecurringTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) listRecurringTx(ctx context.Context, q queryable, filter service.RecurringFilter) ([]model.RecurringTransaction, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_transactions r`
	var conditions []string
	var args []any

	if filter.UserID != "" {
		query += ` JOIN bank_accounts a ON a.id = r.bank_account_id`
		conditions = append(conditions, "a.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.BankAccountID != "" {
		conditions = append(conditions, "r.bank_account_id = ?")
		args = append(args, filter.BankAccountID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "r.status = ?")
		args = append(args, string(filter.Status))
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM json_each(r.tags) WHERE lower(json_each.value) = lower(?))")
		args = append(args, tag)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.next_scheduled_date ASC, r.title ASC, r.id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, retryable(fmt.Errorf("failed to query recurring transactions: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var result []model.RecurringTransaction
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recurring transaction: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// CountRecurringByUser returns how many active or paused series exist across
// userID's accounts. Cancelled series are not counted.
func (s *SQLiteStorage) CountRecurringByUser(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	return s.countRecurringByUserTx(ctx, s.db, userID)
}

func (s *SQLiteStorage) countRecurringByUserTx(ctx context.Context, q queryable, userID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM recurring_transactions r
		JOIN bank_accounts a ON a.id = r.bank_account_id
		WHERE a.user_id = ? AND r.status != ?
	`, userID, string(model.StatusCancelled)).Scan(&count)
	if err != nil {
		return 0, retryable(fmt.Errorf("failed to count recurring transactions: %w", err))
	}
	return count, nil
}

func scanRecurring(row rowScanner) (*model.RecurringTransaction, error) {
	var r model.RecurringTransaction
	var (
		targetAccount, merchantName, merchantID, categorySlug, notes, assignedTo sql.NullString
		endDate                                                                 sql.NullTime
		dayOfMonth, dayOfWeek, weekOfMonth, monthOfYear                         sql.NullInt64
		amount, initialBalance, totalExecuted                                   int64
		frequency, status, tags                                                 string
	)

	if err := row.Scan(
		&r.ID,
		&r.BankAccountID,
		&targetAccount,
		&r.Title,
		&amount,
		&r.Currency,
		&frequency,
		&r.Interval,
		&r.StartDate,
		&endDate,
		&r.NextScheduledDate,
		&dayOfMonth,
		&dayOfWeek,
		&weekOfMonth,
		&monthOfYear,
		&status,
		&r.IsVariable,
		&r.IsAutomated,
		&r.RequiresApproval,
		&r.AffectAvailableBalance,
		&merchantName,
		&merchantID,
		&categorySlug,
		&tags,
		&notes,
		&assignedTo,
		&initialBalance,
		&r.ExecutionCount,
		&totalExecuted,
		&r.LastModifiedBy,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Frequency = model.Frequency(frequency)
	r.Status = model.RecurringStatus(status)
	r.Amount = model.FromMinorUnits(amount)
	r.InitialAccountBalance = model.FromMinorUnits(initialBalance)
	r.TotalExecuted = model.FromMinorUnits(totalExecuted)
	r.TargetAccountID = stringPtr(targetAccount)
	r.AssignedTo = stringPtr(assignedTo)
	r.MerchantName = merchantName.String
	r.MerchantID = merchantID.String
	r.CategorySlug = categorySlug.String
	r.Notes = notes.String
	r.DayOfMonth = intPtr(dayOfMonth)
	r.DayOfWeek = intPtr(dayOfWeek)
	r.WeekOfMonth = intPtr(weekOfMonth)
	r.MonthOfYear = intPtr(monthOfYear)
	if endDate.Valid {
		end := endDate.Time
		r.EndDate = &end
	}

	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return nil, fmt.Errorf("failed to parse tags: %w", err)
	}
	if len(r.Tags) == 0 {
		r.Tags = nil
	}

	return &r, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(data), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
