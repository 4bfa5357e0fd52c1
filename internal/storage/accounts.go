package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
)

// CreateBankAccount inserts a new bank account.
func (s *SQLiteStorage) CreateBankAccount(ctx context.Context, account *model.BankAccount) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBankAccount(account); err != nil {
		return err
	}
	return s.createBankAccountTx(ctx, s.db, account)
}

func (s *SQLiteStorage) createBankAccountTx(ctx context.Context, q queryable, account *model.BankAccount) error {
	now := timeNow().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = now
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO bank_accounts (
			id, user_id, name, currency, current_balance,
			scheduled_inflows, scheduled_outflows, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		account.ID,
		account.UserID,
		account.Name,
		account.Currency,
		model.ToMinorUnits(account.CurrentBalance),
		model.ToMinorUnits(account.ScheduledInflows),
		model.ToMinorUnits(account.ScheduledOutflows),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		switch {
		case isConstraint(err, sqlite3.ErrConstraintPrimaryKey):
			return fmt.Errorf("%w: bank account %s", common.ErrDuplicateEntry, account.ID)
		case isConstraint(err, sqlite3.ErrConstraintForeignKey):
			return fmt.Errorf("%w: user %s", common.ErrNotFound, account.UserID)
		}
		return retryable(fmt.Errorf("failed to create bank account: %w", err))
	}
	return nil
}

// GetBankAccount retrieves a bank account by ID.
func (s *SQLiteStorage) GetBankAccount(ctx context.Context, id string) (*model.BankAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getBankAccountTx(ctx, s.db, id)
}

const bankAccountColumns = `
	id, user_id, name, currency, current_balance,
	scheduled_inflows, scheduled_outflows, created_at, updated_at`

func (s *SQLiteStorage) getBankAccountTx(ctx context.Context, q queryable, id string) (*model.BankAccount, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts WHERE id = ?`, id)

	account, err := scanBankAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: bank account %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, retryable(fmt.Errorf("failed to get bank account: %w", err))
	}
	return account, nil
}

// ListBankAccounts returns the accounts owned by userID, or every account when
// userID is empty.
func (s *SQLiteStorage) ListBankAccounts(ctx context.Context, userID string) ([]model.BankAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listBankAccountsTx(ctx, s.db, userID)
}

func (s *SQLiteStorage) listBankAccountsTx(ctx context.Context, q queryable, userID string) ([]model.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, retryable(fmt.Errorf("failed to query bank accounts: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.BankAccount
	for rows.Next() {
		account, err := scanBankAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// CountBankAccountsByUser returns how many accounts userID owns.
func (s *SQLiteStorage) CountBankAccountsByUser(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	return s.countBankAccountsByUserTx(ctx, s.db, userID)
}

func (s *SQLiteStorage) countBankAccountsByUserTx(ctx context.Context, q queryable, userID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank_accounts WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, retryable(fmt.Errorf("failed to count bank accounts: %w", err))
	}
	return count, nil
}

// SetCurrentBalance records the account's latest known ledger balance.
func (s *SQLiteStorage) SetCurrentBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return err
	}
	return s.setCurrentBalanceTx(ctx, s.db, accountID, balance)
}

func (s *SQLiteStorage) setCurrentBalanceTx(ctx context.Context, q queryable, accountID string, balance decimal.Decimal) error {
	result, err := q.ExecContext(ctx, `
		UPDATE bank_accounts SET current_balance = ? WHERE id = ?
	`, model.ToMinorUnits(balance), accountID)
	if err != nil {
		return retryable(fmt.Errorf("failed to set current balance: %w", err))
	}
	return requireAffected(result, "bank account", accountID)
}

// AdjustProjections atomically adds the deltas to the account's projection counters.
func (s *SQLiteStorage) AdjustProjections(ctx context.Context, accountID string, inflowDelta, outflowDelta decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return err
	}
	return s.adjustProjectionsTx(ctx, s.db, accountID, inflowDelta, outflowDelta)
}

// adjustProjectionsTx issues a single relative UPDATE so concurrent writers to the
// same account serialize in the database instead of overwriting each other.
func (s *SQLiteStorage) adjustProjectionsTx(ctx context.Context, q queryable, accountID string, inflowDelta, outflowDelta decimal.Decimal) error {
	inflow := model.ToMinorUnits(inflowDelta)
	outflow := model.ToMinorUnits(outflowDelta)
	if inflow == 0 && outflow == 0 {
		return nil
	}

	result, err := q.ExecContext(ctx, `
		UPDATE bank_accounts
		SET scheduled_inflows = scheduled_inflows + ?,
		    scheduled_outflows = scheduled_outflows + ?
		WHERE id = ?
	`, inflow, outflow, accountID)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintCheck) {
			return fmt.Errorf("%w: account %s (inflows %+d, outflows %+d cents)", ErrProjectionUnderflow, accountID, inflow, outflow)
		}
		return retryable(fmt.Errorf("failed to adjust projections: %w", err))
	}
	if err := requireAffected(result, "bank account", accountID); err != nil {
		return err
	}

	slog.Debug("Adjusted account projections",
		"bank_account_id", accountID,
		"inflow_delta", inflowDelta.String(),
		"outflow_delta", outflowDelta.String())
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBankAccount(row rowScanner) (*model.BankAccount, error) {
	var account model.BankAccount
	var balance, inflows, outflows int64

	if err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Name,
		&account.Currency,
		&balance,
		&inflows,
		&outflows,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}

	account.CurrentBalance = model.FromMinorUnits(balance)
	account.ScheduledInflows = model.FromMinorUnits(inflows)
	account.ScheduledOutflows = model.FromMinorUnits(outflows)
	return &account, nil
}

// requireAffected maps an UPDATE or DELETE that matched no row to ErrNotFound.
func requireAffected(result sql.Result, entity, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s", common.ErrNotFound, entity, id)
	}
	return nil
}
