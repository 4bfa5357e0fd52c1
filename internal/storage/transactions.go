package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/service"
)

// SaveTransactions saves multiple transactions to the database. Transactions whose
// ID or hash already exist are skipped.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	// Validate inputs
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return retryable(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveTransactionsTx(ctx, tx, transactions); err != nil {
		return err
	}

	return retryable(tx.Commit())
}

func (s *SQLiteStorage) saveTransactionsTx(ctx context.Context, tx *sql.Tx, transactions []model.Transaction) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, hash, bank_account_id, date, name, merchant_name, amount
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, txn := range transactions {
		hash := txn.Hash
		if hash == "" {
			hash = txn.GenerateHash()
		}

		result, err := stmt.ExecContext(ctx,
			txn.ID,
			hash,
			txn.BankAccountID,
			txn.Date.UTC(),
			txn.Name,
			txn.MerchantName,
			model.ToMinorUnits(txn.Amount),
		)
		if err != nil {
			return retryable(fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err))
		}
		if n, _ := result.RowsAffected(); n > 0 {
			inserted++
		}
	}

	slog.Debug("Saved transactions",
		"received", len(transactions),
		"inserted", inserted,
		"skipped", len(transactions)-inserted)
	return nil
}

// GetTransactions retrieves transactions matching the filter, oldest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getTransactionsTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) getTransactionsTx(ctx context.Context, q queryable, filter service.TransactionFilter) ([]model.Transaction, error) {
	query := `
		SELECT t.id, t.hash, t.bank_account_id, t.date, t.name,
		       t.merchant_name, t.amount, t.recurring_transaction_id
		FROM transactions t`
	var conditions []string
	var args []any

	if filter.UserID != "" {
		query += ` JOIN bank_accounts a ON a.id = t.bank_account_id`
		conditions = append(conditions, "a.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.BankAccountID != "" {
		conditions = append(conditions, "t.bank_account_id = ?")
		args = append(args, filter.BankAccountID)
	}
	if filter.StartDate != nil {
		conditions = append(conditions, "t.date >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "t.date <= ?")
		args = append(args, filter.EndDate.UTC())
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY t.date ASC, t.id ASC"

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
		return nil, retryable(fmt.Errorf("failed to query transactions: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		var txn model.Transaction
		var merchant, recurringID sql.NullString
		var amount int64

		if err := rows.Scan(
			&txn.ID,
			&txn.Hash,
			&txn.BankAccountID,
			&txn.Date,
			&txn.Name,
			&merchant,
			&amount,
			&recurringID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		txn.MerchantName = merchant.String
		txn.Amount = model.FromMinorUnits(amount)
		if recurringID.Valid {
			id := recurringID.String
			txn.RecurringTransactionID = &id
		}
		transactions = append(transactions, txn)
	}

	return transactions, rows.Err()
}

// LinkTransactions stamps recurringID on each listed transaction. Every
// transaction must exist and belong to the series' bank account.
func (s *SQLiteStorage) LinkTransactions(ctx context.Context, recurringID string, transactionIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(recurringID, "recurringID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return retryable(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.linkTransactionsTx(ctx, tx, recurringID, transactionIDs); err != nil {
		return err
	}

	return retryable(tx.Commit())
}

func (s *SQLiteStorage) linkTransactionsTx(ctx context.Context, q queryable, recurringID string, transactionIDs []string) error {
	for _, id := range transactionIDs {
		result, err := q.ExecContext(ctx, `
			UPDATE transactions
			SET recurring_transaction_id = ?
			WHERE id = ?
			  AND bank_account_id = (SELECT bank_account_id FROM recurring_transactions WHERE id = ?)
		`, recurringID, id, recurringID)
		if err != nil {
			return retryable(fmt.Errorf("failed to link transaction %s: %w", id, err))
		}
		if err := requireAffected(result, "transaction", id); err != nil {
			return err
		}
	}
	return nil
}
