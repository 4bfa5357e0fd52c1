package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
)

// CreateUser inserts a new user.
func (s *SQLiteStorage) CreateUser(ctx context.Context, user *model.User) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateUser(user); err != nil {
		return err
	}
	return s.createUserTx(ctx, s.db, user)
}

func (s *SQLiteStorage) createUserTx(ctx context.Context, q queryable, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = timeNow().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, email, tier, created_at)
		VALUES (?, ?, ?, ?)
	`, user.ID, user.Email, string(user.Tier), user.CreatedAt)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) || isConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
			return fmt.Errorf("%w: user %s", common.ErrDuplicateEntry, user.Email)
		}
		return retryable(fmt.Errorf("failed to create user: %w", err))
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getUserTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getUserTx(ctx context.Context, q queryable, id string) (*model.User, error) {
	var user model.User
	var tier string

	err := q.QueryRowContext(ctx, `
		SELECT id, email, tier, created_at
		FROM users
		WHERE id = ?
	`, id).Scan(&user.ID, &user.Email, &tier, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, retryable(fmt.Errorf("failed to get user: %w", err))
	}

	user.Tier = model.Tier(tier)
	return &user, nil
}
