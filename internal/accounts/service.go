// Package accounts provisions users and the bank accounts that own recurring series.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/service"
)

// Service creates users and opens accounts within each user's plan quota.
type Service struct {
	store service.Storage
	now   func() time.Time
	newID func() string
}

// NewService creates an account service over store.
func NewService(store service.Storage) *Service {
	return &Service{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// OpenAccountInput describes a new bank account.
type OpenAccountInput struct {
	Name           string
	Currency       string
	CurrentBalance decimal.Decimal
}

// CreateUser registers a user on tier.
func (s *Service) CreateUser(ctx context.Context, email string, tier model.Tier) (*model.User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, common.Validationf("invalid email %q", email)
	}
	if !tier.Valid() {
		return nil, common.Validationf("unknown tier %q", tier)
	}

	user := &model.User{
		ID:        s.newID(),
		Email:     strings.ToLower(addr.Address),
		Tier:      tier,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			return nil, fmt.Errorf("%w: email %s is already registered", common.ErrConflict, user.Email)
		}
		return nil, common.Internal("create user", err)
	}

	common.LogInfo("Created user", common.Fields{"user_id": user.ID, "tier": string(user.Tier)})
	return user, nil
}

// OpenAccount creates a bank account for userID. Projection counters start at zero.
func (s *Service) OpenAccount(ctx context.Context, userID string, input OpenAccountInput) (*model.BankAccount, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, common.Validationf("account name is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, common.Validationf("currency %q must be a 3-letter ISO code", input.Currency)
	}
	if !model.HasMinorUnitPrecision(input.CurrentBalance) {
		return nil, common.Validationf("balance %s has more than %d decimal places", input.CurrentBalance, model.MinorUnitExponent)
	}

	account := &model.BankAccount{
		ID:             s.newID(),
		UserID:         userID,
		Name:           name,
		Currency:       currency,
		CurrentBalance: input.CurrentBalance,
		CreatedAt:      s.now().UTC(),
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, common.Internal("open account", err)
	}
	defer func() { _ = tx.Rollback() }()

	user, err := s.principal(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	count, err := tx.CountBankAccountsByUser(ctx, userID)
	if err != nil {
		return nil, common.Internal("count bank accounts", err)
	}
	if limit := model.LimitFor(user.Tier, model.ResourceBankAccounts); !limit.Allows(count) {
		return nil, fmt.Errorf("%w: %s plan allows %s bank accounts", common.ErrLimitExceeded, user.Tier, limit)
	}

	if err := tx.CreateBankAccount(ctx, account); err != nil {
		return nil, common.Internal("create bank account", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, common.Internal("open account", err)
	}

	common.LogInfo("Opened bank account", common.Fields{
		"bank_account_id": account.ID,
		"user_id":         userID,
		"currency":        account.Currency,
	})
	return account, nil
}

// GetAccount returns an account userID owns. Missing and foreign accounts are both
// forbidden.
func (s *Service) GetAccount(ctx context.Context, userID, accountID string) (*model.BankAccount, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: no acting user", common.ErrForbidden)
	}

	account, err := s.store.GetBankAccount(ctx, accountID)
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

// ListAccounts returns the user's accounts.
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]model.BankAccount, error) {
	if _, err := s.principal(ctx, s.store, userID); err != nil {
		return nil, err
	}
	accounts, err := s.store.ListBankAccounts(ctx, userID)
	if err != nil {
		return nil, common.Internal("list bank accounts", err)
	}
	return accounts, nil
}

// SetBalance records a new current balance. Projection counters are untouched.
func (s *Service) SetBalance(ctx context.Context, userID, accountID string, balance decimal.Decimal) error {
	if !model.HasMinorUnitPrecision(balance) {
		return common.Validationf("balance %s has more than %d decimal places", balance, model.MinorUnitExponent)
	}
	if _, err := s.GetAccount(ctx, userID, accountID); err != nil {
		return err
	}
	if err := s.store.SetCurrentBalance(ctx, accountID, balance); err != nil {
		return common.Internal("set balance", err)
	}

	common.LogDebug("Updated account balance", common.Fields{
		"bank_account_id": accountID,
		"balance":         balance.String(),
	})
	return nil
}

// principal loads the acting user. An unknown user is forbidden.
func (s *Service) principal(ctx context.Context, q service.Queries, userID string) (*model.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: no acting user", common.ErrForbidden)
	}
	user, err := q.GetUser(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user %s", common.ErrForbidden, userID)
	}
	if err != nil {
		return nil, common.Internal("load user", err)
	}
	return user, nil
}
