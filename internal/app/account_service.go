package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
)

type AccountRepository interface {
	Deposit(ctx context.Context, accountID string, owner domain.Identity, amount uint64) (domain.Account, error)
	GetAccount(ctx context.Context, accountID string) (domain.Account, error)
}

// AccountService exposes vault balances and operator deposits.
type AccountService struct {
	repo AccountRepository
}

func NewAccountService(repo AccountRepository) *AccountService {
	return &AccountService{repo: repo}
}

type DepositInput struct {
	AccountID string
	// Owner is only used when the deposit opens a new wallet account.
	Owner  domain.Identity
	Amount uint64
}

func (s *AccountService) Deposit(ctx context.Context, in DepositInput) (domain.Account, error) {
	if in.AccountID == "" {
		return domain.Account{}, domain.ErrInvalidID
	}
	owner := in.Owner
	if owner == "" {
		owner = domain.Identity(in.AccountID)
	}
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return domain.Account{}, err
	}

	acct, err := s.repo.Deposit(ctx, in.AccountID, owner, in.Amount)
	if err != nil {
		return domain.Account{}, err
	}
	logger.InfoCtx(ctx, "deposit recorded",
		zap.String("account_id", acct.ID),
		zap.Uint64("amount", in.Amount),
		zap.Uint64("balance", acct.Balance),
	)
	return acct, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	if accountID == "" {
		return domain.Account{}, domain.ErrInvalidID
	}
	return s.repo.GetAccount(ctx, accountID)
}
