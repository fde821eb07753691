package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
)

// VaultRepository is the value-transfer primitive: balances plus an
// append-only transfer journal. Transfer joins the caller's transaction.
type VaultRepository struct {
	db
	clock clock.Clock
}

func NewVaultRepository(pool *pgxpool.Pool, clk clock.Clock) *VaultRepository {
	return &VaultRepository{db: db{pool: pool}, clock: clk}
}

func (r *VaultRepository) OpenAccount(ctx context.Context, a domain.Account) error {
	const stmt = `INSERT INTO accounts (id, owner, balance, updated_at) VALUES ($1, $2, $3, $4)`

	updatedAt := a.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.clock.Now()
	}
	if _, err := r.exec(ctx, stmt, a.ID, string(a.Owner), int64(a.Balance), updatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("open account: %w", err)
	}
	return nil
}

func (r *VaultRepository) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	const query = `SELECT id, owner, balance, updated_at FROM accounts WHERE id = $1`
	a, err := scanAccount(r.queryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// Deposit credits an account, opening it for owner when missing, and journals
// the credit.
func (r *VaultRepository) Deposit(ctx context.Context, accountID string, owner domain.Identity, amount uint64) (domain.Account, error) {
	const stmt = `
INSERT INTO accounts (id, owner, balance, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET balance = accounts.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
RETURNING id, owner, balance, updated_at`

	var acct domain.Account
	err := withTx(ctx, r.pool, func(txCtx context.Context) error {
		now := r.clock.Now()
		a, err := scanAccount(r.queryRow(txCtx, stmt, accountID, string(owner), int64(amount), now))
		if err != nil {
			if isOutOfRange(err) {
				return domain.ErrArithmeticOverflow
			}
			return fmt.Errorf("deposit: %w", err)
		}
		if err := r.journal(txCtx, nil, accountID, owner, amount, domain.TransferReasonDeposit, now); err != nil {
			return err
		}
		acct = a
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

// Transfer moves the full amount or nothing. The source row is locked, its
// owner must equal t.Authority and its balance must cover the amount. A
// missing destination is opened with its id as owner.
func (r *VaultRepository) Transfer(ctx context.Context, t domain.Transfer) error {
	if err := domain.ValidateAmount(t.Amount); err != nil {
		return err
	}
	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		const lock = `SELECT owner, balance FROM accounts WHERE id = $1 FOR UPDATE`
		var (
			owner   string
			balance int64
		)
		if err := r.queryRow(txCtx, lock, t.From).Scan(&owner, &balance); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrAccountNotFound
			}
			return fmt.Errorf("lock source account: %w", err)
		}
		if domain.Identity(owner) != t.Authority {
			return domain.ErrUnauthorized
		}
		if uint64(balance) < t.Amount {
			return domain.ErrInsufficientFunds
		}

		now := r.clock.Now()
		const debit = `UPDATE accounts SET balance = balance - $2, updated_at = $3 WHERE id = $1`
		if _, err := r.exec(txCtx, debit, t.From, int64(t.Amount), now); err != nil {
			return fmt.Errorf("debit account: %w", err)
		}

		const credit = `
INSERT INTO accounts (id, owner, balance, updated_at)
VALUES ($1, $1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET balance = accounts.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`
		if _, err := r.exec(txCtx, credit, t.To, int64(t.Amount), now); err != nil {
			if isOutOfRange(err) {
				return domain.ErrArithmeticOverflow
			}
			return fmt.Errorf("credit account: %w", err)
		}

		from := t.From
		return r.journal(txCtx, &from, t.To, t.Authority, t.Amount, t.Reason, now)
	})
}

func (r *VaultRepository) journal(ctx context.Context, from *string, to string, authority domain.Identity, amount uint64, reason string, at time.Time) error {
	const stmt = `
INSERT INTO transfers (id, from_account, to_account, authority, amount, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.exec(ctx, stmt, uuid.NewString(), from, to, string(authority), int64(amount), reason, at); err != nil {
		return fmt.Errorf("journal transfer: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a       domain.Account
		owner   string
		balance int64
	)
	if err := row.Scan(&a.ID, &owner, &balance, &a.UpdatedAt); err != nil {
		return domain.Account{}, err
	}
	a.Owner = domain.Identity(owner)
	a.Balance = uint64(balance)
	return a, nil
}
