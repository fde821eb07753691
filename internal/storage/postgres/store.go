package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/ticket-ledger/internal/clock"
)

// Store bundles the ledger and vault repositories over one pool. Both join
// the same context transaction, so a ledger write and a vault transfer made
// inside Store.WithTx commit together.
type Store struct {
	*LedgerRepository
	*VaultRepository
}

func NewStore(pool *pgxpool.Pool, clk clock.Clock) *Store {
	return &Store{
		LedgerRepository: NewLedgerRepository(pool),
		VaultRepository:  NewVaultRepository(pool, clk),
	}
}
