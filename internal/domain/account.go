package domain

import "time"

// Account is a balance in the vault ledger. Wallet accounts use the owner's
// identity as id; event escrow vaults use VaultAccountID.
type Account struct {
	ID        string
	Owner     Identity
	Balance   uint64
	UpdatedAt time.Time
}

// Transfer asks the value-transfer primitive to move Amount from From to To,
// authorized by Authority (which must own From).
type Transfer struct {
	From      string
	To        string
	Authority Identity
	Amount    uint64
	Reason    string
}

const (
	TransferReasonPurchase = "ticket_purchase"
	TransferReasonRefund   = "refund"
	TransferReasonDeposit  = "deposit"
)
