package domain

import "time"

type LedgerEventType string

const (
	LedgerEventInitialized        LedgerEventType = "event.initialized"
	LedgerEventProtectionAttached LedgerEventType = "event.protection_attached"
	LedgerEventTicketPurchased    LedgerEventType = "ticket.purchased"
	LedgerEventTicketTransferred  LedgerEventType = "ticket.transferred"
	LedgerEventMarketResolved     LedgerEventType = "market.resolved"
	LedgerEventRefundClaimed      LedgerEventType = "refund.claimed"
	LedgerEventTicketCheckedIn    LedgerEventType = "ticket.checked_in"
)

// LedgerEvent describes a committed state change, published for downstream
// consumers after the transaction commits.
type LedgerEvent struct {
	ID           string          `json:"id"`
	Type         LedgerEventType `json:"type"`
	EventID      string          `json:"event_id"`
	TicketID     string          `json:"ticket_id,omitempty"`
	Actor        Identity        `json:"actor,omitempty"`
	Counterparty Identity        `json:"counterparty,omitempty"`
	Amount       uint64          `json:"amount,omitempty"`
	Outcome      Outcome         `json:"outcome,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}
