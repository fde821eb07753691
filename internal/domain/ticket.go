package domain

import "time"

// Ticket is a seat entitlement minted against an event. Its event and index
// never change after minting.
type Ticket struct {
	ID            string
	EventID       string
	TicketIndex   uint64
	Owner         Identity
	PurchasePrice uint64
	PurchasedAt   time.Time
	CheckedIn     bool
	RefundClaimed bool
	Version       int64
}

// CheckOwner fails unless caller currently owns the ticket.
func (t Ticket) CheckOwner(caller Identity) error {
	if caller != t.Owner {
		return ErrOwnershipMismatch
	}
	return nil
}

// Holding is the per (event, owner) ticket count used for wallet limits.
// A zero Version means no row exists yet.
type Holding struct {
	EventID string
	Owner   Identity
	Count   uint64
	Version int64
}

func (h *Holding) Add() error {
	n, err := checkedAdd(h.Count, 1)
	if err != nil {
		return err
	}
	h.Count = n
	return nil
}

func (h *Holding) Remove() error {
	n, err := checkedSub(h.Count, 1)
	if err != nil {
		return err
	}
	h.Count = n
	return nil
}

// AddressingScheme selects how ticket ids are derived for a deployment.
type AddressingScheme string

const (
	// AddressBySequence derives ids from (event, ticket index).
	AddressBySequence AddressingScheme = "sequential"
	// AddressByBuyer derives ids from (event, buyer); one ticket per buyer.
	AddressByBuyer AddressingScheme = "buyer"
)

func ParseAddressingScheme(s string) (AddressingScheme, error) {
	switch AddressingScheme(s) {
	case "", AddressBySequence:
		return AddressBySequence, nil
	case AddressByBuyer:
		return AddressByBuyer, nil
	}
	return "", ErrInvalidID
}

// TicketID derives the id of a newly minted ticket under the scheme.
func (s AddressingScheme) TicketID(eventID string, index uint64, buyer Identity) string {
	if s == AddressByBuyer {
		return DeriveTicketIDForBuyer(eventID, buyer)
	}
	return DeriveTicketID(eventID, index)
}
