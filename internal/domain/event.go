package domain

import "time"

// Event is a ticketed event together with its resale rules and optional
// refund protection. Events are never deleted.
type Event struct {
	ID        string
	Authority Identity
	Name      string
	Venue     string
	StartsAt  time.Time

	TicketPrice uint64
	MaxTickets  uint64
	TicketsSold uint64

	MaxResaleMarkupBps  uint16
	TransferLockStart   int64 // unix seconds; 0 disables the lock
	MaxTicketsPerWallet uint8
	TransfersEnabled    bool

	Protection Protection

	Version   int64
	CreatedAt time.Time
}

// Protection is the oracle-driven refund policy attached to an event.
type Protection struct {
	Enabled          bool
	MarketRef        string
	Condition        RefundCondition
	RefundPercentage uint8
	OracleIdentity   Identity

	MarketResolved  bool
	ResolvedOutcome Outcome
	ResolvedAt      *time.Time
	TriggeredRefund bool
}

// PendingCursor is a position in the (CreatedAt, ID) order of events awaiting
// resolution.
type PendingCursor struct {
	CreatedAt time.Time
	ID        string
}

// PendingQuery selects one page of events awaiting resolution. An empty
// Oracle matches every oracle; a nil After starts from the oldest event.
type PendingQuery struct {
	Oracle Identity
	After  *PendingCursor
	Limit  int
}

// Cursor returns the page position just past e.
func (e Event) Cursor() PendingCursor {
	return PendingCursor{CreatedAt: e.CreatedAt, ID: e.ID}
}

// After reports whether e sorts after c.
func (e Event) After(c PendingCursor) bool {
	if !e.CreatedAt.Equal(c.CreatedAt) {
		return e.CreatedAt.After(c.CreatedAt)
	}
	return e.ID > c.ID
}

// VaultAccount is the escrow account holding the event's proceeds.
func (e Event) VaultAccount() string {
	return VaultAccountID(e.ID)
}

// VaultAccountID returns the escrow account id for an event id.
func VaultAccountID(eventID string) string {
	return "vault:" + eventID
}

// NextTicketIndex reserves the next sequential ticket index and advances
// TicketsSold.
func (e *Event) NextTicketIndex() (uint64, error) {
	if e.TicketsSold >= e.MaxTickets {
		return 0, ErrSoldOut
	}
	index := e.TicketsSold
	sold, err := checkedAdd(e.TicketsSold, 1)
	if err != nil {
		return 0, err
	}
	e.TicketsSold = sold
	return index, nil
}

// CheckTransferWindow applies the lock window and the transfers toggle, in
// that order.
func (e Event) CheckTransferWindow(now int64) error {
	if e.TransferLockStart > 0 && now >= e.TransferLockStart {
		return ErrTransferLocked
	}
	if !e.TransfersEnabled {
		return ErrTransfersDisabled
	}
	return nil
}

// CheckSalePrice enforces the markup cap. A nil sale price is a gift and
// skips the cap.
func (e Event) CheckSalePrice(purchasePrice uint64, salePrice *uint64) error {
	if salePrice == nil {
		return nil
	}
	maxAllowed, err := MaxResalePrice(purchasePrice, e.MaxResaleMarkupBps)
	if err != nil {
		return err
	}
	if *salePrice > maxAllowed {
		return ErrPriceCapExceeded
	}
	return nil
}

// CheckWalletLimit fails when the recipient already holds the maximum number
// of tickets for the event.
func (e Event) CheckWalletLimit(held uint64) error {
	if held >= uint64(e.MaxTicketsPerWallet) {
		return ErrWalletLimitExceeded
	}
	return nil
}

// AttachProtection installs a refund policy and clears any resolution state.
// Reattaching once the market has resolved is rejected.
func (e *Event) AttachProtection(caller Identity, p Protection) error {
	if caller != e.Authority {
		return ErrUnauthorized
	}
	if p.RefundPercentage > percentDenominator {
		return ErrInvalidRefundPercentage
	}
	if !p.Condition.Valid() {
		return ErrInvalidRefundCondition
	}
	if !p.OracleIdentity.Valid() {
		return ErrInvalidOracle
	}
	if e.Protection.MarketResolved {
		return ErrAlreadyResolved
	}
	e.Protection = Protection{
		Enabled:          true,
		MarketRef:        p.MarketRef,
		Condition:        p.Condition,
		RefundPercentage: p.RefundPercentage,
		OracleIdentity:   p.OracleIdentity,
	}
	return nil
}

// Resolve records the oracle's outcome and derives refund eligibility.
// With allowReResolve false a second resolution fails ErrAlreadyResolved;
// with it true the flag is recomputed from the latest outcome.
func (e *Event) Resolve(oracle Identity, outcome Outcome, at time.Time, allowReResolve bool) error {
	if !e.Protection.Enabled || !oracle.Valid() || oracle != e.Protection.OracleIdentity {
		return ErrInvalidOracle
	}
	if !outcome.Valid() {
		return ErrInvalidOutcome
	}
	if e.Protection.MarketResolved && !allowReResolve {
		return ErrAlreadyResolved
	}
	resolvedAt := at
	e.Protection.MarketResolved = true
	e.Protection.ResolvedOutcome = outcome
	e.Protection.ResolvedAt = &resolvedAt
	e.Protection.TriggeredRefund = e.Protection.Condition.TriggeredBy(outcome)
	return nil
}
