package app

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

type holdingKey struct {
	eventID string
	owner   domain.Identity
}

// fakeLedger is an in-memory store satisfying every repository interface in
// this package. WithTx snapshots state and restores it when fn fails.
type fakeLedger struct {
	mu sync.Mutex

	events   map[string]domain.Event
	tickets  map[string]domain.Ticket
	holdings map[holdingKey]domain.Holding
	badges   map[string]domain.Badge
	accounts map[string]domain.Account
	moves    []domain.Transfer

	// hooks for injecting failures
	beforeUpdateEvent func(event *domain.Event) error
	createBadgeErr    error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		events:   map[string]domain.Event{},
		tickets:  map[string]domain.Ticket{},
		holdings: map[holdingKey]domain.Holding{},
		badges:   map[string]domain.Badge{},
		accounts: map[string]domain.Account{},
	}
}

type ledgerSnapshot struct {
	events   map[string]domain.Event
	tickets  map[string]domain.Ticket
	holdings map[holdingKey]domain.Holding
	badges   map[string]domain.Badge
	accounts map[string]domain.Account
	moves    []domain.Transfer
}

func (f *fakeLedger) snapshot() ledgerSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ledgerSnapshot{
		events:   maps.Clone(f.events),
		tickets:  maps.Clone(f.tickets),
		holdings: maps.Clone(f.holdings),
		badges:   maps.Clone(f.badges),
		accounts: maps.Clone(f.accounts),
		moves:    append([]domain.Transfer(nil), f.moves...),
	}
}

func (f *fakeLedger) restore(s ledgerSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = s.events
	f.tickets = s.tickets
	f.holdings = s.holdings
	f.badges = s.badges
	f.accounts = s.accounts
	f.moves = s.moves
}

func (f *fakeLedger) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := f.snapshot()
	if err := fn(ctx); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeLedger) CreateEvent(ctx context.Context, event domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[event.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.events[event.ID] = event
	return nil
}

func (f *fakeLedger) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return event, nil
}

func (f *fakeLedger) UpdateEvent(ctx context.Context, event *domain.Event) error {
	if f.beforeUpdateEvent != nil {
		if err := f.beforeUpdateEvent(event); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.events[event.ID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if stored.Version != event.Version {
		return domain.ErrConcurrentUpdate
	}
	event.Version++
	f.events[event.ID] = *event
	return nil
}

func (f *fakeLedger) ListPendingResolutions(ctx context.Context, q domain.PendingQuery) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, e := range f.events {
		if !e.Protection.Enabled || e.Protection.MarketResolved {
			continue
		}
		if q.Oracle != "" && e.Protection.OracleIdentity != q.Oracle {
			continue
		}
		if q.After != nil && !e.After(*q.After) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].After(out[i].Cursor()) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeLedger) CreateTicket(ctx context.Context, ticket domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tickets[ticket.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.tickets[ticket.ID] = ticket
	return nil
}

func (f *fakeLedger) GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return ticket, nil
}

func (f *fakeLedger) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tickets[ticket.ID]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if stored.Version != ticket.Version {
		return domain.ErrConcurrentUpdate
	}
	ticket.Version++
	f.tickets[ticket.ID] = *ticket
	return nil
}

func (f *fakeLedger) GetHolding(ctx context.Context, eventID string, owner domain.Identity) (domain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holdings[holdingKey{eventID, owner}]
	if !ok {
		return domain.Holding{EventID: eventID, Owner: owner}, nil
	}
	return h, nil
}

func (f *fakeLedger) SaveHolding(ctx context.Context, holding *domain.Holding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := holdingKey{holding.EventID, holding.Owner}
	stored, ok := f.holdings[key]
	switch {
	case holding.Version == 0 && ok:
		return domain.ErrConcurrentUpdate
	case holding.Version != 0 && (!ok || stored.Version != holding.Version):
		return domain.ErrConcurrentUpdate
	}
	holding.Version++
	f.holdings[key] = *holding
	return nil
}

func (f *fakeLedger) CreateBadge(ctx context.Context, badge domain.Badge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createBadgeErr != nil {
		return f.createBadgeErr
	}
	if _, ok := f.badges[badge.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.badges[badge.ID] = badge
	return nil
}

func (f *fakeLedger) GetBadge(ctx context.Context, badgeID string) (domain.Badge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.badges[badgeID]
	if !ok {
		return domain.Badge{}, domain.ErrBadgeNotFound
	}
	return b, nil
}

func (f *fakeLedger) OpenAccount(ctx context.Context, account domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[account.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.accounts[account.ID] = account
	return nil
}

func (f *fakeLedger) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeLedger) Deposit(ctx context.Context, accountID string, owner domain.Identity, amount uint64) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		a = domain.Account{ID: accountID, Owner: owner}
	}
	a.Balance += amount
	f.accounts[accountID] = a
	return a, nil
}

func (f *fakeLedger) Transfer(ctx context.Context, t domain.Transfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	from, ok := f.accounts[t.From]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if from.Owner != t.Authority {
		return domain.ErrUnauthorized
	}
	if from.Balance < t.Amount {
		return domain.ErrInsufficientFunds
	}
	to, ok := f.accounts[t.To]
	if !ok {
		to = domain.Account{ID: t.To, Owner: domain.Identity(t.To)}
	}
	from.Balance -= t.Amount
	to.Balance += t.Amount
	f.accounts[t.From] = from
	f.accounts[t.To] = to
	f.moves = append(f.moves, t)
	return nil
}

func (f *fakeLedger) holdingCount(eventID string, owner domain.Identity) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holdings[holdingKey{eventID, owner}].Count
}

func (f *fakeLedger) balance(accountID string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[accountID].Balance
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, evt domain.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) types() []domain.LedgerEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.LedgerEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
