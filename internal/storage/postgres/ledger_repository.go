package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// LedgerRepository stores events, tickets, holdings and badges. Every update
// is a compare-and-swap on the row version.
type LedgerRepository struct {
	db
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db{pool: pool}}
}

func (r *LedgerRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const ticketIndexConstraint = "tickets_event_id_ticket_index_key"

const eventColumns = `
id, authority, name, venue, starts_at, ticket_price, max_tickets, tickets_sold,
max_resale_markup_bps, transfer_lock_start, max_tickets_per_wallet, transfers_enabled,
protection_enabled, market_ref, refund_condition, refund_percentage, oracle_identity,
market_resolved, resolved_outcome, resolved_at, resolution_triggered_refund,
version, created_at`

func (r *LedgerRepository) CreateEvent(ctx context.Context, e domain.Event) error {
	const stmt = `
INSERT INTO events (
	id, authority, name, venue, starts_at, ticket_price, max_tickets, tickets_sold,
	max_resale_markup_bps, transfer_lock_start, max_tickets_per_wallet, transfers_enabled,
	version, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.exec(ctx, stmt,
		e.ID,
		string(e.Authority),
		e.Name,
		e.Venue,
		e.StartsAt,
		int64(e.TicketPrice),
		int64(e.MaxTickets),
		int64(e.TicketsSold),
		int32(e.MaxResaleMarkupBps),
		e.TransferLockStart,
		int16(e.MaxTicketsPerWallet),
		e.TransfersEnabled,
		e.Version,
		e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if isOutOfRange(err) {
			return domain.ErrAmountOutOfRange
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(r.queryRow(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// UpdateEvent writes the mutable event fields if the stored version still
// matches, then advances event.Version.
func (r *LedgerRepository) UpdateEvent(ctx context.Context, e *domain.Event) error {
	const stmt = `
UPDATE events SET
	tickets_sold = $3,
	protection_enabled = $4,
	market_ref = $5,
	refund_condition = $6,
	refund_percentage = $7,
	oracle_identity = $8,
	market_resolved = $9,
	resolved_outcome = $10,
	resolved_at = $11,
	resolution_triggered_refund = $12,
	version = version + 1
WHERE id = $1 AND version = $2`

	p := e.Protection
	tag, err := r.exec(ctx, stmt,
		e.ID,
		e.Version,
		int64(e.TicketsSold),
		p.Enabled,
		p.MarketRef,
		string(p.Condition),
		int16(p.RefundPercentage),
		string(p.OracleIdentity),
		p.MarketResolved,
		string(p.ResolvedOutcome),
		p.ResolvedAt,
		p.TriggeredRefund,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}
	e.Version++
	return nil
}

// ListPendingResolutions returns one page of protected, unresolved events in
// (created_at, id) order, starting after q.After.
func (r *LedgerRepository) ListPendingResolutions(ctx context.Context, q domain.PendingQuery) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + `
FROM events
WHERE protection_enabled AND NOT market_resolved
	AND ($1::text = '' OR oracle_identity = $1::text)
	AND ($2::timestamptz IS NULL OR (created_at, id) > ($2::timestamptz, $3::text))
ORDER BY created_at, id
LIMIT $4`

	var (
		afterAt *time.Time
		afterID string
	)
	if q.After != nil {
		at := q.After.CreatedAt
		afterAt, afterID = &at, q.After.ID
	}

	rows, err := r.query(ctx, query, string(q.Oracle), afterAt, afterID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list pending resolutions: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending resolution: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending resolutions: %w", err)
	}
	return events, nil
}

func (r *LedgerRepository) CreateTicket(ctx context.Context, t domain.Ticket) error {
	const stmt = `
INSERT INTO tickets (id, event_id, ticket_index, owner, purchase_price, purchased_at, checked_in, refund_claimed, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		t.ID,
		t.EventID,
		int64(t.TicketIndex),
		string(t.Owner),
		int64(t.PurchasePrice),
		t.PurchasedAt,
		t.CheckedIn,
		t.RefundClaimed,
		t.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Another writer took this index first.
			if violatedConstraint(err) == ticketIndexConstraint {
				return domain.ErrConcurrentUpdate
			}
			return domain.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	const query = `
SELECT id, event_id, ticket_index, owner, purchase_price, purchased_at, checked_in, refund_claimed, version
FROM tickets
WHERE id = $1`

	var (
		t             domain.Ticket
		owner         string
		index, amount int64
	)
	err := r.queryRow(ctx, query, ticketID).Scan(
		&t.ID, &t.EventID, &index, &owner, &amount, &t.PurchasedAt, &t.CheckedIn, &t.RefundClaimed, &t.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Ticket{}, domain.ErrTicketNotFound
		}
		return domain.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	t.TicketIndex = uint64(index)
	t.Owner = domain.Identity(owner)
	t.PurchasePrice = uint64(amount)
	return t, nil
}

func (r *LedgerRepository) UpdateTicket(ctx context.Context, t *domain.Ticket) error {
	const stmt = `
UPDATE tickets SET
	owner = $3,
	purchase_price = $4,
	checked_in = $5,
	refund_claimed = $6,
	version = version + 1
WHERE id = $1 AND version = $2`

	tag, err := r.exec(ctx, stmt,
		t.ID,
		t.Version,
		string(t.Owner),
		int64(t.PurchasePrice),
		t.CheckedIn,
		t.RefundClaimed,
	)
	if err != nil {
		if isOutOfRange(err) || isCheckViolation(err) {
			return domain.ErrAmountOutOfRange
		}
		return fmt.Errorf("update ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}
	t.Version++
	return nil
}

// GetHolding returns the (event, owner) count. A missing row yields a zero
// holding with Version 0.
func (r *LedgerRepository) GetHolding(ctx context.Context, eventID string, owner domain.Identity) (domain.Holding, error) {
	const query = `SELECT ticket_count, version FROM holdings WHERE event_id = $1 AND owner = $2`

	h := domain.Holding{EventID: eventID, Owner: owner}
	var count int64
	err := r.queryRow(ctx, query, eventID, string(owner)).Scan(&count, &h.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return h, nil
		}
		return domain.Holding{}, fmt.Errorf("get holding: %w", err)
	}
	h.Count = uint64(count)
	return h, nil
}

// SaveHolding inserts a new holding (Version 0) or updates an existing one
// under its version. A lost race in either path is ErrConcurrentUpdate.
func (r *LedgerRepository) SaveHolding(ctx context.Context, h *domain.Holding) error {
	if h.Version == 0 {
		const stmt = `INSERT INTO holdings (event_id, owner, ticket_count, version) VALUES ($1, $2, $3, 1)`
		if _, err := r.exec(ctx, stmt, h.EventID, string(h.Owner), int64(h.Count)); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConcurrentUpdate
			}
			return fmt.Errorf("insert holding: %w", err)
		}
		h.Version = 1
		return nil
	}

	const stmt = `
UPDATE holdings SET ticket_count = $4, version = version + 1
WHERE event_id = $1 AND owner = $2 AND version = $3`
	tag, err := r.exec(ctx, stmt, h.EventID, string(h.Owner), h.Version, int64(h.Count))
	if err != nil {
		return fmt.Errorf("update holding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}
	h.Version++
	return nil
}

func (r *LedgerRepository) CreateBadge(ctx context.Context, b domain.Badge) error {
	const stmt = `
INSERT INTO badges (id, owner, event_id, event_name, event_type, ticket_tier, check_in_time)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt,
		b.ID,
		string(b.Owner),
		b.EventID,
		b.EventName,
		string(b.EventType),
		b.TicketTier,
		b.CheckInTime,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		if isCheckViolation(err) {
			return domain.ErrInvalidBadgeMetadata
		}
		return fmt.Errorf("create badge: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetBadge(ctx context.Context, badgeID string) (domain.Badge, error) {
	const query = `
SELECT id, owner, event_id, event_name, event_type, ticket_tier, check_in_time
FROM badges
WHERE id = $1`

	var (
		b                domain.Badge
		owner, eventType string
	)
	err := r.queryRow(ctx, query, badgeID).Scan(
		&b.ID, &owner, &b.EventID, &b.EventName, &eventType, &b.TicketTier, &b.CheckInTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Badge{}, domain.ErrBadgeNotFound
		}
		return domain.Badge{}, fmt.Errorf("get badge: %w", err)
	}
	b.Owner = domain.Identity(owner)
	b.EventType = domain.EventType(eventType)
	return b, nil
}

func scanEvent(row pgx.Row) (domain.Event, error) {
	var (
		e                                     domain.Event
		authority, condition, oracle, outcome string
		price, maxTickets, sold               int64
		markup                                int32
		perWallet, pct                        int16
		resolvedAt                            *time.Time
	)
	err := row.Scan(
		&e.ID, &authority, &e.Name, &e.Venue, &e.StartsAt, &price, &maxTickets, &sold,
		&markup, &e.TransferLockStart, &perWallet, &e.TransfersEnabled,
		&e.Protection.Enabled, &e.Protection.MarketRef, &condition, &pct, &oracle,
		&e.Protection.MarketResolved, &outcome, &resolvedAt, &e.Protection.TriggeredRefund,
		&e.Version, &e.CreatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}
	e.Authority = domain.Identity(authority)
	e.TicketPrice = uint64(price)
	e.MaxTickets = uint64(maxTickets)
	e.TicketsSold = uint64(sold)
	e.MaxResaleMarkupBps = uint16(markup)
	e.MaxTicketsPerWallet = uint8(perWallet)
	e.Protection.Condition = domain.RefundCondition(condition)
	e.Protection.RefundPercentage = uint8(pct)
	e.Protection.OracleIdentity = domain.Identity(oracle)
	e.Protection.ResolvedOutcome = domain.Outcome(outcome)
	e.Protection.ResolvedAt = resolvedAt
	return e, nil
}
