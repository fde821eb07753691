package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
)

type TicketRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	UpdateEvent(ctx context.Context, event *domain.Event) error
	CreateTicket(ctx context.Context, ticket domain.Ticket) error
	GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error)
	GetHolding(ctx context.Context, eventID string, owner domain.Identity) (domain.Holding, error)
	SaveHolding(ctx context.Context, holding *domain.Holding) error
}

// Transferer is the atomic value-transfer primitive. Implementations must
// join the transaction carried by ctx so the movement commits or aborts with
// the ledger write.
type Transferer interface {
	Transfer(ctx context.Context, t domain.Transfer) error
}

// TicketService mints tickets against an event's capacity.
type TicketService struct {
	repo     TicketRepository
	payments Transferer
	clock    clock.Clock
	cfg      settings
}

// NewTicketService builds the ticket ledger. payments may be nil when
// purchase payments are disabled.
func NewTicketService(repo TicketRepository, payments Transferer, clk clock.Clock, opts ...Option) *TicketService {
	return &TicketService{
		repo:     repo,
		payments: payments,
		clock:    clk,
		cfg:      newSettings(opts),
	}
}

type BuyTicketInput struct {
	EventID string
	Buyer   domain.Identity
}

func (s *TicketService) BuyTicket(ctx context.Context, in BuyTicketInput) (domain.Ticket, error) {
	if !in.Buyer.Valid() || in.EventID == "" {
		return domain.Ticket{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result domain.Ticket

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		event, err := s.repo.GetEvent(txCtx, in.EventID)
		if err != nil {
			return err
		}

		index, err := event.NextTicketIndex()
		if err != nil {
			return err
		}

		if s.cfg.purchasePayments && event.TicketPrice > 0 {
			if err := s.payments.Transfer(txCtx, domain.Transfer{
				From:      string(in.Buyer),
				To:        event.VaultAccount(),
				Authority: in.Buyer,
				Amount:    event.TicketPrice,
				Reason:    domain.TransferReasonPurchase,
			}); err != nil {
				return err
			}
		}

		// Event CAS precedes the insert: a racing buyer blocks on the event
		// row and fails with ErrConcurrentUpdate.
		if err := s.repo.UpdateEvent(txCtx, &event); err != nil {
			return err
		}

		ticket := domain.Ticket{
			ID:            s.cfg.addressing.TicketID(event.ID, index, in.Buyer),
			EventID:       event.ID,
			TicketIndex:   index,
			Owner:         in.Buyer,
			PurchasePrice: event.TicketPrice,
			PurchasedAt:   now,
			Version:       1,
		}
		if err := s.repo.CreateTicket(txCtx, ticket); err != nil {
			return err
		}

		holding, err := s.repo.GetHolding(txCtx, event.ID, in.Buyer)
		if err != nil {
			return err
		}
		if err := holding.Add(); err != nil {
			return err
		}
		if err := s.repo.SaveHolding(txCtx, &holding); err != nil {
			return err
		}

		result = ticket
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	logger.InfoCtx(ctx, "ticket purchased",
		zap.String("event_id", result.EventID),
		zap.String("ticket_id", result.ID),
		zap.Uint64("ticket_index", result.TicketIndex),
	)
	notify(ctx, s.cfg.publisher, domain.LedgerEvent{
		Type:       domain.LedgerEventTicketPurchased,
		EventID:    result.EventID,
		TicketID:   result.ID,
		Actor:      result.Owner,
		Amount:     result.PurchasePrice,
		OccurredAt: now,
	})
	return result, nil
}

func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	if ticketID == "" {
		return domain.Ticket{}, domain.ErrInvalidID
	}
	return s.repo.GetTicket(ctx, ticketID)
}
