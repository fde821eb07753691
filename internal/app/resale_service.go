package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
)

type ResaleRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error)
	UpdateTicket(ctx context.Context, ticket *domain.Ticket) error
	GetHolding(ctx context.Context, eventID string, owner domain.Identity) (domain.Holding, error)
	SaveHolding(ctx context.Context, holding *domain.Holding) error
}

// ResaleService moves tickets between owners under the event's anti-scalping
// rules.
type ResaleService struct {
	repo  ResaleRepository
	clock clock.Clock
	cfg   settings
}

func NewResaleService(repo ResaleRepository, clk clock.Clock, opts ...Option) *ResaleService {
	return &ResaleService{
		repo:  repo,
		clock: clk,
		cfg:   newSettings(opts),
	}
}

type TransferTicketInput struct {
	TicketID     string
	CurrentOwner domain.Identity
	NewOwner     domain.Identity
	// SalePrice is nil for a gift; the markup cap only applies to sales.
	SalePrice *uint64
}

// TransferTicket validates, in order: ownership, lock window, transfers
// toggle, markup cap, wallet limit. The first failing check is returned and
// nothing is written.
func (s *ResaleService) TransferTicket(ctx context.Context, in TransferTicketInput) (domain.Ticket, error) {
	if in.TicketID == "" || !in.NewOwner.Valid() {
		return domain.Ticket{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var (
		result    domain.Ticket
		prevOwner domain.Identity
	)

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		ticket, err := s.repo.GetTicket(txCtx, in.TicketID)
		if err != nil {
			return err
		}
		event, err := s.repo.GetEvent(txCtx, ticket.EventID)
		if err != nil {
			return err
		}

		if err := ticket.CheckOwner(in.CurrentOwner); err != nil {
			return err
		}
		if err := event.CheckTransferWindow(now.Unix()); err != nil {
			return err
		}
		if err := event.CheckSalePrice(ticket.PurchasePrice, in.SalePrice); err != nil {
			return err
		}
		if in.SalePrice != nil {
			if err := domain.ValidateAmount(*in.SalePrice); err != nil {
				return err
			}
		}

		recipient, err := s.repo.GetHolding(txCtx, event.ID, in.NewOwner)
		if err != nil {
			return err
		}
		if err := event.CheckWalletLimit(recipient.Count); err != nil {
			return err
		}

		if in.NewOwner != ticket.Owner {
			sender, err := s.repo.GetHolding(txCtx, event.ID, ticket.Owner)
			if err != nil {
				return err
			}
			if err := sender.Remove(); err != nil {
				return err
			}
			if err := recipient.Add(); err != nil {
				return err
			}
			if err := s.repo.SaveHolding(txCtx, &sender); err != nil {
				return err
			}
			if err := s.repo.SaveHolding(txCtx, &recipient); err != nil {
				return err
			}
		}

		prevOwner = ticket.Owner
		ticket.Owner = in.NewOwner
		if in.SalePrice != nil {
			ticket.PurchasePrice = *in.SalePrice
		}
		if err := s.repo.UpdateTicket(txCtx, &ticket); err != nil {
			return err
		}
		result = ticket
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	fields := []zap.Field{
		zap.String("ticket_id", result.ID),
		zap.String("from", prevOwner.String()),
		zap.String("to", result.Owner.String()),
	}
	if in.SalePrice != nil {
		fields = append(fields, zap.Uint64("sale_price", *in.SalePrice))
	}
	logger.InfoCtx(ctx, "ticket transferred", fields...)

	evt := domain.LedgerEvent{
		Type:         domain.LedgerEventTicketTransferred,
		EventID:      result.EventID,
		TicketID:     result.ID,
		Actor:        prevOwner,
		Counterparty: result.Owner,
		OccurredAt:   now,
	}
	if in.SalePrice != nil {
		evt.Amount = *in.SalePrice
	}
	notify(ctx, s.cfg.publisher, evt)
	return result, nil
}
