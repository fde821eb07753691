package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
)

type RefundRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error)
	UpdateTicket(ctx context.Context, ticket *domain.Ticket) error
}

// RefundService pays out conditional refunds from the event vault, at most
// once per ticket.
type RefundService struct {
	repo     RefundRepository
	payments Transferer
	clock    clock.Clock
	cfg      settings
}

func NewRefundService(repo RefundRepository, payments Transferer, clk clock.Clock, opts ...Option) *RefundService {
	return &RefundService{
		repo:     repo,
		payments: payments,
		clock:    clk,
		cfg:      newSettings(opts),
	}
}

type ClaimRefundInput struct {
	TicketID string
	Claimer  domain.Identity
	// AuthorityProof authorizes moving funds out of the event vault and must
	// be the event authority.
	AuthorityProof domain.Identity
}

type ClaimRefundResult struct {
	Ticket domain.Ticket
	Amount uint64
}

func (s *RefundService) ClaimRefund(ctx context.Context, in ClaimRefundInput) (ClaimRefundResult, error) {
	if in.TicketID == "" {
		return ClaimRefundResult{}, domain.ErrInvalidID
	}

	var result ClaimRefundResult
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		ticket, err := s.repo.GetTicket(txCtx, in.TicketID)
		if err != nil {
			return err
		}
		event, err := s.repo.GetEvent(txCtx, ticket.EventID)
		if err != nil {
			return err
		}

		if err := ticket.CheckOwner(in.Claimer); err != nil {
			return err
		}
		if !event.Protection.TriggeredRefund {
			return domain.ErrRefundNotAvailable
		}
		if ticket.RefundClaimed {
			return domain.ErrRefundAlreadyClaimed
		}
		if in.AuthorityProof != event.Authority {
			return domain.ErrUnauthorized
		}

		amount, err := domain.RefundAmount(ticket.PurchasePrice, event.Protection.RefundPercentage)
		if err != nil {
			return err
		}

		if amount > 0 {
			if err := s.payments.Transfer(txCtx, domain.Transfer{
				From:      event.VaultAccount(),
				To:        string(in.Claimer),
				Authority: in.AuthorityProof,
				Amount:    amount,
				Reason:    domain.TransferReasonRefund,
			}); err != nil {
				return err
			}
		}

		ticket.RefundClaimed = true
		if err := s.repo.UpdateTicket(txCtx, &ticket); err != nil {
			return err
		}
		result = ClaimRefundResult{Ticket: ticket, Amount: amount}
		return nil
	})
	if err != nil {
		return ClaimRefundResult{}, err
	}

	logger.InfoCtx(ctx, "refund claimed",
		zap.String("ticket_id", result.Ticket.ID),
		zap.String("claimer", in.Claimer.String()),
		zap.Uint64("amount", result.Amount),
	)
	notify(ctx, s.cfg.publisher, domain.LedgerEvent{
		Type:       domain.LedgerEventRefundClaimed,
		EventID:    result.Ticket.EventID,
		TicketID:   result.Ticket.ID,
		Actor:      in.Claimer,
		Amount:     result.Amount,
		OccurredAt: s.clock.Now(),
	})
	return result, nil
}
