package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
)

type CheckInRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error)
	UpdateTicket(ctx context.Context, ticket *domain.Ticket) error
}

// BadgeMinter is the sibling component called during check-in.
type BadgeMinter interface {
	MintBadge(ctx context.Context, in MintBadgeInput) (domain.Badge, error)
}

// CheckInService marks attendance and mints the attendance badge in one
// transaction.
type CheckInService struct {
	repo   CheckInRepository
	badges BadgeMinter
	clock  clock.Clock
	cfg    settings
}

func NewCheckInService(repo CheckInRepository, badges BadgeMinter, clk clock.Clock, opts ...Option) *CheckInService {
	return &CheckInService{
		repo:   repo,
		badges: badges,
		clock:  clk,
		cfg:    newSettings(opts),
	}
}

type CheckInInput struct {
	TicketID   string
	Authority  domain.Identity
	EventName  string
	EventType  domain.EventType
	TicketTier string
}

type CheckInResult struct {
	Ticket domain.Ticket
	Badge  domain.Badge
}

func (s *CheckInService) CheckInTicket(ctx context.Context, in CheckInInput) (CheckInResult, error) {
	if in.TicketID == "" {
		return CheckInResult{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result CheckInResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		ticket, err := s.repo.GetTicket(txCtx, in.TicketID)
		if err != nil {
			return err
		}
		if err := ticket.CheckOwner(in.Authority); err != nil {
			return err
		}
		if ticket.CheckedIn {
			return domain.ErrAlreadyCheckedIn
		}

		ticket.CheckedIn = true
		if err := s.repo.UpdateTicket(txCtx, &ticket); err != nil {
			return err
		}

		// Runs inside txCtx: a failed mint rolls back the flag above.
		badge, err := s.badges.MintBadge(txCtx, MintBadgeInput{
			EventID:     ticket.EventID,
			Recipient:   in.Authority,
			EventName:   in.EventName,
			EventType:   in.EventType,
			TicketTier:  in.TicketTier,
			CheckInTime: now,
		})
		if err != nil {
			return err
		}

		result = CheckInResult{Ticket: ticket, Badge: badge}
		return nil
	})
	if err != nil {
		return CheckInResult{}, err
	}

	logger.InfoCtx(ctx, "ticket checked in",
		zap.String("ticket_id", result.Ticket.ID),
		zap.String("badge_id", result.Badge.ID),
	)
	notify(ctx, s.cfg.publisher, domain.LedgerEvent{
		Type:       domain.LedgerEventTicketCheckedIn,
		EventID:    result.Ticket.EventID,
		TicketID:   result.Ticket.ID,
		Actor:      in.Authority,
		OccurredAt: now,
	})
	return result, nil
}
