package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
)

type RegistryRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateEvent(ctx context.Context, event domain.Event) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	UpdateEvent(ctx context.Context, event *domain.Event) error
	OpenAccount(ctx context.Context, account domain.Account) error
}

// RegistryService creates events and manages their refund protection.
type RegistryService struct {
	repo  RegistryRepository
	clock clock.Clock
	cfg   settings
}

func NewRegistryService(repo RegistryRepository, clk clock.Clock, opts ...Option) *RegistryService {
	return &RegistryService{
		repo:  repo,
		clock: clk,
		cfg:   newSettings(opts),
	}
}

type InitializeEventInput struct {
	Organizer           domain.Identity
	Name                string
	Venue               string
	StartsAt            *time.Time
	TicketPrice         uint64
	MaxTickets          uint64
	MaxResaleMarkupBps  uint16
	TransferLockStart   int64
	MaxTicketsPerWallet uint8
	TransfersEnabled    bool
}

func (s *RegistryService) InitializeEvent(ctx context.Context, in InitializeEventInput) (domain.Event, error) {
	if !in.Organizer.Valid() {
		return domain.Event{}, domain.ErrInvalidID
	}
	if in.Name == "" {
		return domain.Event{}, domain.ErrEventNameRequired
	}
	if err := domain.ValidateAmount(in.TicketPrice); err != nil {
		return domain.Event{}, err
	}
	if err := domain.ValidateAmount(in.MaxTickets); err != nil {
		return domain.Event{}, err
	}

	now := s.clock.Now()
	startsAt := now
	if in.StartsAt != nil {
		startsAt = in.StartsAt.UTC()
	}

	event := domain.Event{
		ID:                  domain.DeriveEventID(in.Organizer, in.Name),
		Authority:           in.Organizer,
		Name:                in.Name,
		Venue:               in.Venue,
		StartsAt:            startsAt,
		TicketPrice:         in.TicketPrice,
		MaxTickets:          in.MaxTickets,
		MaxResaleMarkupBps:  in.MaxResaleMarkupBps,
		TransferLockStart:   in.TransferLockStart,
		MaxTicketsPerWallet: in.MaxTicketsPerWallet,
		TransfersEnabled:    in.TransfersEnabled,
		Version:             1,
		CreatedAt:           now,
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateEvent(txCtx, event); err != nil {
			return err
		}
		return s.repo.OpenAccount(txCtx, domain.Account{
			ID:        event.VaultAccount(),
			Owner:     event.Authority,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return domain.Event{}, err
	}

	logger.InfoCtx(ctx, "event initialized",
		zap.String("event_id", event.ID),
		zap.String("organizer", event.Authority.String()),
		zap.Uint64("max_tickets", event.MaxTickets),
	)
	notify(ctx, s.cfg.publisher, domain.LedgerEvent{
		Type:       domain.LedgerEventInitialized,
		EventID:    event.ID,
		Actor:      event.Authority,
		Amount:     event.TicketPrice,
		OccurredAt: now,
	})
	return event, nil
}

type AttachProtectionInput struct {
	EventID          string
	Caller           domain.Identity
	MarketRef        string
	Condition        domain.RefundCondition
	RefundPercentage uint8
	// Oracle is the identity trusted to resolve the market. Empty falls back
	// to the configured default oracle.
	Oracle domain.Identity
}

func (s *RegistryService) AttachRefundProtection(ctx context.Context, in AttachProtectionInput) (domain.Event, error) {
	oracle := in.Oracle
	if oracle == "" {
		oracle = s.cfg.defaultOracle
	}

	var result domain.Event
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		event, err := s.repo.GetEvent(txCtx, in.EventID)
		if err != nil {
			return err
		}
		if err := event.AttachProtection(in.Caller, domain.Protection{
			MarketRef:        in.MarketRef,
			Condition:        in.Condition,
			RefundPercentage: in.RefundPercentage,
			OracleIdentity:   oracle,
		}); err != nil {
			return err
		}
		if err := s.repo.UpdateEvent(txCtx, &event); err != nil {
			return err
		}
		result = event
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}

	logger.InfoCtx(ctx, "refund protection attached",
		zap.String("event_id", result.ID),
		zap.String("market_ref", result.Protection.MarketRef),
		zap.String("condition", string(result.Protection.Condition)),
	)
	notify(ctx, s.cfg.publisher, domain.LedgerEvent{
		Type:       domain.LedgerEventProtectionAttached,
		EventID:    result.ID,
		Actor:      in.Caller,
		OccurredAt: s.clock.Now(),
	})
	return result, nil
}

func (s *RegistryService) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	if eventID == "" {
		return domain.Event{}, domain.ErrInvalidID
	}
	return s.repo.GetEvent(ctx, eventID)
}
