package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/clock"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
)

type OracleRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	UpdateEvent(ctx context.Context, event *domain.Event) error
	ListPendingResolutions(ctx context.Context, q domain.PendingQuery) ([]domain.Event, error)
}

// OracleService records trusted market outcomes and derives refund
// eligibility.
type OracleService struct {
	repo  OracleRepository
	clock clock.Clock
	cfg   settings
}

func NewOracleService(repo OracleRepository, clk clock.Clock, opts ...Option) *OracleService {
	return &OracleService{
		repo:  repo,
		clock: clk,
		cfg:   newSettings(opts),
	}
}

type RecordResolutionInput struct {
	EventID string
	Oracle  domain.Identity
	Outcome domain.Outcome
}

func (s *OracleService) RecordMarketResolution(ctx context.Context, in RecordResolutionInput) (domain.Event, error) {
	if in.EventID == "" {
		return domain.Event{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result domain.Event

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		event, err := s.repo.GetEvent(txCtx, in.EventID)
		if err != nil {
			return err
		}
		if err := event.Resolve(in.Oracle, in.Outcome, now, s.cfg.allowReResolution); err != nil {
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

	logger.InfoCtx(ctx, "market resolution recorded",
		zap.String("event_id", result.ID),
		zap.String("outcome", string(result.Protection.ResolvedOutcome)),
		zap.Bool("refund_triggered", result.Protection.TriggeredRefund),
	)
	notify(ctx, s.cfg.publisher, domain.LedgerEvent{
		Type:       domain.LedgerEventMarketResolved,
		EventID:    result.ID,
		Actor:      in.Oracle,
		Outcome:    result.Protection.ResolvedOutcome,
		OccurredAt: now,
	})
	return result, nil
}

// ListPendingResolutions returns a page of protected events whose market has
// not been resolved yet.
func (s *OracleService) ListPendingResolutions(ctx context.Context, q domain.PendingQuery) ([]domain.Event, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	return s.repo.ListPendingResolutions(ctx, q)
}
