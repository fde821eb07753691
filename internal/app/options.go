package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
	"github.com/cimillas/ticket-ledger/internal/messaging"
)

// Option configures the ledger services. Each service reads only the
// settings it needs.
type Option func(*settings)

type settings struct {
	publisher         messaging.Publisher
	addressing        domain.AddressingScheme
	purchasePayments  bool
	defaultOracle     domain.Identity
	allowReResolution bool
}

func newSettings(opts []Option) settings {
	s := settings{
		publisher:  messaging.NopPublisher{},
		addressing: domain.AddressBySequence,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithPublisher sets where committed ledger events are published.
func WithPublisher(p messaging.Publisher) Option {
	return func(s *settings) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithAddressing selects the ticket id derivation for this deployment.
func WithAddressing(scheme domain.AddressingScheme) Option {
	return func(s *settings) {
		if scheme != "" {
			s.addressing = scheme
		}
	}
}

// WithPurchasePayments makes BuyTicket move the ticket price from the buyer
// into the event vault in the same transaction.
func WithPurchasePayments(enabled bool) Option {
	return func(s *settings) {
		s.purchasePayments = enabled
	}
}

// WithDefaultOracle is used when refund protection is attached without an
// explicit oracle identity.
func WithDefaultOracle(id domain.Identity) Option {
	return func(s *settings) {
		s.defaultOracle = id
	}
}

// WithReResolution lets the oracle resolve a market more than once; the
// latest outcome wins.
func WithReResolution(allowed bool) Option {
	return func(s *settings) {
		s.allowReResolution = allowed
	}
}

// notify publishes after commit. Failures are logged only: the ledger state
// is already durable.
func notify(ctx context.Context, p messaging.Publisher, evt domain.LedgerEvent) {
	if err := p.Publish(ctx, evt); err != nil {
		logger.WarnCtx(ctx, "failed to publish ledger event",
			zap.Error(err),
			zap.String("type", string(evt.Type)),
			zap.String("event_id", evt.EventID),
		)
	}
}
