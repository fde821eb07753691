package messaging

import (
	"context"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// Publisher delivers committed ledger events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evt domain.LedgerEvent) error
	Close()
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.LedgerEvent) error { return nil }

func (NopPublisher) Close() {}
