package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
)

const subjectPrefix = "ledger"

// Config holds the configuration for the NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
}

// streamPublisher is the subset of jetstream.JetStream used here.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type jetStreamPublisher struct {
	nc  *nats.Conn
	js  streamPublisher
	now func() time.Time
}

// NewJetStreamPublisher connects to NATS, ensures the ledger stream exists and
// returns a Publisher writing to subjects "ledger.<type>".
func NewJetStreamPublisher(ctx context.Context, cfg Config) (Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{subjectPrefix + ".>"},
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
	}

	return newJetStreamPublisher(nc, js, time.Now), nil
}

func newJetStreamPublisher(nc *nats.Conn, js streamPublisher, now func() time.Time) *jetStreamPublisher {
	return &jetStreamPublisher{nc: nc, js: js, now: now}
}

func (p *jetStreamPublisher) Publish(ctx context.Context, evt domain.LedgerEvent) error {
	if evt.ID == "" {
		evt.ID = ulid.MustNewDefault(p.now()).String()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}
	// Msg ID lets JetStream deduplicate a retried publish.
	if _, err := p.js.Publish(ctx, Subject(evt.Type), data, jetstream.WithMsgID(evt.ID)); err != nil {
		return fmt.Errorf("publish ledger event: %w", err)
	}
	return nil
}

func (p *jetStreamPublisher) Close() {
	if p.nc == nil {
		return
	}
	p.nc.Close()
}

// Subject returns the NATS subject for a ledger event type.
func Subject(t domain.LedgerEventType) string {
	return subjectPrefix + "." + string(t)
}
