package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/cimillas/ticket-ledger/internal/app"
	"github.com/cimillas/ticket-ledger/internal/domain"
	"github.com/cimillas/ticket-ledger/internal/logger"
)

// Recorder is the slice of the oracle service the worker drives.
type Recorder interface {
	ListPendingResolutions(ctx context.Context, q domain.PendingQuery) ([]domain.Event, error)
	RecordMarketResolution(ctx context.Context, in app.RecordResolutionInput) (domain.Event, error)
}

// WorkerConfig holds settings for the resolution worker
type WorkerConfig struct {
	Identity     domain.Identity
	PoolSize     int
	PollInterval time.Duration
	BatchSize    int
	// ConflictRetries bounds re-attempts after a concurrent update.
	ConflictRetries uint64
}

// CycleStats counts what one polling cycle did.
type CycleStats struct {
	Checked  int32
	Resolved int32
	Skipped  int32
	Failed   int32
}

// Worker polls pending protected events, asks the market source for their
// resolution and records settled YES/NO outcomes as the configured oracle.
// Each cycle checks the page after the previous one and wraps to the oldest
// event once a short page is returned, so events that stay pending cannot
// starve newer ones.
type Worker struct {
	cfg      WorkerConfig
	source   MarketSource
	recorder Recorder
	retry    func() backoff.BackOff

	mu     sync.Mutex
	cursor *domain.PendingCursor
}

func NewWorker(cfg WorkerConfig, source MarketSource, recorder Recorder) *Worker {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.ConflictRetries == 0 {
		cfg.ConflictRetries = 3
	}
	return &Worker{
		cfg:      cfg,
		source:   source,
		recorder: recorder,
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
}

// Run polls until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	logger.InfoCtx(ctx, "starting oracle worker",
		zap.String("oracle", w.cfg.Identity.String()),
		zap.Int("pool_size", w.cfg.PoolSize),
		zap.Duration("poll_interval", w.cfg.PollInterval),
	)

	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorCtx(ctx, err)
		}

		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "oracle worker stopping", zap.Error(ctx.Err()))
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// RunOnce checks one batch of pending events.
func (w *Worker) RunOnce(ctx context.Context) (CycleStats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	events, err := w.recorder.ListPendingResolutions(ctx, domain.PendingQuery{
		Oracle: w.cfg.Identity,
		After:  w.cursor,
		Limit:  w.cfg.BatchSize,
	})
	if err != nil {
		return CycleStats{}, fmt.Errorf("failed to list pending resolutions: %w", err)
	}
	if len(events) < w.cfg.BatchSize {
		w.cursor = nil
	} else {
		next := events[len(events)-1].Cursor()
		w.cursor = &next
	}

	var checked, resolved, skipped, failed atomic.Int32

	pool := pond.NewPool(w.cfg.PoolSize, pond.WithContext(ctx))
	for _, event := range events {
		if event.Protection.OracleIdentity != w.cfg.Identity {
			skipped.Add(1)
			continue
		}
		pool.Submit(func() {
			checked.Add(1)
			done, err := w.settle(ctx, event)
			switch {
			case err != nil:
				failed.Add(1)
				logger.ErrorCtx(ctx, err, zap.String("event_id", event.ID), zap.String("market", event.Protection.MarketRef))
			case done:
				resolved.Add(1)
			default:
				skipped.Add(1)
			}
		})
	}
	pool.StopAndWait()

	stats := CycleStats{
		Checked:  checked.Load(),
		Resolved: resolved.Load(),
		Skipped:  skipped.Load(),
		Failed:   failed.Load(),
	}
	logger.InfoCtx(ctx, "oracle cycle completed",
		zap.Int("pending", len(events)),
		zap.Int32("checked", stats.Checked),
		zap.Int32("resolved", stats.Resolved),
		zap.Int32("skipped", stats.Skipped),
		zap.Int32("failed", stats.Failed),
	)
	return stats, nil
}

// settle reports true when an outcome was recorded.
func (w *Worker) settle(ctx context.Context, event domain.Event) (bool, error) {
	res, err := w.source.FetchResolution(ctx, event.Protection.MarketRef)
	if err != nil {
		return false, fmt.Errorf("failed to fetch market %s: %w", event.Protection.MarketRef, err)
	}
	if !res.Resolved {
		return false, nil
	}

	var outcome domain.Outcome
	switch res.Outcome {
	case MarketYes:
		outcome = domain.OutcomeA
	case MarketNo:
		outcome = domain.OutcomeB
	default:
		logger.WarnCtx(ctx, "market settled without a binary outcome",
			zap.String("event_id", event.ID),
			zap.String("market", res.MarketRef),
			zap.String("outcome", string(res.Outcome)),
		)
		return false, nil
	}

	operation := func() error {
		_, err := w.recorder.RecordMarketResolution(ctx, app.RecordResolutionInput{
			EventID: event.ID,
			Oracle:  w.cfg.Identity,
			Outcome: outcome,
		})
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(w.retry(), w.cfg.ConflictRetries), ctx)
	err = backoff.Retry(operation, b)
	if errors.Is(err, domain.ErrAlreadyResolved) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record resolution for event %s: %w", event.ID, err)
	}
	return true, nil
}
