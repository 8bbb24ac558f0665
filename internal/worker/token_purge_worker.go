package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-gate/internal/events"
	"github.com/spec-kit/auth-gate/internal/observability"
	"github.com/spec-kit/auth-gate/internal/repository"
)

// DefaultPurgeInterval is used when the configured interval is not positive.
const DefaultPurgeInterval = time.Hour

// TokenPurgeWorker periodically removes registry records whose expiry has passed.
type TokenPurgeWorker struct {
	registry   repository.TokenRepository
	logger     *zap.Logger
	metrics    *observability.Metrics
	dispatcher events.Dispatcher
	interval   time.Duration
	now        func() time.Time
}

// NewTokenPurgeWorker builds the worker. logger, metrics and dispatcher may be nil.
func NewTokenPurgeWorker(registry repository.TokenRepository, logger *zap.Logger, metrics *observability.Metrics, dispatcher events.Dispatcher, interval time.Duration) *TokenPurgeWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	return &TokenPurgeWorker{
		registry:   registry,
		logger:     logger.Named("token_purge"),
		metrics:    metrics,
		dispatcher: dispatcher,
		interval:   interval,
		now:        time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *TokenPurgeWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("token purge worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *TokenPurgeWorker) sweep(ctx context.Context) {
	if _, err := w.RunOnce(ctx, w.now()); err != nil && ctx.Err() == nil {
		w.logger.Error("token purge failed", zap.Error(err))
	}
}

// RunOnce deletes every record that expired strictly before the cutoff and
// reports how many were removed.
func (w *TokenPurgeWorker) RunOnce(ctx context.Context, before time.Time) (int64, error) {
	removed, err := w.registry.DeleteExpiredBefore(ctx, before)
	if err != nil {
		return 0, err
	}

	w.metrics.RecordPurge(removed)
	w.logger.Info("expired tokens purged", zap.Time("before", before), zap.Int64("removed", removed))

	if w.dispatcher != nil {
		if err := w.dispatcher.Publish(ctx, events.Event{
			Type:    events.EventTokensPurged,
			Payload: events.TokensPurgedPayload{Before: before, Removed: removed},
		}); err != nil {
			w.logger.Warn("audit handler failed", zap.Error(err))
		}
	}
	return removed, nil
}
