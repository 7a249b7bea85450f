package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dxtrader/dxbot/internal/domain"
)

// Watcher polls the configured token pairs on a fixed interval, recording a
// snapshot per pair each tick. Per-pair failures are logged and do not stop
// the loop; the loop exits when the context is cancelled.
type Watcher struct {
	svc      *AuctionService
	pairs    []domain.TokenPair
	interval time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a Watcher over the given pairs. An interval of zero
// defaults to 30 seconds.
func NewWatcher(svc *AuctionService, pairs []domain.TokenPair, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		svc:      svc,
		pairs:    pairs,
		interval: interval,
		logger:   logger.With(slog.String("component", "watcher")),
	}
}

// Run blocks until ctx is cancelled. The first tick fires immediately.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "watch loop starting",
		slog.Int("pairs", len(w.pairs)),
		slog.Duration("interval", w.interval),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "watch loop stopping")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick snapshots every pair concurrently. Errors are logged per pair.
func (w *Watcher) tick(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, pair := range w.pairs {
		g.Go(func() error {
			if _, err := w.svc.Snapshot(gctx, pair); err != nil {
				w.logger.WarnContext(gctx, "snapshot failed",
					slog.String("pair", pair.String()),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
