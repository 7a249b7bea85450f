package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/server"
	"github.com/dxtrader/dxbot/internal/server/handler"
	"github.com/dxtrader/dxbot/internal/server/ws"
	"github.com/dxtrader/dxbot/internal/service"
)

const (
	// archiveEvery drives the background archival cadence.
	archiveEvery = 6 * time.Hour

	// archiveAfter is how old a record must be before it is archived.
	archiveAfter = 24 * time.Hour

	shutdownTimeout = 10 * time.Second
)

// WatchMode polls the configured pairs, records snapshots, and emits lifecycle
// notifications. The HTTP server is started as well when enabled.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	svc := a.buildAuctionService(deps, hub)

	if err := a.startWatcher(ctx, g, svc); err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}
	a.startArchiver(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc, hub)
	}

	return g.Wait()
}

// ServeMode exposes the HTTP and WebSocket API without polling. Snapshots and
// settlements are still persisted when their stores are wired, but only on
// explicit API calls.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, but serve mode always starts the server")
	}

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	svc := a.buildAuctionService(deps, hub)
	a.startHTTPServer(ctx, g, deps, svc, hub)

	return g.Wait()
}

// FullMode starts all subsystems: the watcher, the archiver, and the HTTP and
// WebSocket API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	svc := a.buildAuctionService(deps, hub)

	if err := a.startWatcher(ctx, g, svc); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startArchiver(ctx, g, deps)

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, skipping HTTP server in full mode")
	} else {
		a.startHTTPServer(ctx, g, deps, svc, hub)
	}

	return g.Wait()
}

// buildAuctionService assembles the AuctionService from the wired
// dependencies. hub may be nil, in which case no status broadcasts happen.
func (a *App) buildAuctionService(deps *Dependencies, hub *ws.Hub) *service.AuctionService {
	var broadcast service.Broadcaster
	if hub != nil {
		broadcast = hub
	}
	svc := service.NewAuctionService(
		deps.Auctions,
		deps.Resolver,
		deps.Calc,
		deps.Settler,
		deps.SnapshotStore,
		deps.SettlementStore,
		deps.Notifier,
		broadcast,
		a.logger,
	)
	if deps.Account != nil {
		svc = svc.WithSigner(deps.Account)
	}
	return svc
}

// startWatcher parses the configured pairs and adds the polling goroutine to
// the errgroup.
func (a *App) startWatcher(ctx context.Context, g *errgroup.Group, svc *service.AuctionService) error {
	pairs, err := a.watchPairs()
	if err != nil {
		return err
	}

	watcher := service.NewWatcher(svc, pairs, a.cfg.Watch.Interval.Duration, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	a.logger.InfoContext(ctx, "watcher started",
		slog.Int("pairs", len(pairs)),
		slog.Duration("interval", a.cfg.Watch.Interval.Duration),
	)
	return nil
}

// startArchiver adds the periodic store-to-S3 archival goroutine when both
// Postgres and S3 are wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}

	g.Go(func() error {
		ticker := time.NewTicker(archiveEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				before := time.Now().UTC().Add(-archiveAfter)
				if n, err := deps.Archiver.ArchiveSnapshots(ctx, before); err != nil {
					a.logger.WarnContext(ctx, "snapshot archival failed",
						slog.String("error", err.Error()),
					)
				} else if n > 0 {
					a.logger.InfoContext(ctx, "snapshots archived", slog.Int64("records", n))
				}
				if n, err := deps.Archiver.ArchiveSettlements(ctx, before); err != nil {
					a.logger.WarnContext(ctx, "settlement archival failed",
						slog.String("error", err.Error()),
					)
				} else if n > 0 {
					a.logger.InfoContext(ctx, "settlements archived", slog.Int64("records", n))
				}
			}
		}
	})
}

// startHTTPServer adds the HTTP server goroutine to the given errgroup and a
// companion goroutine that shuts it down when the context is cancelled. The
// report endpoints are registered only when blob storage and persistence are
// both available.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svc *service.AuctionService,
	hub *ws.Hub,
) {
	auctions := handler.NewAuctionHandler(svc, a.logger)
	if deps.Account != nil {
		auctions = auctions.WithDefaultAccount(deps.Account.Address())
	}
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Ethereum, len(a.cfg.Watch.Pairs), a.logger),
		Auctions: auctions,
	}
	if deps.BlobWriter != nil && deps.SnapshotStore != nil {
		reports := service.NewReportService(deps.SnapshotStore, deps.SettlementStore, deps.BlobWriter, a.logger)
		handlers.Reports = handler.NewReportHandler(reports, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// watchPairs parses the configured SELL-BUY pair names.
func (a *App) watchPairs() ([]domain.TokenPair, error) {
	pairs := make([]domain.TokenPair, 0, len(a.cfg.Watch.Pairs))
	for _, name := range a.cfg.Watch.Pairs {
		sell, buy, ok := strings.Cut(name, "-")
		if !ok {
			return nil, fmt.Errorf("app: pair %q is not in SELL-BUY form", name)
		}
		pair, err := domain.NewTokenPair(domain.Token(sell), domain.Token(buy))
		if err != nil {
			return nil, fmt.Errorf("app: pair %q: %w", name, err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}
