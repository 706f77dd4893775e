package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/feed"
	"github.com/alanyoungcy/papertrade/internal/pipeline"
	"github.com/alanyoungcy/papertrade/internal/server"
	"github.com/alanyoungcy/papertrade/internal/server/handler"
	"github.com/alanyoungcy/papertrade/internal/server/middleware"
	"github.com/alanyoungcy/papertrade/internal/server/ws"
	"github.com/alanyoungcy/papertrade/internal/service"
	"github.com/alanyoungcy/papertrade/internal/trading"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// ServerMode serves the HTTP API and WebSocket hub, plus the archive job when
// S3 and Postgres are configured.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startServer(ctx, g, deps); err != nil {
		return err
	}
	return wait(g)
}

// FeedMode runs only the market-data poller.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting feed mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps)
	return wait(g)
}

// FullMode runs the poller and the server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps)
	if err := a.startServer(ctx, g, deps); err != nil {
		return err
	}
	return wait(g)
}

// startFeed adds the poller to g. It writes straight from the exchange into
// the caches through the price service, which also fans events out on the
// bus.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sink := service.NewPriceService(deps.PriceCache, deps.DepthCache, deps.PairCache, deps.SignalBus, a.logger)
	poller := feed.NewPoller(deps.Exchange, sink, feed.Config{
		Pairs:            a.cfg.Feed.Pairs,
		PriceInterval:    a.cfg.Feed.PriceInterval.Duration,
		DepthInterval:    a.cfg.Feed.DepthInterval.Duration,
		MetadataInterval: a.cfg.Feed.MetadataInterval.Duration,
		DepthLimit:       a.cfg.Feed.DepthLimit,
	}, a.logger)

	g.Go(func() error {
		return poller.Run(ctx)
	})
}

// startServer builds the services, handlers and hub and adds the HTTP server,
// the hub loop and the optional archive job to g. The server is shut down
// gracefully when ctx is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	desk, err := a.newDesk()
	if err != nil {
		return err
	}

	markets := service.NewMarketService(
		deps.Exchange, deps.PriceCache, deps.DepthCache, deps.PairCache,
		a.cfg.Market.MaxAge.Duration, a.logger,
	).WithLadderDepth(a.cfg.Trading.LadderDepth)

	tradingSvc := service.NewTradingService(desk, markets, a.logger).
		WithOrderStore(deps.OrderStore).
		WithAuditStore(deps.AuditStore).
		WithSignalBus(deps.SignalBus)
	if deps.Notifier != nil {
		tradingSvc.WithNotifier(deps.Notifier)
	}

	searchSvc := service.NewSearchService(deps.Coins, deps.SearchHistory, a.cfg.Trading.QuoteCurrency, a.logger)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Trading: handler.NewTradingHandler(tradingSvc, a.logger),
		Markets: handler.NewMarketHandler(markets, a.logger),
		Search:  handler.NewSearchHandler(searchSvc, a.logger),
	}

	if deps.BlobReader != nil {
		var runner handler.ArchiveRunner
		if deps.Archiver != nil {
			archiver := pipeline.NewArchiver(deps.Archiver, deps.LockManager, a.cfg.Archive.RetentionDays, a.logger)
			runner = archiver
			g.Go(func() error {
				return archiver.RunCron(ctx, a.cfg.Archive.Cron)
			})
		}
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, runner, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, tradingSvc, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	trusted, err := a.cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		return fmt.Errorf("app: trusted proxies: %w", err)
	}
	srv := server.NewServer(server.Config{
		Addr:        a.cfg.Server.Addr(),
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Auth: middleware.AuthConfig{
			Key:  a.cfg.Server.APIKey,
			Hash: a.cfg.Server.APIKeyHash,
			Salt: a.cfg.Server.APIKeySalt,
		},
		RateLimit:      a.cfg.Server.RateLimit,
		RateWindow:     a.cfg.Server.RateWindow.Duration,
		TrustedProxies: trusted,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return nil
}

func (a *App) newDesk() (*trading.Desk, error) {
	quote, base, err := a.cfg.Trading.SeedBalances()
	if err != nil {
		return nil, err
	}
	return trading.NewDesk(domain.Balances{Quote: quote, Base: base}, trading.Scope(a.cfg.Trading.Scope))
}

// wait blocks on g and treats cancellation as a clean exit.
func wait(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
