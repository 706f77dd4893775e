// Package feed keeps the Redis market-data caches warm by polling the
// exchange for the configured pairs.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// PollErrorsTotal counts failed exchange polls by kind.
var PollErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "papertrade_feed_poll_errors_total",
		Help: "Failed exchange polls by kind",
	},
	[]string{"kind"},
)

// Sink receives polled market data. service.PriceService implements it.
type Sink interface {
	HandleTick(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) (domain.PriceTick, error)
	HandleDepth(ctx context.Context, snap domain.DepthSnapshot) error
	HandlePair(ctx context.Context, pair domain.TradingPair) error
}

// Config controls which pairs are polled and how often.
type Config struct {
	Pairs            []string
	PriceInterval    time.Duration
	DepthInterval    time.Duration
	MetadataInterval time.Duration
	DepthLimit       int
}

// Poller polls the exchange on three independent tickers.
type Poller struct {
	source domain.MarketData
	sink   Sink
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewPoller creates a Poller. Zero intervals fall back to one second for
// prices and depth and five minutes for metadata.
func NewPoller(source domain.MarketData, sink Sink, cfg Config, logger *slog.Logger) *Poller {
	if cfg.PriceInterval <= 0 {
		cfg.PriceInterval = time.Second
	}
	if cfg.DepthInterval <= 0 {
		cfg.DepthInterval = time.Second
	}
	if cfg.MetadataInterval <= 0 {
		cfg.MetadataInterval = 5 * time.Minute
	}
	if cfg.DepthLimit <= 0 {
		cfg.DepthLimit = 20
	}
	pairs := make([]string, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			pairs = append(pairs, p)
		}
	}
	cfg.Pairs = pairs
	return &Poller{
		source: source,
		sink:   sink,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "feed_poller")),
	}
}

// Run polls until ctx is cancelled. A failed poll is logged and retried on
// the next tick; it never stops the loop.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.cfg.Pairs) == 0 {
		return fmt.Errorf("feed: no pairs configured")
	}
	p.logger.Info("feed poller starting",
		slog.Any("pairs", p.cfg.Pairs),
		slog.Duration("price_interval", p.cfg.PriceInterval),
		slog.Duration("depth_interval", p.cfg.DepthInterval),
		slog.Duration("metadata_interval", p.cfg.MetadataInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.loop(gctx, "metadata", p.cfg.MetadataInterval, p.PollMetadata) })
	g.Go(func() error { return p.loop(gctx, "price", p.cfg.PriceInterval, p.PollPrices) })
	g.Go(func() error { return p.loop(gctx, "depth", p.cfg.DepthInterval, p.PollDepth) })

	err := g.Wait()
	p.logger.Info("feed poller stopped")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (p *Poller) loop(ctx context.Context, kind string, interval time.Duration, poll func(context.Context) int) error {
	poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("feed loop stopped", slog.String("kind", kind))
			return ctx.Err()
		case <-ticker.C:
			poll(ctx)
		}
	}
}

// PollPrices fetches the reference price of every pair once and returns the
// number of failures.
func (p *Poller) PollPrices(ctx context.Context) int {
	return p.each(ctx, "price", func(symbol string) error {
		price, err := p.source.ReferencePrice(ctx, symbol)
		if err != nil {
			return err
		}
		_, err = p.sink.HandleTick(ctx, symbol, price, p.now())
		return err
	})
}

// PollDepth fetches a depth snapshot of every pair once.
func (p *Poller) PollDepth(ctx context.Context) int {
	return p.each(ctx, "depth", func(symbol string) error {
		snap, err := p.source.DepthSnapshot(ctx, symbol, p.cfg.DepthLimit)
		if err != nil {
			return err
		}
		if snap.Timestamp.IsZero() {
			snap.Timestamp = p.now()
		}
		return p.sink.HandleDepth(ctx, snap)
	})
}

// PollMetadata refreshes the pair metadata of every pair once.
func (p *Poller) PollMetadata(ctx context.Context) int {
	return p.each(ctx, "metadata", func(symbol string) error {
		pair, err := p.source.PairMetadata(ctx, symbol)
		if err != nil {
			return err
		}
		return p.sink.HandlePair(ctx, pair)
	})
}

func (p *Poller) each(ctx context.Context, kind string, fn func(symbol string) error) int {
	failed := 0
	for _, symbol := range p.cfg.Pairs {
		if ctx.Err() != nil {
			return failed
		}
		if err := fn(symbol); err != nil {
			failed++
			PollErrorsTotal.WithLabelValues(kind).Inc()
			p.logger.WarnContext(ctx, "feed poll failed",
				slog.String("kind", kind),
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return failed
}
