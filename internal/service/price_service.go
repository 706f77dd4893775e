package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/trading"
)

// BookEvent is published on ch:book:{SYMBOL} after every depth update.
type BookEvent struct {
	Event     string          `json:"event"`
	Symbol    string          `json:"symbol"`
	BestBid   decimal.Decimal `json:"best_bid"`
	BestAsk   decimal.Decimal `json:"best_ask"`
	Ladder    domain.Ladder   `json:"ladder"`
	Timestamp time.Time       `json:"timestamp"`
}

// PriceService writes feed updates into the caches and fans them out on the
// signal bus.
type PriceService struct {
	priceCache domain.PriceCache
	depthCache domain.DepthCache
	pairCache  domain.PairCache
	bus        domain.SignalBus
	flux       *fluctuationTracker
	logger     *slog.Logger
}

// NewPriceService creates a PriceService with all required dependencies.
func NewPriceService(
	priceCache domain.PriceCache,
	depthCache domain.DepthCache,
	pairCache domain.PairCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		priceCache: priceCache,
		depthCache: depthCache,
		pairCache:  pairCache,
		bus:        bus,
		flux:       newFluctuationTracker(),
		logger:     logger.With(slog.String("component", "price_service")),
	}
}

// HandleTick stores a new reference price and publishes it on the prices
// channel together with its fluctuation against the previous tick.
func (s *PriceService) HandleTick(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) (domain.PriceTick, error) {
	symbol = strings.ToUpper(symbol)
	if err := s.priceCache.SetPrice(ctx, symbol, price, ts); err != nil {
		return domain.PriceTick{}, fmt.Errorf("price_service: set price for %q: %w", symbol, err)
	}
	FeedTicksTotal.WithLabelValues("price").Inc()

	tick := domain.PriceTick{
		Symbol:      symbol,
		Price:       price,
		Fluctuation: s.flux.observe(symbol, price),
		Timestamp:   ts,
	}
	s.publish(ctx, domain.ChannelPrices, symbol, map[string]any{
		"event":       "price_tick",
		"symbol":      tick.Symbol,
		"price":       tick.Price,
		"fluctuation": tick.Fluctuation,
		"timestamp":   tick.Timestamp.Format(time.RFC3339Nano),
	})
	return tick, nil
}

// HandleDepth replaces the cached snapshot and publishes the projected
// ladder on ch:book:{SYMBOL}.
func (s *PriceService) HandleDepth(ctx context.Context, snap domain.DepthSnapshot) error {
	snap.Symbol = strings.ToUpper(snap.Symbol)
	if err := s.depthCache.SetDepth(ctx, snap); err != nil {
		return fmt.Errorf("price_service: set depth for %q: %w", snap.Symbol, err)
	}
	FeedTicksTotal.WithLabelValues("depth").Inc()

	s.publish(ctx, domain.ChannelBookPrefix+snap.Symbol, snap.Symbol, BookEvent{
		Event:     "book_update",
		Symbol:    snap.Symbol,
		BestBid:   snap.BestBid(),
		BestAsk:   snap.BestAsk(),
		Ladder:    trading.ProjectLadder(snap.Bids, snap.Asks, trading.DefaultLadderDepth),
		Timestamp: snap.Timestamp,
	})
	return nil
}

// HandlePair refreshes cached pair metadata.
func (s *PriceService) HandlePair(ctx context.Context, pair domain.TradingPair) error {
	if err := s.pairCache.Set(ctx, pair); err != nil {
		return fmt.Errorf("price_service: set pair %q: %w", pair.Symbol, err)
	}
	FeedTicksTotal.WithLabelValues("pair").Inc()
	return nil
}

func (s *PriceService) publish(ctx context.Context, channel, symbol string, v any) {
	evt, err := json.Marshal(v)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if pubErr := s.bus.Publish(ctx, channel, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("symbol", symbol),
			slog.String("error", pubErr.Error()),
		)
	}
}
