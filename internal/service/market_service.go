package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/trading"
)

// Exchange is the upstream market-data source: the reference feed plus the
// ticker and candle endpoints the market screens use.
type Exchange interface {
	domain.MarketData
	Ticker24h(ctx context.Context, symbol string) (domain.TickerStats, error)
	Klines(ctx context.Context, symbol, interval string) ([]domain.Candle, error)
}

// MarketService serves market data from the Redis caches the feed poller
// keeps warm, falling back to the exchange when an entry is missing or older
// than maxAge. It implements domain.MarketData, so the trading service reads
// reference prices through it.
type MarketService struct {
	exchange Exchange
	prices   domain.PriceCache
	depth    domain.DepthCache
	pairs    domain.PairCache
	maxAge   time.Duration
	depthDef int
	flux     *fluctuationTracker
	now      func() time.Time
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	exchange Exchange,
	prices domain.PriceCache,
	depth domain.DepthCache,
	pairs domain.PairCache,
	maxAge time.Duration,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		exchange: exchange,
		prices:   prices,
		depth:    depth,
		pairs:    pairs,
		maxAge:   maxAge,
		depthDef: trading.DefaultLadderDepth,
		flux:     newFluctuationTracker(),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// WithLadderDepth sets the ladder depth used when a caller passes none.
func (s *MarketService) WithLadderDepth(depth int) *MarketService {
	if depth > 0 {
		s.depthDef = depth
	}
	return s
}

// ReferencePrice returns the latest reference price of symbol.
func (s *MarketService) ReferencePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, ts, err := s.prices.GetPrice(ctx, symbol)
	if err == nil && s.fresh(ts) {
		MarketCacheTotal.WithLabelValues("price", "hit").Inc()
		return price, nil
	}
	s.logCacheMiss(ctx, "price", symbol, err)

	price, err = s.exchange.ReferencePrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("market_service: reference price %s: %w", symbol, err)
	}
	if cacheErr := s.prices.SetPrice(ctx, symbol, price, s.now()); cacheErr != nil {
		s.logger.WarnContext(ctx, "price cache set failed",
			slog.String("symbol", symbol),
			slog.String("error", cacheErr.Error()),
		)
	}
	return price, nil
}

// MaxWatchlist caps the symbols one Prices call accepts.
const MaxWatchlist = 50

// Prices returns reference prices for a watchlist. Cached prices are read in
// one batch; symbols the cache lacks are fetched one by one through
// ReferencePrice, which also refreshes the cache. Unknown pairs are left out
// of the result. The batch read does not check max_age: it serves the pairs
// the feed poller keeps warm.
func (s *MarketService) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	want := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		want = append(want, sym)
	}
	if len(want) == 0 {
		return nil, fmt.Errorf("market_service: %w: no symbols", domain.ErrInvalidAmount)
	}
	if len(want) > MaxWatchlist {
		return nil, fmt.Errorf("market_service: %w: %d symbols, at most %d", domain.ErrInvalidAmount, len(want), MaxWatchlist)
	}

	prices, err := s.prices.GetPrices(ctx, want)
	if err != nil {
		s.logger.WarnContext(ctx, "batch price read failed", slog.String("error", err.Error()))
		prices = make(map[string]decimal.Decimal, len(want))
	}
	for _, sym := range want {
		if _, ok := prices[sym]; ok {
			MarketCacheTotal.WithLabelValues("price", "hit").Inc()
			continue
		}
		price, err := s.ReferencePrice(ctx, sym)
		if errors.Is(err, domain.ErrInvalidPair) {
			continue
		}
		if err != nil {
			return nil, err
		}
		prices[sym] = price
	}
	return prices, nil
}

// DepthSnapshot returns up to limit levels per side for symbol.
func (s *MarketService) DepthSnapshot(ctx context.Context, symbol string, limit int) (domain.DepthSnapshot, error) {
	snap, err := s.depth.GetDepth(ctx, symbol, limit)
	if err == nil && s.fresh(snap.Timestamp) {
		MarketCacheTotal.WithLabelValues("depth", "hit").Inc()
		return snap, nil
	}
	s.logCacheMiss(ctx, "depth", symbol, err)

	snap, err = s.exchange.DepthSnapshot(ctx, symbol, limit)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("market_service: depth %s: %w", symbol, err)
	}
	if cacheErr := s.depth.SetDepth(ctx, snap); cacheErr != nil {
		s.logger.WarnContext(ctx, "depth cache set failed",
			slog.String("symbol", symbol),
			slog.String("error", cacheErr.Error()),
		)
	}
	return snap, nil
}

// PairMetadata returns the exchange metadata of symbol. Expiry is left to
// the pair cache's TTL.
func (s *MarketService) PairMetadata(ctx context.Context, symbol string) (domain.TradingPair, error) {
	pair, err := s.pairs.Get(ctx, symbol)
	if err == nil {
		MarketCacheTotal.WithLabelValues("pair", "hit").Inc()
		return pair, nil
	}
	s.logCacheMiss(ctx, "pair", symbol, err)

	pair, err = s.exchange.PairMetadata(ctx, symbol)
	if err != nil {
		return domain.TradingPair{}, fmt.Errorf("market_service: pair %s: %w", symbol, err)
	}
	if cacheErr := s.pairs.Set(ctx, pair); cacheErr != nil {
		s.logger.WarnContext(ctx, "pair cache set failed",
			slog.String("symbol", symbol),
			slog.String("error", cacheErr.Error()),
		)
	}
	return pair, nil
}

// PriceTick returns the reference price together with its fluctuation
// against the previous price this service handed out for the symbol.
func (s *MarketService) PriceTick(ctx context.Context, symbol string) (domain.PriceTick, error) {
	price, err := s.ReferencePrice(ctx, symbol)
	if err != nil {
		return domain.PriceTick{}, err
	}
	return domain.PriceTick{
		Symbol:      strings.ToUpper(symbol),
		Price:       price,
		Fluctuation: s.flux.observe(symbol, price),
		Timestamp:   s.now().UTC(),
	}, nil
}

// Ladder projects symbol's book into depth rows per side.
func (s *MarketService) Ladder(ctx context.Context, symbol string, depth int) (domain.Ladder, error) {
	if depth <= 0 {
		depth = s.depthDef
	}
	snap, err := s.DepthSnapshot(ctx, symbol, depth)
	if err != nil {
		return domain.Ladder{}, err
	}
	return trading.ProjectLadder(snap.Bids, snap.Asks, depth), nil
}

// Ticker24h returns rolling 24h statistics straight from the exchange.
func (s *MarketService) Ticker24h(ctx context.Context, symbol string) (domain.TickerStats, error) {
	stats, err := s.exchange.Ticker24h(ctx, symbol)
	if err != nil {
		return domain.TickerStats{}, fmt.Errorf("market_service: ticker %s: %w", symbol, err)
	}
	return stats, nil
}

// Klines returns candles for symbol at interval straight from the exchange.
func (s *MarketService) Klines(ctx context.Context, symbol, interval string) ([]domain.Candle, error) {
	candles, err := s.exchange.Klines(ctx, symbol, interval)
	if err != nil {
		return nil, fmt.Errorf("market_service: klines %s %s: %w", symbol, interval, err)
	}
	return candles, nil
}

func (s *MarketService) fresh(ts time.Time) bool {
	return s.maxAge <= 0 || s.now().Sub(ts) <= s.maxAge
}

func (s *MarketService) logCacheMiss(ctx context.Context, kind, symbol string, err error) {
	MarketCacheTotal.WithLabelValues(kind, "miss").Inc()
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "cache read failed",
			slog.String("kind", kind),
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
}

// Compile-time interface check.
var _ domain.MarketData = (*MarketService)(nil)
