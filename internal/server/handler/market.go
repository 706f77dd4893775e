package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/platform/binance"
)

// MarketService defines the methods that the market handler requires from
// the service layer.
type MarketService interface {
	PriceTick(ctx context.Context, symbol string) (domain.PriceTick, error)
	Ticker24h(ctx context.Context, symbol string) (domain.TickerStats, error)
	PairMetadata(ctx context.Context, symbol string) (domain.TradingPair, error)
	Ladder(ctx context.Context, symbol string, depth int) (domain.Ladder, error)
	Klines(ctx context.Context, symbol, interval string) ([]domain.Candle, error)
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// MarketHandler serves the market-data endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logHandler(logger, "market")}
}

// Price returns the reference price and its fluctuation.
// GET /api/markets/{symbol}/price
func (h *MarketHandler) Price(w http.ResponseWriter, r *http.Request) {
	tick, err := h.markets.PriceTick(r.Context(), pathParam(r, "symbol"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get price")
		return
	}
	writeJSON(w, http.StatusOK, tick)
}

// Prices returns reference prices for a comma-separated watchlist.
// GET /api/markets/prices?symbols=BTCUSDT,ETHUSDT
func (h *MarketHandler) Prices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.markets.Prices(r.Context(), strings.Split(r.URL.Query().Get("symbols"), ","))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get prices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

// Ticker returns rolling 24h statistics.
// GET /api/markets/{symbol}/ticker
func (h *MarketHandler) Ticker(w http.ResponseWriter, r *http.Request) {
	stats, err := h.markets.Ticker24h(r.Context(), pathParam(r, "symbol"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get ticker")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Pair returns the exchange metadata of a pair.
// GET /api/markets/{symbol}/pair
func (h *MarketHandler) Pair(w http.ResponseWriter, r *http.Request) {
	pair, err := h.markets.PairMetadata(r.Context(), pathParam(r, "symbol"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get pair")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Ladder returns the projected order-book ladder.
// GET /api/markets/{symbol}/ladder?depth=5
func (h *MarketHandler) Ladder(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "depth must be between 1 and 100")
			return
		}
		depth = n
	}

	ladder, err := h.markets.Ladder(r.Context(), pathParam(r, "symbol"), depth)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get ladder")
		return
	}
	writeJSON(w, http.StatusOK, ladder)
}

// Klines returns candles for one of the supported intervals.
// GET /api/markets/{symbol}/klines?interval=1m
func (h *MarketHandler) Klines(w http.ResponseWriter, r *http.Request) {
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}

	candles, err := h.markets.Klines(r.Context(), pathParam(r, "symbol"), interval)
	if errors.Is(err, binance.ErrUnsupportedInterval) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get klines")
		return
	}
	if candles == nil {
		candles = []domain.Candle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interval": interval, "candles": candles})
}
