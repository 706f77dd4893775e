// Package binance is a REST client for the Binance spot market-data API. It
// is the reference feed of the simulator: prices, depth, pair metadata, 24h
// tickers and klines. Nothing here places real orders.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// DefaultBaseURL is the public Binance spot REST root.
const DefaultBaseURL = "https://api.binance.com"

// codeInvalidSymbol is the Binance error code for an unknown symbol.
const codeInvalidSymbol = -1121

// klineLookback maps each supported interval to how far back candles are
// requested.
var klineLookback = map[string]time.Duration{
	"1s": time.Minute,
	"1m": time.Hour,
	"5m": 4 * time.Hour,
	"1d": 90 * 24 * time.Hour,
	"1w": 180 * 24 * time.Hour,
	"1M": 7 * 24 * time.Hour,
}

// KlineStart returns the start time of the candle window for interval,
// relative to now. Unsupported intervals fail with ErrUnsupportedInterval.
func KlineStart(interval string, now time.Time) (time.Time, error) {
	lookback, ok := klineLookback[interval]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnsupportedInterval, interval)
	}
	return now.Add(-lookback), nil
}

// ErrUnsupportedInterval is returned for kline intervals outside the
// supported table.
var ErrUnsupportedInterval = errors.New("unsupported kline interval")

// Client is the Binance REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new Binance client. An empty baseURL means
// DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// ReferencePrice returns the last traded price of symbol.
func (c *Client) ReferencePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", normalize(symbol))

	body, err := c.doGet(ctx, "/api/v3/ticker/price?"+params.Encode())
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: ticker price %s: %w", symbol, err)
	}

	var tp APITickerPrice
	if err := json.Unmarshal(body, &tp); err != nil {
		return decimal.Zero, fmt.Errorf("binance: decode ticker price: %w", err)
	}
	price, err := decimal.NewFromString(tp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: parse price %q: %w", tp.Price, err)
	}
	return price, nil
}

// DepthSnapshot returns the top limit levels per side of symbol's book.
func (c *Client) DepthSnapshot(ctx context.Context, symbol string, limit int) (domain.DepthSnapshot, error) {
	sym := normalize(symbol)
	params := url.Values{}
	params.Set("symbol", sym)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doGet(ctx, "/api/v3/depth?"+params.Encode())
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("binance: depth %s: %w", symbol, err)
	}

	var d APIDepth
	if err := json.Unmarshal(body, &d); err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("binance: decode depth: %w", err)
	}
	return d.ToDomain(sym, c.now()), nil
}

// PairMetadata returns exchange metadata for symbol.
func (c *Client) PairMetadata(ctx context.Context, symbol string) (domain.TradingPair, error) {
	sym := normalize(symbol)
	params := url.Values{}
	params.Set("symbol", sym)

	body, err := c.doGet(ctx, "/api/v3/exchangeInfo?"+params.Encode())
	if err != nil {
		return domain.TradingPair{}, fmt.Errorf("binance: exchange info %s: %w", symbol, err)
	}

	var info APIExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.TradingPair{}, fmt.Errorf("binance: decode exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol == sym {
			return s.ToDomain(c.now()), nil
		}
	}
	return domain.TradingPair{}, fmt.Errorf("binance: exchange info %s: %w", symbol, domain.ErrInvalidPair)
}

// Ticker24h returns rolling 24h statistics for symbol.
func (c *Client) Ticker24h(ctx context.Context, symbol string) (domain.TickerStats, error) {
	params := url.Values{}
	params.Set("symbol", normalize(symbol))

	body, err := c.doGet(ctx, "/api/v3/ticker/24hr?"+params.Encode())
	if err != nil {
		return domain.TickerStats{}, fmt.Errorf("binance: 24h ticker %s: %w", symbol, err)
	}

	var t APITicker24h
	if err := json.Unmarshal(body, &t); err != nil {
		return domain.TickerStats{}, fmt.Errorf("binance: decode 24h ticker: %w", err)
	}
	return t.ToDomain(), nil
}

// Klines returns candles for symbol at interval, starting at the interval's
// lookback window before now.
func (c *Client) Klines(ctx context.Context, symbol, interval string) ([]domain.Candle, error) {
	start, err := KlineStart(interval, c.now())
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s: %w", symbol, err)
	}

	params := url.Values{}
	params.Set("symbol", normalize(symbol))
	params.Set("interval", interval)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))

	body, err := c.doGet(ctx, "/api/v3/klines?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s: %w", symbol, err)
	}

	var rows []APIKline
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}
	candles := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := row.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("binance: kline %d: %w", i, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Code == codeInvalidSymbol {
		return fmt.Errorf("%w: %s", domain.ErrInvalidPair, apiErr.Msg)
	}

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Compile-time interface check.
var _ domain.MarketData = (*Client)(nil)
