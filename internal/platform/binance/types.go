package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// APITickerPrice is the /api/v3/ticker/price response.
type APITickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// APIDepth is the /api/v3/depth response.
type APIDepth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// ToDomain converts the response into a DepthSnapshot stamped at ts.
func (d APIDepth) ToDomain(symbol string, ts time.Time) domain.DepthSnapshot {
	snap := domain.DepthSnapshot{
		Symbol:       symbol,
		LastUpdateID: d.LastUpdateID,
		Bids:         make([]domain.RawLevel, 0, len(d.Bids)),
		Asks:         make([]domain.RawLevel, 0, len(d.Asks)),
		Timestamp:    ts,
	}
	for _, b := range d.Bids {
		snap.Bids = append(snap.Bids, domain.RawLevel(b))
	}
	for _, a := range d.Asks {
		snap.Asks = append(snap.Asks, domain.RawLevel(a))
	}
	return snap
}

// APIExchangeInfo is the /api/v3/exchangeInfo response, trimmed to the
// fields the pair metadata uses.
type APIExchangeInfo struct {
	Symbols []APISymbol `json:"symbols"`
}

// APISymbol is one entry of exchangeInfo.symbols.
type APISymbol struct {
	Symbol              string   `json:"symbol"`
	Status              string   `json:"status"`
	BaseAsset           string   `json:"baseAsset"`
	BaseAssetPrecision  int      `json:"baseAssetPrecision"`
	QuoteAsset          string   `json:"quoteAsset"`
	QuoteAssetPrecision int      `json:"quoteAssetPrecision"`
	OrderTypes          []string `json:"orderTypes"`
}

// ToDomain converts the symbol into a TradingPair.
func (s APISymbol) ToDomain(fetchedAt time.Time) domain.TradingPair {
	return domain.TradingPair{
		Symbol:              s.Symbol,
		BaseAsset:           s.BaseAsset,
		QuoteAsset:          s.QuoteAsset,
		Status:              s.Status,
		BaseAssetPrecision:  s.BaseAssetPrecision,
		QuoteAssetPrecision: s.QuoteAssetPrecision,
		OrderTypes:          s.OrderTypes,
		FetchedAt:           fetchedAt,
	}
}

// APITicker24h is the /api/v3/ticker/24hr response for one symbol.
type APITicker24h struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	OpenTime           int64  `json:"openTime"`
	CloseTime          int64  `json:"closeTime"`
}

// ToDomain converts the ticker into TickerStats. Unparsable numbers become
// zero.
func (t APITicker24h) ToDomain() domain.TickerStats {
	return domain.TickerStats{
		Symbol:             t.Symbol,
		PriceChange:        parseDecimal(t.PriceChange),
		PriceChangePercent: parseDecimal(t.PriceChangePercent),
		LastPrice:          parseDecimal(t.LastPrice),
		HighPrice:          parseDecimal(t.HighPrice),
		LowPrice:           parseDecimal(t.LowPrice),
		Volume:             parseDecimal(t.Volume),
		QuoteVolume:        parseDecimal(t.QuoteVolume),
		OpenTime:           time.UnixMilli(t.OpenTime).UTC(),
		CloseTime:          time.UnixMilli(t.CloseTime).UTC(),
	}
}

// APIKline is one row of /api/v3/klines: a heterogeneous JSON array of
// [openTime, open, high, low, close, volume, closeTime, ...].
type APIKline []json.RawMessage

// ToDomain converts the row into a Candle.
func (k APIKline) ToDomain() (domain.Candle, error) {
	if len(k) < 6 {
		return domain.Candle{}, fmt.Errorf("kline has %d fields, want at least 6", len(k))
	}
	var openTime int64
	if err := json.Unmarshal(k[0], &openTime); err != nil {
		return domain.Candle{}, fmt.Errorf("kline open time: %w", err)
	}
	fields := make([]decimal.Decimal, 5)
	for i := range fields {
		var raw string
		if err := json.Unmarshal(k[i+1], &raw); err != nil {
			return domain.Candle{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		fields[i] = d
	}
	return domain.Candle{
		OpenTime: time.UnixMilli(openTime).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

// APIError is the error body Binance returns with 4xx responses.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
