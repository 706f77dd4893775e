package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingPair is exchange metadata for a base/quote symbol such as BTCUSDT.
type TradingPair struct {
	Symbol              string    `json:"symbol"`
	BaseAsset           string    `json:"base_asset"`
	QuoteAsset          string    `json:"quote_asset"`
	Status              string    `json:"status"`
	BaseAssetPrecision  int       `json:"base_asset_precision"`
	QuoteAssetPrecision int       `json:"quote_asset_precision"`
	OrderTypes          []string  `json:"order_types"`
	FetchedAt           time.Time `json:"fetched_at"`
}

// Fluctuation classifies a price move against the previous observation.
type Fluctuation string

const (
	FluctuationPositive Fluctuation = "positive"
	FluctuationNegative Fluctuation = "negative"
	FluctuationNeutral  Fluctuation = "neutral"
)

// CompareFluctuation classifies current against previous.
func CompareFluctuation(previous, current decimal.Decimal) Fluctuation {
	switch current.Cmp(previous) {
	case 1:
		return FluctuationPositive
	case -1:
		return FluctuationNegative
	default:
		return FluctuationNeutral
	}
}

// PriceTick is the latest reference price for a pair.
type PriceTick struct {
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Fluctuation Fluctuation     `json:"fluctuation"`
	Timestamp   time.Time       `json:"timestamp"`
}

// TickerStats is the rolling 24h statistics window for a pair.
type TickerStats struct {
	Symbol             string          `json:"symbol"`
	PriceChange        decimal.Decimal `json:"price_change"`
	PriceChangePercent decimal.Decimal `json:"price_change_percent"`
	LastPrice          decimal.Decimal `json:"last_price"`
	HighPrice          decimal.Decimal `json:"high_price"`
	LowPrice           decimal.Decimal `json:"low_price"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quote_volume"`
	OpenTime           time.Time       `json:"open_time"`
	CloseTime          time.Time       `json:"close_time"`
}

// Candle is one K-line bar.
type Candle struct {
	OpenTime time.Time       `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// Coin is a search hit from the coin metadata provider.
type Coin struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Thumb         string `json:"thumb"`
	MarketCapRank int    `json:"market_cap_rank"`
}

// CoinQuote pairs a coin with its USD price when one was fetched.
type CoinQuote struct {
	Coin         Coin            `json:"coin"`
	Price        decimal.Decimal `json:"price"`
	PriceFetched bool            `json:"price_fetched"`
}

// CoinDetail is the subset of coin metadata shown on a coin screen.
type CoinDetail struct {
	ID                       string          `json:"id"`
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	Image                    string          `json:"image"`
	MarketCapRank            int             `json:"market_cap_rank"`
	CurrentPriceUSD          decimal.Decimal `json:"current_price_usd"`
	MarketCapUSD             decimal.Decimal `json:"market_cap_usd"`
	TotalVolumeUSD           decimal.Decimal `json:"total_volume_usd"`
	PriceChangePercentage1h  decimal.Decimal `json:"price_change_percentage_1h"`
	PriceChangePercentage24h decimal.Decimal `json:"price_change_percentage_24h"`
	CirculatingSupply        decimal.Decimal `json:"circulating_supply"`
	Description              string          `json:"description"`
}
