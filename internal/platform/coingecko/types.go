package coingecko

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// APISearchResponse is the /search response, trimmed to coins.
type APISearchResponse struct {
	Coins []APICoin `json:"coins"`
}

// APICoin is one coin search hit.
type APICoin struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank int    `json:"market_cap_rank"`
	Thumb         string `json:"thumb"`
}

// ToDomain converts the hit into a domain.Coin.
func (c APICoin) ToDomain() domain.Coin {
	return domain.Coin{
		ID:            c.ID,
		Symbol:        c.Symbol,
		Name:          c.Name,
		Thumb:         c.Thumb,
		MarketCapRank: c.MarketCapRank,
	}
}

// APISimplePrice is the /simple/price response: coin id -> currency -> price.
type APISimplePrice map[string]map[string]decimal.Decimal

type usdValue struct {
	USD decimal.Decimal `json:"usd"`
}

// APICoinDetail is the /coins/{id} response, trimmed to the fields shown on
// the coin screen.
type APICoinDetail struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	MarketCapRank int    `json:"market_cap_rank"`
	Image         struct {
		Large string `json:"large"`
	} `json:"image"`
	Description struct {
		En string `json:"en"`
	} `json:"description"`
	MarketData struct {
		CurrentPrice                    usdValue        `json:"current_price"`
		MarketCap                       usdValue        `json:"market_cap"`
		TotalVolume                     usdValue        `json:"total_volume"`
		PriceChangePercentage1hCurrency usdValue        `json:"price_change_percentage_1h_in_currency"`
		PriceChangePercentage24h        decimal.Decimal `json:"price_change_percentage_24h"`
		CirculatingSupply               decimal.Decimal `json:"circulating_supply"`
	} `json:"market_data"`
}

// ToDomain converts the response into a domain.CoinDetail.
func (d APICoinDetail) ToDomain() domain.CoinDetail {
	return domain.CoinDetail{
		ID:                       d.ID,
		Symbol:                   d.Symbol,
		Name:                     d.Name,
		Image:                    d.Image.Large,
		MarketCapRank:            d.MarketCapRank,
		CurrentPriceUSD:          d.MarketData.CurrentPrice.USD,
		MarketCapUSD:             d.MarketData.MarketCap.USD,
		TotalVolumeUSD:           d.MarketData.TotalVolume.USD,
		PriceChangePercentage1h:  d.MarketData.PriceChangePercentage1hCurrency.USD,
		PriceChangePercentage24h: d.MarketData.PriceChangePercentage24h,
		CirculatingSupply:        d.MarketData.CirculatingSupply,
		Description:              d.Description.En,
	}
}
