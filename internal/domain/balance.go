package domain

import "github.com/shopspring/decimal"

// Asset names one side of the two-asset ledger.
type Asset string

const (
	AssetQuote Asset = "quote"
	AssetBase  Asset = "base"
)

// Balances is a point-in-time copy of a ledger.
type Balances struct {
	Quote decimal.Decimal `json:"quote"`
	Base  decimal.Decimal `json:"base"`
}
