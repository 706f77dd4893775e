package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketData is the reference feed the order engine's callers consume.
type MarketData interface {
	ReferencePrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	DepthSnapshot(ctx context.Context, symbol string, limit int) (DepthSnapshot, error)
	PairMetadata(ctx context.Context, symbol string) (TradingPair, error)
}
