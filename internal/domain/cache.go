package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest reference prices.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// DepthCache stores the latest depth snapshot per pair.
type DepthCache interface {
	SetDepth(ctx context.Context, snap DepthSnapshot) error
	GetDepth(ctx context.Context, symbol string, limit int) (DepthSnapshot, error)
	GetBBO(ctx context.Context, symbol string) (bestBid, bestAsk decimal.Decimal, err error)
}

// PairCache provides fast trading-pair metadata lookups.
type PairCache interface {
	Set(ctx context.Context, pair TradingPair) error
	Get(ctx context.Context, symbol string) (TradingPair, error)
	Invalidate(ctx context.Context, symbol string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Bus channel and stream names.
const (
	ChannelPrices     = "prices"
	ChannelOrders     = "orders"
	ChannelBookPrefix = "ch:book:"
	StreamOrders      = "stream:orders"
)
