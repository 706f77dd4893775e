package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// DepthCache implements domain.DepthCache using Redis sorted sets and hashes
// for each pair's order book. Prices and quantities are stored as the raw
// strings the exchange delivered so nothing is lost to float rounding; the
// sorted-set score is only used for ordering.
//
// Key schema:
//
//	depth:{SYMBOL}:bids     - sorted set of bid prices (score = price)
//	depth:{SYMBOL}:asks     - sorted set of ask prices (score = price)
//	depth:{SYMBOL}:bid:size - hash mapping price -> quantity for bids
//	depth:{SYMBOL}:ask:size - hash mapping price -> quantity for asks
//	depth:{SYMBOL}:bbo      - hash with fields "bid" and "ask" (best prices)
//	depth:{SYMBOL}:meta     - hash with "ts" and "update_id" fields
type DepthCache struct {
	rdb *redis.Client
}

// NewDepthCache creates a DepthCache backed by the given Client.
func NewDepthCache(c *Client) *DepthCache {
	return &DepthCache{rdb: c.Underlying()}
}

func depthPrefix(symbol string) string     { return "depth:" + strings.ToUpper(symbol) }
func depthBidsKey(symbol string) string    { return depthPrefix(symbol) + ":bids" }
func depthAsksKey(symbol string) string    { return depthPrefix(symbol) + ":asks" }
func depthBidSizeKey(symbol string) string { return depthPrefix(symbol) + ":bid:size" }
func depthAskSizeKey(symbol string) string { return depthPrefix(symbol) + ":ask:size" }
func depthBBOKey(symbol string) string     { return depthPrefix(symbol) + ":bbo" }
func depthMetaKey(symbol string) string    { return depthPrefix(symbol) + ":meta" }

// SetDepth atomically replaces the whole snapshot for a pair. Levels whose
// price does not parse are skipped.
func (dc *DepthCache) SetDepth(ctx context.Context, snap domain.DepthSnapshot) error {
	sym := snap.Symbol
	bidsKey, asksKey := depthBidsKey(sym), depthAsksKey(sym)
	bidSizeKey, askSizeKey := depthBidSizeKey(sym), depthAskSizeKey(sym)
	bboKey, metaKey := depthBBOKey(sym), depthMetaKey(sym)

	pipe := dc.rdb.TxPipeline()
	pipe.Del(ctx, bidsKey, asksKey, bidSizeKey, askSizeKey, bboKey, metaKey)

	addSide := func(levels []domain.RawLevel, zKey, hKey string) {
		for _, lvl := range levels {
			score, err := strconv.ParseFloat(lvl.Price(), 64)
			if err != nil {
				continue
			}
			pipe.ZAdd(ctx, zKey, redis.Z{Score: score, Member: lvl.Price()})
			pipe.HSet(ctx, hKey, lvl.Price(), lvl.Quantity())
		}
	}
	addSide(snap.Bids, bidsKey, bidSizeKey)
	addSide(snap.Asks, asksKey, askSizeKey)

	if bid := snap.BestBid(); bid.IsPositive() {
		pipe.HSet(ctx, bboKey, "bid", bid.String())
	}
	if ask := snap.BestAsk(); ask.IsPositive() {
		pipe.HSet(ctx, bboKey, "ask", ask.String())
	}

	pipe.HSet(ctx, metaKey,
		"ts", strconv.FormatInt(snap.Timestamp.UnixNano(), 10),
		"update_id", strconv.FormatInt(snap.LastUpdateID, 10),
	)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set depth %s: %w", sym, err)
	}
	return nil
}

// GetDepth reconstructs up to limit levels per side, bids highest first and
// asks lowest first. A non-positive limit returns every level. It returns
// domain.ErrNotFound if no snapshot exists for the pair.
func (dc *DepthCache) GetDepth(ctx context.Context, symbol string, limit int) (domain.DepthSnapshot, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	pipe := dc.rdb.Pipeline()
	bidsCmd := pipe.ZRevRange(ctx, depthBidsKey(symbol), 0, stop)
	asksCmd := pipe.ZRange(ctx, depthAsksKey(symbol), 0, stop)
	bidSizeCmd := pipe.HGetAll(ctx, depthBidSizeKey(symbol))
	askSizeCmd := pipe.HGetAll(ctx, depthAskSizeKey(symbol))
	metaCmd := pipe.HGetAll(ctx, depthMetaKey(symbol))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.DepthSnapshot{}, fmt.Errorf("redis: get depth %s: %w", symbol, err)
	}

	meta, _ := metaCmd.Result()
	if len(meta) == 0 {
		return domain.DepthSnapshot{}, domain.ErrNotFound
	}

	snap := domain.DepthSnapshot{Symbol: strings.ToUpper(symbol)}
	if tsNano, err := strconv.ParseInt(meta["ts"], 10, 64); err == nil {
		snap.Timestamp = time.Unix(0, tsNano).UTC()
	}
	snap.LastUpdateID, _ = strconv.ParseInt(meta["update_id"], 10, 64)

	bidSizes, _ := bidSizeCmd.Result()
	bidPrices, _ := bidsCmd.Result()
	snap.Bids = joinLevels(bidPrices, bidSizes)

	askSizes, _ := askSizeCmd.Result()
	askPrices, _ := asksCmd.Result()
	snap.Asks = joinLevels(askPrices, askSizes)

	return snap, nil
}

func joinLevels(prices []string, sizes map[string]string) []domain.RawLevel {
	levels := make([]domain.RawLevel, 0, len(prices))
	for _, p := range prices {
		size, ok := sizes[p]
		if !ok {
			continue
		}
		levels = append(levels, domain.RawLevel{p, size})
	}
	return levels
}

// GetBBO retrieves the current best bid and best ask from the BBO hash.
// It returns domain.ErrNotFound if no BBO data exists.
func (dc *DepthCache) GetBBO(ctx context.Context, symbol string) (bestBid, bestAsk decimal.Decimal, err error) {
	vals, err := dc.rdb.HGetAll(ctx, depthBBOKey(symbol)).Result()
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("redis: get bbo %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return decimal.Zero, decimal.Zero, domain.ErrNotFound
	}

	bestBid, _ = decimal.NewFromString(vals["bid"])
	bestAsk, _ = decimal.NewFromString(vals["ask"])
	return bestBid, bestAsk, nil
}

// Compile-time interface check.
var _ domain.DepthCache = (*DepthCache)(nil)
