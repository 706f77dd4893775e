package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// DefaultPairTTL is used when NewPairCache is given a non-positive TTL.
const DefaultPairTTL = 5 * time.Minute

// PairCache implements domain.PairCache using Redis hashes with JSON-
// serialized TradingPair data.
//
// Key schema:
//
//	pair:{SYMBOL} - hash with field "data" containing JSON
type PairCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPairCache creates a PairCache backed by the given Client.
func NewPairCache(c *Client, ttl time.Duration) *PairCache {
	if ttl <= 0 {
		ttl = DefaultPairTTL
	}
	return &PairCache{rdb: c.Underlying(), ttl: ttl}
}

func pairKey(symbol string) string { return "pair:" + strings.ToUpper(symbol) }

// Set stores a TradingPair in the cache with the configured TTL.
func (pc *PairCache) Set(ctx context.Context, pair domain.TradingPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("redis: marshal pair %s: %w", pair.Symbol, err)
	}

	key := pairKey(pair.Symbol)

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, pc.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set pair %s: %w", pair.Symbol, err)
	}
	return nil
}

// Get retrieves a TradingPair by symbol.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PairCache) Get(ctx context.Context, symbol string) (domain.TradingPair, error) {
	data, err := pc.rdb.HGet(ctx, pairKey(symbol), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TradingPair{}, domain.ErrNotFound
		}
		return domain.TradingPair{}, fmt.Errorf("redis: get pair %s: %w", symbol, err)
	}

	var pair domain.TradingPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return domain.TradingPair{}, fmt.Errorf("redis: unmarshal pair %s: %w", symbol, err)
	}
	return pair, nil
}

// Invalidate removes a TradingPair from the cache.
func (pc *PairCache) Invalidate(ctx context.Context, symbol string) error {
	if err := pc.rdb.Del(ctx, pairKey(symbol)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate pair %s: %w", symbol, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PairCache = (*PairCache)(nil)
