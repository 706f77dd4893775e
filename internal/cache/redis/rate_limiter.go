package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// RateLimiter implements domain.RateLimiter as a sliding window over a
// sorted set of request timestamps.
//
// Key schema:
//
//	ratelimit:{key} - sorted set, member = unique request id, score = unix micros
type RateLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying(), now: time.Now}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow checks whether a request for the given key is permitted under the
// sliding window rate limit. Allowed requests are counted; rejected ones are
// not.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	k := rateLimitKey(key)
	now := rl.now().UnixMicro()
	cutoff := now - window.Microseconds()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	pipe := rl.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now), Member: member})
	card := pipe.ZCard(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}

	if card.Val() <= int64(limit) {
		return true, nil
	}

	if err := rl.rdb.ZRem(ctx, k, member).Err(); err != nil {
		return false, fmt.Errorf("redis: rate limit rollback %s: %w", key, err)
	}
	return false, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
