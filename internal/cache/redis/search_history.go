package redis

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// DefaultSearchHistoryLen caps how many keywords are kept per owner.
const DefaultSearchHistoryLen = 50

// SearchHistory implements domain.SearchHistoryStore with one Redis list per
// owner, newest keyword at the head.
//
// Key schema:
//
//	search:history:{owner} - list of keywords
type SearchHistory struct {
	rdb    *redis.Client
	maxLen int64
}

// NewSearchHistory creates a SearchHistory backed by the given Client.
func NewSearchHistory(c *Client, maxLen int) *SearchHistory {
	if maxLen <= 0 {
		maxLen = DefaultSearchHistoryLen
	}
	return &SearchHistory{rdb: c.Underlying(), maxLen: int64(maxLen)}
}

func searchHistoryKey(owner string) string { return "search:history:" + owner }

// Add prepends keyword unless the owner already has it.
func (sh *SearchHistory) Add(ctx context.Context, owner, keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil
	}
	key := searchHistoryKey(owner)

	existing, err := sh.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis: read search history %s: %w", owner, err)
	}
	if slices.Contains(existing, keyword) {
		return nil
	}

	pipe := sh.rdb.TxPipeline()
	pipe.LPush(ctx, key, keyword)
	pipe.LTrim(ctx, key, 0, sh.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: add search history %s: %w", owner, err)
	}
	return nil
}

// List returns the owner's keywords, newest first.
func (sh *SearchHistory) List(ctx context.Context, owner string) ([]string, error) {
	items, err := sh.rdb.LRange(ctx, searchHistoryKey(owner), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: list search history %s: %w", owner, err)
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

// Clear removes the owner's history.
func (sh *SearchHistory) Clear(ctx context.Context, owner string) error {
	if err := sh.rdb.Del(ctx, searchHistoryKey(owner)).Err(); err != nil {
		return fmt.Errorf("redis: clear search history %s: %w", owner, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SearchHistoryStore = (*SearchHistory)(nil)
