package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// searchPriceLimit is how many search hits get a USD price attached.
const searchPriceLimit = 6

// CoinDirectory is the coin metadata provider.
type CoinDirectory interface {
	Search(ctx context.Context, query string) ([]domain.Coin, error)
	SimplePrice(ctx context.Context, ids ...string) (map[string]decimal.Decimal, error)
	Coin(ctx context.Context, id string) (domain.CoinDetail, error)
}

// SearchService backs the coin search screen and its keyword history.
type SearchService struct {
	coins         CoinDirectory
	history       domain.SearchHistoryStore
	quoteCurrency string
	logger        *slog.Logger
}

// NewSearchService creates a SearchService. quoteCurrency is appended to a
// keyword to form a pair symbol; it defaults to USDT.
func NewSearchService(coins CoinDirectory, history domain.SearchHistoryStore, quoteCurrency string, logger *slog.Logger) *SearchService {
	if quoteCurrency == "" {
		quoteCurrency = "USDT"
	}
	return &SearchService{
		coins:         coins,
		history:       history,
		quoteCurrency: strings.ToUpper(quoteCurrency),
		logger:        logger.With(slog.String("component", "search_service")),
	}
}

// Search returns the coins matching query. The first few hits are priced in
// parallel; a failed price lookup leaves PriceFetched false on that hit.
func (s *SearchService) Search(ctx context.Context, query string) ([]domain.CoinQuote, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.CoinQuote{}, nil
	}
	coins, err := s.coins.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search_service: search %q: %w", query, err)
	}

	out := make([]domain.CoinQuote, len(coins))
	for i, c := range coins {
		out[i] = domain.CoinQuote{Coin: c}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range out[:min(len(out), searchPriceLimit)] {
		g.Go(func() error {
			id := out[i].Coin.ID
			prices, err := s.coins.SimplePrice(gctx, id)
			if err != nil {
				s.logger.WarnContext(ctx, "coin price lookup failed",
					slog.String("coin", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if p, ok := prices[id]; ok {
				out[i].Price = p
				out[i].PriceFetched = true
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// CoinDetail returns the metadata of one coin.
func (s *SearchService) CoinDetail(ctx context.Context, id string) (domain.CoinDetail, error) {
	detail, err := s.coins.Coin(ctx, id)
	if err != nil {
		return domain.CoinDetail{}, fmt.Errorf("search_service: coin %q: %w", id, err)
	}
	return detail, nil
}

// Select records keyword in owner's history and returns the pair symbol it
// resolves to.
func (s *SearchService) Select(ctx context.Context, owner, keyword string) (string, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return "", fmt.Errorf("search_service: %w: empty keyword", domain.ErrInvalidPair)
	}
	if err := s.history.Add(ctx, owner, keyword); err != nil {
		return "", fmt.Errorf("search_service: add history: %w", err)
	}
	return s.ResolveSymbol(keyword), nil
}

// History returns owner's keywords, newest first.
func (s *SearchService) History(ctx context.Context, owner string) ([]string, error) {
	keywords, err := s.history.List(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("search_service: list history: %w", err)
	}
	if keywords == nil {
		keywords = []string{}
	}
	return keywords, nil
}

// ClearHistory forgets every keyword of owner.
func (s *SearchService) ClearHistory(ctx context.Context, owner string) error {
	if err := s.history.Clear(ctx, owner); err != nil {
		return fmt.Errorf("search_service: clear history: %w", err)
	}
	return nil
}

// ResolveSymbol forms the pair symbol for a coin keyword, e.g. eth -> ETHUSDT.
func (s *SearchService) ResolveSymbol(keyword string) string {
	return strings.ToUpper(strings.TrimSpace(keyword)) + s.quoteCurrency
}
