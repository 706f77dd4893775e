package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// SearchHistoryStore implements domain.SearchHistoryStore using PostgreSQL.
type SearchHistoryStore struct {
	pool *pgxpool.Pool
}

// NewSearchHistoryStore creates a SearchHistoryStore backed by pool.
func NewSearchHistoryStore(pool *pgxpool.Pool) *SearchHistoryStore {
	return &SearchHistoryStore{pool: pool}
}

// Add records keyword for owner unless it is already present; an existing
// entry keeps its original position.
func (s *SearchHistoryStore) Add(ctx context.Context, owner, keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil
	}
	const query = `INSERT INTO search_history (owner, keyword) VALUES ($1, $2)
		ON CONFLICT (owner, keyword) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query, owner, keyword); err != nil {
		return fmt.Errorf("postgres: add search history %s: %w", owner, err)
	}
	return nil
}

// List returns owner's keywords newest first.
func (s *SearchHistoryStore) List(ctx context.Context, owner string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT keyword FROM search_history WHERE owner = $1 ORDER BY created_at DESC, keyword`, owner)
	if err != nil {
		return nil, fmt.Errorf("postgres: list search history %s: %w", owner, err)
	}
	defer rows.Close()

	keywords := []string{}
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, fmt.Errorf("postgres: scan search history: %w", err)
		}
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

// Clear deletes all of owner's keywords.
func (s *SearchHistoryStore) Clear(ctx context.Context, owner string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM search_history WHERE owner = $1`, owner); err != nil {
		return fmt.Errorf("postgres: clear search history %s: %w", owner, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SearchHistoryStore = (*SearchHistoryStore)(nil)
