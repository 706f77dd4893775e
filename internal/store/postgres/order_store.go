package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Rows are written
// for history only; ledgers are never rebuilt from them.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a settled order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, session_id, symbol, direction, kind,
			quantity, price, base_delta, quote_delta,
			status, created_at, cancelled_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7::numeric, $8::numeric, $9::numeric,
			$10, $11, $12, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.SessionID, o.Symbol, string(o.Direction), string(o.Kind),
		o.Quantity.String(), o.Price.String(), o.BaseDelta.String(), o.QuoteDelta.String(),
		string(o.Status), o.CreatedAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// MarkCancelled flips a settled order to cancelled.
func (s *OrderStore) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE orders SET status = $1, cancelled_at = $2, updated_at = NOW() WHERE id = $3`

	tag, err := s.pool.Exec(ctx, query, string(domain.OrderStatusCancelled), at, id)
	if err != nil {
		return fmt.Errorf("postgres: cancel order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// orderSelectCols lists the columns selected when reading orders. Numeric
// columns are read as text so decimals round-trip exactly.
const orderSelectCols = `id, session_id, symbol, direction, kind,
	quantity::text, price::text, base_delta::text, quote_delta::text,
	status, created_at, cancelled_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var direction, kind, status string
	var qty, price, baseDelta, quoteDelta string

	err := scanner.Scan(
		&o.ID, &o.SessionID, &o.Symbol, &direction, &kind,
		&qty, &price, &baseDelta, &quoteDelta,
		&status, &o.CreatedAt, &o.CancelledAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Direction = domain.Direction(direction)
	o.Kind = domain.OrderKind(kind)
	o.Status = domain.OrderStatus(status)

	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&o.Quantity, qty},
		{&o.Price, price},
		{&o.BaseDelta, baseDelta},
		{&o.QuoteDelta, quoteDelta},
	} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return domain.Order{}, fmt.Errorf("parse numeric %q: %w", f.raw, err)
		}
	}
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListBySession returns a session's orders, newest first.
func (s *OrderStore) ListBySession(ctx context.Context, sessionID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE session_id = $1`
	args := []any{sessionID}
	query, args = appendListOpts(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for %s: %w", sessionID, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders for %s: %w", sessionID, err)
	}
	return orders, nil
}

// ListBefore returns every order created strictly before the cutoff, oldest
// first.
func (s *OrderStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE created_at < $1 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders: %w", err)
	}
	return orders, nil
}

// DeleteBefore removes orders created strictly before the cutoff. The
// archiver calls it once the rows are safely in object storage.
func (s *OrderStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete orders before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// appendListOpts adds the created_at window, newest-first ordering and
// pagination to a query whose existing placeholders are args.
func appendListOpts(query string, args []any, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
