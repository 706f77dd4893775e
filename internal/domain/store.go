package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore keeps the append-only history of simulated orders. It is never
// replayed into a ledger.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	MarkCancelled(ctx context.Context, id string, at time.Time) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListBySession(ctx context.Context, sessionID string, opts ListOpts) ([]Order, error)
	ListBefore(ctx context.Context, before time.Time) ([]Order, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// SearchHistoryStore keeps the coin-search keywords an owner has selected,
// newest first.
type SearchHistoryStore interface {
	Add(ctx context.Context, owner, keyword string) error
	List(ctx context.Context, owner string) ([]string, error)
	Clear(ctx context.Context, owner string) error
}
