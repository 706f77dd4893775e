package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a simulated order.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// OrderKind selects which price an order settles at.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
)

// Valid reports whether k is a known order kind.
func (k OrderKind) Valid() bool {
	return k == OrderKindMarket || k == OrderKindLimit
}

// OrderStatus is the lifecycle state of a simulated order. Orders are
// settled on confirmation; cancelled is terminal.
type OrderStatus string

const (
	OrderStatusSettled   OrderStatus = "settled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a simulated trade that has already been folded into a ledger.
//
// Quantity is quote-denominated for buys (amount to spend) and
// base-denominated for sells (amount to sell). BaseDelta and QuoteDelta are
// the signed changes applied at settlement; cancelling applies their
// negation.
type Order struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Symbol      string          `json:"symbol"`
	Direction   Direction       `json:"direction"`
	Kind        OrderKind       `json:"kind"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	BaseDelta   decimal.Decimal `json:"base_delta"`
	QuoteDelta  decimal.Decimal `json:"quote_delta"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
}

// OrderEvent is published on the signal bus whenever an order changes state.
type OrderEvent struct {
	Event     string    `json:"event"` // "order_filled" or "order_cancelled"
	Order     Order     `json:"order"`
	Balances  Balances  `json:"balances"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventOrderFilled    = "order_filled"
	EventOrderCancelled = "order_cancelled"
)
