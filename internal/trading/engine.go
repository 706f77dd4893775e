package trading

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// OrderRequest carries the inputs of a confirmation. TargetPrice is used by
// limit orders and ReferencePrice by market orders.
type OrderRequest struct {
	SessionID      string
	Symbol         string
	Direction      domain.Direction
	Kind           domain.OrderKind
	TargetPrice    decimal.Decimal
	ReferencePrice decimal.Decimal
	Quantity       decimal.Decimal
}

// EffectivePrice returns the price the request settles at.
func (r OrderRequest) EffectivePrice() decimal.Decimal {
	if r.Kind == domain.OrderKindMarket {
		return r.ReferencePrice
	}
	return r.TargetPrice
}

// Engine settles simulated orders against a Ledger and keeps the list of
// open (settled, not yet cancelled) orders in insertion order. All methods
// are safe for concurrent use; operations are totally ordered by a mutex.
type Engine struct {
	mu     sync.Mutex
	ledger *Ledger
	orders []domain.Order
	now    func() time.Time
	newID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for order timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the order ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine creates an Engine whose ledger starts at seed.
func NewEngine(seed domain.Balances, opts ...Option) (*Engine, error) {
	ledger, err := NewLedger(seed)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ConfirmOrder validates req, settles it immediately and appends the settled
// order to the open list.
//
// Buy debits the quote balance by Quantity and credits the base balance by
// Quantity/price. Sell debits the base balance by Quantity and credits the
// quote balance by Quantity*price. On any error the ledger is untouched.
func (e *Engine) ConfirmOrder(req OrderRequest) (domain.Order, error) {
	if err := validateRequest(req); err != nil {
		return domain.Order{}, err
	}
	price := req.EffectivePrice()

	var debitAsset, creditAsset domain.Asset
	var credit decimal.Decimal
	order := domain.Order{
		SessionID: req.SessionID,
		Symbol:    strings.ToUpper(req.Symbol),
		Direction: req.Direction,
		Kind:      req.Kind,
		Quantity:  req.Quantity,
		Price:     price,
		Status:    domain.OrderStatusSettled,
	}
	switch req.Direction {
	case domain.DirectionBuy:
		debitAsset, creditAsset = domain.AssetQuote, domain.AssetBase
		credit = req.Quantity.Div(price)
		order.QuoteDelta = req.Quantity.Neg()
		order.BaseDelta = credit
	case domain.DirectionSell:
		debitAsset, creditAsset = domain.AssetBase, domain.AssetQuote
		credit = req.Quantity.Mul(price)
		order.BaseDelta = req.Quantity.Neg()
		order.QuoteDelta = credit
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ledger.Debit(debitAsset, req.Quantity); err != nil {
		return domain.Order{}, err
	}
	// Credit of a non-negative amount on a known asset cannot fail.
	_ = e.ledger.Credit(creditAsset, credit)

	order.ID = e.newID()
	order.CreatedAt = e.now()
	e.orders = append(e.orders, order)
	return order, nil
}

// CancelOrder reverses exactly the settlement of the open order with the
// given id and removes it from the list. It fails with
// domain.ErrOrderNotFound when no such order is open, and with
// domain.ErrInsufficientBalance when the reversal would overdraw a balance
// (for example the base bought by the order has since been sold).
func (e *Engine) CancelOrder(id string) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := slices.IndexFunc(e.orders, func(o domain.Order) bool { return o.ID == id })
	if idx < 0 {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	o := e.orders[idx]

	quoteBack, baseBack := o.QuoteDelta.Neg(), o.BaseDelta.Neg()
	if !e.ledger.covers(domain.AssetQuote, quoteBack) || !e.ledger.covers(domain.AssetBase, baseBack) {
		return domain.Order{}, fmt.Errorf("%w: reversing order %s would overdraw the ledger",
			domain.ErrInsufficientBalance, id)
	}
	_ = e.ledger.adjust(domain.AssetQuote, quoteBack)
	_ = e.ledger.adjust(domain.AssetBase, baseBack)

	e.orders = slices.Delete(e.orders, idx, idx+1)
	return markCancelled(o, e.now()), nil
}

// CancelAll reverses every open order in one step and clears the list. The
// reversal is all-or-nothing: if the combined reversal would overdraw a
// balance nothing changes and domain.ErrInsufficientBalance is returned.
func (e *Engine) CancelAll() ([]domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	quoteBack, baseBack := decimal.Zero, decimal.Zero
	for _, o := range e.orders {
		quoteBack = quoteBack.Sub(o.QuoteDelta)
		baseBack = baseBack.Sub(o.BaseDelta)
	}
	if !e.ledger.covers(domain.AssetQuote, quoteBack) || !e.ledger.covers(domain.AssetBase, baseBack) {
		return nil, fmt.Errorf("%w: reversing %d open orders would overdraw the ledger",
			domain.ErrInsufficientBalance, len(e.orders))
	}
	_ = e.ledger.adjust(domain.AssetQuote, quoteBack)
	_ = e.ledger.adjust(domain.AssetBase, baseBack)

	now := e.now()
	cancelled := make([]domain.Order, 0, len(e.orders))
	for _, o := range e.orders {
		cancelled = append(cancelled, markCancelled(o, now))
	}
	e.orders = nil
	return cancelled, nil
}

// Balances returns the current ledger balances.
func (e *Engine) Balances() domain.Balances {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Balances()
}

// OpenOrders returns a copy of the open orders in insertion order.
func (e *Engine) OpenOrders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.orders)
}

func validateRequest(req OrderRequest) error {
	if !req.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", domain.ErrInvalidAmount, req.Direction)
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown order kind %q", domain.ErrInvalidAmount, req.Kind)
	}
	if !req.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", domain.ErrInvalidAmount, req.Quantity)
	}
	switch req.Kind {
	case domain.OrderKindLimit:
		if !req.TargetPrice.IsPositive() {
			return fmt.Errorf("%w: limit order needs a positive target price, got %s",
				domain.ErrInvalidAmount, req.TargetPrice)
		}
	case domain.OrderKindMarket:
		if !req.ReferencePrice.IsPositive() {
			return fmt.Errorf("%w: market order needs a positive reference price, got %s",
				domain.ErrInvalidAmount, req.ReferencePrice)
		}
	}
	return nil
}

func markCancelled(o domain.Order, at time.Time) domain.Order {
	o.Status = domain.OrderStatusCancelled
	o.CancelledAt = &at
	return o
}
