package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/trading"
)

// FeeRate is the flat fee rate shown on order quotes. It is informational;
// settlement does not charge it.
var FeeRate = decimal.RequireFromString("0.001")

var (
	// ErrHistoryDisabled is returned by History when no order store is wired.
	ErrHistoryDisabled = errors.New("order history is not enabled")
	// ErrEventsDisabled is returned by Events when no signal bus is wired.
	ErrEventsDisabled = errors.New("order event stream is not enabled")
)

// maxEventPage caps one read of the order stream.
const maxEventPage = 500

// RecordedEvent is an order event together with its stream ID, which
// callers pass back as the cursor for the next page.
type RecordedEvent struct {
	ID string `json:"id"`
	domain.OrderEvent
}

// OrderNotifier receives order events for operator notification.
type OrderNotifier interface {
	NotifyOrder(ctx context.Context, ev domain.OrderEvent) error
}

// ConfirmInput is a request to place a simulated order. Exactly one of
// Quantity or Percentage sizes the order; Percentage is resolved against the
// current balances with trading.ComputeOrderQuantity.
type ConfirmInput struct {
	SessionID   string
	Symbol      string
	Direction   domain.Direction
	Kind        domain.OrderKind
	Quantity    decimal.Decimal
	Percentage  *decimal.Decimal
	TargetPrice decimal.Decimal
}

// QuoteInput asks what an order of the given size would look like.
type QuoteInput struct {
	SessionID   string
	Symbol      string
	Direction   domain.Direction
	Kind        domain.OrderKind
	Percentage  decimal.Decimal
	TargetPrice decimal.Decimal
}

// Quote is the sizing preview shown before confirmation.
type Quote struct {
	Symbol    string           `json:"symbol"`
	Direction domain.Direction `json:"direction"`
	Price     decimal.Decimal  `json:"price"`
	Quantity  decimal.Decimal  `json:"quantity"`
	MaxBuy    decimal.Decimal  `json:"max_buy"`
	FeeRate   decimal.Decimal  `json:"fee_rate"`
	Balances  domain.Balances  `json:"balances"`
}

// TradingService is the application layer around the order engine. It
// resolves prices, sizes orders, and after every state change publishes the
// order event, appends it to the order stream, records history and audit
// entries and notifies operators. Those side effects are best effort: the
// engine's result stands even if one of them fails.
type TradingService struct {
	desk     *trading.Desk
	market   domain.MarketData
	orders   domain.OrderStore
	audit    domain.AuditStore
	bus      domain.SignalBus
	notifier OrderNotifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewTradingService creates a TradingService. Stores, bus and notifier are
// optional and attached with the With* methods.
func NewTradingService(desk *trading.Desk, market domain.MarketData, logger *slog.Logger) *TradingService {
	return &TradingService{
		desk:   desk,
		market: market,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "trading_service")),
	}
}

// WithOrderStore records every order in the history store.
func (s *TradingService) WithOrderStore(store domain.OrderStore) *TradingService {
	s.orders = store
	return s
}

// WithAuditStore writes order actions to the audit log.
func (s *TradingService) WithAuditStore(audit domain.AuditStore) *TradingService {
	s.audit = audit
	return s
}

// WithSignalBus publishes order events on the orders channel and stream.
func (s *TradingService) WithSignalBus(bus domain.SignalBus) *TradingService {
	s.bus = bus
	return s
}

// WithNotifier forwards order events to operator channels.
func (s *TradingService) WithNotifier(n OrderNotifier) *TradingService {
	s.notifier = n
	return s
}

// Confirm sizes, prices and settles an order.
func (s *TradingService) Confirm(ctx context.Context, in ConfirmInput) (domain.Order, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return domain.Order{}, fmt.Errorf("trading_service: %w: empty symbol", domain.ErrInvalidPair)
	}
	if !in.Direction.Valid() {
		return domain.Order{}, fmt.Errorf("trading_service: %w: unknown direction %q", domain.ErrInvalidAmount, in.Direction)
	}
	if !in.Kind.Valid() {
		return domain.Order{}, fmt.Errorf("trading_service: %w: unknown order kind %q", domain.ErrInvalidAmount, in.Kind)
	}
	req := trading.OrderRequest{
		SessionID:   in.SessionID,
		Symbol:      symbol,
		Direction:   in.Direction,
		Kind:        in.Kind,
		TargetPrice: in.TargetPrice,
		Quantity:    in.Quantity,
	}
	if err := s.resolvePrice(ctx, &req); err != nil {
		s.countOrder("confirm", in.Direction, err)
		return domain.Order{}, err
	}

	engine := s.desk.Engine(in.SessionID, symbol)
	LedgersActive.Set(float64(s.desk.Len()))
	if in.Percentage != nil {
		b := engine.Balances()
		req.Quantity = trading.ComputeOrderQuantity(in.Direction, *in.Percentage, b.Quote, b.Base)
	}

	order, err := engine.ConfirmOrder(req)
	s.countOrder("confirm", in.Direction, err)
	if err != nil {
		return domain.Order{}, fmt.Errorf("trading_service: confirm: %w", err)
	}

	s.logger.InfoContext(ctx, "order settled",
		slog.String("order_id", order.ID),
		slog.String("session", order.SessionID),
		slog.String("symbol", order.Symbol),
		slog.String("direction", string(order.Direction)),
		slog.String("kind", string(order.Kind)),
		slog.String("quantity", order.Quantity.String()),
		slog.String("price", order.Price.String()),
	)

	if s.orders != nil {
		if err := s.orders.Create(ctx, order); err != nil {
			s.warn(ctx, "order history write failed", order.ID, err)
		}
	}
	s.emit(ctx, domain.EventOrderFilled, order, engine.Balances())
	return order, nil
}

// Cancel reverses one open order.
func (s *TradingService) Cancel(ctx context.Context, sessionID, symbol, orderID string) (domain.Order, error) {
	engine, ok := s.desk.Lookup(sessionID, symbol)
	if !ok {
		s.countOrder("cancel", "", domain.ErrOrderNotFound)
		return domain.Order{}, fmt.Errorf("trading_service: cancel: %w: %s", domain.ErrOrderNotFound, orderID)
	}

	order, err := engine.CancelOrder(orderID)
	s.countOrder("cancel", order.Direction, err)
	if err != nil {
		return domain.Order{}, fmt.Errorf("trading_service: cancel: %w", err)
	}

	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", order.ID),
		slog.String("session", order.SessionID),
	)
	s.recordCancel(ctx, order)
	s.emit(ctx, domain.EventOrderCancelled, order, engine.Balances())
	return order, nil
}

// CancelAll reverses every open order of the session's ledger at once.
func (s *TradingService) CancelAll(ctx context.Context, sessionID, symbol string) ([]domain.Order, error) {
	engine, ok := s.desk.Lookup(sessionID, symbol)
	if !ok {
		return []domain.Order{}, nil
	}

	orders, err := engine.CancelAll()
	s.countOrder("cancel_all", "", err)
	if err != nil {
		return nil, fmt.Errorf("trading_service: cancel all: %w", err)
	}

	s.logger.InfoContext(ctx, "all orders cancelled",
		slog.String("session", sessionID),
		slog.Int("count", len(orders)),
	)
	balances := engine.Balances()
	for _, o := range orders {
		s.recordCancel(ctx, o)
		s.emit(ctx, domain.EventOrderCancelled, o, balances)
	}
	return orders, nil
}

// Balances returns the ledger balances seen by sessionID for symbol. A
// session that never confirmed an order sees the seed balances; reads never
// allocate a ledger.
func (s *TradingService) Balances(sessionID, symbol string) domain.Balances {
	if engine, ok := s.desk.Lookup(sessionID, symbol); ok {
		return engine.Balances()
	}
	return s.desk.Seed()
}

// OpenOrders returns the open orders in insertion order.
func (s *TradingService) OpenOrders(sessionID, symbol string) []domain.Order {
	engine, ok := s.desk.Lookup(sessionID, symbol)
	if !ok {
		return []domain.Order{}
	}
	orders := engine.OpenOrders()
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders
}

// Quote previews the quantity an order of in.Percentage would have.
func (s *TradingService) Quote(ctx context.Context, in QuoteInput) (Quote, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if !in.Direction.Valid() {
		return Quote{}, fmt.Errorf("trading_service: %w: unknown direction %q", domain.ErrInvalidAmount, in.Direction)
	}
	if in.Kind == "" {
		in.Kind = domain.OrderKindMarket
	}
	req := trading.OrderRequest{Symbol: symbol, Kind: in.Kind, TargetPrice: in.TargetPrice}
	if err := s.resolvePrice(ctx, &req); err != nil {
		return Quote{}, err
	}
	price := req.EffectivePrice()

	b := s.Balances(in.SessionID, symbol)
	return Quote{
		Symbol:    symbol,
		Direction: in.Direction,
		Price:     price,
		Quantity:  trading.ComputeOrderQuantity(in.Direction, in.Percentage, b.Quote, b.Base),
		MaxBuy:    trading.MaxBuy(in.Direction, b.Quote, price),
		FeeRate:   FeeRate,
		Balances:  b,
	}, nil
}

// History returns the persisted orders of a session, newest first.
func (s *TradingService) History(ctx context.Context, sessionID string, opts domain.ListOpts) ([]domain.Order, error) {
	if s.orders == nil {
		return nil, ErrHistoryDisabled
	}
	orders, err := s.orders.ListBySession(ctx, sessionID, opts)
	if err != nil {
		return nil, fmt.Errorf("trading_service: history: %w", err)
	}
	return orders, nil
}

// Events replays order events of sessionID from the order stream, starting
// after the cursor ("0" or empty for the beginning). At most limit stream
// entries are scanned; next is the cursor to resume from and equals after
// when the stream had nothing new. Entries of other sessions are skipped but
// still advance the cursor.
func (s *TradingService) Events(ctx context.Context, sessionID, after string, limit int) ([]RecordedEvent, string, error) {
	if s.bus == nil {
		return nil, after, ErrEventsDisabled
	}
	if after == "" {
		after = "0"
	}
	if !validStreamID(after) {
		return nil, after, fmt.Errorf("trading_service: %w: bad cursor %q", domain.ErrInvalidAmount, after)
	}
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}

	msgs, err := s.bus.StreamRead(ctx, domain.StreamOrders, after, limit)
	if err != nil {
		return nil, after, fmt.Errorf("trading_service: events: %w", err)
	}

	events := []RecordedEvent{}
	next := after
	for _, m := range msgs {
		next = m.ID
		var ev domain.OrderEvent
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			s.logger.WarnContext(ctx, "skipping malformed order event",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ev.Order.SessionID != sessionID {
			continue
		}
		events = append(events, RecordedEvent{ID: m.ID, OrderEvent: ev})
	}
	return events, next, nil
}

// validStreamID reports whether id is a stream entry id: milliseconds,
// optionally followed by "-" and a sequence number.
func validStreamID(id string) bool {
	ms, seq, hasSeq := strings.Cut(id, "-")
	if _, err := strconv.ParseUint(ms, 10, 64); err != nil {
		return false
	}
	if hasSeq {
		if _, err := strconv.ParseUint(seq, 10, 64); err != nil {
			return false
		}
	}
	return true
}

// resolvePrice fills in the reference price for market orders and checks
// that the pair exists for limit orders.
func (s *TradingService) resolvePrice(ctx context.Context, req *trading.OrderRequest) error {
	switch req.Kind {
	case domain.OrderKindMarket:
		price, err := s.market.ReferencePrice(ctx, req.Symbol)
		if err != nil {
			return fmt.Errorf("trading_service: reference price: %w", err)
		}
		req.ReferencePrice = price
	case domain.OrderKindLimit:
		// Limit orders settle at their target, so an unreachable feed only
		// matters when it positively reports an unknown pair.
		if _, err := s.market.PairMetadata(ctx, req.Symbol); err != nil {
			if errors.Is(err, domain.ErrInvalidPair) {
				return fmt.Errorf("trading_service: %w", err)
			}
			s.logger.WarnContext(ctx, "pair lookup failed",
				slog.String("symbol", req.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (s *TradingService) recordCancel(ctx context.Context, o domain.Order) {
	if s.orders == nil || o.CancelledAt == nil {
		return
	}
	if err := s.orders.MarkCancelled(ctx, o.ID, *o.CancelledAt); err != nil {
		s.warn(ctx, "order history update failed", o.ID, err)
	}
}

// emit fans an order event out to the bus, the order stream, the audit log
// and the notifier.
func (s *TradingService) emit(ctx context.Context, event string, o domain.Order, b domain.Balances) {
	ev := domain.OrderEvent{Event: event, Order: o, Balances: b, Timestamp: s.now()}

	if s.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.warn(ctx, "marshal order event failed", o.ID, err)
		} else {
			if err := s.bus.Publish(ctx, domain.ChannelOrders, payload); err != nil {
				s.warn(ctx, "publish order event failed", o.ID, err)
			}
			if err := s.bus.StreamAppend(ctx, domain.StreamOrders, payload); err != nil {
				s.warn(ctx, "append order stream failed", o.ID, err)
			}
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, event, map[string]any{
			"order_id":  o.ID,
			"session":   o.SessionID,
			"symbol":    o.Symbol,
			"direction": string(o.Direction),
			"kind":      string(o.Kind),
			"quantity":  o.Quantity.String(),
			"price":     o.Price.String(),
		}); err != nil {
			s.warn(ctx, "audit log failed", o.ID, err)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyOrder(ctx, ev); err != nil {
			s.warn(ctx, "notify failed", o.ID, err)
		}
	}
}

func (s *TradingService) countOrder(action string, direction domain.Direction, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInsufficientBalance):
		result = "insufficient_balance"
	case errors.Is(err, domain.ErrInvalidAmount):
		result = "invalid_amount"
	case errors.Is(err, domain.ErrOrderNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	OrdersTotal.WithLabelValues(action, string(direction), result).Inc()
}

func (s *TradingService) warn(ctx context.Context, msg, orderID string, err error) {
	s.logger.WarnContext(ctx, msg,
		slog.String("order_id", orderID),
		slog.String("error", err.Error()),
	)
}
