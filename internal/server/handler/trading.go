package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/server/middleware"
	"github.com/alanyoungcy/papertrade/internal/service"
)

// TradingService defines the methods that the trading handler requires from
// the service layer.
type TradingService interface {
	Confirm(ctx context.Context, in service.ConfirmInput) (domain.Order, error)
	Cancel(ctx context.Context, sessionID, symbol, orderID string) (domain.Order, error)
	CancelAll(ctx context.Context, sessionID, symbol string) ([]domain.Order, error)
	Balances(sessionID, symbol string) domain.Balances
	OpenOrders(sessionID, symbol string) []domain.Order
	Quote(ctx context.Context, in service.QuoteInput) (service.Quote, error)
	History(ctx context.Context, sessionID string, opts domain.ListOpts) ([]domain.Order, error)
	Events(ctx context.Context, sessionID, after string, limit int) ([]service.RecordedEvent, string, error)
}

// TradingHandler serves the balance and order endpoints.
type TradingHandler struct {
	trading TradingService
	logger  *slog.Logger
}

// NewTradingHandler creates a TradingHandler.
func NewTradingHandler(trading TradingService, logger *slog.Logger) *TradingHandler {
	return &TradingHandler{trading: trading, logger: logHandler(logger, "trading")}
}

type balancesResponse struct {
	Session  string          `json:"session"`
	Balances domain.Balances `json:"balances"`
}

type ordersResponse struct {
	Orders   []domain.Order  `json:"orders"`
	Balances domain.Balances `json:"balances"`
}

type orderResponse struct {
	Order    domain.Order    `json:"order"`
	Balances domain.Balances `json:"balances"`
}

// confirmRequest is the body of POST /api/orders. Decimal fields accept
// JSON strings or numbers. percentage, when set, replaces quantity.
type confirmRequest struct {
	Symbol      string           `json:"symbol"`
	Direction   domain.Direction `json:"direction"`
	Kind        domain.OrderKind `json:"kind"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Percentage  *decimal.Decimal `json:"percentage"`
	TargetPrice decimal.Decimal  `json:"target_price"`
}

// Balances returns the ledger balances of the caller's session.
// GET /api/balances?symbol=BTCUSDT
func (h *TradingHandler) Balances(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionID(r)
	writeJSON(w, http.StatusOK, balancesResponse{
		Session:  session,
		Balances: h.trading.Balances(session, r.URL.Query().Get("symbol")),
	})
}

// ListOpen returns the open orders in insertion order.
// GET /api/orders?symbol=BTCUSDT
func (h *TradingHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	session, symbol := middleware.SessionID(r), r.URL.Query().Get("symbol")
	writeJSON(w, http.StatusOK, ordersResponse{
		Orders:   h.trading.OpenOrders(session, symbol),
		Balances: h.trading.Balances(session, symbol),
	})
}

// History returns persisted orders of the session, newest first.
// GET /api/orders/history?limit=50&offset=0
func (h *TradingHandler) History(w http.ResponseWriter, r *http.Request) {
	orders, err := h.trading.History(r.Context(), middleware.SessionID(r), parseListOpts(r))
	if errors.Is(err, service.ErrHistoryDisabled) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list order history")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// Events replays the session's order events from the durable stream.
// GET /api/orders/events?after=0&limit=100
func (h *TradingHandler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, next, err := h.trading.Events(r.Context(), middleware.SessionID(r), q.Get("after"), parseListOpts(r).Limit)
	if errors.Is(err, service.ErrEventsDisabled) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read order events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "next": next})
}

// Confirm settles a new simulated order.
// POST /api/orders
func (h *TradingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	if req.Kind == "" {
		req.Kind = domain.OrderKindMarket
	}

	session := middleware.SessionID(r)
	order, err := h.trading.Confirm(r.Context(), service.ConfirmInput{
		SessionID:   session,
		Symbol:      req.Symbol,
		Direction:   req.Direction,
		Kind:        req.Kind,
		Quantity:    req.Quantity,
		Percentage:  req.Percentage,
		TargetPrice: req.TargetPrice,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to confirm order")
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse{
		Order:    order,
		Balances: h.trading.Balances(session, order.Symbol),
	})
}

// Cancel reverses one open order.
// DELETE /api/orders/{id}?symbol=BTCUSDT
func (h *TradingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}
	session, symbol := middleware.SessionID(r), r.URL.Query().Get("symbol")

	order, err := h.trading.Cancel(r.Context(), session, symbol, id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to cancel order")
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{
		Order:    order,
		Balances: h.trading.Balances(session, symbol),
	})
}

// CancelAll reverses every open order of the session.
// DELETE /api/orders?symbol=BTCUSDT
func (h *TradingHandler) CancelAll(w http.ResponseWriter, r *http.Request) {
	session, symbol := middleware.SessionID(r), r.URL.Query().Get("symbol")

	orders, err := h.trading.CancelAll(r.Context(), session, symbol)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to cancel orders")
		return
	}
	writeJSON(w, http.StatusOK, ordersResponse{
		Orders:   orders,
		Balances: h.trading.Balances(session, symbol),
	})
}

// Quote previews an order sized as a percentage of the relevant balance.
// GET /api/orders/quote?symbol=BTCUSDT&direction=buy&percentage=25&kind=limit&target_price=50000
func (h *TradingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := service.QuoteInput{
		SessionID: middleware.SessionID(r),
		Symbol:    q.Get("symbol"),
		Direction: domain.Direction(q.Get("direction")),
		Kind:      domain.OrderKind(q.Get("kind")),
	}
	if in.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	var err error
	if in.Percentage, err = decimalParam(q.Get("percentage")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid percentage")
		return
	}
	if in.TargetPrice, err = decimalParam(q.Get("target_price")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid target_price")
		return
	}

	quote, err := h.trading.Quote(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to quote order")
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func decimalParam(v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v)
}
