package trading

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, quote, base string) *Engine {
	t.Helper()
	n := 0
	e, err := NewEngine(
		domain.Balances{Quote: d(quote), Base: d(base)},
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("ord-%d", n)
		}),
	)
	require.NoError(t, err)
	return e
}

func marketBuy(qty, ref string) OrderRequest {
	return OrderRequest{
		SessionID:      "s1",
		Symbol:         "btcusdt",
		Direction:      domain.DirectionBuy,
		Kind:           domain.OrderKindMarket,
		ReferencePrice: d(ref),
		Quantity:       d(qty),
	}
}

func limitSell(qty, target string) OrderRequest {
	return OrderRequest{
		SessionID:   "s1",
		Symbol:      "BTCUSDT",
		Direction:   domain.DirectionSell,
		Kind:        domain.OrderKindLimit,
		TargetPrice: d(target),
		Quantity:    d(qty),
	}
}

func assertBalances(t *testing.T, e *Engine, quote, base string) {
	t.Helper()
	b := e.Balances()
	assert.True(t, b.Quote.Equal(d(quote)), "quote: got %s want %s", b.Quote, quote)
	assert.True(t, b.Base.Equal(d(base)), "base: got %s want %s", b.Base, base)
}

func TestEngine_MarketBuyThenCancel(t *testing.T) {
	e := newTestEngine(t, "500", "0.1")

	order, err := e.ConfirmOrder(marketBuy("100", "50000"))
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, "BTCUSDT", order.Symbol)
	assert.Equal(t, domain.OrderStatusSettled, order.Status)
	assert.True(t, order.Price.Equal(d("50000")))
	assert.True(t, order.BaseDelta.Equal(d("0.002")))
	assert.True(t, order.QuoteDelta.Equal(d("-100")))
	assert.Equal(t, fixedNow, order.CreatedAt)
	assertBalances(t, e, "400", "0.102")
	assert.Len(t, e.OpenOrders(), 1)

	cancelled, err := e.CancelOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assertBalances(t, e, "500", "0.1")
	assert.Empty(t, e.OpenOrders())
}

func TestEngine_LimitSellUsesTargetPrice(t *testing.T) {
	e := newTestEngine(t, "500", "0.1")

	req := limitSell("0.05", "60000")
	req.ReferencePrice = d("50000")
	order, err := e.ConfirmOrder(req)
	require.NoError(t, err)
	assert.True(t, order.Price.Equal(d("60000")))
	assertBalances(t, e, "3500", "0.05")
}

func TestEngine_MarketIgnoresTargetPrice(t *testing.T) {
	e := newTestEngine(t, "500", "0.1")

	req := marketBuy("100", "50000")
	req.TargetPrice = d("1")
	_, err := e.ConfirmOrder(req)
	require.NoError(t, err)
	assertBalances(t, e, "400", "0.102")
}

func TestEngine_InsufficientBalance(t *testing.T) {
	e := newTestEngine(t, "500", "0.1")

	_, err := e.ConfirmOrder(marketBuy("500.0001", "50000"))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = e.ConfirmOrder(limitSell("0.2", "60000"))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assertBalances(t, e, "500", "0.1")
	assert.Empty(t, e.OpenOrders())
}

func TestEngine_InvalidRequests(t *testing.T) {
	e := newTestEngine(t, "500", "0.1")

	cases := map[string]OrderRequest{
		"zero quantity":      marketBuy("0", "50000"),
		"negative quantity":  marketBuy("-1", "50000"),
		"zero market price":  marketBuy("10", "0"),
		"zero limit price":   limitSell("0.01", "0"),
		"unknown direction":  {Direction: "hold", Kind: domain.OrderKindMarket, ReferencePrice: d("1"), Quantity: d("1")},
		"unknown order kind": {Direction: domain.DirectionBuy, Kind: "stop", TargetPrice: d("1"), Quantity: d("1")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.ConfirmOrder(req)
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		})
	}
	assertBalances(t, e, "500", "0.1")
}

func TestEngine_CancelUnknown(t *testing.T) {
	e := newTestEngine(t, "500", "0.1")

	_, err := e.CancelOrder("missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	order, err := e.ConfirmOrder(marketBuy("10", "50000"))
	require.NoError(t, err)
	_, err = e.CancelOrder(order.ID)
	require.NoError(t, err)

	_, err = e.CancelOrder(order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestEngine_OpenOrdersInsertionOrder(t *testing.T) {
	e := newTestEngine(t, "1000", "1")

	for i := 0; i < 3; i++ {
		_, err := e.ConfirmOrder(marketBuy("10", "50000"))
		require.NoError(t, err)
	}
	_, err := e.CancelOrder("ord-2")
	require.NoError(t, err)

	open := e.OpenOrders()
	require.Len(t, open, 2)
	assert.Equal(t, "ord-1", open[0].ID)
	assert.Equal(t, "ord-3", open[1].ID)

	// Mutating the copy does not touch the engine.
	open[0].ID = "changed"
	assert.Equal(t, "ord-1", e.OpenOrders()[0].ID)
}

func TestEngine_CancelRestoresNonTerminatingDivision(t *testing.T) {
	e := newTestEngine(t, "100", "0")

	order, err := e.ConfirmOrder(marketBuy("100", "30000"))
	require.NoError(t, err)
	assert.True(t, e.Balances().Quote.IsZero())

	_, err = e.CancelOrder(order.ID)
	require.NoError(t, err)
	assertBalances(t, e, "100", "0")
}

func TestEngine_CancelRejectedWhenReversalOverdraws(t *testing.T) {
	e := newTestEngine(t, "500", "0")

	buy, err := e.ConfirmOrder(marketBuy("100", "50000"))
	require.NoError(t, err)
	// Sell the base the buy produced.
	_, err = e.ConfirmOrder(limitSell("0.002", "50000"))
	require.NoError(t, err)
	assertBalances(t, e, "500", "0")

	_, err = e.CancelOrder(buy.ID)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assertBalances(t, e, "500", "0")
	assert.Len(t, e.OpenOrders(), 2)

	// Cancelling both at once nets out.
	cancelled, err := e.CancelAll()
	require.NoError(t, err)
	assert.Len(t, cancelled, 2)
	assertBalances(t, e, "500", "0")
}

func TestEngine_CancelAll(t *testing.T) {
	e := newTestEngine(t, "500", "0.1")

	_, err := e.ConfirmOrder(marketBuy("100", "50000"))
	require.NoError(t, err)
	_, err = e.ConfirmOrder(limitSell("0.05", "60000"))
	require.NoError(t, err)
	_, err = e.ConfirmOrder(marketBuy("33.3333", "41234.5678"))
	require.NoError(t, err)

	cancelled, err := e.CancelAll()
	require.NoError(t, err)
	require.Len(t, cancelled, 3)
	assert.Equal(t, "ord-1", cancelled[0].ID)
	for _, o := range cancelled {
		assert.Equal(t, domain.OrderStatusCancelled, o.Status)
	}
	assertBalances(t, e, "500", "0.1")
	assert.Empty(t, e.OpenOrders())

	cancelled, err = e.CancelAll()
	require.NoError(t, err)
	assert.Empty(t, cancelled)
}

// Random sequences of confirms and cancels never drive a balance negative,
// and cancelling whatever remains restores the seed exactly.
func TestEngine_RandomSequenceKeepsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	seed := domain.Balances{Quote: d("10000"), Base: d("1")}

	for round := 0; round < 20; round++ {
		e := newTestEngine(t, seed.Quote.String(), seed.Base.String())
		for step := 0; step < 60; step++ {
			b := e.Balances()
			switch rng.Intn(3) {
			case 0, 1:
				dir := domain.DirectionBuy
				if rng.Intn(2) == 0 {
					dir = domain.DirectionSell
				}
				pct := decimal.NewFromInt(int64(rng.Intn(101)))
				qty := ComputeOrderQuantity(dir, pct, b.Quote, b.Base)
				price := decimal.NewFromInt(int64(20000 + rng.Intn(40000)))
				_, err := e.ConfirmOrder(OrderRequest{
					Direction: dir, Kind: domain.OrderKindLimit, TargetPrice: price, Quantity: qty,
				})
				// Zero-sized orders and sells rounded above the balance are rejected.
				if err != nil {
					assert.True(t, errors.Is(err, domain.ErrInvalidAmount) ||
						errors.Is(err, domain.ErrInsufficientBalance), "unexpected error: %v", err)
				}
			case 2:
				open := e.OpenOrders()
				if len(open) == 0 {
					continue
				}
				_, err := e.CancelOrder(open[rng.Intn(len(open))].ID)
				if err != nil {
					assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
				}
			}
			b = e.Balances()
			require.False(t, b.Quote.IsNegative())
			require.False(t, b.Base.IsNegative())
		}

		_, err := e.CancelAll()
		require.NoError(t, err)
		assertBalances(t, e, seed.Quote.String(), seed.Base.String())
	}
}

// Cancelling every order one by one, in any order that succeeds, ends in the
// same state as CancelAll.
func TestEngine_IndividualCancelsMatchCancelAll(t *testing.T) {
	build := func() *Engine {
		e := newTestEngine(t, "1000", "1")
		for _, req := range []OrderRequest{
			marketBuy("250", "50000"),
			limitSell("0.3", "52000"),
			marketBuy("125.5", "49000"),
			limitSell("0.1", "61000"),
		} {
			_, err := e.ConfirmOrder(req)
			require.NoError(t, err)
		}
		return e
	}

	all := build()
	_, err := all.CancelAll()
	require.NoError(t, err)

	for _, order := range [][]string{
		{"ord-1", "ord-2", "ord-3", "ord-4"},
		{"ord-4", "ord-3", "ord-2", "ord-1"},
		{"ord-2", "ord-4", "ord-1", "ord-3"},
	} {
		one := build()
		for _, id := range order {
			_, err := one.CancelOrder(id)
			require.NoError(t, err)
		}
		assert.True(t, all.Balances().Quote.Equal(one.Balances().Quote))
		assert.True(t, all.Balances().Base.Equal(one.Balances().Base))
		assertBalances(t, one, "1000", "1")
	}
}

func TestEngine_ConcurrentConfirms(t *testing.T) {
	e := newTestEngine(t, "1000", "0")
	done := make(chan error, 100)
	for i := 0; i < 100; i++ {
		go func() {
			_, err := e.ConfirmOrder(marketBuy("10", "50000"))
			done <- err
		}()
	}
	for i := 0; i < 100; i++ {
		require.NoError(t, <-done)
	}
	assertBalances(t, e, "0", "0.02")
	assert.Len(t, e.OpenOrders(), 100)
}
