package trading

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// ComputeOrderQuantity maps a percentage of the relevant balance to an order
// quantity. Buys size against the quote balance (amount to spend), sells
// against the base balance (amount to sell). The percentage is clamped to
// [0, 100] and the result is rounded half away from zero to Precision places.
func ComputeOrderQuantity(direction domain.Direction, percentage, quoteBalance, baseBalance decimal.Decimal) decimal.Decimal {
	balance := quoteBalance
	if direction == domain.DirectionSell {
		balance = baseBalance
	}
	return balance.Mul(clampPercentage(percentage)).Div(hundred).Round(Precision)
}

// MaxBuy is the base quantity the whole quote balance buys at price. It is
// zero for sells and for non-positive prices.
func MaxBuy(direction domain.Direction, quoteBalance, price decimal.Decimal) decimal.Decimal {
	if direction != domain.DirectionBuy || !price.IsPositive() {
		return decimal.Zero
	}
	return quoteBalance.Div(price).Round(Precision)
}

func clampPercentage(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
