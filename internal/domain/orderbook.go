package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawLevel is a depth entry as delivered by the exchange: a decimal price
// string and a decimal quantity string.
type RawLevel [2]string

// Price returns the raw price string.
func (l RawLevel) Price() string { return l[0] }

// Quantity returns the raw quantity string.
func (l RawLevel) Quantity() string { return l[1] }

// DepthSnapshot is a depth-of-market snapshot for one pair. Bids are sorted
// best (highest) first and asks best (lowest) first.
type DepthSnapshot struct {
	Symbol       string     `json:"symbol"`
	LastUpdateID int64      `json:"last_update_id"`
	Bids         []RawLevel `json:"bids"`
	Asks         []RawLevel `json:"asks"`
	Timestamp    time.Time  `json:"timestamp"`
}

// BestBid returns the first bid price, or zero when the side is empty or
// unparsable.
func (s DepthSnapshot) BestBid() decimal.Decimal {
	return firstPrice(s.Bids)
}

// BestAsk returns the first ask price, or zero when the side is empty or
// unparsable.
func (s DepthSnapshot) BestAsk() decimal.Decimal {
	return firstPrice(s.Asks)
}

func firstPrice(levels []RawLevel) decimal.Decimal {
	if len(levels) == 0 {
		return decimal.Zero
	}
	p, err := decimal.NewFromString(levels[0].Price())
	if err != nil {
		return decimal.Zero
	}
	return p
}

// LadderRow is one display row of the projected order book.
type LadderRow struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// Ladder is the fixed-length display projection of a depth snapshot. Asks
// are ordered high-to-low so the lowest ask sits next to the current price;
// bids are ordered high-to-low.
type Ladder struct {
	Bids []LadderRow `json:"bids"`
	Asks []LadderRow `json:"asks"`
}
