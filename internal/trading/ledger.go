// Package trading implements the simulated trading core: a two-asset balance
// ledger, the order sizing calculator, the order engine that settles
// simulated orders against the ledger, and the order-book ladder projector.
// Nothing in this package performs I/O.
package trading

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// Precision is the number of decimal places sized quantities are rounded to.
const Precision int32 = 4

var hundred = decimal.NewFromInt(100)

// Ledger holds the quote and base balances of one simulated account. Both
// balances are non-negative at all times; an operation that would break that
// is rejected before any mutation.
//
// Ledger is not safe for concurrent use. Engine serializes access to it.
type Ledger struct {
	quote decimal.Decimal
	base  decimal.Decimal
}

// NewLedger creates a ledger seeded with the given balances.
func NewLedger(seed domain.Balances) (*Ledger, error) {
	if seed.Quote.IsNegative() || seed.Base.IsNegative() {
		return nil, fmt.Errorf("%w: seed balances must be non-negative (quote=%s base=%s)",
			domain.ErrInvalidAmount, seed.Quote, seed.Base)
	}
	return &Ledger{quote: seed.Quote, base: seed.Base}, nil
}

// Balances returns a copy of the current balances.
func (l *Ledger) Balances() domain.Balances {
	return domain.Balances{Quote: l.quote, Base: l.base}
}

// Credit increases the named balance by amount.
func (l *Ledger) Credit(asset domain.Asset, amount decimal.Decimal) error {
	slot, err := l.slot(asset)
	if err != nil {
		return err
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: credit amount %s is negative", domain.ErrInvalidAmount, amount)
	}
	*slot = slot.Add(amount)
	return nil
}

// Debit decreases the named balance by amount. It fails with
// domain.ErrInsufficientBalance when amount exceeds the balance.
func (l *Ledger) Debit(asset domain.Asset, amount decimal.Decimal) error {
	slot, err := l.slot(asset)
	if err != nil {
		return err
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: debit amount %s is negative", domain.ErrInvalidAmount, amount)
	}
	if amount.GreaterThan(*slot) {
		return fmt.Errorf("%w: %s balance %s is less than %s",
			domain.ErrInsufficientBalance, asset, *slot, amount)
	}
	*slot = slot.Sub(amount)
	return nil
}

// covers reports whether applying delta to asset keeps it non-negative.
func (l *Ledger) covers(asset domain.Asset, delta decimal.Decimal) bool {
	slot, err := l.slot(asset)
	if err != nil {
		return false
	}
	return !slot.Add(delta).IsNegative()
}

// adjust applies a signed delta as a credit or a debit.
func (l *Ledger) adjust(asset domain.Asset, delta decimal.Decimal) error {
	if delta.IsNegative() {
		return l.Debit(asset, delta.Neg())
	}
	return l.Credit(asset, delta)
}

func (l *Ledger) slot(asset domain.Asset) (*decimal.Decimal, error) {
	switch asset {
	case domain.AssetQuote:
		return &l.quote, nil
	case domain.AssetBase:
		return &l.base, nil
	default:
		return nil, fmt.Errorf("%w: unknown asset %q", domain.ErrInvalidAmount, asset)
	}
}
