package service

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// fluctuationTracker remembers the last price observed per symbol and
// classifies each new observation against it. The first observation of a
// symbol is neutral.
type fluctuationTracker struct {
	mu   sync.Mutex
	last map[string]decimal.Decimal
}

func newFluctuationTracker() *fluctuationTracker {
	return &fluctuationTracker{last: make(map[string]decimal.Decimal)}
}

func (t *fluctuationTracker) observe(symbol string, price decimal.Decimal) domain.Fluctuation {
	key := strings.ToUpper(symbol)

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.last[key]
	t.last[key] = price
	if !ok {
		return domain.FluctuationNeutral
	}
	return domain.CompareFluctuation(prev, price)
}
