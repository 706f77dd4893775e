package trading

import (
	"fmt"
	"strings"
	"sync"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// Scope decides how ledgers are keyed.
type Scope string

const (
	// ScopeSession gives each session one ledger shared by every pair.
	ScopeSession Scope = "session"
	// ScopePair gives each (session, pair) combination its own ledger.
	ScopePair Scope = "pair"
)

// Desk owns the engines of all sessions. Engines are created lazily from the
// seed balances the first time a key is seen.
type Desk struct {
	mu      sync.RWMutex
	seed    domain.Balances
	scope   Scope
	opts    []Option
	engines map[string]*Engine
}

// NewDesk creates a Desk. opts are applied to every engine it creates.
func NewDesk(seed domain.Balances, scope Scope, opts ...Option) (*Desk, error) {
	if _, err := NewLedger(seed); err != nil {
		return nil, err
	}
	switch scope {
	case ScopeSession, ScopePair:
	case "":
		scope = ScopeSession
	default:
		return nil, fmt.Errorf("trading: unknown ledger scope %q", scope)
	}
	return &Desk{
		seed:    seed,
		scope:   scope,
		opts:    opts,
		engines: make(map[string]*Engine),
	}, nil
}

// Seed returns the balances every new ledger starts from.
func (d *Desk) Seed() domain.Balances { return d.seed }

// Scope returns the configured ledger scope.
func (d *Desk) Scope() Scope { return d.scope }

// Engine returns the engine for sessionID (and symbol, under ScopePair),
// creating it on first use.
func (d *Desk) Engine(sessionID, symbol string) *Engine {
	key := d.key(sessionID, symbol)

	d.mu.RLock()
	e, ok := d.engines[key]
	d.mu.RUnlock()
	if ok {
		return e
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.engines[key]; ok {
		return e
	}
	// The seed was validated by NewDesk.
	e, _ = NewEngine(d.seed, d.opts...)
	d.engines[key] = e
	return e
}

// Lookup returns the engine for the key without creating it.
func (d *Desk) Lookup(sessionID, symbol string) (*Engine, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.engines[d.key(sessionID, symbol)]
	return e, ok
}

// Len returns the number of live engines.
func (d *Desk) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.engines)
}

func (d *Desk) key(sessionID, symbol string) string {
	if d.scope == ScopePair {
		return sessionID + "|" + strings.ToUpper(symbol)
	}
	return sessionID
}
