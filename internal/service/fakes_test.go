package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeExchange struct {
	mu        sync.Mutex
	prices    map[string]decimal.Decimal
	depth     map[string]domain.DepthSnapshot
	pairs     map[string]domain.TradingPair
	priceErr  error
	pairErr   error
	calls     map[string]int
	tickerErr error
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		prices: make(map[string]decimal.Decimal),
		depth:  make(map[string]domain.DepthSnapshot),
		pairs:  make(map[string]domain.TradingPair),
		calls:  make(map[string]int),
	}
}

func (f *fakeExchange) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeExchange) ReferencePrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["price"]++
	if f.priceErr != nil {
		return decimal.Zero, f.priceErr
	}
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, domain.ErrInvalidPair
	}
	return p, nil
}

func (f *fakeExchange) DepthSnapshot(_ context.Context, symbol string, _ int) (domain.DepthSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["depth"]++
	snap, ok := f.depth[symbol]
	if !ok {
		return domain.DepthSnapshot{}, domain.ErrInvalidPair
	}
	return snap, nil
}

func (f *fakeExchange) PairMetadata(_ context.Context, symbol string) (domain.TradingPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["pair"]++
	if f.pairErr != nil {
		return domain.TradingPair{}, f.pairErr
	}
	p, ok := f.pairs[symbol]
	if !ok {
		return domain.TradingPair{}, domain.ErrInvalidPair
	}
	return p, nil
}

func (f *fakeExchange) Ticker24h(_ context.Context, symbol string) (domain.TickerStats, error) {
	if f.tickerErr != nil {
		return domain.TickerStats{}, f.tickerErr
	}
	return domain.TickerStats{Symbol: symbol, LastPrice: f.prices[symbol]}, nil
}

func (f *fakeExchange) Klines(_ context.Context, symbol, interval string) ([]domain.Candle, error) {
	return []domain.Candle{{Close: f.prices[symbol]}}, nil
}

type cachedPrice struct {
	price decimal.Decimal
	ts    time.Time
}

type fakePriceCache struct {
	mu     sync.Mutex
	prices map[string]cachedPrice
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{prices: make(map[string]cachedPrice)}
}

func (c *fakePriceCache) SetPrice(_ context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[strings.ToUpper(symbol)] = cachedPrice{price, ts}
	return nil
}

func (c *fakePriceCache) GetPrice(_ context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return p.price, p.ts, nil
}

func (c *fakePriceCache) GetPrices(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]decimal.Decimal)
	for _, s := range symbols {
		if p, ok := c.prices[strings.ToUpper(s)]; ok {
			out[s] = p.price
		}
	}
	return out, nil
}

type fakeDepthCache struct {
	mu    sync.Mutex
	snaps map[string]domain.DepthSnapshot
}

func newFakeDepthCache() *fakeDepthCache {
	return &fakeDepthCache{snaps: make(map[string]domain.DepthSnapshot)}
}

func (c *fakeDepthCache) SetDepth(_ context.Context, snap domain.DepthSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.Symbol] = snap
	return nil
}

func (c *fakeDepthCache) GetDepth(_ context.Context, symbol string, _ int) (domain.DepthSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[symbol]
	if !ok {
		return domain.DepthSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (c *fakeDepthCache) GetBBO(ctx context.Context, symbol string) (decimal.Decimal, decimal.Decimal, error) {
	snap, err := c.GetDepth(ctx, symbol, 1)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return snap.BestBid(), snap.BestAsk(), nil
}

type fakePairCache struct {
	mu    sync.Mutex
	pairs map[string]domain.TradingPair
}

func newFakePairCache() *fakePairCache {
	return &fakePairCache{pairs: make(map[string]domain.TradingPair)}
}

func (c *fakePairCache) Set(_ context.Context, pair domain.TradingPair) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs[pair.Symbol] = pair
	return nil
}

func (c *fakePairCache) Get(_ context.Context, symbol string) (domain.TradingPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pairs[symbol]
	if !ok {
		return domain.TradingPair{}, domain.ErrNotFound
	}
	return p, nil
}

func (c *fakePairCache) Invalidate(_ context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pairs, symbol)
	return nil
}

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu        sync.Mutex
	published []published
	streamed  []published
	err       error
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, published{channel, payload})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.streamed = append(b.streamed, published{stream, payload})
	return nil
}

// StreamRead numbers entries "1-0", "2-0", ... in append order.
func (b *fakeBus) StreamRead(_ context.Context, stream, after string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	var seq int
	fmt.Sscanf(after, "%d-", &seq)
	var out []domain.StreamMessage
	for i, p := range b.streamed {
		if i+1 <= seq || p.channel != stream {
			continue
		}
		out = append(out, domain.StreamMessage{ID: fmt.Sprintf("%d-0", i+1), Payload: p.payload})
		if len(out) == count {
			break
		}
	}
	return out, nil
}

func (b *fakeBus) channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	for i, p := range b.published {
		out[i] = p.channel
	}
	return out
}

type fakeOrderStore struct {
	mu        sync.Mutex
	orders    []domain.Order
	cancelled map[string]time.Time
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{cancelled: make(map[string]time.Time)}
}

func (s *fakeOrderStore) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, o)
	return nil
}

func (s *fakeOrderStore) MarkCancelled(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[id] = at
	return nil
}

func (s *fakeOrderStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (s *fakeOrderStore) ListBySession(_ context.Context, sessionID string, _ domain.ListOpts) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for i := len(s.orders) - 1; i >= 0; i-- {
		if s.orders[i].SessionID == sessionID {
			out = append(out, s.orders[i])
		}
	}
	return out, nil
}

func (s *fakeOrderStore) ListBefore(context.Context, time.Time) ([]domain.Order, error) {
	return nil, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (n *fakeNotifier) NotifyOrder(_ context.Context, ev domain.OrderEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

type fakeHistory struct {
	mu    sync.Mutex
	words map[string][]string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{words: make(map[string][]string)}
}

func (h *fakeHistory) Add(_ context.Context, owner, keyword string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, w := range h.words[owner] {
		if w == keyword {
			return nil
		}
	}
	h.words[owner] = append([]string{keyword}, h.words[owner]...)
	return nil
}

func (h *fakeHistory) List(_ context.Context, owner string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.words[owner], nil
}

func (h *fakeHistory) Clear(_ context.Context, owner string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.words, owner)
	return nil
}

type fakeCoins struct {
	coins    []domain.Coin
	prices   map[string]decimal.Decimal
	priceErr map[string]error
	detail   domain.CoinDetail
}

func (c *fakeCoins) Search(context.Context, string) ([]domain.Coin, error) {
	return c.coins, nil
}

func (c *fakeCoins) SimplePrice(_ context.Context, ids ...string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, id := range ids {
		if err := c.priceErr[id]; err != nil {
			return nil, err
		}
		if p, ok := c.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (c *fakeCoins) Coin(_ context.Context, id string) (domain.CoinDetail, error) {
	if c.detail.ID != id {
		return domain.CoinDetail{}, domain.ErrNotFound
	}
	return c.detail, nil
}
