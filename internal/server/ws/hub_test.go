package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

type chanBus struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func newChanBus() *chanBus {
	return &chanBus{subs: make(map[string]chan []byte)}
}

func (b *chanBus) ch(channel string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.subs[channel]
	if !ok {
		c = make(chan []byte, 16)
		b.subs[channel] = c
	}
	return c
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.ch(channel) <- payload
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.ch(channel), nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type staticStatus struct{}

func (staticStatus) Balances(string, string) domain.Balances {
	return domain.Balances{Quote: decimal.NewFromInt(500), Base: decimal.RequireFromString("0.1")}
}

func (staticStatus) OpenOrders(string, string) []domain.Order { return nil }

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHub_StatusAndRouting(t *testing.T) {
	bus := newChanBus()
	hub := NewHub(bus, staticStatus{}, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "server"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	alice := dial(t, srv, "alice")
	env := readEnvelope(t, alice)
	assert.Equal(t, "session_status", env.Type)
	var status sessionStatus
	require.NoError(t, json.Unmarshal(env.Payload, &status))
	assert.Equal(t, "alice", status.Session)
	assert.Equal(t, "server", status.Mode)
	require.NotNil(t, status.Balances)
	assert.Equal(t, "500", status.Balances.Quote.String())
	assert.NotNil(t, status.OpenOrders)
	assert.Contains(t, string(env.Payload), `"open_orders":[]`)

	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	bob, _ := json.Marshal(domain.OrderEvent{Event: domain.EventOrderFilled, Order: domain.Order{ID: "b", SessionID: "bob"}})
	mine, _ := json.Marshal(domain.OrderEvent{Event: domain.EventOrderFilled, Order: domain.Order{ID: "a", SessionID: "alice"}})
	require.NoError(t, bus.Publish(ctx, domain.ChannelOrders, bob))
	require.NoError(t, bus.Publish(ctx, domain.ChannelOrders, mine))

	env = readEnvelope(t, alice)
	assert.Equal(t, domain.EventOrderFilled, env.Type)
	var ev domain.OrderEvent
	require.NoError(t, json.Unmarshal(env.Payload, &ev))
	assert.Equal(t, "a", ev.Order.ID, "other sessions' orders are not delivered")

	require.NoError(t, bus.Publish(ctx, domain.ChannelBookPrefix+"*", []byte(`{"event":"book_update","symbol":"BTCUSDT"}`)))
	env = readEnvelope(t, alice)
	assert.Equal(t, "book_update", env.Type)
	assert.Equal(t, "ch:book:BTCUSDT", env.Channel)
}

func TestHub_ConnectAfterRunReturns(t *testing.T) {
	hub := NewHub(newChanBus(), staticStatus{}, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- hub.Run(ctx) }()
	cancel()
	select {
	case err := <-ran:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	returned := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		defer close(returned)
		hub.HandleWS(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv, "late")
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleWS blocked after the hub stopped")
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, hub.clientCount())
}

func TestHub_DisconnectAfterRunReturns(t *testing.T) {
	hub := NewHub(newChanBus(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- hub.Run(ctx) }()

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	conn := dial(t, srv, "alice")
	env := readEnvelope(t, conn)
	assert.Equal(t, "session_status", env.Type)
	assert.Contains(t, string(env.Payload), `"open_orders":[]`)
	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-ran

	// The hub closed the client's queue; its pumps must wind down without
	// a live Run loop to unregister from.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)
	assert.Zero(t, hub.clientCount())
}

func TestFrame(t *testing.T) {
	msg, err := frame(domain.ChannelPrices, []byte(`{"event":"price_tick","symbol":"ETHUSDT"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelPrices, msg.channel)
	assert.Empty(t, msg.session)

	_, err = frame(domain.ChannelPrices, []byte(`not json`))
	assert.Error(t, err)
}

func TestClient_IsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{"prices": true, "ch:book:*": true}}
	assert.True(t, c.isSubscribed("prices"))
	assert.True(t, c.isSubscribed("ch:book:BTCUSDT"))
	assert.False(t, c.isSubscribed("orders"))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:book:*"}})
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:book:ETHUSDT"}})
	assert.False(t, c.isSubscribed("ch:book:BTCUSDT"))
	assert.True(t, c.isSubscribed("ch:book:ETHUSDT"))
}

func httpHandler(h *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.HandleWS)
	return mux
}
