package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "eth", r.URL.Query().Get("query"))
		assert.Equal(t, "k", r.Header.Get(DefaultAPIKeyHeader))
		_, _ = w.Write([]byte(`{"coins":[
			{"id":"ethereum","name":"Ethereum","symbol":"ETH","market_cap_rank":2,"thumb":"t.png"},
			{"id":"ethereum-classic","name":"Ethereum Classic","symbol":"ETC","market_cap_rank":null,"thumb":""}
		],"exchanges":[]}`))
	})

	coins, err := c.Search(context.Background(), "eth")
	require.NoError(t, err)
	require.Len(t, coins, 2)
	assert.Equal(t, domain.Coin{ID: "ethereum", Symbol: "ETH", Name: "Ethereum", Thumb: "t.png", MarketCapRank: 2}, coins[0])
	assert.Zero(t, coins[1].MarketCapRank)
}

func TestClient_SimplePrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bitcoin,ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":50123.45},"ethereum":{"usd":3000}}`))
	})

	prices, err := c.SimplePrice(context.Background(), "bitcoin", "ethereum")
	require.NoError(t, err)
	assert.Equal(t, "50123.45", prices["bitcoin"].String())
	assert.Equal(t, "3000", prices["ethereum"].String())

	empty, err := c.SimplePrice(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClient_Coin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"bitcoin","symbol":"btc","name":"Bitcoin","market_cap_rank":1,
			"image":{"large":"l.png"},"description":{"en":"Digital gold."},
			"market_data":{"current_price":{"usd":50000},"market_cap":{"usd":1000000000},
			"total_volume":{"usd":2000},"price_change_percentage_1h_in_currency":{"usd":-0.25},
			"price_change_percentage_24h":1.5,"circulating_supply":19600000}}`))
	})

	d, err := c.Coin(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "Bitcoin", d.Name)
	assert.Equal(t, "l.png", d.Image)
	assert.Equal(t, "50000", d.CurrentPriceUSD.String())
	assert.Equal(t, "-0.25", d.PriceChangePercentage1h.String())
	assert.Equal(t, "1.5", d.PriceChangePercentage24h.String())
	assert.Equal(t, "Digital gold.", d.Description)
}

func TestClient_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"coin not found"}`))
	})

	_, err := c.Coin(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
