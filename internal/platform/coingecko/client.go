// Package coingecko is a REST client for the CoinGecko API, used for coin
// search, USD spot prices and coin detail screens.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// DefaultBaseURL is the public CoinGecko API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// DefaultAPIKeyHeader is the header the demo tier expects the key in.
const DefaultAPIKeyHeader = "x-cg-demo-api-key"

// Config configures a Client.
type Config struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
}

// Client is the CoinGecko REST client.
type Client struct {
	baseURL    string
	apiKey     string
	keyHeader  string
	httpClient *http.Client
}

// NewClient creates a new CoinGecko client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = DefaultAPIKeyHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		keyHeader: cfg.APIKeyHeader,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Search returns the coins matching query in CoinGecko's relevance order.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Coin, error) {
	params := url.Values{}
	params.Set("query", query)

	body, err := c.doGet(ctx, "/search?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("coingecko: search %q: %w", query, err)
	}

	var resp APISearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("coingecko: decode search: %w", err)
	}
	coins := make([]domain.Coin, 0, len(resp.Coins))
	for _, ac := range resp.Coins {
		coins = append(coins, ac.ToDomain())
	}
	return coins, nil
}

// SimplePrice returns the USD price of each requested coin id. Ids CoinGecko
// does not know are absent from the result.
func (c *Client) SimplePrice(ctx context.Context, ids ...string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")

	body, err := c.doGet(ctx, "/simple/price?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("coingecko: simple price: %w", err)
	}

	var resp APISimplePrice
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("coingecko: decode simple price: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(resp))
	for id, quotes := range resp {
		if usd, ok := quotes["usd"]; ok {
			out[id] = usd
		}
	}
	return out, nil
}

// Coin returns the detail record of a coin id.
func (c *Client) Coin(ctx context.Context, id string) (domain.CoinDetail, error) {
	params := url.Values{}
	for _, k := range []string{"localization", "tickers", "community_data", "developer_data"} {
		params.Set(k, "false")
	}

	body, err := c.doGet(ctx, "/coins/"+url.PathEscape(id)+"?"+params.Encode())
	if err != nil {
		return domain.CoinDetail{}, fmt.Errorf("coingecko: coin %s: %w", id, err)
	}

	var d APICoinDetail
	if err := json.Unmarshal(body, &d); err != nil {
		return domain.CoinDetail{}, fmt.Errorf("coingecko: decode coin: %w", err)
	}
	return d.ToDomain(), nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.keyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
