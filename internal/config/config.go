// Package config defines the top-level configuration for papertrade and
// provides validation helpers.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAPERTRADE_* environment variables.
type Config struct {
	Exchange  ExchangeConfig  `toml:"exchange"`
	CoinGecko CoinGeckoConfig `toml:"coingecko"`
	Trading   TradingConfig   `toml:"trading"`
	Feed      FeedConfig      `toml:"feed"`
	Market    MarketConfig    `toml:"market"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ExchangeConfig points at the Binance-compatible reference feed.
type ExchangeConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// CoinGeckoConfig holds the coin search API endpoint and optional key.
type CoinGeckoConfig struct {
	BaseURL      string   `toml:"base_url"`
	APIKey       string   `toml:"api_key"`
	APIKeyHeader string   `toml:"api_key_header"`
	Timeout      duration `toml:"timeout"`
}

// TradingConfig holds the simulated account parameters. Seed balances are
// strings so they decode without float rounding.
type TradingConfig struct {
	SeedQuote     string `toml:"seed_quote"`
	SeedBase      string `toml:"seed_base"`
	Scope         string `toml:"scope"`
	QuoteCurrency string `toml:"quote_currency"`
	LadderDepth   int    `toml:"ladder_depth"`
}

// FeedConfig controls the market-data poller.
type FeedConfig struct {
	Pairs            []string `toml:"pairs"`
	PriceInterval    duration `toml:"price_interval"`
	DepthInterval    duration `toml:"depth_interval"`
	MetadataInterval duration `toml:"metadata_interval"`
	DepthLimit       int      `toml:"depth_limit"`
}

// MarketConfig tunes the cache-through market service.
type MarketConfig struct {
	// MaxAge is how old a cached price or depth entry may be before the
	// exchange is queried again. Zero disables the check.
	MaxAge  duration `toml:"max_age"`
	PairTTL duration `toml:"pair_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr             string `toml:"addr"`
	Password         string `toml:"password"`
	DB               int    `toml:"db"`
	PoolSize         int    `toml:"pool_size"`
	MaxRetries       int    `toml:"max_retries"`
	TLSEnabled       bool   `toml:"tls_enabled"`
	StreamMaxLen     int64  `toml:"stream_max_len"`
	SearchHistoryLen int    `toml:"search_history_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig schedules the history export to S3.
type ArchiveConfig struct {
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	APIKeyHash  string   `toml:"api_key_hash"`
	APIKeySalt  string   `toml:"api_key_salt"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are believed.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// TrustedProxyPrefixes parses TrustedProxies. Bare addresses become single
// host prefixes.
func (s ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, e := range s.TrustedProxies {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Addr returns the listen address for the configured port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// SeedBalances parses the configured seed balances.
func (t TradingConfig) SeedBalances() (quote, base decimal.Decimal, err error) {
	quote, err = decimal.NewFromString(t.SeedQuote)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("trading: seed_quote %q: %w", t.SeedQuote, err)
	}
	base, err = decimal.NewFromString(t.SeedBase)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("trading: seed_base %q: %w", t.SeedBase, err)
	}
	return quote, base, nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL: "https://api.binance.com",
			Timeout: duration{10 * time.Second},
		},
		CoinGecko: CoinGeckoConfig{
			BaseURL:      "https://api.coingecko.com/api/v3",
			APIKeyHeader: "x-cg-demo-api-key",
			Timeout:      duration{10 * time.Second},
		},
		Trading: TradingConfig{
			SeedQuote:     "500",
			SeedBase:      "0.1",
			Scope:         "session",
			QuoteCurrency: "USDT",
			LadderDepth:   5,
		},
		Feed: FeedConfig{
			Pairs:            []string{"BTCUSDT", "ETHUSDT"},
			PriceInterval:    duration{time.Second},
			DepthInterval:    duration{time.Second},
			MetadataInterval: duration{5 * time.Minute},
			DepthLimit:       20,
		},
		Market: MarketConfig{
			MaxAge:  duration{5 * time.Second},
			PairTTL: duration{time.Hour},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "papertrade",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			PoolSize:         20,
			MaxRetries:       3,
			StreamMaxLen:     10_000,
			SearchHistoryLen: 50,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "papertrade-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Cron:          "0 3 1 * *",
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "order_cancelled"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"feed":   true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, feed, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.CoinGecko.BaseURL == "" {
		errs = append(errs, "coingecko: base_url must not be empty")
	}

	// Trading
	quote, base, err := c.Trading.SeedBalances()
	if err != nil {
		errs = append(errs, err.Error())
	} else if quote.IsNegative() || base.IsNegative() {
		errs = append(errs, "trading: seed balances must not be negative")
	}
	switch c.Trading.Scope {
	case "session", "pair":
	default:
		errs = append(errs, fmt.Sprintf("trading: scope must be session or pair, got %q", c.Trading.Scope))
	}
	if strings.TrimSpace(c.Trading.QuoteCurrency) == "" {
		errs = append(errs, "trading: quote_currency must not be empty")
	}
	if c.Trading.LadderDepth < 1 {
		errs = append(errs, "trading: ladder_depth must be >= 1")
	}

	// Feed
	if c.Mode == "feed" || c.Mode == "full" {
		if len(c.Feed.Pairs) == 0 {
			errs = append(errs, "feed: pairs must not be empty for mode "+c.Mode)
		}
		if c.Feed.PriceInterval.Duration <= 0 || c.Feed.DepthInterval.Duration <= 0 {
			errs = append(errs, "feed: price_interval and depth_interval must be > 0")
		}
	}
	if c.Feed.DepthLimit < 1 {
		errs = append(errs, "feed: depth_limit must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if strings.TrimSpace(c.Archive.Cron) == "" {
			errs = append(errs, "archive: cron must not be empty when s3 is enabled")
		}
	}

	// Server
	if c.Mode == "server" || c.Mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if (c.Server.APIKeyHash == "") != (c.Server.APIKeySalt == "") {
		errs = append(errs, "server: api_key_hash and api_key_salt must be set together")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
	}
	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, fmt.Sprintf("server: trusted_proxies: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
