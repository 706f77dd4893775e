package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PAPERTRADE_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PAPERTRADE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "PAPERTRADE_EXCHANGE_BASE_URL")
	setDuration(&cfg.Exchange.Timeout, "PAPERTRADE_EXCHANGE_TIMEOUT")

	// ── CoinGecko ──
	setStr(&cfg.CoinGecko.BaseURL, "PAPERTRADE_COINGECKO_BASE_URL")
	setStr(&cfg.CoinGecko.APIKey, "PAPERTRADE_COINGECKO_API_KEY")
	setStr(&cfg.CoinGecko.APIKeyHeader, "PAPERTRADE_COINGECKO_API_KEY_HEADER")
	setDuration(&cfg.CoinGecko.Timeout, "PAPERTRADE_COINGECKO_TIMEOUT")

	// ── Trading ──
	setStr(&cfg.Trading.SeedQuote, "PAPERTRADE_TRADING_SEED_QUOTE")
	setStr(&cfg.Trading.SeedBase, "PAPERTRADE_TRADING_SEED_BASE")
	setStr(&cfg.Trading.Scope, "PAPERTRADE_TRADING_SCOPE")
	setStr(&cfg.Trading.QuoteCurrency, "PAPERTRADE_TRADING_QUOTE_CURRENCY")
	setInt(&cfg.Trading.LadderDepth, "PAPERTRADE_TRADING_LADDER_DEPTH")

	// ── Feed ──
	setStringSlice(&cfg.Feed.Pairs, "PAPERTRADE_FEED_PAIRS")
	setDuration(&cfg.Feed.PriceInterval, "PAPERTRADE_FEED_PRICE_INTERVAL")
	setDuration(&cfg.Feed.DepthInterval, "PAPERTRADE_FEED_DEPTH_INTERVAL")
	setDuration(&cfg.Feed.MetadataInterval, "PAPERTRADE_FEED_METADATA_INTERVAL")
	setInt(&cfg.Feed.DepthLimit, "PAPERTRADE_FEED_DEPTH_LIMIT")

	// ── Market ──
	setDuration(&cfg.Market.MaxAge, "PAPERTRADE_MARKET_MAX_AGE")
	setDuration(&cfg.Market.PairTTL, "PAPERTRADE_MARKET_PAIR_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "PAPERTRADE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "PAPERTRADE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PAPERTRADE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PAPERTRADE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PAPERTRADE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PAPERTRADE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PAPERTRADE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PAPERTRADE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PAPERTRADE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PAPERTRADE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PAPERTRADE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PAPERTRADE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAPERTRADE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAPERTRADE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAPERTRADE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAPERTRADE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAPERTRADE_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "PAPERTRADE_REDIS_STREAM_MAX_LEN")
	setInt(&cfg.Redis.SearchHistoryLen, "PAPERTRADE_REDIS_SEARCH_HISTORY_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PAPERTRADE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PAPERTRADE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAPERTRADE_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAPERTRADE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "PAPERTRADE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "PAPERTRADE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAPERTRADE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAPERTRADE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAPERTRADE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setStr(&cfg.Archive.Cron, "PAPERTRADE_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "PAPERTRADE_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "PAPERTRADE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PAPERTRADE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PAPERTRADE_SERVER_API_KEY")
	setStr(&cfg.Server.APIKeyHash, "PAPERTRADE_SERVER_API_KEY_HASH")
	setStr(&cfg.Server.APIKeySalt, "PAPERTRADE_SERVER_API_KEY_SALT")
	setInt(&cfg.Server.RateLimit, "PAPERTRADE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PAPERTRADE_SERVER_RATE_WINDOW")
	setStringSlice(&cfg.Server.TrustedProxies, "PAPERTRADE_SERVER_TRUSTED_PROXIES")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PAPERTRADE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAPERTRADE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAPERTRADE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PAPERTRADE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PAPERTRADE_MODE")
	setStr(&cfg.LogLevel, "PAPERTRADE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
