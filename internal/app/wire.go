package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/papertrade/internal/blob/s3"
	"github.com/alanyoungcy/papertrade/internal/cache/redis"
	"github.com/alanyoungcy/papertrade/internal/config"
	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/notify"
	"github.com/alanyoungcy/papertrade/internal/platform/binance"
	"github.com/alanyoungcy/papertrade/internal/platform/coingecko"
	"github.com/alanyoungcy/papertrade/internal/server/handler"
	"github.com/alanyoungcy/papertrade/internal/store/postgres"
)

// Dependencies bundles every backend the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Postgres- and S3-backed fields are nil when those backends are disabled.
type Dependencies struct {
	// Upstream APIs
	Exchange *binance.Client
	Coins    *coingecko.Client

	// Caches
	PriceCache  domain.PriceCache
	DepthCache  domain.DepthCache
	PairCache   domain.PairCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Stores
	OrderStore    domain.OrderStore
	AuditStore    domain.AuditStore
	SearchHistory domain.SearchHistoryStore

	// Blob storage
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks maps backend names to their connectivity checks.
	HealthChecks map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Exchange: binance.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.Timeout.Duration),
		Coins: coingecko.NewClient(coingecko.Config{
			BaseURL:      cfg.CoinGecko.BaseURL,
			APIKey:       cfg.CoinGecko.APIKey,
			APIKeyHeader: cfg.CoinGecko.APIKeyHeader,
			Timeout:      cfg.CoinGecko.Timeout.Duration,
		}),
		HealthChecks: make(map[string]handler.Pinger),
	}

	// --- Redis (always required) ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.HealthChecks["redis"] = redisClient

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.DepthCache = redis.NewDepthCache(redisClient)
	deps.PairCache = redis.NewPairCache(redisClient, cfg.Market.PairTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
	deps.SearchHistory = redis.NewSearchHistory(redisClient, cfg.Redis.SearchHistoryLen)

	// --- PostgreSQL (optional) ---
	var pgClient *postgres.Client
	if cfg.Postgres.Enabled {
		pgClient, err = postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.HealthChecks["postgres"] = pgClient

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.SearchHistory = postgres.NewSearchHistoryStore(pool)
	}

	// --- S3 blob storage (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.HealthChecks["s3"] = s3Client

		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		// The archive job moves rows out of Postgres, so it needs both.
		if pgClient != nil {
			pool := pgClient.Pool()
			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(s3Client),
				reader,
				postgres.NewOrderStore(pool),
				postgres.NewAuditStore(pool),
			)
		} else {
			logger.WarnContext(ctx, "s3 enabled without postgres; archive job disabled")
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
