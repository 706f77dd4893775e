package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/server/handler"
	"github.com/alanyoungcy/papertrade/internal/server/middleware"
	"github.com/alanyoungcy/papertrade/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr        string
	CORSOrigins []string
	Auth        middleware.AuthConfig
	RateLimit   int           // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration // defaults to one second
	// TrustedProxies may set X-Forwarded-For and X-Real-IP; empty means
	// the peer address is always the client.
	TrustedProxies []netip.Prefix
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Search and Archive are optional.
type Handlers struct {
	Health  *handler.HealthHandler
	Trading *handler.TradingHandler
	Markets *handler.MarketHandler
	Search  *handler.SearchHandler
	Archive *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API of the simulated trading desk.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// publicPaths skip both the API key check and rate limiting.
var publicPaths = []string{"/api/health", "/metrics"}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (metrics, auth, rate limit, logging, client IP,
// CORS) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	registerRoutes(mux, handlers, wsHub)

	// RateLimit wraps Auth: the limiter is consulted before any key
	// derivation.
	var h http.Handler = middleware.Metrics(mux)
	auth := cfg.Auth
	auth.Public = append(auth.Public, publicPaths...)
	h = middleware.Auth(auth)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window, logger, publicPaths...)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.RealIP(cfg.TrustedProxies)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

func registerRoutes(mux *http.ServeMux, handlers Handlers, wsHub *ws.Hub) {
	// Health and metrics (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Ledger and orders.
	mux.HandleFunc("GET /api/balances", handlers.Trading.Balances)
	mux.HandleFunc("GET /api/orders", handlers.Trading.ListOpen)
	mux.HandleFunc("GET /api/orders/history", handlers.Trading.History)
	mux.HandleFunc("GET /api/orders/quote", handlers.Trading.Quote)
	mux.HandleFunc("GET /api/orders/events", handlers.Trading.Events)
	mux.HandleFunc("POST /api/orders", handlers.Trading.Confirm)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Trading.Cancel)
	mux.HandleFunc("DELETE /api/orders", handlers.Trading.CancelAll)

	// Market data.
	mux.HandleFunc("GET /api/markets/prices", handlers.Markets.Prices)
	mux.HandleFunc("GET /api/markets/{symbol}/price", handlers.Markets.Price)
	mux.HandleFunc("GET /api/markets/{symbol}/ticker", handlers.Markets.Ticker)
	mux.HandleFunc("GET /api/markets/{symbol}/pair", handlers.Markets.Pair)
	mux.HandleFunc("GET /api/markets/{symbol}/ladder", handlers.Markets.Ladder)
	mux.HandleFunc("GET /api/markets/{symbol}/klines", handlers.Markets.Klines)

	if handlers.Search != nil {
		mux.HandleFunc("GET /api/coins/search", handlers.Search.Search)
		mux.HandleFunc("GET /api/coins/{id}", handlers.Search.Coin)
		mux.HandleFunc("GET /api/search/history", handlers.Search.History)
		mux.HandleFunc("POST /api/search/history", handlers.Search.Select)
		mux.HandleFunc("DELETE /api/search/history", handlers.Search.Clear)
	}

	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archive.List)
		mux.HandleFunc("POST /api/archives/run", handlers.Archive.Run)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
