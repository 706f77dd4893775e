// Package app wires the caches, stores, blob storage, upstream clients and
// notifiers for papertrade and runs the configured mode until its context
// ends.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/papertrade/internal/config"
)

// App owns the configuration and the teardown of whatever Run wired.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

type modeFunc func(*App, context.Context, *Dependencies) error

var modes = map[string]modeFunc{
	"server": (*App).ServerMode,
	"feed":   (*App).FeedMode,
	"full":   (*App).FullMode,
}

// Run wires the dependencies and blocks in the configured mode. Cancelling
// ctx is a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	run, ok := modes[mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	a.logger.InfoContext(ctx, "starting papertrade",
		slog.String("mode", mode),
		slog.String("ledger_scope", a.cfg.Trading.Scope),
		slog.Bool("order_history", deps.OrderStore != nil),
		slog.Bool("archive", deps.Archiver != nil),
		slog.Bool("notifications", deps.Notifier != nil),
		slog.Int("feed_pairs", len(a.cfg.Feed.Pairs)),
	)
	return run(a, ctx, deps)
}

// Close releases everything in reverse order. Later calls do nothing.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
