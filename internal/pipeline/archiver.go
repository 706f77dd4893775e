// Package pipeline runs the scheduled background jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// ArchivedRowsTotal counts rows moved to cold storage by kind.
var ArchivedRowsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "papertrade_archived_rows_total",
		Help: "Rows moved from Postgres to object storage",
	},
	[]string{"kind"},
)

const archiveLockKey = "archive"

// Archiver moves order history and audit entries older than the retention
// window to object storage. Runs are guarded by a distributed lock so only
// one instance archives at a time.
type Archiver struct {
	blobArchiver  domain.Archiver
	locks         domain.LockManager
	retentionDays int
	lockTTL       time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver. locks may be nil for a single instance.
func NewArchiver(blobArchiver domain.Archiver, locks domain.LockManager, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		locks:         locks,
		retentionDays: retentionDays,
		lockTTL:       30 * time.Minute,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// RunResult reports what one archive run moved.
type RunResult struct {
	Cutoff         time.Time `json:"cutoff"`
	OrdersArchived int64     `json:"orders_archived"`
	AuditArchived  int64     `json:"audit_archived"`
	Skipped        bool      `json:"skipped"`
}

// Run executes a single archive run with cutoff now minus the retention
// window. When another instance holds the lock the run is skipped.
func (a *Archiver) Run(ctx context.Context) (RunResult, error) {
	cutoff := a.now().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	res := RunResult{Cutoff: cutoff}

	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, a.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive run skipped, lock held elsewhere")
			res.Skipped = true
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("pipeline: acquire archive lock: %w", err)
		}
		defer unlock()
	}

	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	var err error
	res.OrdersArchived, err = a.blobArchiver.ArchiveOrders(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("pipeline: archiving orders before %v: %w", cutoff, err)
	}
	ArchivedRowsTotal.WithLabelValues("orders").Add(float64(res.OrdersArchived))

	res.AuditArchived, err = a.blobArchiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("pipeline: archiving audit log before %v: %w", cutoff, err)
	}
	ArchivedRowsTotal.WithLabelValues("audit").Add(float64(res.AuditArchived))

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("orders_archived", res.OrdersArchived),
		slog.Int64("audit_archived", res.AuditArchived),
	)
	return res, nil
}

// RunCron runs the archiver on a cron schedule until the context is
// cancelled. cronExpr is a standard 5-field expression:
// "minute hour day-of-month month day-of-week".
//
// Example: "0 3 1 * *" runs at 3:00 AM on the 1st of every month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	schedule, err := ParseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := schedule.Next(a.now())
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}

		wait := next.Sub(a.now())
		a.logger.Debug("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
