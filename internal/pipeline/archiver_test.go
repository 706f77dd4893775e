package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

type fakeBlobArchiver struct {
	orderCutoff time.Time
	auditCalls  int
	orderErr    error
}

func (f *fakeBlobArchiver) ArchiveOrders(_ context.Context, before time.Time) (int64, error) {
	f.orderCutoff = before
	return 3, f.orderErr
}

func (f *fakeBlobArchiver) ArchiveAudit(context.Context, time.Time) (int64, error) {
	f.auditCalls++
	return 7, nil
}

type fakeLocks struct {
	held     bool
	released int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	return func() { l.released++ }, nil
}

func newTestArchiver(blob domain.Archiver, locks domain.LockManager) *Archiver {
	a := NewArchiver(blob, locks, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC) }
	return a
}

func TestArchiver_Run(t *testing.T) {
	blob := &fakeBlobArchiver{}
	locks := &fakeLocks{}

	res, err := newTestArchiver(blob, locks).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), res.Cutoff)
	assert.Equal(t, res.Cutoff, blob.orderCutoff)
	assert.Equal(t, int64(3), res.OrdersArchived)
	assert.Equal(t, int64(7), res.AuditArchived)
	assert.Equal(t, 1, locks.released)
}

func TestArchiver_SkipsWhenLockHeld(t *testing.T) {
	blob := &fakeBlobArchiver{}

	res, err := newTestArchiver(blob, &fakeLocks{held: true}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.True(t, blob.orderCutoff.IsZero())
}

func TestArchiver_StopsOnOrderFailure(t *testing.T) {
	blob := &fakeBlobArchiver{orderErr: errors.New("s3 down")}
	locks := &fakeLocks{}

	_, err := newTestArchiver(blob, locks).Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, blob.auditCalls)
	assert.Equal(t, 1, locks.released)
}

func TestArchiver_RunCronRejectsBadExpr(t *testing.T) {
	err := newTestArchiver(&fakeBlobArchiver{}, nil).RunCron(context.Background(), "bad")
	assert.Error(t, err)
}

func TestArchiver_RunCronStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestArchiver(&fakeBlobArchiver{}, nil).RunCron(ctx, "0 3 1 * *")
	assert.ErrorIs(t, err, context.Canceled)
}
