package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

type memBlob struct {
	objects   map[string][]byte
	multipart int
	putErr    error
}

func newMemBlob() *memBlob { return &memBlob{objects: map[string][]byte{}} }

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multipart++
	return m.Put(ctx, path, data, jsonlContentType)
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type fakeOrders struct {
	rows    []domain.Order
	deleted int
}

func (f *fakeOrders) ListBefore(_ context.Context, before time.Time) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.rows {
		if o.CreatedAt.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var kept []domain.Order
	var n int64
	for _, o := range f.rows {
		if o.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, o)
	}
	f.rows = kept
	f.deleted += int(n)
	return n, nil
}

type fakeAudit struct {
	entries []domain.AuditEntry
}

func (f *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	f.entries = append(f.entries, domain.AuditEntry{Event: event, Detail: detail, CreatedAt: time.Now()})
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return f.entries, nil
}

func (f *fakeAudit) ListBefore(_ context.Context, before time.Time) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, e := range f.entries {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAudit) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var kept []domain.AuditEntry
	var n int64
	for _, e := range f.entries {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return n, nil
}

func order(id string, at time.Time) domain.Order {
	return domain.Order{
		ID: id, SessionID: "s1", Symbol: "BTCUSDT",
		Direction: domain.DirectionBuy, Kind: domain.OrderKindMarket,
		Quantity: decimal.NewFromInt(100), Price: decimal.NewFromInt(50000),
		Status: domain.OrderStatusSettled, CreatedAt: at,
	}
}

func TestArchiveOrders_UploadsAuditsAndPurges(t *testing.T) {
	blob := newMemBlob()
	cutoff := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	orders := &fakeOrders{rows: []domain.Order{
		order("a", cutoff.Add(-48*time.Hour)),
		order("b", cutoff.Add(-time.Hour)),
		order("c", cutoff.Add(time.Hour)),
	}}
	audit := &fakeAudit{}
	arc := NewArchiver(blob, blob, orders, audit)

	n, err := arc.ArchiveOrders(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	data := blob.objects["archive/orders/2024-03.jsonl"]
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"a"`)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "archive.orders", audit.entries[0].Event)
	assert.Equal(t, int64(2), audit.entries[0].Detail["count"])

	require.Len(t, orders.rows, 1)
	assert.Equal(t, "c", orders.rows[0].ID)
}

func TestArchiveOrders_AppendsToExistingMonth(t *testing.T) {
	blob := newMemBlob()
	blob.objects["archive/orders/2024-03.jsonl"] = []byte(`{"id":"old"}`)
	cutoff := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	orders := &fakeOrders{rows: []domain.Order{order("new", cutoff.Add(-time.Hour))}}
	arc := NewArchiver(blob, blob, orders, &fakeAudit{})

	_, err := arc.ArchiveOrders(context.Background(), cutoff)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(blob.objects["archive/orders/2024-03.jsonl"])), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"id":"old"}`, lines[0])
	assert.Contains(t, lines[1], `"id":"new"`)
}

func TestArchiveOrders_NothingToDo(t *testing.T) {
	blob := newMemBlob()
	audit := &fakeAudit{}
	arc := NewArchiver(blob, blob, &fakeOrders{}, audit)

	n, err := arc.ArchiveOrders(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blob.objects)
	assert.Empty(t, audit.entries)
}

func TestArchiveOrders_UploadFailureKeepsRows(t *testing.T) {
	blob := newMemBlob()
	blob.putErr = errors.New("boom")
	cutoff := time.Now()
	orders := &fakeOrders{rows: []domain.Order{order("a", cutoff.Add(-time.Hour))}}
	arc := NewArchiver(blob, blob, orders, &fakeAudit{})

	_, err := arc.ArchiveOrders(context.Background(), cutoff)
	require.Error(t, err)
	assert.Len(t, orders.rows, 1)
}

func TestArchiveAudit(t *testing.T) {
	blob := newMemBlob()
	cutoff := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	audit := &fakeAudit{entries: []domain.AuditEntry{
		{ID: 1, Event: "order.filled", CreatedAt: cutoff.Add(-time.Hour)},
	}}
	arc := NewArchiver(blob, blob, &fakeOrders{}, audit)

	n, err := arc.ArchiveAudit(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, string(blob.objects["archive/audit/2024-05.jsonl"]), `"event":"order.filled"`)

	// Only the archiver's own entry survives.
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "archive.audit", audit.entries[0].Event)
}

func TestArchivePath(t *testing.T) {
	at := time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "archive/orders/2025-01.jsonl", archivePath("orders", at))
}

func TestNormaliseEndpoint_Archiver(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	assert.Equal(t, "https://localhost:9000", normaliseEndpoint("localhost:9000", true))
}
