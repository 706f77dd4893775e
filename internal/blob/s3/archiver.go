package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// jsonlContentType is the content type of every archive object.
const jsonlContentType = "application/x-ndjson"

// multipartThreshold is the payload size above which archives are uploaded
// with the multipart manager.
const multipartThreshold = minPartSize

// OrderArchiveStore is the slice of the order store the archiver needs.
type OrderArchiveStore interface {
	// ListBefore returns all orders created strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Order, error)
	// DeleteBefore removes the orders ListBefore returned.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditArchiveStore is the slice of the audit store the archiver needs. The
// archiver also records its own runs through Log.
type AuditArchiveStore interface {
	domain.AuditStore
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver. It serializes old rows to JSONL,
// uploads them to archive/{kind}/YYYY-MM.jsonl (merging with an object that
// already exists for that month), records the run in the audit log, and only
// then deletes the archived rows from the primary store.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	orders OrderArchiveStore
	audit  AuditArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	orders OrderArchiveStore,
	audit AuditArchiveStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		orders: orders,
		audit:  audit,
	}
}

// ArchiveOrders moves orders created before the cutoff to
// archive/orders/YYYY-MM.jsonl and returns how many were archived.
func (a *ArchiveImpl) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.orders.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	return archive(ctx, a, "orders", before, orders, a.orders.DeleteBefore)
}

// ArchiveAudit moves audit entries created before the cutoff to
// archive/audit/YYYY-MM.jsonl and returns how many were archived.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	return archive(ctx, a, "audit", before, entries, a.audit.DeleteBefore)
}

func archive[T any](
	ctx context.Context,
	a *ArchiveImpl,
	kind string,
	before time.Time,
	records []T,
	purge func(context.Context, time.Time) (int64, error),
) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	existing, err := a.readExisting(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s read existing: %w", kind, err)
	}
	payload := append(existing, buf...)

	if int64(len(payload)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(payload), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(payload), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}

	if _, err := purge(ctx, before); err != nil {
		return count, fmt.Errorf("s3blob: archive %s purge: %w", kind, err)
	}
	return count, nil
}

// readExisting returns the current object at path, or nil when there is none.
func (a *ArchiveImpl) readExisting(ctx context.Context, path string) ([]byte, error) {
	ok, err := a.reader.Exists(ctx, path)
	if err != nil || !ok {
		return nil, err
	}
	rc, err := a.reader.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if n := len(data); n > 0 && data[n-1] != '\n' {
		data = append(data, '\n')
	}
	return data, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/orders/2025-01.jsonl
//	archive/audit/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
