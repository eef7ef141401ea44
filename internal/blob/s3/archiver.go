package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 16 * 1024 * 1024

// Archiver implements domain.Archiver: it snapshots FILLED and CANCELED legs
// last modified before a cutoff into one JSONL object. Rows stay in the
// primary store; they are the recovery source and audit trail.
type Archiver struct {
	writer domain.BlobWriter
	orders domain.OrderStore
	audit  domain.AuditStore // optional
	logger *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, orders domain.OrderStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		orders: orders,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOrders uploads terminal legs modified before the cutoff to
// archive/orders/YYYY-MM-DD.jsonl and returns how many were written.
func (a *Archiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	cut := before.UTC()
	rows, err := a.orders.Find(ctx, domain.OrderFilter{
		Statuses:       []domain.OrderStatus{domain.OrderStatusFilled, domain.OrderStatusCanceled},
		ModifiedBefore: &cut,
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	if len(rows) == 0 {
		a.logger.Info("nothing to archive", slog.Time("before", cut))
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders marshal: %w", err)
	}

	path := archivePath("orders", cut)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders upload: %w", err)
	}

	count := int64(len(rows))
	a.logger.Info("orders archived", slog.String("path", path), slog.Int64("count", count), slog.Int("bytes", len(buf)))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.orders", map[string]any{
			"path":   path,
			"count":  count,
			"before": cut.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive orders audit: %w", err)
		}
	}
	return count, nil
}

// archivePath partitions archives by cutoff day.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01-02"))
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
