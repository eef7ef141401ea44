package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/store/memory"
)

type captureWriter struct {
	objects map[string][]byte
	types   map[string]string
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (w *captureWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	w.types[path] = contentType
	return nil
}

func (w *captureWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "multipart")
}

func leg(id string, status domain.OrderStatus, modified time.Time) *domain.ArbitrageOrder {
	return &domain.ArbitrageOrder{
		DataID: id, GroupID: "g1", Cycle: "eth-hedge", Venue: "alpha", Base: "ETH", Quote: "BTC",
		Side: domain.SideBuy, Price: decimal.RequireFromString("0.05"), Quantity: decimal.NewFromInt(1),
		Status: status, CreatedAt: modified, ModifiedAt: modified,
	}
}

func TestArchiver_ArchiveOrders(t *testing.T) {
	ctx := context.Background()
	orders := memory.NewOrderStore()
	audit := memory.NewAuditStore()
	w := newCaptureWriter()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	a := NewArchiver(w, orders, audit, logger)

	t0 := time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
	for _, o := range []*domain.ArbitrageOrder{
		leg("filled-old", domain.OrderStatusFilled, t0),
		leg("canceled-old", domain.OrderStatusCanceled, t0.Add(time.Minute)),
		leg("new-old", domain.OrderStatusNew, t0),
		leg("filled-recent", domain.OrderStatusFilled, t0.Add(48*time.Hour)),
	} {
		require.NoError(t, orders.SaveOrUpdate(ctx, o))
	}

	cut := t0.Add(24 * time.Hour)
	n, err := a.ArchiveOrders(ctx, cut)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	const path = "archive/orders/2026-04-11.jsonl"
	require.Contains(t, w.objects, path)
	assert.Equal(t, "application/x-ndjson", w.types[path])

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(w.objects[path]))
	for sc.Scan() {
		var o domain.ArbitrageOrder
		require.NoError(t, json.Unmarshal(sc.Bytes(), &o))
		ids = append(ids, o.DataID)
	}
	assert.Equal(t, []string{"filled-old", "canceled-old"}, ids)

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archive.orders", entries[0].Event)
	assert.Equal(t, path, entries[0].Detail["path"])
}

func TestArchiver_NothingToArchive(t *testing.T) {
	w := newCaptureWriter()
	a := NewArchiver(w, memory.NewOrderStore(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := a.ArchiveOrders(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
}

func TestNew_RequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}
