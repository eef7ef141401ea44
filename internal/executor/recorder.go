package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/metrics"
)

// recorder persists order rows and publishes events for both the lifecycle
// manager and the reconciler.
type recorder struct {
	orders  domain.OrderStore
	events  domain.EventSink
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// save writes o. On failure the row is queued on st and the error returned;
// the in-memory state is still authoritative for this process.
func (r *recorder) save(ctx context.Context, st *State, o *domain.ArbitrageOrder) error {
	if err := r.orders.SaveOrUpdate(ctx, o); err != nil {
		st.Enqueue(o)
		return fmt.Errorf("executor: save order %s: %w", o.DataID, err)
	}
	return nil
}

func (r *recorder) emit(ctx context.Context, ev domain.Event) {
	if r.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = r.now()
	}
	r.events.Emit(ctx, ev)
}

// Flush retries every queued write. Rows that fail again stay queued and the
// first error is returned.
func Flush(ctx context.Context, store domain.OrderStore, st *State) error {
	if len(st.Pending) == 0 {
		return nil
	}
	pending := st.Pending
	st.Pending = nil
	var firstErr error
	for _, o := range pending {
		if err := store.SaveOrUpdate(ctx, o); err != nil {
			st.Pending = append(st.Pending, o)
			if firstErr == nil {
				firstErr = fmt.Errorf("executor: flush order %s: %w", o.DataID, err)
			}
		}
	}
	return firstErr
}

func orderFields(o *domain.ArbitrageOrder) map[string]string {
	return map[string]string{
		"data_id":    o.DataID,
		"instrument": o.InstrumentKey(),
		"side":       string(o.Side),
		"price":      o.Price.String(),
		"quantity":   o.Quantity.String(),
		"filled":     o.FilledQuantity.String(),
		"status":     string(o.Status),
	}
}
