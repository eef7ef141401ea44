package notify

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Fanout emits every event to each sink in order.
type Fanout []domain.EventSink

// Emit implements domain.EventSink.
func (f Fanout) Emit(ctx context.Context, ev domain.Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

// AuditSink records events in the audit log under "event.<type>".
type AuditSink struct {
	store  domain.AuditStore
	logger *slog.Logger
}

// NewAuditSink wraps store.
func NewAuditSink(store domain.AuditStore, logger *slog.Logger) *AuditSink {
	return &AuditSink{store: store, logger: logger.With(slog.String("component", "audit_sink"))}
}

// Emit implements domain.EventSink. Store failures are logged only.
func (a *AuditSink) Emit(ctx context.Context, ev domain.Event) {
	detail := map[string]any{
		"cycle":   ev.Cycle,
		"message": ev.Message,
		"at":      ev.At,
	}
	if ev.GroupID != "" {
		detail["group_id"] = ev.GroupID
	}
	for k, v := range ev.Fields {
		detail[k] = v
	}
	if err := a.store.Log(context.WithoutCancel(ctx), "event."+string(ev.Type), detail); err != nil {
		a.logger.Warn("audit log write failed", slog.String("type", string(ev.Type)), slog.String("error", err.Error()))
	}
}

var (
	_ domain.EventSink = Fanout(nil)
	_ domain.EventSink = (*AuditSink)(nil)
)
