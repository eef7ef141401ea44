package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists arbitrage legs. It is the engine's DAO.
type OrderStore interface {
	Find(ctx context.Context, filter OrderFilter) ([]ArbitrageOrder, error)
	SaveOrUpdate(ctx context.Context, order *ArbitrageOrder) error
}

// ExecutionStore persists per-group cycle execution summaries.
type ExecutionStore interface {
	Create(ctx context.Context, exec CycleExecution) error
	GetByGroupID(ctx context.Context, groupID string) (CycleExecution, error)
	ListRecent(ctx context.Context, cycle string, limit int) ([]CycleExecution, error)
}

// AuditEntry is an immutable log record.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore provides append-only audit logging.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
