package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// ExecutionStore keeps cycle execution summaries in insertion order.
type ExecutionStore struct {
	mu    sync.Mutex
	execs []domain.CycleExecution
}

// NewExecutionStore returns an empty store.
func NewExecutionStore() *ExecutionStore { return &ExecutionStore{} }

func (s *ExecutionStore) Create(_ context.Context, exec domain.CycleExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, exec)
	return nil
}

func (s *ExecutionStore) GetByGroupID(_ context.Context, groupID string) (domain.CycleExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.execs {
		if e.GroupID == groupID {
			return e, nil
		}
	}
	return domain.CycleExecution{}, domain.ErrNotFound
}

// ListRecent returns the newest executions first. An empty cycle matches all.
func (s *ExecutionStore) ListRecent(_ context.Context, cycle string, limit int) ([]domain.CycleExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CycleExecution
	for i := len(s.execs) - 1; i >= 0; i-- {
		if cycle != "" && s.execs[i].Cycle != cycle {
			continue
		}
		out = append(out, s.execs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// AuditStore is an append-only in-memory audit log.
type AuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewAuditStore returns an empty log.
func NewAuditStore() *AuditStore { return &AuditStore{} }

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns entries newest first within opts.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	skipped := 0
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

var (
	_ domain.ExecutionStore = (*ExecutionStore)(nil)
	_ domain.AuditStore     = (*AuditStore)(nil)
)
