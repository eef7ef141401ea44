// Package memory provides in-process implementations of the store
// interfaces, used by paper mode when no database is configured and by tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// OrderStore keeps order rows in a map keyed by DataID.
type OrderStore struct {
	mu      sync.Mutex
	rows    map[string]domain.ArbitrageOrder
	saves   int
	failErr error
	failN   int
}

// NewOrderStore returns an empty store.
func NewOrderStore() *OrderStore {
	return &OrderStore{rows: make(map[string]domain.ArbitrageOrder)}
}

// FailNext makes the next n writes return err.
func (s *OrderStore) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failN, s.failErr = n, err
}

// Saves returns the number of successful writes.
func (s *OrderStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Get returns the stored row for dataID.
func (s *OrderStore) Get(dataID string) (domain.ArbitrageOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.rows[dataID]
	return o, ok
}

// SaveOrUpdate stores a copy of o.
func (s *OrderStore) SaveOrUpdate(_ context.Context, o *domain.ArbitrageOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return s.failErr
	}
	s.rows[o.DataID] = *o
	s.saves++
	return nil
}

// Find returns copies of the rows matching filter, oldest first.
func (s *OrderStore) Find(_ context.Context, f domain.OrderFilter) ([]domain.ArbitrageOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ArbitrageOrder
	for _, o := range s.rows {
		if matches(&o, f) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].DataID < out[j].DataID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(o *domain.ArbitrageOrder, f domain.OrderFilter) bool {
	if len(f.Venues) > 0 && !slices.Contains(f.Venues, o.Venue) {
		return false
	}
	if len(f.InstrumentKeys) > 0 && !slices.Contains(f.InstrumentKeys, o.InstrumentKey()) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, o.Status) {
		return false
	}
	if f.GroupID != "" && f.GroupID != o.GroupID {
		return false
	}
	if f.ModifiedBefore != nil && !o.ModifiedAt.Before(*f.ModifiedBefore) {
		return false
	}
	return true
}

var _ domain.OrderStore = (*OrderStore)(nil)
