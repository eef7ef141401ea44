// Package executor drives arbitrage legs through their lifecycle: parallel
// placement, persistence, reconciliation against the venues and promotion of
// planned legs once the market allows.
package executor

import (
	"sort"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Backlog holds open legs of one status, grouped by instrument key. Each
// instrument's list is kept in CompareOrders order.
type Backlog struct {
	byKey map[string][]*domain.ArbitrageOrder
}

// NewBacklog returns an empty backlog.
func NewBacklog() *Backlog {
	return &Backlog{byKey: make(map[string][]*domain.ArbitrageOrder)}
}

// Add inserts o and re-sorts its instrument list.
func (b *Backlog) Add(o *domain.ArbitrageOrder) {
	key := o.InstrumentKey()
	list := append(b.byKey[key], o)
	sort.SliceStable(list, func(i, j int) bool { return CompareOrders(list[i], list[j]) < 0 })
	b.byKey[key] = list
}

// Remove drops the order with o's DataID. It reports whether one was found.
func (b *Backlog) Remove(o *domain.ArbitrageOrder) bool {
	key := o.InstrumentKey()
	list := b.byKey[key]
	for i, cur := range list {
		if cur.DataID == o.DataID {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(b.byKey, key)
			} else {
				b.byKey[key] = list
			}
			return true
		}
	}
	return false
}

// For returns a copy of the instrument's sorted list.
func (b *Backlog) For(key string) []*domain.ArbitrageOrder {
	return append([]*domain.ArbitrageOrder(nil), b.byKey[key]...)
}

// Keys returns the instrument keys with open legs, sorted.
func (b *Backlog) Keys() []string {
	keys := make([]string, 0, len(b.byKey))
	for k := range b.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the total number of legs.
func (b *Backlog) Len() int {
	n := 0
	for _, l := range b.byKey {
		n += len(l)
	}
	return n
}

// All returns every leg, instrument by instrument.
func (b *Backlog) All() []*domain.ArbitrageOrder {
	var out []*domain.ArbitrageOrder
	for _, k := range b.Keys() {
		out = append(out, b.byKey[k]...)
	}
	return out
}

// State is everything one cycle engine mutates between ticks. It is owned by
// a single goroutine; fan-out helpers gather into local slots and only then
// write here.
type State struct {
	// Instruments the cycle trades, by Instrument.Key.
	Instruments map[string]domain.Instrument
	Balances    domain.BalanceSnapshot
	Live        *Backlog // NEW legs resting on a venue
	Plans       *Backlog // PLAN legs waiting for promotion
	// Pending holds rows whose last write failed. They are retried before
	// anything else at the start of the next tick.
	Pending []*domain.ArbitrageOrder
	Tick    uint64
}

// NewState returns an empty state for the given instruments.
func NewState(insts []domain.Instrument) *State {
	m := make(map[string]domain.Instrument, len(insts))
	for _, i := range insts {
		m[i.Key()] = i
	}
	return &State{
		Instruments: m,
		Balances:    domain.BalanceSnapshot{},
		Live:        NewBacklog(),
		Plans:       NewBacklog(),
	}
}

// Enqueue records o for a later write, replacing an older entry for the same
// row.
func (s *State) Enqueue(o *domain.ArbitrageOrder) {
	for i, p := range s.Pending {
		if p.DataID == o.DataID {
			s.Pending[i] = o
			return
		}
	}
	s.Pending = append(s.Pending, o)
}

// Venues returns the distinct venues of the state's instruments, sorted.
func (s *State) Venues() []string {
	seen := make(map[string]bool)
	var out []string
	for _, inst := range s.Instruments {
		if !seen[inst.Venue] {
			seen[inst.Venue] = true
			out = append(out, inst.Venue)
		}
	}
	sort.Strings(out)
	return out
}
