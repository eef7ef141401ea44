package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

func row(id, venue string, status domain.OrderStatus, at time.Time) *domain.ArbitrageOrder {
	return &domain.ArbitrageOrder{
		DataID: id, GroupID: "g1", Venue: venue, Base: "ETH", Quote: "BTC",
		Side: domain.SideBuy, Price: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(1),
		Status: status, CreatedAt: at, ModifiedAt: at,
	}
}

func TestOrderStore_FindFilters(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveOrUpdate(ctx, row("b", "alpha", domain.OrderStatusNew, t0.Add(time.Minute))))
	require.NoError(t, s.SaveOrUpdate(ctx, row("a", "alpha", domain.OrderStatusPlan, t0)))
	require.NoError(t, s.SaveOrUpdate(ctx, row("c", "beta", domain.OrderStatusFilled, t0)))

	open, err := s.Find(ctx, domain.OrderFilter{
		InstrumentKeys: []string{"alpha:ETH_BTC"},
		Statuses:       []domain.OrderStatus{domain.OrderStatusPlan, domain.OrderStatusNew},
	})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "a", open[0].DataID)
	assert.Equal(t, "b", open[1].DataID)

	cut := t0.Add(30 * time.Second)
	old, err := s.Find(ctx, domain.OrderFilter{ModifiedBefore: &cut, Venues: []string{"beta"}})
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "c", old[0].DataID)

	limited, err := s.Find(ctx, domain.OrderFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOrderStore_SaveCopiesAndFails(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore()
	o := row("a", "alpha", domain.OrderStatusNew, time.Now())
	require.NoError(t, s.SaveOrUpdate(ctx, o))

	o.Status = domain.OrderStatusFilled
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusNew, got.Status, "store keeps its own copy")

	boom := errors.New("connection reset")
	s.FailNext(1, boom)
	require.ErrorIs(t, s.SaveOrUpdate(ctx, o), boom)
	require.NoError(t, s.SaveOrUpdate(ctx, o))
	assert.Equal(t, 2, s.Saves())
}

func TestExecutionStore(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	require.NoError(t, s.Create(ctx, domain.CycleExecution{GroupID: "g1", Cycle: "x"}))
	require.NoError(t, s.Create(ctx, domain.CycleExecution{GroupID: "g2", Cycle: "y"}))
	require.NoError(t, s.Create(ctx, domain.CycleExecution{GroupID: "g3", Cycle: "x"}))

	got, err := s.GetByGroupID(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, "y", got.Cycle)

	_, err = s.GetByGroupID(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)

	recent, err := s.ListRecent(ctx, "x", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "g3", recent[0].GroupID)
}

func TestAuditStore(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()
	for _, ev := range []string{"one", "two", "three"} {
		require.NoError(t, s.Log(ctx, ev, map[string]any{"n": ev}))
	}
	got, err := s.List(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Event)
	assert.Equal(t, "one", got[1].Event)
}
