package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLockManager(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "cycle:eth-hedge", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("arb:lock:cycle:eth-hedge"))

	_, err = lm.Acquire(ctx, "cycle:eth-hedge", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	assert.False(t, mr.Exists("arb:lock:cycle:eth-hedge"))

	again, err := lm.Acquire(ctx, "cycle:eth-hedge", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockManager_ExpiredHolderCannotRelease(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	stale, err := lm.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	stale()
	assert.True(t, mr.Exists("arb:lock:k"), "old token must not delete the new holder's lock")
	fresh()
}

func TestRateLimiter_Allow(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c, 0, 0)

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "poll:alpha", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "call %d", i)
	}
	ok, err := rl.Allow(ctx, "poll:alpha", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "third call exceeds the budget")

	ok, err = rl.Allow(ctx, "poll:beta", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "budgets are per key")
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c, 1, time.Hour)

	require.NoError(t, rl.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBalanceCache(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	bc := NewBalanceCache(c)

	_, _, err := bc.GetBalances(ctx, "alpha")
	require.ErrorIs(t, err, domain.ErrNotFound)

	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, bc.SetBalances(ctx, "alpha", domain.Balances{
		"BTC": decimal.RequireFromString("1.25"),
		"ETH": decimal.RequireFromString("0.0001"),
	}, at))
	require.NoError(t, bc.SetBalances(ctx, "alpha", domain.Balances{
		"BTC": decimal.RequireFromString("1.5"),
	}, at.Add(time.Second)))

	got, ts, err := bc.GetBalances(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, at.Add(time.Second), ts)
	require.Len(t, got, 1, "a publish replaces the previous view")
	assert.Equal(t, "1.5", got.Free("BTC").String())
}

func TestLadderCache(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	lc := NewLadderCache(c, 10*time.Second)
	inst := domain.Instrument{Venue: "alpha", Base: "ETH", Quote: "BTC", PriceScale: 6, QuantityScale: 3}

	_, err := lc.GetLadder(ctx, inst)
	require.ErrorIs(t, err, domain.ErrNotFound)

	at := time.Now().UTC().Truncate(time.Millisecond)
	in := domain.Ladder{
		Instrument: inst,
		Asks:       []domain.Level{{Price: decimal.RequireFromString("0.0502"), Quantity: decimal.RequireFromString("3")}},
		Bids:       []domain.Level{{Price: decimal.RequireFromString("0.0501"), Quantity: decimal.RequireFromString("1.5")}},
		FetchedAt:  at,
	}
	require.NoError(t, lc.SetLadder(ctx, in))

	out, err := lc.GetDepth(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, inst, out.Instrument)
	assert.True(t, out.Asks[0].Price.Equal(in.Asks[0].Price))
	assert.True(t, out.Bids[0].Quantity.Equal(in.Bids[0].Quantity))
	assert.True(t, out.FetchedAt.Equal(at))

	keys, err := lc.Recent(ctx, at.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha:ETH_BTC"}, keys)

	mr.FastForward(11 * time.Second)
	_, err = lc.GetLadder(ctx, inst)
	require.ErrorIs(t, err, domain.ErrNotFound, "mirrored ladders expire")
}

func TestSignalBus_Stream(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	sb := NewSignalBus(c)

	msgs, err := sb.StreamRead(ctx, "s", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, sb.StreamAppend(ctx, "s", []byte(p)))
	}
	msgs, err = sb.StreamRead(ctx, "s", "0", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Payload))

	rest, err := sb.StreamRead(ctx, "s", msgs[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", string(rest[0].Payload))
}

func TestSignalBus_PubSub(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sb := NewSignalBus(c)

	ch, err := sb.Subscribe(ctx, "events:*")
	require.NoError(t, err)
	require.NoError(t, sb.Publish(ctx, "events:live", []byte("hello")))

	select {
	case got := <-ch:
		assert.Equal(t, "hello", string(got))
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestEventStream_Emit(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	sb := NewSignalBus(c)
	es := NewEventStream(sb, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	es.Emit(ctx, domain.Event{Type: domain.EventOrderFilled, Cycle: "eth-hedge", GroupID: "g1", Message: "filled"})

	msgs, err := sb.StreamRead(ctx, EventsStream, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var ev domain.Event
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &ev))
	assert.Equal(t, domain.EventOrderFilled, ev.Type)
	assert.Equal(t, "g1", ev.GroupID)
	assert.False(t, ev.At.IsZero())
}
