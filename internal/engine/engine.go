// Package engine runs the per-cycle scheduler loop: flush, sync, snapshot,
// evaluate, size, clamp, place, promote, sleep.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/arbitrage"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/executor"
	"github.com/alanyoungcy/arbengine/internal/feed"
	"github.com/alanyoungcy/arbengine/internal/metrics"
)

// Config tunes the loop. Zero values take the defaults below.
type Config struct {
	Cadence          time.Duration
	FailureBackoff   time.Duration
	SyncBalanceEvery uint64
	SyncOrdersEvery  uint64
	MaxPlanOrders    int
	// LockTTL is how long the per-cycle lock is held for one tick.
	LockTTL time.Duration
}

const (
	DefaultCadence          = 10 * time.Millisecond
	DefaultFailureBackoff   = 5 * time.Second
	DefaultSyncBalanceEvery = 2000
	DefaultSyncOrdersEvery  = 200
	DefaultMaxPlanOrders    = 5
	DefaultLockTTL          = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Cadence <= 0 {
		c.Cadence = DefaultCadence
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = DefaultFailureBackoff
	}
	if c.SyncBalanceEvery == 0 {
		c.SyncBalanceEvery = DefaultSyncBalanceEvery
	}
	if c.SyncOrdersEvery == 0 {
		c.SyncOrdersEvery = DefaultSyncOrdersEvery
	}
	if c.MaxPlanOrders <= 0 {
		c.MaxPlanOrders = DefaultMaxPlanOrders
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	return c
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Gate       *feed.SnapshotGate
	Lifecycle  *executor.Lifecycle
	Reconciler *executor.Reconciler
	Orders     domain.OrderStore
	Locks      domain.LockManager // optional
	Events     domain.EventSink   // optional
	Metrics    *metrics.Metrics   // optional
	Logger     *slog.Logger
}

// Status is a point-in-time view of an engine for operators.
type Status struct {
	Cycle      string    `json:"cycle"`
	Kind       string    `json:"kind"`
	Tick       uint64    `json:"tick"`
	Live       int       `json:"live_orders"`
	Plans      int       `json:"plan_orders"`
	Pending    int       `json:"pending_writes"`
	LastTickAt time.Time `json:"last_tick_at"`
	LastPlaced time.Time `json:"last_placed_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Engine owns one cycle definition and its state. Ticks never overlap.
type Engine struct {
	def    domain.CycleDefinition
	cfg    Config
	deps   Deps
	logger *slog.Logger
	state  *executor.State
	sleep  func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	status Status
}

// New creates an engine for def.
func New(def domain.CycleDefinition, cfg Config, deps Deps) *Engine {
	return &Engine{
		def:    def,
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: deps.Logger.With(slog.String("component", "engine"), slog.String("cycle", def.Name)),
		state:  executor.NewState(def.Instruments),
		sleep:  sleepCtx,
		status: Status{Cycle: def.Name, Kind: string(def.Kind)},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Name returns the cycle name.
func (e *Engine) Name() string { return e.def.Name }

// Status returns the latest published status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// stepError tags a tick failure with the step that produced it.
type stepError struct {
	step string
	err  error
}

func (s *stepError) Error() string { return s.step + ": " + s.err.Error() }
func (s *stepError) Unwrap() error { return s.err }

func fail(step string, err error) error { return &stepError{step: step, err: err} }

// Run recovers open legs and ticks until ctx is cancelled. A failing tick is
// logged and followed by the failure backoff instead of the cadence.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.deps.Lifecycle.Recover(ctx, e.state); err != nil {
		return fmt.Errorf("engine %s: %w", e.def.Name, err)
	}
	e.logger.Info("engine started",
		slog.String("kind", string(e.def.Kind)),
		slog.Duration("cadence", e.cfg.Cadence),
		slog.Duration("staleness", e.deps.Gate.Staleness()),
	)
	defer e.logger.Info("engine stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait := e.cfg.Cadence
		if err := e.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.reportFailure(ctx, err)
			wait = e.cfg.FailureBackoff
		}
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (e *Engine) reportFailure(ctx context.Context, err error) {
	step := "tick"
	var se *stepError
	if errors.As(err, &se) {
		step = se.step
	}
	e.deps.Metrics.TickFailed(e.def.Name, step)
	level := slog.LevelWarn
	if !executor.IsTransient(err) {
		level = slog.LevelError
	}
	e.logger.Log(ctx, level, "tick failed, backing off",
		slog.String("step", step),
		slog.String("error", err.Error()),
		slog.Duration("backoff", e.cfg.FailureBackoff),
	)
	if e.deps.Events != nil && level == slog.LevelError {
		e.deps.Events.Emit(ctx, domain.Event{
			Type: domain.EventTickFailed, Cycle: e.def.Name,
			Message: fmt.Sprintf("%s: %s failed: %v", e.def.Name, step, err),
			At:      time.Now().UTC(),
		})
	}
}

// Tick runs one scheduler iteration.
func (e *Engine) Tick(ctx context.Context) (err error) {
	st := e.state
	e.deps.Metrics.Tick(e.def.Name)
	defer func() {
		st.Tick++
		e.publish(err)
	}()

	if err := executor.Flush(ctx, e.deps.Orders, st); err != nil {
		return fail("flush", err)
	}

	if e.deps.Locks != nil {
		unlock, err := e.deps.Locks.Acquire(ctx, "arb:cycle:"+e.def.Name, e.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			e.logger.Debug("cycle lock held elsewhere, skipping tick")
			return nil
		}
		if err != nil {
			return fail("lock", err)
		}
		defer unlock()
	}

	if st.Tick%e.cfg.SyncBalanceEvery == 0 {
		if _, err := e.deps.Reconciler.SyncBalances(ctx, st, st.Venues()); err != nil {
			return fail("balances", err)
		}
	}
	if st.Tick%e.cfg.SyncOrdersEvery == 0 {
		changed, err := e.deps.Reconciler.Sync(ctx, st)
		if err != nil {
			return fail("reconcile", err)
		}
		if changed {
			if _, err := e.deps.Reconciler.SyncBalances(ctx, st, st.Venues()); err != nil {
				return fail("balances", err)
			}
		}
	}

	snap, err := e.deps.Gate.Fetch(ctx, e.def.Instruments)
	if err != nil {
		return fail("snapshot", err)
	}
	e.deps.Metrics.ObserveSnapshot(e.def.Name, snap.Duration)

	placed, err := e.trade(ctx, snap)
	if err != nil {
		return err
	}
	if !placed {
		changed, err := e.deps.Reconciler.Promote(ctx, st, snap)
		if err != nil {
			return fail("promote", err)
		}
		if changed {
			e.logger.Info("planned legs promoted", slog.Int("plans_left", st.Plans.Len()))
		}
	}
	return nil
}

// trade evaluates every direction and places each one that survives sizing
// and clamping.
func (e *Engine) trade(ctx context.Context, snap domain.Snapshot) (bool, error) {
	st := e.state
	evals, err := arbitrage.Evaluate(e.def, snap)
	if err != nil {
		return false, fail("evaluate", err)
	}
	placed := false
	for _, ev := range evals {
		coef, _ := ev.Coefficient.Float64()
		e.deps.Metrics.ObserveEvaluation(e.def.Name, string(ev.Cycle.Direction), coef, ev.Profitable())
		if !ev.Profitable() {
			continue
		}
		log := e.logger.With(slog.String("direction", string(ev.Cycle.Direction)))
		if st.Plans.Len() >= e.cfg.MaxPlanOrders {
			log.Debug("plan backlog full, not opening new cycles", slog.Int("plans", st.Plans.Len()))
			continue
		}
		sized, ok := arbitrage.Size(ev.Cycle, snap, e.def.MaxQuantity)
		if !ok {
			log.Debug("no profitable depth")
			continue
		}
		clamped, rej := arbitrage.Clamp(sized, st.Balances, e.def.MinQuantity)
		if rej != arbitrage.RejectNone {
			e.deps.Metrics.Rejected(e.def.Name, string(rej))
			log.Debug("sized cycle rejected", slog.String("reason", string(rej)))
			continue
		}

		p, err := e.deps.Lifecycle.PlaceCycle(ctx, st, clamped)
		if err != nil {
			return placed, fail("place", err)
		}
		if p.Outcome == domain.OutcomeRejected {
			continue
		}
		placed = true
		e.mu.Lock()
		e.status.LastPlaced = time.Now().UTC()
		e.mu.Unlock()

		prev, err := e.deps.Reconciler.SyncBalances(ctx, st, p.Venues())
		if err != nil {
			return placed, fail("balances", err)
		}
		if !anyDecreased(st.Balances, prev, p.Venues()) {
			// No visible reservation; ask the venues directly.
			if _, err := e.deps.Reconciler.PollOrders(ctx, st, p.Live()); err != nil {
				return placed, fail("poll", err)
			}
		}
	}
	return placed, nil
}

func anyDecreased(now, prev domain.BalanceSnapshot, venues []string) bool {
	for _, v := range venues {
		if now.Decreased(prev, v) {
			return true
		}
	}
	return false
}

func (e *Engine) publish(err error) {
	st := e.state
	e.deps.Metrics.SetBacklog(e.def.Name, st.Live.Len(), st.Plans.Len(), len(st.Pending))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Tick = st.Tick
	e.status.Live = st.Live.Len()
	e.status.Plans = st.Plans.Len()
	e.status.Pending = len(st.Pending)
	e.status.LastTickAt = time.Now().UTC()
	e.status.LastError = ""
	if err != nil {
		e.status.LastError = err.Error()
	}
}
