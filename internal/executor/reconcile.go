package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/metrics"
	"github.com/alanyoungcy/arbengine/internal/numeric"
)

// ReconcilerConfig wires a Reconciler.
type ReconcilerConfig struct {
	Venues   domain.Venues
	Orders   domain.OrderStore
	Balances domain.BalanceCache // optional
	Limiter  domain.RateLimiter  // optional
	Events   domain.EventSink    // optional
	Metrics  *metrics.Metrics    // optional
	Logger   *slog.Logger

	// PollLimit status polls are allowed per venue per PollWindow.
	PollLimit  int
	PollWindow time.Duration
	// ReplanCanceled re-enters the unfilled part of a canceled leg as a
	// fresh PLAN row.
	ReplanCanceled bool
	// CancelStaleAfter withdraws live legs older than this. Zero disables.
	CancelStaleAfter time.Duration
}

// Reconciler keeps the backlogs in step with what the venues report.
type Reconciler struct {
	recorder
	venues           domain.Venues
	balanceCache     domain.BalanceCache
	limiter          domain.RateLimiter
	pollLimit        int
	pollWindow       time.Duration
	replanCanceled   bool
	cancelStaleAfter time.Duration
	newID            func() string
}

// NewReconciler creates a reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	window := cfg.PollWindow
	if window <= 0 {
		window = time.Second
	}
	return &Reconciler{
		recorder: recorder{
			orders:  cfg.Orders,
			events:  cfg.Events,
			metrics: cfg.Metrics,
			logger:  cfg.Logger.With(slog.String("component", "reconciler")),
			now:     func() time.Time { return time.Now().UTC() },
		},
		venues:           cfg.Venues,
		balanceCache:     cfg.Balances,
		limiter:          cfg.Limiter,
		pollLimit:        cfg.PollLimit,
		pollWindow:       window,
		replanCanceled:   cfg.ReplanCanceled,
		cancelStaleAfter: cfg.CancelStaleAfter,
		newID:            uuid.NewString,
	}
}

// SyncBalances fetches free balances from venues in parallel and replaces
// them in st. It returns the previous snapshot so callers can diff.
func (r *Reconciler) SyncBalances(ctx context.Context, st *State, venues []string) (domain.BalanceSnapshot, error) {
	fetched := make([]domain.Balances, len(venues))
	eg, ectx := errgroup.WithContext(ctx)
	for i, name := range venues {
		ex, err := r.venues.Get(name)
		if err != nil {
			return nil, fmt.Errorf("executor: balances %s: %w", name, err)
		}
		eg.Go(func() error {
			b, err := ex.GetAccount(ectx)
			if err != nil {
				r.metrics.VenueError(name, "account")
				return fmt.Errorf("%s: %w", name, err)
			}
			fetched[i] = b
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("executor: balances: %w", err)
	}

	prev := st.Balances.Clone()
	now := r.now()
	for i, name := range venues {
		st.Balances[name] = fetched[i]
		if r.balanceCache != nil {
			if err := r.balanceCache.SetBalances(ctx, name, fetched[i], now); err != nil {
				r.logger.Warn("balance cache write failed", slog.String("venue", name), slog.String("error", err.Error()))
			}
		}
	}
	return prev, nil
}

// allowPoll consults the per-venue poll budget. A limiter failure does not
// block polling.
func (r *Reconciler) allowPoll(ctx context.Context, venue string) bool {
	if r.limiter == nil || r.pollLimit <= 0 {
		return true
	}
	ok, err := r.limiter.Allow(ctx, "poll:"+venue, r.pollLimit, r.pollWindow)
	if err != nil {
		r.logger.Warn("poll limiter unavailable", slog.String("venue", venue), slog.String("error", err.Error()))
		return true
	}
	if !ok {
		r.metrics.PollRateLimited(venue)
	}
	return ok
}

// Sync polls live legs instrument by instrument. Buys are walked from the
// front and sells from the back; each walk stops at the first leg the venue
// reports unchanged. It then withdraws stale legs when configured.
func (r *Reconciler) Sync(ctx context.Context, st *State) (bool, error) {
	changed := false
	for _, key := range st.Live.Keys() {
		list := st.Live.For(key)
		for _, walk := range [][]*domain.ArbitrageOrder{buysFromFront(list), sellsFromBack(list)} {
			for _, o := range walk {
				moved, err := r.poll(ctx, st, o)
				if moved {
					changed = true
				}
				if err != nil {
					return changed, err
				}
				if !moved {
					break
				}
			}
		}
	}

	stale, err := r.cancelStale(ctx, st)
	return changed || stale, err
}

// PollOrders polls exactly the given legs regardless of ordering. Used right
// after placement when balances give no sign of a fill.
func (r *Reconciler) PollOrders(ctx context.Context, st *State, orders []*domain.ArbitrageOrder) (bool, error) {
	changed := false
	for _, o := range orders {
		moved, err := r.poll(ctx, st, o)
		changed = changed || moved
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// poll fetches one leg's status and applies it. moved is false when the
// venue reports nothing new or the poll budget is spent.
func (r *Reconciler) poll(ctx context.Context, st *State, o *domain.ArbitrageOrder) (bool, error) {
	if o.Status != domain.OrderStatusNew {
		return false, nil
	}
	inst, ok := st.Instruments[o.InstrumentKey()]
	if !ok {
		return false, fmt.Errorf("executor: order %s: instrument %s not tracked", o.DataID, o.InstrumentKey())
	}
	ex, err := r.venues.Get(o.Venue)
	if err != nil {
		return false, fmt.Errorf("executor: order %s: %w", o.DataID, err)
	}
	if !r.allowPoll(ctx, o.Venue) {
		return false, nil
	}
	info, err := ex.GetOrder(ctx, inst, o.OrderID)
	if err != nil {
		r.metrics.VenueError(o.Venue, "get_order")
		return false, fmt.Errorf("executor: poll order %s: %w", o.DataID, err)
	}
	return r.apply(ctx, st, inst, o, info)
}

// apply folds a venue report into o. Terminal legs leave the live backlog;
// canceled legs may be re-planned.
func (r *Reconciler) apply(ctx context.Context, st *State, inst domain.Instrument, o *domain.ArbitrageOrder, info *domain.OrderInfo) (bool, error) {
	if info == nil {
		r.logger.Warn("venue does not know live order",
			slog.String("data_id", o.DataID),
			slog.String("order_id", o.OrderID),
			slog.String("instrument", o.InstrumentKey()),
		)
		return false, nil
	}
	if info.Status == o.Status && info.FilledQuantity.Equal(o.FilledQuantity) {
		return false, nil
	}

	now := r.now()
	switch info.Status {
	case domain.OrderStatusNew:
		o.ModifiedAt = now
	case domain.OrderStatusFilled, domain.OrderStatusCanceled:
		if err := o.Transition(info.Status, now); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("executor: order %s: venue reported %q", o.DataID, info.Status)
	}
	o.FilledQuantity = info.FilledQuantity
	if info.FilledQuantity.IsPositive() && info.AvgPrice.IsPositive() {
		avg := numeric.Round(numeric.TowardLoss, info.AvgPrice, inst.PriceScale, o.Side == domain.SideBuy)
		o.AvgPrice = decimal.NewNullDecimal(avg)
	}

	saveErr := r.save(ctx, st, o)
	if !o.Status.Terminal() {
		return true, saveErr
	}

	st.Live.Remove(o)
	r.metrics.OrderFinished(o.Venue, string(o.Status))
	evType := domain.EventOrderFilled
	if o.Status == domain.OrderStatusCanceled {
		evType = domain.EventOrderCanceled
	}
	r.emit(ctx, domain.Event{
		Type:    evType,
		Cycle:   o.Cycle,
		GroupID: o.GroupID,
		Message: fmt.Sprintf("%s %s %s %s @ %s", o.InstrumentKey(), o.Side, o.Status, o.FilledQuantity, o.Price),
		Fields:  orderFields(o),
	})
	r.logger.Info("leg finished",
		slog.String("data_id", o.DataID),
		slog.String("instrument", o.InstrumentKey()),
		slog.String("status", string(o.Status)),
		slog.String("filled", o.FilledQuantity.String()),
	)

	if o.Status == domain.OrderStatusCanceled && r.replanCanceled {
		if err := r.replan(ctx, st, inst, o); err != nil && saveErr == nil {
			saveErr = err
		}
	}
	return true, saveErr
}

// replan writes the unfilled part of a canceled leg as a new PLAN row in the
// same group.
func (r *Reconciler) replan(ctx context.Context, st *State, inst domain.Instrument, o *domain.ArbitrageOrder) error {
	qty := numeric.Round(numeric.TowardSafety, o.Remaining(), inst.QuantityScale, false)
	if !qty.IsPositive() {
		return nil
	}
	now := r.now()
	plan := &domain.ArbitrageOrder{
		DataID:    r.newID(),
		GroupID:   o.GroupID,
		Cycle:     o.Cycle,
		Direction: o.Direction,
		Venue:     o.Venue,
		Base:      o.Base,
		Quote:     o.Quote,
		Side:      o.Side,
		Price:     o.Price,
		Quantity:  qty,
		FeeRate:   o.FeeRate,
		CreatedAt: now,
	}
	if err := plan.Transition(domain.OrderStatusPlan, now); err != nil {
		return err
	}
	st.Plans.Add(plan)
	return r.save(ctx, st, plan)
}

// cancelStale withdraws live legs older than the threshold and applies
// their final status straight away.
func (r *Reconciler) cancelStale(ctx context.Context, st *State) (bool, error) {
	if r.cancelStaleAfter <= 0 {
		return false, nil
	}
	cutoff := r.now().Add(-r.cancelStaleAfter)
	changed := false
	for _, o := range st.Live.All() {
		if !o.CreatedAt.Before(cutoff) {
			continue
		}
		inst := st.Instruments[o.InstrumentKey()]
		ex, err := r.venues.Get(o.Venue)
		if err != nil {
			return changed, fmt.Errorf("executor: cancel %s: %w", o.DataID, err)
		}
		ok, err := ex.Cancel(ctx, inst, o.OrderID)
		if err != nil {
			r.metrics.VenueError(o.Venue, "cancel")
			return changed, fmt.Errorf("executor: cancel %s: %w", o.DataID, err)
		}
		if !ok {
			r.logger.Debug("stale cancel not confirmed", slog.String("data_id", o.DataID))
		}
		info, err := ex.GetOrder(ctx, inst, o.OrderID)
		if err != nil {
			return changed, fmt.Errorf("executor: poll canceled %s: %w", o.DataID, err)
		}
		moved, err := r.apply(ctx, st, inst, o, info)
		changed = changed || moved
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// Promote submits PLAN legs whose price the book now reaches and whose
// balance is available. Buys are tried from the front and sells from the
// back; each walk stops at the first ineligible or unaccepted leg.
func (r *Reconciler) Promote(ctx context.Context, st *State, snap domain.Snapshot) (bool, error) {
	changed := false
	for _, key := range st.Plans.Keys() {
		inst, ok := st.Instruments[key]
		if !ok {
			continue
		}
		ladder, ok := snap.Ladder(inst)
		if !ok {
			continue
		}
		ex, err := r.venues.Get(inst.Venue)
		if err != nil {
			return changed, fmt.Errorf("executor: promote %s: %w", key, err)
		}
		list := st.Plans.For(key)
		for _, walk := range [][]*domain.ArbitrageOrder{buysFromFront(list), sellsFromBack(list)} {
			for _, o := range walk {
				if !eligible(o, inst, ladder, st.Balances) {
					break
				}
				ack, err := ex.PlaceOrder(ctx, o.Side, inst, o.Quantity, o.Price)
				if err != nil {
					r.metrics.VenueError(inst.Venue, "place")
					return changed, fmt.Errorf("executor: promote %s: %w", o.DataID, err)
				}
				if ack == nil {
					break
				}
				if err := o.Transition(domain.OrderStatusNew, r.now()); err != nil {
					return changed, err
				}
				o.OrderID = ack.OrderID
				st.Plans.Remove(o)
				st.Live.Add(o)
				spend, amount := spendOf(o, inst)
				st.Balances.Debit(inst.Venue, spend, amount)
				changed = true
				r.metrics.OrderPlaced(inst.Venue, string(domain.OrderStatusNew))
				r.emit(ctx, domain.Event{
					Type: domain.EventPlanPromoted, Cycle: o.Cycle, GroupID: o.GroupID,
					Message: fmt.Sprintf("%s %s promoted @ %s", o.InstrumentKey(), o.Side, o.Price),
					Fields:  orderFields(o),
				})
				if err := r.save(ctx, st, o); err != nil {
					return changed, err
				}
			}
		}
	}
	return changed, nil
}

func spendOf(o *domain.ArbitrageOrder, inst domain.Instrument) (string, decimal.Decimal) {
	if o.Side == domain.SideBuy {
		return inst.Quote, numeric.Mul(o.Quantity, o.Price)
	}
	return inst.Base, o.Quantity
}

// eligible reports whether a plan would cross the book and is funded.
func eligible(o *domain.ArbitrageOrder, inst domain.Instrument, l domain.Ladder, bal domain.BalanceSnapshot) bool {
	spend, amount := spendOf(o, inst)
	if bal.Free(inst.Venue, spend).LessThan(amount) {
		return false
	}
	switch o.Side {
	case domain.SideBuy:
		ask, ok := l.BestAsk()
		return ok && ask.Price.LessThanOrEqual(o.Price)
	case domain.SideSell:
		bid, ok := l.BestBid()
		return ok && bid.Price.GreaterThanOrEqual(o.Price)
	default:
		return false
	}
}

// IsTransient reports whether err came from a venue or store and the tick
// should simply be retried after the backoff.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, domain.ErrInvalidTransition)
}
