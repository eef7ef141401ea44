package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/arbitrage"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/metrics"
)

// LifecycleConfig wires a Lifecycle.
type LifecycleConfig struct {
	Venues     domain.Venues
	Orders     domain.OrderStore
	Executions domain.ExecutionStore // optional
	Events     domain.EventSink      // optional
	Metrics    *metrics.Metrics      // optional
	Logger     *slog.Logger
}

// Lifecycle places sized cycles and records the resulting legs.
type Lifecycle struct {
	recorder
	venues     domain.Venues
	executions domain.ExecutionStore
	newID      func() string
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(cfg LifecycleConfig) *Lifecycle {
	return &Lifecycle{
		recorder: recorder{
			orders:  cfg.Orders,
			events:  cfg.Events,
			metrics: cfg.Metrics,
			logger:  cfg.Logger.With(slog.String("component", "lifecycle")),
			now:     func() time.Time { return time.Now().UTC() },
		},
		venues:     cfg.Venues,
		executions: cfg.Executions,
		newID:      uuid.NewString,
	}
}

// Placement is the result of placing one cycle group.
type Placement struct {
	GroupID string
	Outcome domain.PlacementOutcome
	Orders  []*domain.ArbitrageOrder
}

// Live returns the legs the venues accepted.
func (p Placement) Live() []*domain.ArbitrageOrder {
	var out []*domain.ArbitrageOrder
	for _, o := range p.Orders {
		if o.Status == domain.OrderStatusNew {
			out = append(out, o)
		}
	}
	return out
}

// Venues returns the distinct venues the group touched.
func (p Placement) Venues() []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range p.Orders {
		if !seen[o.Venue] {
			seen[o.Venue] = true
			out = append(out, o.Venue)
		}
	}
	return out
}

type placeResult struct {
	ack *domain.OrderAck
	err error
}

// PlaceCycle submits every leg of sc at once. Legs the venue accepts become
// NEW; legs that error or come back without an ack become PLAN. When no leg
// is accepted nothing is persisted. Otherwise every leg is written under one
// group ID and added to the backlogs.
//
// A returned error means some rows could not be persisted; they are queued on
// st and the placement is still reflected in st.
func (l *Lifecycle) PlaceCycle(ctx context.Context, st *State, sc arbitrage.SizedCycle) (Placement, error) {
	groupID := strings.ReplaceAll(l.newID(), "-", "")
	log := l.logger.With(
		slog.String("cycle", sc.Cycle.Name),
		slog.String("direction", string(sc.Cycle.Direction)),
		slog.String("group_id", groupID),
	)

	results := make([]placeResult, len(sc.Legs))
	var eg errgroup.Group
	for i, leg := range sc.Legs {
		inst := leg.Leg.Instrument
		ex, err := l.venues.Get(inst.Venue)
		if err != nil {
			results[i] = placeResult{err: err}
			continue
		}
		// Placement failures are per leg; one must not cancel its siblings.
		eg.Go(func() error {
			ack, err := ex.PlaceOrder(ctx, leg.Leg.Side, inst, leg.Quantity, leg.Price)
			results[i] = placeResult{ack: ack, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	now := l.now()
	p := Placement{GroupID: groupID, Orders: make([]*domain.ArbitrageOrder, len(sc.Legs))}
	accepted := 0
	for i, leg := range sc.Legs {
		inst := leg.Leg.Instrument
		o := &domain.ArbitrageOrder{
			DataID:    l.newID(),
			GroupID:   groupID,
			Cycle:     sc.Cycle.Name,
			Direction: sc.Cycle.Direction,
			Venue:     inst.Venue,
			Base:      inst.Base,
			Quote:     inst.Quote,
			Side:      leg.Leg.Side,
			Price:     leg.Price,
			Quantity:  leg.Quantity,
			FeeRate:   inst.Fee(leg.Leg.Side),
			CreatedAt: now,
		}
		to := domain.OrderStatusPlan
		res := results[i]
		switch {
		case res.err != nil:
			log.Warn("leg placement failed",
				slog.String("instrument", inst.Key()),
				slog.String("side", string(leg.Leg.Side)),
				slog.String("error", res.err.Error()),
			)
			l.metrics.VenueError(inst.Venue, "place")
		case res.ack == nil:
			log.Info("leg not accepted by venue",
				slog.String("instrument", inst.Key()),
				slog.String("side", string(leg.Leg.Side)),
			)
		default:
			to = domain.OrderStatusNew
			o.OrderID = res.ack.OrderID
			accepted++
		}
		if err := o.Transition(to, now); err != nil {
			return Placement{}, err
		}
		l.metrics.OrderPlaced(inst.Venue, string(to))
		p.Orders[i] = o
	}

	switch accepted {
	case 0:
		p.Outcome = domain.OutcomeRejected
	case len(sc.Legs):
		p.Outcome = domain.OutcomePlaced
	default:
		p.Outcome = domain.OutcomePartial
	}
	l.metrics.CyclePlaced(sc.Cycle.Name, string(p.Outcome))

	if p.Outcome == domain.OutcomeRejected {
		log.Info("cycle rejected on every leg, nothing recorded")
		return p, nil
	}

	var saveErr error
	for _, o := range p.Orders {
		if err := l.save(ctx, st, o); err != nil && saveErr == nil {
			saveErr = err
		}
		if o.Status == domain.OrderStatusNew {
			st.Live.Add(o)
		} else {
			st.Plans.Add(o)
		}
	}

	l.recordExecution(ctx, sc, p, accepted, log)

	evType := domain.EventCyclePlaced
	if p.Outcome == domain.OutcomePartial {
		evType = domain.EventCyclePartial
	}
	l.emit(ctx, domain.Event{
		Type:    evType,
		Cycle:   sc.Cycle.Name,
		GroupID: groupID,
		Message: fmt.Sprintf("%s %s: %d/%d legs live, coefficient %s",
			sc.Cycle.Name, sc.Cycle.Direction, accepted, len(sc.Legs), sc.Coefficient.StringFixed(6)),
		Fields: map[string]string{
			"direction":   string(sc.Cycle.Direction),
			"coefficient": sc.Coefficient.String(),
			"outcome":     string(p.Outcome),
		},
	})
	log.Info("cycle placed",
		slog.String("outcome", string(p.Outcome)),
		slog.Int("accepted", accepted),
		slog.Int("legs", len(sc.Legs)),
		slog.String("coefficient", sc.Coefficient.String()),
	)
	return p, saveErr
}

func (l *Lifecycle) recordExecution(ctx context.Context, sc arbitrage.SizedCycle, p Placement, accepted int, log *slog.Logger) {
	if l.executions == nil {
		return
	}
	exec := domain.CycleExecution{
		GroupID:     p.GroupID,
		Cycle:       sc.Cycle.Name,
		Kind:        sc.Cycle.Kind,
		Direction:   sc.Cycle.Direction,
		Coefficient: sc.Coefficient,
		LegCount:    len(sc.Legs),
		PlacedCount: accepted,
		Outcome:     p.Outcome,
		CreatedAt:   l.now(),
	}
	if err := l.executions.Create(ctx, exec); err != nil {
		log.Warn("cycle execution record failed", slog.String("error", err.Error()))
	}
}

// Recover loads the open legs of st's instruments from the store into the
// backlogs. It is called once before the first tick.
func (l *Lifecycle) Recover(ctx context.Context, st *State) error {
	keys := make([]string, 0, len(st.Instruments))
	for k := range st.Instruments {
		keys = append(keys, k)
	}
	rows, err := l.orders.Find(ctx, domain.OrderFilter{
		InstrumentKeys: keys,
		Statuses:       []domain.OrderStatus{domain.OrderStatusPlan, domain.OrderStatusNew},
	})
	if err != nil {
		return fmt.Errorf("executor: recover orders: %w", err)
	}
	for i := range rows {
		o := &rows[i]
		switch o.Status {
		case domain.OrderStatusNew:
			st.Live.Add(o)
		case domain.OrderStatusPlan:
			st.Plans.Add(o)
		}
	}
	l.logger.Info("open legs recovered",
		slog.Int("live", st.Live.Len()),
		slog.Int("plans", st.Plans.Len()),
	)
	return nil
}
