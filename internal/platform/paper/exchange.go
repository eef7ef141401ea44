// Package paper implements an in-memory simulated venue. It keeps its own
// ladders and balances, reserves funds on placement and fills resting orders
// whenever the book crosses them. Depth can optionally be sourced from a real
// venue's public market data.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Operation names a call that can be made to fail with FailNext.
type Operation string

const (
	OpDepth   Operation = "depth"
	OpAccount Operation = "account"
	OpPlace   Operation = "place"
	OpGet     Operation = "get"
	OpCancel  Operation = "cancel"
)

type order struct {
	seq      int
	id       string
	inst     domain.Instrument
	side     domain.Side
	price    decimal.Decimal
	quantity decimal.Decimal
	filled   decimal.Decimal
	status   domain.OrderStatus
	placedAt time.Time
}

func (o *order) remaining() decimal.Decimal { return o.quantity.Sub(o.filled) }

// Exchange is a simulated venue. All methods are safe for concurrent use.
type Exchange struct {
	name   string
	source domain.DepthSource
	logger *slog.Logger

	mu         sync.Mutex
	ladders    map[string]domain.Ladder // by symbol
	balances   domain.Balances
	orders     map[string]*order
	seq        int
	depthDelay time.Duration
	rejectNext int
	failNext   map[Operation]error
	calls      map[Operation]int
}

// New creates a paper venue named name holding the given free balances.
func New(name string, balances domain.Balances, logger *slog.Logger) *Exchange {
	if balances == nil {
		balances = domain.Balances{}
	}
	return &Exchange{
		name:     name,
		logger:   logger.With(slog.String("component", "paper"), slog.String("venue", name)),
		ladders:  make(map[string]domain.Ladder),
		balances: balances.Clone(),
		orders:   make(map[string]*order),
		failNext: make(map[Operation]error),
		calls:    make(map[Operation]int),
	}
}

// WithDepthSource makes GetDepth read from src instead of the local ladders.
// Fetched ladders replace the local book and are matched against resting
// orders.
func (e *Exchange) WithDepthSource(src domain.DepthSource) *Exchange {
	e.source = src
	return e
}

// Name returns the venue name.
func (e *Exchange) Name() string { return e.name }

// SetLadder replaces the book for l.Instrument and matches resting orders.
func (e *Exchange) SetLadder(l domain.Ladder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ladders[l.Instrument.Symbol()] = l.Clone()
	e.match(l.Instrument.Symbol())
}

// SetBalance overwrites the free amount of currency.
func (e *Exchange) SetBalance(currency string, amount decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[currency] = amount
}

// SetDepthDelay makes every GetDepth call block for d or until ctx ends.
func (e *Exchange) SetDepthDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.depthDelay = d
}

// RejectNext makes the next n placements return a nil ack.
func (e *Exchange) RejectNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectNext = n
}

// FailNext makes the next call of op return err.
func (e *Exchange) FailNext(op Operation, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext[op] = err
}

// Calls returns how many times op has been invoked.
func (e *Exchange) Calls(op Operation) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// Fill completes a resting order at its limit price.
func (e *Exchange) Fill(orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	if o.status != domain.OrderStatusNew {
		return fmt.Errorf("paper: order %s is %s", orderID, o.status)
	}
	e.execute(o, o.remaining())
	return nil
}

// CancelExternally withdraws an order as if an operator did it on the venue.
func (e *Exchange) CancelExternally(orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	e.cancel(o)
	return nil
}

// OpenOrders returns the IDs of orders still resting, oldest first.
func (e *Exchange) OpenOrders() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*order
	for _, o := range e.orders {
		if o.status == domain.OrderStatusNew {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	ids := make([]string, len(out))
	for i, o := range out {
		ids[i] = o.id
	}
	return ids
}

func (e *Exchange) enter(op Operation) error {
	e.calls[op]++
	if err, ok := e.failNext[op]; ok {
		delete(e.failNext, op)
		return err
	}
	return nil
}

// GetDepth returns the current ladder for inst.
func (e *Exchange) GetDepth(ctx context.Context, inst domain.Instrument) (domain.Ladder, error) {
	e.mu.Lock()
	err := e.enter(OpDepth)
	delay := e.depthDelay
	e.mu.Unlock()
	if err != nil {
		return domain.Ladder{}, err
	}

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return domain.Ladder{}, ctx.Err()
		case <-t.C:
		}
	}

	if e.source != nil {
		l, err := e.source.GetDepth(ctx, inst)
		if err != nil {
			return domain.Ladder{}, fmt.Errorf("paper: depth source: %w", err)
		}
		l.Instrument = inst
		e.SetLadder(l)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.ladders[inst.Symbol()]
	if !ok {
		return domain.Ladder{}, fmt.Errorf("paper: %s: %w", inst.Symbol(), domain.ErrNotFound)
	}
	out := l.Clone()
	out.Instrument = inst
	out.FetchedAt = time.Now()
	return out, nil
}

// GetAccount returns the free balances.
func (e *Exchange) GetAccount(_ context.Context) (domain.Balances, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpAccount); err != nil {
		return nil, err
	}
	return e.balances.Clone(), nil
}

// PlaceOrder reserves funds and rests a limit order, filling whatever part of
// it crosses the book. It returns a nil ack when the order is rejected for
// insufficient funds or by RejectNext.
func (e *Exchange) PlaceOrder(_ context.Context, side domain.Side, inst domain.Instrument, quantity, price decimal.Decimal) (*domain.OrderAck, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpPlace); err != nil {
		return nil, err
	}
	if e.rejectNext > 0 {
		e.rejectNext--
		return nil, nil
	}
	if !quantity.IsPositive() || !price.IsPositive() {
		return nil, nil
	}

	spend := inst.Spends(side)
	cost := quantity
	if side == domain.SideBuy {
		cost = quantity.Mul(price)
	}
	if e.balances.Free(spend).LessThan(cost) {
		e.logger.Debug("paper order rejected: insufficient funds",
			slog.String("currency", spend),
			slog.String("need", cost.String()),
			slog.String("free", e.balances.Free(spend).String()),
		)
		return nil, nil
	}
	e.balances[spend] = e.balances.Free(spend).Sub(cost)

	e.seq++
	o := &order{
		seq:      e.seq,
		id:       e.name + "-" + strconv.Itoa(e.seq),
		inst:     inst,
		side:     side,
		price:    price,
		quantity: quantity,
		filled:   decimal.Zero,
		status:   domain.OrderStatusNew,
		placedAt: time.Now(),
	}
	e.orders[o.id] = o
	e.match(inst.Symbol())
	return &domain.OrderAck{OrderID: o.id, Status: domain.OrderStatusNew}, nil
}

// GetOrder returns the order's state, nil when the ID is unknown.
func (e *Exchange) GetOrder(_ context.Context, _ domain.Instrument, orderID string) (*domain.OrderInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpGet); err != nil {
		return nil, err
	}
	o, ok := e.orders[orderID]
	if !ok {
		return nil, nil
	}
	info := &domain.OrderInfo{
		OrderID:        o.id,
		Status:         o.status,
		FilledQuantity: o.filled,
	}
	if o.filled.IsPositive() {
		info.AvgPrice = o.price
	}
	return info, nil
}

// Cancel withdraws a resting order and releases its reservation.
func (e *Exchange) Cancel(_ context.Context, _ domain.Instrument, orderID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpCancel); err != nil {
		return false, err
	}
	o, ok := e.orders[orderID]
	if !ok || o.status != domain.OrderStatusNew {
		return false, nil
	}
	e.cancel(o)
	return true, nil
}

// cancel must be called with e.mu held.
func (e *Exchange) cancel(o *order) {
	if o.status != domain.OrderStatusNew {
		return
	}
	refund := o.remaining()
	if o.side == domain.SideBuy {
		refund = refund.Mul(o.price)
	}
	spend := o.inst.Spends(o.side)
	e.balances[spend] = e.balances.Free(spend).Add(refund)
	o.status = domain.OrderStatusCanceled
}

// execute fills qty of o at its limit price. Must be called with e.mu held.
func (e *Exchange) execute(o *order, qty decimal.Decimal) {
	if !qty.IsPositive() {
		return
	}
	fee := o.inst.Fee(o.side)
	keep := decimal.NewFromInt(1).Sub(fee)
	gets := o.inst.Receives(o.side)
	proceeds := qty.Mul(keep)
	if o.side == domain.SideSell {
		proceeds = qty.Mul(o.price).Mul(keep)
	}
	e.balances[gets] = e.balances.Free(gets).Add(proceeds)
	o.filled = o.filled.Add(qty)
	if o.remaining().IsZero() {
		o.status = domain.OrderStatusFilled
	}
}

// match fills resting orders on symbol against the book, consuming the
// crossed levels. Must be called with e.mu held.
func (e *Exchange) match(symbol string) {
	l, ok := e.ladders[symbol]
	if !ok {
		return
	}
	resting := make([]*order, 0)
	for _, o := range e.orders {
		if o.status == domain.OrderStatusNew && o.inst.Symbol() == symbol {
			resting = append(resting, o)
		}
	}
	sort.Slice(resting, func(i, j int) bool { return resting[i].seq < resting[j].seq })

	for _, o := range resting {
		levels := l.Side(o.side)
		for len(*levels) > 0 && o.remaining().IsPositive() {
			top := &(*levels)[0]
			crosses := top.Price.LessThanOrEqual(o.price)
			if o.side == domain.SideSell {
				crosses = top.Price.GreaterThanOrEqual(o.price)
			}
			if !crosses {
				break
			}
			take := decimal.Min(top.Quantity, o.remaining())
			e.execute(o, take)
			top.Quantity = top.Quantity.Sub(take)
			if !top.Quantity.IsPositive() {
				*levels = (*levels)[1:]
			}
		}
	}
	e.ladders[symbol] = l
}

var _ domain.Exchange = (*Exchange)(nil)
