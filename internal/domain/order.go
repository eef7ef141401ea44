package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks the arbitrage leg lifecycle. The zero value means the leg
// has been sized but no placement has been attempted yet.
type OrderStatus string

const (
	OrderStatusNone     OrderStatus = ""
	OrderStatusPlan     OrderStatus = "PLAN"     // intended, not accepted by the venue
	OrderStatusNew      OrderStatus = "NEW"      // resting on the book
	OrderStatusFilled   OrderStatus = "FILLED"   // fully executed, terminal
	OrderStatusCanceled OrderStatus = "CANCELED" // withdrawn, terminal
)

// Valid reports whether s is a persisted status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPlan, OrderStatusNew, OrderStatusFilled, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusNone:
		return to == OrderStatusPlan || to == OrderStatusNew
	case OrderStatusPlan:
		return to == OrderStatusNew
	case OrderStatusNew:
		return to == OrderStatusFilled || to == OrderStatusCanceled
	case OrderStatusFilled, OrderStatusCanceled:
		return false
	default:
		return false
	}
}

// ArbitrageOrder is one leg's persisted order record. Rows are never deleted:
// the table is the audit trail and the recovery source after a restart.
type ArbitrageOrder struct {
	DataID         string              `json:"data_id"`
	GroupID        string              `json:"group_id"`
	Cycle          string              `json:"cycle"`
	Direction      Direction           `json:"direction"`
	Venue          string              `json:"venue"`
	Base           string              `json:"base"`
	Quote          string              `json:"quote"`
	Side           Side                `json:"side"`
	Price          decimal.Decimal     `json:"price"`
	Quantity       decimal.Decimal     `json:"quantity"`
	FilledQuantity decimal.Decimal     `json:"filled_quantity"`
	AvgPrice       decimal.NullDecimal `json:"avg_price"`
	FeeRate        decimal.Decimal     `json:"fee_rate"`
	Status         OrderStatus         `json:"status"`
	OrderID        string              `json:"order_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	ModifiedAt     time.Time           `json:"modified_at"`
}

// InstrumentKey returns the Instrument.Key the order trades.
func (o *ArbitrageOrder) InstrumentKey() string {
	return o.Venue + ":" + o.Base + "_" + o.Quote
}

// Transition moves the order to status to, stamping ModifiedAt. It returns
// ErrInvalidTransition for moves the lifecycle does not allow.
func (o *ArbitrageOrder) Transition(to OrderStatus, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s %q -> %q", ErrInvalidTransition, o.DataID, o.Status, to)
	}
	o.Status = to
	o.ModifiedAt = at
	return nil
}

// Remaining returns the unfilled quantity.
func (o *ArbitrageOrder) Remaining() decimal.Decimal {
	r := o.Quantity.Sub(o.FilledQuantity)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// OrderAck is a venue's acceptance of a placed order.
type OrderAck struct {
	OrderID string
	Status  OrderStatus
}

// OrderInfo is a venue's view of one order.
type OrderInfo struct {
	OrderID        string
	Status         OrderStatus
	AvgPrice       decimal.Decimal
	FilledQuantity decimal.Decimal
}

// OrderFilter selects persisted orders. Empty fields do not filter.
type OrderFilter struct {
	Venues         []string
	InstrumentKeys []string
	Statuses       []OrderStatus
	GroupID        string
	ModifiedBefore *time.Time
	Limit          int
}
