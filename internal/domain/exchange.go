package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Exchange is the per-venue capability the engine consumes.
type Exchange interface {
	// Name returns the venue name instruments refer to.
	Name() string
	// GetDepth returns the current ladder for inst.
	GetDepth(ctx context.Context, inst Instrument) (Ladder, error)
	// GetAccount returns free balances per currency.
	GetAccount(ctx context.Context) (Balances, error)
	// PlaceOrder submits a limit order. A nil ack with a nil error means the
	// venue did not accept the order; it is not a transport failure.
	PlaceOrder(ctx context.Context, side Side, inst Instrument, quantity, price decimal.Decimal) (*OrderAck, error)
	// GetOrder returns the venue's view of an order, nil when unknown.
	GetOrder(ctx context.Context, inst Instrument, orderID string) (*OrderInfo, error)
	// Cancel withdraws an order. It reports whether the venue confirmed.
	Cancel(ctx context.Context, inst Instrument, orderID string) (bool, error)
}

// DepthSource is the read-only market-data subset of Exchange.
type DepthSource interface {
	GetDepth(ctx context.Context, inst Instrument) (Ladder, error)
}

// Venues resolves venue names to their Exchange.
type Venues map[string]Exchange

// Get returns the exchange for name or ErrUnknownVenue.
func (v Venues) Get(name string) (Exchange, error) {
	ex, ok := v[name]
	if !ok {
		return nil, ErrUnknownVenue
	}
	return ex, nil
}
