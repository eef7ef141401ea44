package rest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// level is a [price, quantity] pair; venues send either strings or numbers.
type level [2]decimal.Decimal

type depthResponse struct {
	Symbol string  `json:"symbol"`
	Asks   []level `json:"asks"`
	Bids   []level `json:"bids"`
	TS     int64   `json:"ts"` // unix millis
}

func (d depthResponse) ladder(inst domain.Instrument, now time.Time) domain.Ladder {
	l := domain.Ladder{
		Instrument: inst,
		Asks:       make([]domain.Level, 0, len(d.Asks)),
		Bids:       make([]domain.Level, 0, len(d.Bids)),
		FetchedAt:  now,
	}
	if d.TS > 0 {
		l.FetchedAt = time.UnixMilli(d.TS).UTC()
	}
	for _, a := range d.Asks {
		if a[1].IsPositive() {
			l.Asks = append(l.Asks, domain.Level{Price: a[0], Quantity: a[1]})
		}
	}
	for _, b := range d.Bids {
		if b[1].IsPositive() {
			l.Bids = append(l.Bids, domain.Level{Price: b[0], Quantity: b[1]})
		}
	}
	return l
}

type accountResponse struct {
	Balances []struct {
		Currency string          `json:"currency"`
		Free     decimal.Decimal `json:"free"`
	} `json:"balances"`
}

type placeRequest struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Type     string          `json:"type"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type orderResponse struct {
	OrderID        string          `json:"order_id"`
	Status         string          `json:"status"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	AvgPrice       decimal.Decimal `json:"avg_price"`
}

// status maps venue order states onto the leg lifecycle. ok is false for
// states that mean the order was never accepted.
func (o orderResponse) status() (domain.OrderStatus, bool) {
	switch o.Status {
	case "NEW", "OPEN", "PARTIALLY_FILLED":
		return domain.OrderStatusNew, true
	case "FILLED":
		return domain.OrderStatusFilled, true
	case "CANCELED", "CANCELLED", "EXPIRED":
		return domain.OrderStatusCanceled, true
	default:
		return domain.OrderStatusNone, false
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusError is a non-2xx reply.
type StatusError struct {
	Venue  string
	Status int
	Code   string
	Msg    string
	kind   error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rest %s: HTTP %d: %s (%s)", e.Venue, e.Status, e.Msg, e.Code)
}

func (e *StatusError) Unwrap() error { return e.kind }

// rejected reports a business rejection of a placement (bad params,
// insufficient funds) as opposed to a transport or server failure.
func (e *StatusError) rejected() bool {
	return e.Status == 400 || e.Status == 422
}

// wsMessage is one frame of the depth stream.
type wsMessage struct {
	Type   string          `json:"type"`
	Symbol string          `json:"symbol"`
	Data   json.RawMessage `json:"data"`
}

type wsSubscribe struct {
	Op      string   `json:"op"`
	Channel string   `json:"channel"`
	Symbols []string `json:"symbols"`
}
