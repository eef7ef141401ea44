package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Level is a single price+quantity entry on one side of an order book.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Ladder is a depth view of one instrument: asks ascending by price, bids
// descending by price. A ladder is only mutated inside a single sizing pass,
// always on a Clone.
type Ladder struct {
	Instrument Instrument `json:"-"`
	Asks       []Level    `json:"asks"`
	Bids       []Level    `json:"bids"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// Clone returns a deep copy safe for consumption by the sizer.
func (l Ladder) Clone() Ladder {
	out := l
	out.Asks = append([]Level(nil), l.Asks...)
	out.Bids = append([]Level(nil), l.Bids...)
	return out
}

// BestAsk returns the lowest ask. ok is false when the ask side is empty.
func (l Ladder) BestAsk() (Level, bool) {
	if len(l.Asks) == 0 {
		return Level{}, false
	}
	return l.Asks[0], true
}

// BestBid returns the highest bid. ok is false when the bid side is empty.
func (l Ladder) BestBid() (Level, bool) {
	if len(l.Bids) == 0 {
		return Level{}, false
	}
	return l.Bids[0], true
}

// Usable reports whether both sides carry at least one level.
func (l Ladder) Usable() bool {
	return len(l.Asks) > 0 && len(l.Bids) > 0
}

// Side returns the levels a taker on side consumes: asks for a buy, bids for
// a sell.
func (l *Ladder) Side(side Side) *[]Level {
	if side == SideBuy {
		return &l.Asks
	}
	return &l.Bids
}

// Snapshot is a complete, consistent view of every instrument a cycle
// touches, keyed by Instrument.Key.
type Snapshot struct {
	Ladders  map[string]Ladder
	TakenAt  time.Time
	Duration time.Duration
}

// Ladder returns the ladder for inst.
func (s Snapshot) Ladder(inst Instrument) (Ladder, bool) {
	l, ok := s.Ladders[inst.Key()]
	return l, ok
}
