package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/numeric"
)

// maxWalkSteps bounds the depth walk. Each step removes at least one level,
// so this is only reached on pathological ladders.
const maxWalkSteps = 10_000

// SizedLeg is one leg with its limit price and base quantity.
type SizedLeg struct {
	Leg      domain.Leg
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// SizedCycle is a cycle ready for clamping or placement.
type SizedCycle struct {
	Cycle       domain.Cycle
	Legs        []SizedLeg
	Coefficient decimal.Decimal
}

// Anchor returns the leg the cycle's size is measured on.
func (s SizedCycle) Anchor() SizedLeg {
	return s.Legs[s.Cycle.Anchor]
}

// Prices returns the legs' limit prices in leg order.
func (s SizedCycle) Prices() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.Legs))
	for i, l := range s.Legs {
		out[i] = l.Price
	}
	return out
}

// walkLeg is the sizer's working view of one leg.
type walkLeg struct {
	leg    domain.Leg
	levels []domain.Level
	price  decimal.Decimal
	qty    decimal.Decimal
}

func (w *walkLeg) top() (domain.Level, bool) {
	if len(w.levels) == 0 {
		return domain.Level{}, false
	}
	return w.levels[0], true
}

// baseFor converts an input amount of the leg's spent currency into the
// base quantity traded at price.
func baseFor(side domain.Side, input, price decimal.Decimal) decimal.Decimal {
	if side == domain.SideBuy {
		return numeric.Div(input, price)
	}
	return input
}

// Size walks the ladders of cycle level by level and accumulates the largest
// quantity that keeps every step profitable. maxQty caps the anchor leg's
// quantity; zero means unbounded.
//
// The walk is expressed in units of leg 0's input currency. For leg i the
// cumulative rate of the legs before it, R_i, maps start units to the
// currency leg i spends, so its top level absorbs capacity_i/R_i start units.
// Each step takes the smallest of those, removes the level that bound it and
// shrinks the others by the equivalent amount. Ladders in snap are not
// modified.
//
// ok is false when the very first step is unprofitable or some ladder is
// empty.
func Size(cycle domain.Cycle, snap domain.Snapshot, maxQty decimal.Decimal) (SizedCycle, bool) {
	legs := make([]*walkLeg, len(cycle.Legs))
	for i, leg := range cycle.Legs {
		ladder, ok := snap.Ladder(leg.Instrument)
		if !ok {
			return SizedCycle{}, false
		}
		work := ladder.Clone()
		legs[i] = &walkLeg{leg: leg, levels: *work.Side(leg.Side), qty: decimal.Zero}
	}

	anchor := legs[cycle.Anchor]
	bounded := maxQty.IsPositive()
	steps := 0

walk:
	for ; steps < maxWalkSteps; steps++ {
		if bounded && anchor.qty.GreaterThanOrEqual(maxQty) {
			break
		}
		tops := make([]domain.Level, len(legs))
		prices := make([]decimal.Decimal, len(legs))
		for i, w := range legs {
			lvl, ok := w.top()
			if !ok || !lvl.Price.IsPositive() {
				break walk
			}
			tops[i] = lvl
			prices[i] = lvl.Price
		}
		if !Coefficient(cycle.Legs, prices).GreaterThan(numeric.One) {
			break
		}

		// cumulative rates before each leg
		cum := make([]decimal.Decimal, len(legs))
		r := numeric.One
		for i, w := range legs {
			cum[i] = r
			r = numeric.Mul(r, Rate(w.leg, prices[i]))
		}

		bind := -1
		var x decimal.Decimal
		for i, w := range legs {
			capacity := tops[i].Quantity
			if w.leg.Side == domain.SideBuy {
				capacity = numeric.Mul(tops[i].Price, tops[i].Quantity)
			}
			k := numeric.Div(capacity, cum[i])
			if bind < 0 || k.LessThan(x) {
				bind, x = i, k
			}
		}

		step := make([]decimal.Decimal, len(legs))
		for i, w := range legs {
			if i == bind {
				step[i] = tops[i].Quantity
				continue
			}
			step[i] = baseFor(w.leg.Side, numeric.Mul(x, cum[i]), prices[i])
		}

		// k-scale the whole step when it would push the anchor past maxQty
		capped := false
		if bounded {
			room := maxQty.Sub(anchor.qty)
			if step[cycle.Anchor].GreaterThan(room) {
				k := numeric.Div(room, step[cycle.Anchor])
				for i := range step {
					step[i] = numeric.Mul(step[i], k)
				}
				step[cycle.Anchor] = room
				capped = true
			}
		}

		for i, w := range legs {
			w.qty = w.qty.Add(step[i])
			w.price = prices[i]
			if i == bind && !capped {
				w.levels = w.levels[1:]
				continue
			}
			if rest := tops[i].Quantity.Sub(step[i]); rest.IsPositive() {
				w.levels[0].Quantity = rest
			} else {
				w.levels = w.levels[1:]
			}
		}
		if capped {
			steps++
			break
		}
	}
	if steps == 0 || !anchor.qty.IsPositive() {
		return SizedCycle{}, false
	}

	out := SizedCycle{Cycle: cycle, Legs: make([]SizedLeg, len(legs))}
	for i, w := range legs {
		out.Legs[i] = SizedLeg{Leg: w.leg, Price: w.price, Quantity: w.qty}
	}
	out.Coefficient = Coefficient(cycle.Legs, out.Prices())
	return out, true
}
