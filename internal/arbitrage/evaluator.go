// Package arbitrage decides whether a cycle is profitable, sizes it against
// order-book depth and clamps the result to balances and venue precision.
// Nothing in this package performs I/O.
package arbitrage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/numeric"
)

// Evaluation is the top-of-book verdict for one oriented cycle.
type Evaluation struct {
	Cycle       domain.Cycle
	Coefficient decimal.Decimal
	// Prices holds the top price each leg would trade at, indexed like
	// Cycle.Legs.
	Prices []decimal.Decimal
}

// Profitable reports whether the fee-adjusted coefficient exceeds one.
func (e Evaluation) Profitable() bool {
	return e.Coefficient.GreaterThan(numeric.One)
}

// Rate returns a leg's output per unit of input at price, net of fee. A buy
// turns quote into base at (1/price)(1-fee); a sell turns base into quote at
// price(1-fee).
func Rate(leg domain.Leg, price decimal.Decimal) decimal.Decimal {
	fee := leg.Instrument.Fee(leg.Side)
	switch leg.Side {
	case domain.SideBuy:
		return numeric.NetOfFee(numeric.Div(numeric.One, price), fee)
	case domain.SideSell:
		return numeric.NetOfFee(price, fee)
	default:
		panic(fmt.Sprintf("arbitrage: unknown side %q", leg.Side))
	}
}

// Coefficient multiplies the leg rates around the cycle. A value above one
// means one unit of the starting currency comes back as more than one unit.
func Coefficient(legs []domain.Leg, prices []decimal.Decimal) decimal.Decimal {
	c := numeric.One
	for i, leg := range legs {
		c = numeric.Mul(c, Rate(leg, prices[i]))
	}
	return c
}

// topPrice returns the price a taker on leg would hit first.
func topPrice(leg domain.Leg, l domain.Ladder) (decimal.Decimal, bool) {
	side := *l.Side(leg.Side)
	if len(side) == 0 {
		return decimal.Zero, false
	}
	return side[0].Price, true
}

// Evaluate orients def in each of its directions and scores the top of book.
// Every allowed direction is returned, profitable or not; callers filter with
// Evaluation.Profitable. A missing or one-sided ladder yields
// ErrIncompleteDepth.
func Evaluate(def domain.CycleDefinition, snap domain.Snapshot) ([]Evaluation, error) {
	out := make([]Evaluation, 0, len(def.Directions))
	for _, dir := range def.Directions {
		cycle, err := def.Orient(dir)
		if err != nil {
			return nil, err
		}
		prices := make([]decimal.Decimal, len(cycle.Legs))
		for i, leg := range cycle.Legs {
			ladder, ok := snap.Ladder(leg.Instrument)
			if !ok {
				return nil, fmt.Errorf("arbitrage: %s: %w: no ladder", leg.Instrument.Key(), domain.ErrIncompleteDepth)
			}
			p, ok := topPrice(leg, ladder)
			if !ok {
				return nil, fmt.Errorf("arbitrage: %s: %w: empty %s side", leg.Instrument.Key(), domain.ErrIncompleteDepth, leg.Side)
			}
			prices[i] = p
		}
		out = append(out, Evaluation{
			Cycle:       cycle,
			Coefficient: Coefficient(cycle.Legs, prices),
			Prices:      prices,
		})
	}
	return out, nil
}
