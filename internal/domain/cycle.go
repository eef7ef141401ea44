package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side indicates whether a leg buys or sells the instrument's base currency.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is one of the declared sides.
func (s Side) Valid() bool {
	switch s {
	case SideBuy, SideSell:
		return true
	default:
		return false
	}
}

// CycleKind classifies a cycle definition.
type CycleKind string

const (
	CycleHedge    CycleKind = "hedge"    // same pair on two venues
	CycleTriangle CycleKind = "triangle" // three pairs on one venue
)

// Direction selects the rotation of a cycle.
type Direction string

const (
	DirectionForward          Direction = "forward"
	DirectionReverse          Direction = "reverse"
	DirectionClockwise        Direction = "clockwise"
	DirectionCounterClockwise Direction = "counter_clockwise"
)

// DirectionsFor lists the directions a kind supports.
func DirectionsFor(kind CycleKind) []Direction {
	switch kind {
	case CycleHedge:
		return []Direction{DirectionForward, DirectionReverse}
	case CycleTriangle:
		return []Direction{DirectionClockwise, DirectionCounterClockwise}
	default:
		return nil
	}
}

// Leg is one order of an oriented cycle.
type Leg struct {
	Instrument Instrument
	Side       Side
}

// Cycle is a definition oriented in one direction: a closed sequence of legs
// whose outputs feed the next leg's input.
type Cycle struct {
	Name      string
	Kind      CycleKind
	Direction Direction
	Legs      []Leg
	// Anchor is the index of the leg whose quantity expresses the cycle's
	// size. Min and max quantities are measured on it.
	Anchor int
}

// CycleDefinition is the configured, direction-free description of a cycle.
//
// Hedge instruments are the same pair on two venues. Triangle instruments are
// ordered (B_A, C_B, C_A): A is only ever a quote currency, C only ever a
// base currency.
type CycleDefinition struct {
	Name        string
	Kind        CycleKind
	Instruments []Instrument
	Directions  []Direction
	MinQuantity decimal.Decimal
	MaxQuantity decimal.Decimal
}

// Validate checks that the instruments form a closed cycle of the declared
// kind. All failures wrap ErrInvalidCycle.
func (d CycleDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidCycle)
	}
	for _, inst := range d.Instruments {
		if err := inst.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidCycle, d.Name, err)
		}
	}
	switch d.Kind {
	case CycleHedge:
		if len(d.Instruments) != 2 {
			return fmt.Errorf("%w: %s: hedge needs 2 instruments, got %d", ErrInvalidCycle, d.Name, len(d.Instruments))
		}
		a, b := d.Instruments[0], d.Instruments[1]
		if a.Symbol() != b.Symbol() {
			return fmt.Errorf("%w: %s: hedge pairs differ (%s vs %s)", ErrInvalidCycle, d.Name, a.Symbol(), b.Symbol())
		}
		if a.Venue == b.Venue {
			return fmt.Errorf("%w: %s: hedge legs share venue %s", ErrInvalidCycle, d.Name, a.Venue)
		}
	case CycleTriangle:
		if len(d.Instruments) != 3 {
			return fmt.Errorf("%w: %s: triangle needs 3 instruments, got %d", ErrInvalidCycle, d.Name, len(d.Instruments))
		}
		ba, cb, ca := d.Instruments[0], d.Instruments[1], d.Instruments[2]
		if ba.Venue != cb.Venue || cb.Venue != ca.Venue {
			return fmt.Errorf("%w: %s: triangle legs must share one venue", ErrInvalidCycle, d.Name)
		}
		if ba.Base != cb.Quote || ba.Quote != ca.Quote || cb.Base != ca.Base {
			return fmt.Errorf("%w: %s: %s, %s, %s do not form B_A, C_B, C_A",
				ErrInvalidCycle, d.Name, ba.Symbol(), cb.Symbol(), ca.Symbol())
		}
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidCycle, d.Name, d.Kind)
	}

	supported := DirectionsFor(d.Kind)
	if len(d.Directions) == 0 {
		return fmt.Errorf("%w: %s: no directions", ErrInvalidCycle, d.Name)
	}
	for _, dir := range d.Directions {
		found := false
		for _, s := range supported {
			if s == dir {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s: direction %q not valid for %s", ErrInvalidCycle, d.Name, dir, d.Kind)
		}
	}
	if d.MinQuantity.IsNegative() {
		return fmt.Errorf("%w: %s: min quantity is negative", ErrInvalidCycle, d.Name)
	}
	if d.MaxQuantity.IsPositive() && d.MaxQuantity.LessThan(d.MinQuantity) {
		return fmt.Errorf("%w: %s: max quantity below min quantity", ErrInvalidCycle, d.Name)
	}
	return nil
}

// Orient returns the definition's legs in the given direction.
func (d CycleDefinition) Orient(dir Direction) (Cycle, error) {
	c := Cycle{Name: d.Name, Kind: d.Kind, Direction: dir}
	switch {
	case d.Kind == CycleHedge && len(d.Instruments) == 2:
		x, y := d.Instruments[0], d.Instruments[1]
		switch dir {
		case DirectionForward:
			c.Legs = []Leg{{x, SideBuy}, {y, SideSell}}
		case DirectionReverse:
			c.Legs = []Leg{{y, SideBuy}, {x, SideSell}}
		default:
			return Cycle{}, fmt.Errorf("%w: %s: direction %q", ErrInvalidCycle, d.Name, dir)
		}
		c.Anchor = 1
	case d.Kind == CycleTriangle && len(d.Instruments) == 3:
		ba, cb, ca := d.Instruments[0], d.Instruments[1], d.Instruments[2]
		switch dir {
		case DirectionClockwise:
			// A -> B -> C -> A
			c.Legs = []Leg{{ba, SideBuy}, {cb, SideBuy}, {ca, SideSell}}
			c.Anchor = 2
		case DirectionCounterClockwise:
			// A -> C -> B -> A
			c.Legs = []Leg{{ca, SideBuy}, {cb, SideSell}, {ba, SideSell}}
			c.Anchor = 0
		default:
			return Cycle{}, fmt.Errorf("%w: %s: direction %q", ErrInvalidCycle, d.Name, dir)
		}
	default:
		return Cycle{}, fmt.Errorf("%w: %s: kind %q with %d instruments", ErrInvalidCycle, d.Name, d.Kind, len(d.Instruments))
	}
	return c, nil
}

// Venues returns the distinct venues the definition trades on, in order.
func (d CycleDefinition) Venues() []string {
	seen := make(map[string]bool, len(d.Instruments))
	var out []string
	for _, inst := range d.Instruments {
		if !seen[inst.Venue] {
			seen[inst.Venue] = true
			out = append(out, inst.Venue)
		}
	}
	return out
}
