// Package numeric centralises the exact decimal arithmetic used by the
// arbitrage engine. Every rounding decision goes through a named Policy so
// that profit-preserving rounding is applied the same way at every call site.
package numeric

import (
	"github.com/shopspring/decimal"
)

// WorkingScale is the number of decimal places kept by intermediate
// divisions. It is deliberately wider than any venue's native precision.
const WorkingScale int32 = 25

// Policy names a directional rounding rule.
type Policy uint8

const (
	// TowardLoss rounds in whichever direction costs the arbitrage more: an
	// amount we pay rounds up, an amount we receive rounds down.
	TowardLoss Policy = iota + 1
	// TowardSafety always rounds down so a rounded amount never exceeds the
	// unrounded one. Used for quantities bounded by a balance.
	TowardSafety
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case TowardLoss:
		return "toward_loss"
	case TowardSafety:
		return "toward_safety"
	default:
		return "unknown"
	}
}

var (
	// Zero is the decimal 0.
	Zero = decimal.Zero
	// One is the decimal 1.
	One = decimal.NewFromInt(1)
)

// Round quantizes d to scale decimal places under policy p. paid reports
// whether d is an amount we give up (buy price, covering quantity) as opposed
// to one we receive (sell price). paid is ignored by TowardSafety.
func Round(p Policy, d decimal.Decimal, scale int32, paid bool) decimal.Decimal {
	switch p {
	case TowardLoss:
		if paid {
			return d.RoundCeil(scale)
		}
		return d.RoundFloor(scale)
	case TowardSafety:
		return d.RoundFloor(scale)
	default:
		panic("numeric: unknown rounding policy")
	}
}

// Div returns a/b truncated toward zero at WorkingScale. It returns Zero when
// b is zero so callers walking empty levels never panic.
func Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return Zero
	}
	q, _ := a.QuoRem(b, WorkingScale)
	return q
}

// Mul returns a*b truncated at WorkingScale.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(WorkingScale)
}

// Min returns the smallest of the given values. It panics when called with no
// arguments.
func Min(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	return decimal.Min(first, rest...)
}

// Max returns the largest of the given values.
func Max(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	return decimal.Max(first, rest...)
}

// NetOfFee returns d*(1-fee).
func NetOfFee(d, fee decimal.Decimal) decimal.Decimal {
	return Mul(d, One.Sub(fee))
}

// FitsScale reports whether d has no more than scale decimal places.
func FitsScale(d decimal.Decimal, scale int32) bool {
	return d.Equal(d.Truncate(scale))
}

// MustParse parses s or panics. Intended for constants and tests.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
