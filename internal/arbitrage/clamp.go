package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/numeric"
)

// Rejection explains why Clamp turned a sized cycle down. It is diagnostic
// only; a rejection is never an error.
type Rejection string

const (
	RejectNone         Rejection = ""
	RejectNoBalance    Rejection = "no_balance"
	RejectDust         Rejection = "quantity_rounds_to_zero"
	RejectBelowMin     Rejection = "below_min_quantity"
	RejectUnprofitable Rejection = "unprofitable_after_rounding"
)

// requirement is the amount one leg spends from one venue balance.
type requirement struct {
	venue    string
	currency string
	amount   decimal.Decimal
}

func legRequirement(l SizedLeg) requirement {
	inst := l.Leg.Instrument
	r := requirement{venue: inst.Venue, currency: inst.Spends(l.Leg.Side), amount: l.Quantity}
	if l.Leg.Side == domain.SideBuy {
		r.amount = numeric.Mul(l.Quantity, l.Price)
	}
	return r
}

// Required returns what placing every leg of c at once would spend, summed
// per venue and currency.
func Required(c SizedCycle) domain.BalanceSnapshot {
	out := domain.BalanceSnapshot{}
	for _, l := range c.Legs {
		r := legRequirement(l)
		if out[r.venue] == nil {
			out[r.venue] = domain.Balances{}
		}
		out[r.venue][r.currency] = out[r.venue].Free(r.currency).Add(r.amount)
	}
	return out
}

// Clamp fits a sized cycle to the free balances and to each instrument's
// precision without giving up profitability.
//
// Prices round against us (buy up, sell down). All legs shrink by one common
// factor so that every leg's spend fits its balance, and quantities then round
// down. For a hedge the sell quantity is capped by the fee-adjusted buy
// quantity. The result is re-checked: every quantity positive, the anchor at
// least minQty and the coefficient at the rounded prices above one.
func Clamp(c SizedCycle, balances domain.BalanceSnapshot, minQty decimal.Decimal) (SizedCycle, Rejection) {
	out := SizedCycle{Cycle: c.Cycle, Legs: make([]SizedLeg, len(c.Legs))}
	for i, l := range c.Legs {
		inst := l.Leg.Instrument
		out.Legs[i] = SizedLeg{
			Leg:      l.Leg,
			Price:    numeric.Round(numeric.TowardLoss, l.Price, inst.PriceScale, l.Leg.Side == domain.SideBuy),
			Quantity: l.Quantity,
		}
	}

	k := numeric.One
	for venue, need := range Required(out) {
		for currency, amount := range need {
			if !amount.IsPositive() {
				continue
			}
			free := balances.Free(venue, currency)
			if !free.IsPositive() {
				return SizedCycle{}, RejectNoBalance
			}
			if free.LessThan(amount) {
				k = numeric.Min(k, numeric.Div(free, amount))
			}
		}
	}

	for i := range out.Legs {
		l := &out.Legs[i]
		q := l.Quantity
		if k.LessThan(numeric.One) {
			q = numeric.Mul(q, k)
		}
		l.Quantity = numeric.Round(numeric.TowardSafety, q, l.Leg.Instrument.QuantityScale, false)
	}

	if c.Cycle.Kind == domain.CycleHedge {
		capHedgeSell(out.Legs)
	}

	for _, l := range out.Legs {
		if !l.Quantity.IsPositive() {
			return SizedCycle{}, RejectDust
		}
	}
	if out.Anchor().Quantity.LessThan(minQty) {
		return SizedCycle{}, RejectBelowMin
	}
	out.Coefficient = Coefficient(out.Cycle.Legs, out.Prices())
	if !out.Coefficient.GreaterThan(numeric.One) {
		return SizedCycle{}, RejectUnprofitable
	}
	return out, RejectNone
}

// capHedgeSell limits the sell leg to the base the buy leg actually nets.
func capHedgeSell(legs []SizedLeg) {
	var buy, sell *SizedLeg
	for i := range legs {
		switch legs[i].Leg.Side {
		case domain.SideBuy:
			buy = &legs[i]
		case domain.SideSell:
			sell = &legs[i]
		}
	}
	if buy == nil || sell == nil {
		return
	}
	netBuy := numeric.NetOfFee(buy.Quantity, buy.Leg.Instrument.BuyFee)
	limit := numeric.Round(numeric.TowardSafety, netBuy, sell.Leg.Instrument.QuantityScale, false)
	if sell.Quantity.GreaterThan(limit) {
		sell.Quantity = limit
	}
}
