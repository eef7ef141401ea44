package arbitrage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/numeric"
)

func d(s string) decimal.Decimal { return numeric.MustParse(s) }

func lv(price, qty string) domain.Level {
	return domain.Level{Price: d(price), Quantity: d(qty)}
}

func inst(venue, base, quote string, priceScale, qtyScale int32, fee string) domain.Instrument {
	return domain.Instrument{
		Venue: venue, Base: base, Quote: quote,
		PriceScale: priceScale, QuantityScale: qtyScale,
		BuyFee: d(fee), SellFee: d(fee),
	}
}

func snapshot(ladders ...domain.Ladder) domain.Snapshot {
	s := domain.Snapshot{Ladders: map[string]domain.Ladder{}}
	for _, l := range ladders {
		s.Ladders[l.Instrument.Key()] = l
	}
	return s
}

var (
	alphaETH = inst("alpha", "ETH", "BTC", 6, 3, "0.001")
	betaETH  = inst("beta", "ETH", "BTC", 6, 3, "0.001")
)

func hedgeDef() domain.CycleDefinition {
	return domain.CycleDefinition{
		Name:        "eth-btc-hedge",
		Kind:        domain.CycleHedge,
		Instruments: []domain.Instrument{alphaETH, betaETH},
		Directions:  []domain.Direction{domain.DirectionForward, domain.DirectionReverse},
	}
}

// Alpha is cheap, beta is rich: forward (buy alpha, sell beta) pays.
func profitableHedge() domain.Snapshot {
	return snapshot(
		domain.Ladder{
			Instrument: alphaETH,
			Asks:       []domain.Level{lv("0.0500", "2"), lv("0.0502", "3")},
			Bids:       []domain.Level{lv("0.0499", "5")},
		},
		domain.Ladder{
			Instrument: betaETH,
			Asks:       []domain.Level{lv("0.0512", "5")},
			Bids:       []domain.Level{lv("0.0510", "1"), lv("0.0505", "4")},
		},
	)
}

var (
	btcUSDT = inst("gamma", "BTC", "USDT", 2, 6, "0.001")
	ethBTC  = inst("gamma", "ETH", "BTC", 6, 4, "0.001")
	ethUSDT = inst("gamma", "ETH", "USDT", 2, 4, "0.001")
)

func triangleDef() domain.CycleDefinition {
	return domain.CycleDefinition{
		Name:        "usdt-btc-eth",
		Kind:        domain.CycleTriangle,
		Instruments: []domain.Instrument{btcUSDT, ethBTC, ethUSDT},
		Directions:  []domain.Direction{domain.DirectionClockwise, domain.DirectionCounterClockwise},
	}
}

// USDT -> BTC -> ETH -> USDT returns about 1.007; the reverse loses.
func clockwiseTriangle() domain.Snapshot {
	return snapshot(
		domain.Ladder{
			Instrument: btcUSDT,
			Asks:       []domain.Level{lv("20000", "1")},
			Bids:       []domain.Level{lv("19990", "1")},
		},
		domain.Ladder{
			Instrument: ethBTC,
			Asks:       []domain.Level{lv("0.05", "10")},
			Bids:       []domain.Level{lv("0.0499", "10")},
		},
		domain.Ladder{
			Instrument: ethUSDT,
			Asks:       []domain.Level{lv("1012", "5")},
			Bids:       []domain.Level{lv("1010", "5")},
		},
	)
}

func plenty() domain.BalanceSnapshot {
	return domain.BalanceSnapshot{
		"alpha": {"BTC": d("1000"), "ETH": d("1000")},
		"beta":  {"BTC": d("1000"), "ETH": d("1000")},
		"gamma": {"BTC": d("1000"), "ETH": d("1000"), "USDT": d("1000000")},
	}
}

func profitableOf(t *testing.T, evals []Evaluation) []domain.Direction {
	t.Helper()
	var out []domain.Direction
	for _, e := range evals {
		if e.Profitable() {
			out = append(out, e.Cycle.Direction)
		}
	}
	return out
}

func TestRate(t *testing.T) {
	buy := domain.Leg{Instrument: alphaETH, Side: domain.SideBuy}
	sell := domain.Leg{Instrument: alphaETH, Side: domain.SideSell}

	assert.True(t, Rate(buy, d("0.05")).Equal(d("19.98")))
	assert.True(t, Rate(sell, d("0.05")).Equal(d("0.04995")))
	assert.True(t, Rate(buy, decimal.Zero).IsZero())
}

func TestEvaluate_HedgeProfitable(t *testing.T) {
	evals, err := Evaluate(hedgeDef(), profitableHedge())
	require.NoError(t, err)
	require.Len(t, evals, 2)

	assert.Equal(t, []domain.Direction{domain.DirectionForward}, profitableOf(t, evals))
	fwd := evals[0]
	assert.Equal(t, domain.SideBuy, fwd.Cycle.Legs[0].Side)
	assert.Equal(t, "alpha", fwd.Cycle.Legs[0].Instrument.Venue)
	assert.True(t, fwd.Prices[0].Equal(d("0.05")))
	assert.True(t, fwd.Prices[1].Equal(d("0.051")))
}

func TestEvaluate_HedgeUnprofitable(t *testing.T) {
	snap := snapshot(
		domain.Ladder{
			Instrument: alphaETH,
			Asks:       []domain.Level{lv("0.0501", "2")},
			Bids:       []domain.Level{lv("0.0500", "2")},
		},
		domain.Ladder{
			Instrument: betaETH,
			Asks:       []domain.Level{lv("0.0501", "2")},
			Bids:       []domain.Level{lv("0.0500", "2")},
		},
	)
	evals, err := Evaluate(hedgeDef(), snap)
	require.NoError(t, err)
	assert.Empty(t, profitableOf(t, evals))

	for _, e := range evals {
		_, ok := Size(e.Cycle, snap, decimal.Zero)
		assert.False(t, ok, e.Cycle.Direction)
	}
}

func TestEvaluate_AtMostOneHedgeDirection(t *testing.T) {
	// Any non-crossed pair of books leaves at most one direction above one.
	cases := [][2][2]string{
		{{"0.0500", "0.0499"}, {"0.0512", "0.0510"}},
		{{"0.0600", "0.0598"}, {"0.0500", "0.0499"}},
		{{"0.0500", "0.0400"}, {"0.0501", "0.0450"}},
	}
	for _, c := range cases {
		snap := snapshot(
			domain.Ladder{Instrument: alphaETH, Asks: []domain.Level{lv(c[0][0], "1")}, Bids: []domain.Level{lv(c[0][1], "1")}},
			domain.Ladder{Instrument: betaETH, Asks: []domain.Level{lv(c[1][0], "1")}, Bids: []domain.Level{lv(c[1][1], "1")}},
		)
		evals, err := Evaluate(hedgeDef(), snap)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(profitableOf(t, evals)), 1)
	}
}

func TestEvaluate_MissingLadder(t *testing.T) {
	snap := profitableHedge()
	delete(snap.Ladders, betaETH.Key())
	_, err := Evaluate(hedgeDef(), snap)
	require.ErrorIs(t, err, domain.ErrIncompleteDepth)

	one := profitableHedge()
	l := one.Ladders[alphaETH.Key()]
	l.Asks = nil
	one.Ladders[alphaETH.Key()] = l
	_, err = Evaluate(hedgeDef(), one)
	require.ErrorIs(t, err, domain.ErrIncompleteDepth)
}

func TestEvaluate_TriangleClockwiseOnly(t *testing.T) {
	snap := clockwiseTriangle()
	evals, err := Evaluate(triangleDef(), snap)
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, []domain.Direction{domain.DirectionClockwise}, profitableOf(t, evals))

	cw, ccw := evals[0], evals[1]
	assert.True(t, cw.Coefficient.GreaterThan(d("1.006")))
	assert.True(t, ccw.Coefficient.LessThan(numeric.One))

	_, ok := Size(ccw.Cycle, snap, decimal.Zero)
	assert.False(t, ok)

	sized, ok := Size(cw.Cycle, snap, decimal.Zero)
	require.True(t, ok)
	assert.True(t, sized.Anchor().Quantity.Equal(d("5")), sized.Anchor().Quantity.String())
	assert.True(t, sized.Legs[2].Price.Equal(d("1010")))

	clamped, rej := Clamp(sized, plenty(), decimal.Zero)
	require.Equal(t, RejectNone, rej)
	assert.Equal(t, "0.2505", clamped.Legs[0].Quantity.String())
	assert.Equal(t, "5.005", clamped.Legs[1].Quantity.String())
	assert.Equal(t, "5", clamped.Legs[2].Quantity.String())
	assert.True(t, clamped.Coefficient.GreaterThan(numeric.One))
}

func TestSize_HedgeWalksDepth(t *testing.T) {
	snap := profitableHedge()
	evals, err := Evaluate(hedgeDef(), snap)
	require.NoError(t, err)

	sized, ok := Size(evals[0].Cycle, snap, decimal.Zero)
	require.True(t, ok)

	buy, sell := sized.Legs[0], sized.Legs[1]
	assert.True(t, buy.Quantity.Equal(d("5")), buy.Quantity.String())
	assert.True(t, buy.Price.Equal(d("0.0502")))
	assert.True(t, sell.Price.Equal(d("0.0505")))
	assert.True(t, sell.Quantity.GreaterThan(d("4.995")))
	assert.True(t, sell.Quantity.LessThan(d("4.996")))

	// the snapshot itself is untouched
	assert.Len(t, snap.Ladders[alphaETH.Key()].Asks, 2)
	assert.True(t, snap.Ladders[betaETH.Key()].Bids[0].Quantity.Equal(d("1")))

	clamped, rej := Clamp(sized, plenty(), decimal.Zero)
	require.Equal(t, RejectNone, rej)
	assert.Equal(t, "5", clamped.Legs[0].Quantity.String())
	assert.Equal(t, "4.995", clamped.Legs[1].Quantity.String())
}

func TestSize_MaxQuantityScalesLastStep(t *testing.T) {
	snap := profitableHedge()
	cycle, err := hedgeDef().Orient(domain.DirectionForward)
	require.NoError(t, err)

	sized, ok := Size(cycle, snap, d("1.5"))
	require.True(t, ok)
	assert.True(t, sized.Anchor().Quantity.Equal(d("1.5")), sized.Anchor().Quantity.String())
	assert.True(t, sized.Legs[0].Quantity.LessThan(d("1.51")))
	assert.True(t, sized.Legs[0].Quantity.GreaterThan(d("1.5")))
}

func TestSize_MonotonicDepth(t *testing.T) {
	cycle, err := hedgeDef().Orient(domain.DirectionForward)
	require.NoError(t, err)

	shallow := profitableHedge()
	deep := profitableHedge()
	l := deep.Ladders[alphaETH.Key()]
	l.Asks = append(l.Asks, lv("0.0503", "10"))
	deep.Ladders[alphaETH.Key()] = l
	b := deep.Ladders[betaETH.Key()]
	b.Bids = append(b.Bids, lv("0.0504", "10"))
	deep.Ladders[betaETH.Key()] = b

	s1, ok := Size(cycle, shallow, decimal.Zero)
	require.True(t, ok)
	s2, ok := Size(cycle, deep, decimal.Zero)
	require.True(t, ok)

	for i := range s1.Legs {
		assert.True(t, s2.Legs[i].Quantity.GreaterThanOrEqual(s1.Legs[i].Quantity), "leg %d quantity", i)
	}
	// deeper fills never get a better limit price
	assert.True(t, s2.Legs[0].Price.GreaterThanOrEqual(s1.Legs[0].Price))
	assert.True(t, s2.Legs[1].Price.LessThanOrEqual(s1.Legs[1].Price))
	assert.True(t, s2.Coefficient.GreaterThan(numeric.One))
}

func TestClamp_ProfitabilityAfterRounding(t *testing.T) {
	a := inst("alpha", "ETH", "BTC", 6, 3, "0.0001")
	b := inst("beta", "ETH", "BTC", 6, 3, "0.0001")
	def := domain.CycleDefinition{
		Name: "thin", Kind: domain.CycleHedge,
		Instruments: []domain.Instrument{a, b},
		Directions:  []domain.Direction{domain.DirectionForward},
	}
	snap := snapshot(
		domain.Ladder{Instrument: a, Asks: []domain.Level{lv("0.0500004", "1")}, Bids: []domain.Level{lv("0.04", "1")}},
		domain.Ladder{Instrument: b, Asks: []domain.Level{lv("0.06", "1")}, Bids: []domain.Level{lv("0.0500106", "1")}},
	)
	evals, err := Evaluate(def, snap)
	require.NoError(t, err)
	require.True(t, evals[0].Profitable(), "unrounded edge should be positive")

	sized, ok := Size(evals[0].Cycle, snap, decimal.Zero)
	require.True(t, ok)

	_, rej := Clamp(sized, plenty(), decimal.Zero)
	assert.Equal(t, RejectUnprofitable, rej)
}

func TestClamp_BalanceSafety(t *testing.T) {
	snap := profitableHedge()
	cycle, err := hedgeDef().Orient(domain.DirectionForward)
	require.NoError(t, err)
	sized, ok := Size(cycle, snap, decimal.Zero)
	require.True(t, ok)

	cases := []struct {
		name string
		btc  string
		eth  string
	}{
		{"quote binds", "0.1", "1000"},
		{"base binds", "1000", "2.5"},
		{"both bind", "0.2", "0.5"},
		{"ample", "1000", "1000"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			bal := domain.BalanceSnapshot{
				"alpha": {"BTC": d(c.btc)},
				"beta":  {"ETH": d(c.eth)},
			}
			out, rej := Clamp(sized, bal, decimal.Zero)
			require.Equal(t, RejectNone, rej)

			for venue, need := range Required(out) {
				for cur, amt := range need {
					assert.True(t, amt.LessThanOrEqual(bal.Free(venue, cur)),
						"%s %s needs %s, has %s", venue, cur, amt, bal.Free(venue, cur))
				}
			}
			for i, l := range out.Legs {
				assert.True(t, l.Quantity.LessThanOrEqual(sized.Legs[i].Quantity), "leg %d grew", i)
				assert.True(t, numeric.FitsScale(l.Quantity, l.Leg.Instrument.QuantityScale))
				assert.True(t, numeric.FitsScale(l.Price, l.Leg.Instrument.PriceScale))
			}
			// sell never exceeds the base the buy nets
			net := numeric.NetOfFee(out.Legs[0].Quantity, alphaETH.BuyFee)
			assert.True(t, out.Legs[1].Quantity.LessThanOrEqual(net))
		})
	}
}

func TestClamp_QuoteBindingHedge(t *testing.T) {
	cycle, err := hedgeDef().Orient(domain.DirectionForward)
	require.NoError(t, err)
	sized, ok := Size(cycle, profitableHedge(), decimal.Zero)
	require.True(t, ok)

	bal := domain.BalanceSnapshot{"alpha": {"BTC": d("0.1")}, "beta": {"ETH": d("10")}}
	out, rej := Clamp(sized, bal, decimal.Zero)
	require.Equal(t, RejectNone, rej)
	assert.Equal(t, "1.992", out.Legs[0].Quantity.String())
	assert.Equal(t, "1.99", out.Legs[1].Quantity.String())
}

func TestClamp_Rejections(t *testing.T) {
	cycle, err := hedgeDef().Orient(domain.DirectionForward)
	require.NoError(t, err)
	sized, ok := Size(cycle, profitableHedge(), decimal.Zero)
	require.True(t, ok)

	_, rej := Clamp(sized, domain.BalanceSnapshot{"beta": {"ETH": d("10")}}, decimal.Zero)
	assert.Equal(t, RejectNoBalance, rej)

	dust := domain.BalanceSnapshot{"alpha": {"BTC": d("0.00001")}, "beta": {"ETH": d("10")}}
	_, rej = Clamp(sized, dust, decimal.Zero)
	assert.Equal(t, RejectDust, rej)

	_, rej = Clamp(sized, plenty(), d("100"))
	assert.Equal(t, RejectBelowMin, rej)
}
