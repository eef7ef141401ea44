package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Instrument is a tradable pair on one venue together with its precision and
// fee schedule. Instruments are values and never change after construction.
type Instrument struct {
	Venue         string
	Base          string
	Quote         string
	PriceScale    int32
	QuantityScale int32
	BuyFee        decimal.Decimal
	SellFee       decimal.Decimal
}

// Symbol returns the venue-independent pair name, e.g. "ETH_BTC".
func (i Instrument) Symbol() string {
	return i.Base + "_" + i.Quote
}

// Key identifies the instrument across venues, e.g. "binance:ETH_BTC".
func (i Instrument) Key() string {
	return i.Venue + ":" + i.Symbol()
}

// Fee returns the fee rate charged on the given side.
func (i Instrument) Fee(side Side) decimal.Decimal {
	if side == SideBuy {
		return i.BuyFee
	}
	return i.SellFee
}

// Spends returns the currency given up when trading on side.
func (i Instrument) Spends(side Side) string {
	if side == SideBuy {
		return i.Quote
	}
	return i.Base
}

// Receives returns the currency obtained when trading on side.
func (i Instrument) Receives(side Side) string {
	if side == SideBuy {
		return i.Base
	}
	return i.Quote
}

// Validate checks the instrument for missing or out-of-range fields.
func (i Instrument) Validate() error {
	var errs []string
	if i.Venue == "" {
		errs = append(errs, "venue is empty")
	}
	if i.Base == "" || i.Quote == "" {
		errs = append(errs, "base and quote must be set")
	}
	if i.Base != "" && i.Base == i.Quote {
		errs = append(errs, "base equals quote")
	}
	if i.PriceScale < 0 || i.QuantityScale < 0 {
		errs = append(errs, "scales must be >= 0")
	}
	one := decimal.NewFromInt(1)
	for _, f := range []decimal.Decimal{i.BuyFee, i.SellFee} {
		if f.IsNegative() || f.GreaterThanOrEqual(one) {
			errs = append(errs, fmt.Sprintf("fee %s must be in [0, 1)", f))
			break
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("instrument %s: %s", i.Key(), strings.Join(errs, "; "))
	}
	return nil
}

// ParseInstrumentKey splits "venue:BASE_QUOTE" into its parts.
func ParseInstrumentKey(key string) (venue, base, quote string, err error) {
	venue, symbol, ok := strings.Cut(key, ":")
	if !ok || venue == "" {
		return "", "", "", fmt.Errorf("instrument key %q: want venue:BASE_QUOTE", key)
	}
	base, quote, ok = strings.Cut(symbol, "_")
	if !ok || base == "" || quote == "" {
		return "", "", "", fmt.Errorf("instrument key %q: want venue:BASE_QUOTE", key)
	}
	return venue, strings.ToUpper(base), strings.ToUpper(quote), nil
}
