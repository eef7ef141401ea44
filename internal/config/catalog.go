package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// catalogFile is the YAML layout of the instrument catalog:
//
//	instruments:
//	  - venue: alpha
//	    base: ETH
//	    quote: BTC
//	    price_scale: 6
//	    quantity_scale: 3
//	    fee: "0.001"
type catalogFile struct {
	Instruments []catalogEntry `yaml:"instruments"`
}

type catalogEntry struct {
	Venue         string `yaml:"venue"`
	Base          string `yaml:"base"`
	Quote         string `yaml:"quote"`
	PriceScale    int32  `yaml:"price_scale"`
	QuantityScale int32  `yaml:"quantity_scale"`
	// Fee applies to both sides unless BuyFee or SellFee overrides it.
	Fee     string `yaml:"fee"`
	BuyFee  string `yaml:"buy_fee"`
	SellFee string `yaml:"sell_fee"`
}

// Catalog maps instrument keys ("venue:BASE_QUOTE") to instruments.
type Catalog map[string]domain.Instrument

// LoadCatalog reads and parses the YAML catalog at path.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog and validates every entry.
func ParseCatalog(data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: decode catalog: %w", err)
	}

	cat := make(Catalog, len(f.Instruments))
	var errs []error
	for i, e := range f.Instruments {
		inst, err := e.instrument()
		if err != nil {
			errs = append(errs, fmt.Errorf("instruments[%d]: %w", i, err))
			continue
		}
		if _, dup := cat[inst.Key()]; dup {
			errs = append(errs, fmt.Errorf("instruments[%d]: duplicate %s", i, inst.Key()))
			continue
		}
		cat[inst.Key()] = inst
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: catalog: %w", errors.Join(errs...))
	}
	return cat, nil
}

func (e catalogEntry) instrument() (domain.Instrument, error) {
	fee, err := parseFee(e.Fee, decimal.Zero)
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("fee: %w", err)
	}
	buy, err := parseFee(e.BuyFee, fee)
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("buy_fee: %w", err)
	}
	sell, err := parseFee(e.SellFee, fee)
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("sell_fee: %w", err)
	}
	inst := domain.Instrument{
		Venue:         strings.TrimSpace(e.Venue),
		Base:          strings.ToUpper(strings.TrimSpace(e.Base)),
		Quote:         strings.ToUpper(strings.TrimSpace(e.Quote)),
		PriceScale:    e.PriceScale,
		QuantityScale: e.QuantityScale,
		BuyFee:        buy,
		SellFee:       sell,
	}
	if err := inst.Validate(); err != nil {
		return domain.Instrument{}, err
	}
	return inst, nil
}

// parseFee parses a fee rate in [0, 1), returning def for an empty string.
func parseFee(s string, def decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("rate %s outside [0, 1)", d)
	}
	return d, nil
}

// Lookup resolves a configured instrument key. Base and quote are matched
// case-insensitively.
func (c Catalog) Lookup(key string) (domain.Instrument, error) {
	venue, base, quote, err := domain.ParseInstrumentKey(key)
	if err != nil {
		return domain.Instrument{}, err
	}
	inst, ok := c[venue+":"+base+"_"+quote]
	if !ok {
		return domain.Instrument{}, fmt.Errorf("instrument %s: %w", key, domain.ErrNotFound)
	}
	return inst, nil
}

// Venues lists the distinct venues in the catalog, sorted.
func (c Catalog) Venues() []string {
	seen := map[string]bool{}
	var out []string
	for _, inst := range c {
		if !seen[inst.Venue] {
			seen[inst.Venue] = true
			out = append(out, inst.Venue)
		}
	}
	sort.Strings(out)
	return out
}
