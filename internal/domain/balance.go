package domain

import "github.com/shopspring/decimal"

// Balances maps currency to its free (available) amount on one venue.
type Balances map[string]decimal.Decimal

// Free returns the free amount of currency, zero when absent.
func (b Balances) Free(currency string) decimal.Decimal {
	if v, ok := b[currency]; ok {
		return v
	}
	return decimal.Zero
}

// Clone returns an independent copy.
func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// BalanceSnapshot maps venue name to its balances.
type BalanceSnapshot map[string]Balances

// Free returns the free amount of currency on venue.
func (s BalanceSnapshot) Free(venue, currency string) decimal.Decimal {
	return s[venue].Free(currency)
}

// Debit subtracts amount from currency on venue, flooring at zero.
func (s BalanceSnapshot) Debit(venue, currency string, amount decimal.Decimal) {
	b, ok := s[venue]
	if !ok {
		b = Balances{}
		s[venue] = b
	}
	left := b.Free(currency).Sub(amount)
	if left.IsNegative() {
		left = decimal.Zero
	}
	b[currency] = left
}

// Clone returns an independent deep copy.
func (s BalanceSnapshot) Clone() BalanceSnapshot {
	out := make(BalanceSnapshot, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

// Decreased reports whether any currency on venue is lower in s than in prev.
func (s BalanceSnapshot) Decreased(prev BalanceSnapshot, venue string) bool {
	for cur, old := range prev[venue] {
		if s.Free(venue, cur).LessThan(old) {
			return true
		}
	}
	return false
}
