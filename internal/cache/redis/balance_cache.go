package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// tsField holds the sync time inside a balance hash. Currencies are upper
// case so it cannot collide.
const tsField = "_ts"

// BalanceCache publishes the engine's balance view so operators and sibling
// processes can read it.
//
// Key schema:
//
//	arb:balance:{venue} - hash currency -> free amount, plus _ts (unix nanos)
type BalanceCache struct {
	c *Client
}

// NewBalanceCache creates a BalanceCache on c.
func NewBalanceCache(c *Client) *BalanceCache {
	return &BalanceCache{c: c}
}

// SetBalances replaces venue's hash atomically.
func (bc *BalanceCache) SetBalances(ctx context.Context, venue string, balances domain.Balances, ts time.Time) error {
	key := bc.c.key("balance", venue)
	fields := make(map[string]any, len(balances)+1)
	for cur, amt := range balances {
		fields[cur] = amt.String()
	}
	fields[tsField] = strconv.FormatInt(ts.UnixNano(), 10)

	pipe := bc.c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set balances %s: %w", venue, err)
	}
	return nil
}

// GetBalances returns domain.ErrNotFound when venue was never published.
func (bc *BalanceCache) GetBalances(ctx context.Context, venue string) (domain.Balances, time.Time, error) {
	raw, err := bc.c.rdb.HGetAll(ctx, bc.c.key("balance", venue)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get balances %s: %w", venue, err)
	}
	if len(raw) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	var ts time.Time
	out := make(domain.Balances, len(raw))
	var errs []error
	for field, v := range raw {
		if field == tsField {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("timestamp %q: %w", v, err))
				continue
			}
			ts = time.Unix(0, n).UTC()
			continue
		}
		amt, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", field, v, err))
			continue
		}
		out[field] = amt
	}
	if err := errors.Join(errs...); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: decode balances %s: %w", venue, err)
	}
	return out, ts, nil
}

var _ domain.BalanceCache = (*BalanceCache)(nil)
