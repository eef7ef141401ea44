package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// DefaultLadderTTL bounds how long a mirrored ladder stays readable.
const DefaultLadderTTL = 30 * time.Second

// LadderCache mirrors the last usable ladder per instrument for dashboards
// and for paper venues that replay live depth.
//
// Key schema:
//
//	arb:ladder:{venue}:{BASE_QUOTE} - JSON ladder, expires after ttl
//	arb:ladders                     - sorted set of instrument keys by fetch time
type LadderCache struct {
	c   *Client
	ttl time.Duration
}

// NewLadderCache creates a LadderCache. A non-positive ttl uses
// DefaultLadderTTL.
func NewLadderCache(c *Client, ttl time.Duration) *LadderCache {
	if ttl <= 0 {
		ttl = DefaultLadderTTL
	}
	return &LadderCache{c: c, ttl: ttl}
}

// SetLadder stores ladder under its instrument key.
func (lc *LadderCache) SetLadder(ctx context.Context, ladder domain.Ladder) error {
	ik := ladder.Instrument.Key()
	data, err := json.Marshal(ladder)
	if err != nil {
		return fmt.Errorf("redis: marshal ladder %s: %w", ik, err)
	}
	at := ladder.FetchedAt
	if at.IsZero() {
		at = time.Now()
	}

	pipe := lc.c.rdb.TxPipeline()
	pipe.Set(ctx, lc.c.key("ladder", ik), data, lc.ttl)
	pipe.ZAdd(ctx, lc.c.key("ladders"), redis.Z{Score: float64(at.UnixMilli()), Member: ik})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set ladder %s: %w", ik, err)
	}
	return nil
}

// GetLadder returns domain.ErrNotFound when nothing fresh is mirrored.
func (lc *LadderCache) GetLadder(ctx context.Context, inst domain.Instrument) (domain.Ladder, error) {
	ik := inst.Key()
	data, err := lc.c.rdb.Get(ctx, lc.c.key("ladder", ik)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Ladder{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Ladder{}, fmt.Errorf("redis: get ladder %s: %w", ik, err)
	}
	var l domain.Ladder
	if err := json.Unmarshal(data, &l); err != nil {
		return domain.Ladder{}, fmt.Errorf("redis: decode ladder %s: %w", ik, err)
	}
	l.Instrument = inst
	return l, nil
}

// GetDepth lets the cache act as a paper venue's depth source.
func (lc *LadderCache) GetDepth(ctx context.Context, inst domain.Instrument) (domain.Ladder, error) {
	return lc.GetLadder(ctx, inst)
}

// Recent lists instrument keys mirrored since the given time, newest first.
func (lc *LadderCache) Recent(ctx context.Context, since time.Time) ([]string, error) {
	keys, err := lc.c.rdb.ZRevRangeByScore(ctx, lc.c.key("ladders"), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.UnixMilli()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: recent ladders: %w", err)
	}
	return keys, nil
}

var (
	_ domain.LadderCache = (*LadderCache)(nil)
	_ domain.DepthSource = (*LadderCache)(nil)
)
