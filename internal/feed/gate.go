// Package feed gathers consistent market snapshots across venues.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// DefaultStaleness bounds how long a full snapshot may take to gather.
const DefaultStaleness = time.Second

// mirrorTimeout bounds the best-effort ladder cache write after a snapshot.
const mirrorTimeout = 250 * time.Millisecond

// SnapshotGate fetches every ladder a cycle needs in parallel and only lets a
// snapshot through when it is complete and was gathered within the staleness
// bound.
type SnapshotGate struct {
	venues    domain.Venues
	staleness time.Duration
	mirror    domain.LadderCache
	logger    *slog.Logger
	now       func() time.Time
}

// NewSnapshotGate creates a gate over venues. A non-positive staleness uses
// DefaultStaleness.
func NewSnapshotGate(venues domain.Venues, staleness time.Duration, logger *slog.Logger) *SnapshotGate {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &SnapshotGate{
		venues:    venues,
		staleness: staleness,
		logger:    logger.With(slog.String("component", "snapshot_gate")),
		now:       time.Now,
	}
}

// WithLadderCache mirrors every accepted snapshot into cache.
func (g *SnapshotGate) WithLadderCache(cache domain.LadderCache) *SnapshotGate {
	g.mirror = cache
	return g
}

// Staleness returns the configured bound.
func (g *SnapshotGate) Staleness() time.Duration { return g.staleness }

// Fetch returns ladders for every instrument, keyed by Instrument.Key. It
// fails with ErrStaleSnapshot when gathering hits the deadline or exceeds the
// bound, and with ErrIncompleteDepth when a fetch fails or a ladder has an
// empty side.
func (g *SnapshotGate) Fetch(ctx context.Context, insts []domain.Instrument) (domain.Snapshot, error) {
	start := g.now()
	fctx, cancel := context.WithTimeout(ctx, g.staleness)
	defer cancel()

	ladders := make([]domain.Ladder, len(insts))
	eg, ectx := errgroup.WithContext(fctx)
	for i, inst := range insts {
		ex, err := g.venues.Get(inst.Venue)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("feed: %s: %w", inst.Key(), err)
		}
		eg.Go(func() error {
			l, err := ex.GetDepth(ectx, inst)
			if err != nil {
				return fmt.Errorf("%s: %w", inst.Key(), err)
			}
			l.Instrument = inst
			ladders[i] = l
			return nil
		})
	}
	err := eg.Wait()
	elapsed := g.now().Sub(start)

	switch {
	case ctx.Err() != nil:
		return domain.Snapshot{}, ctx.Err()
	case errors.Is(fctx.Err(), context.DeadlineExceeded), elapsed > g.staleness:
		return domain.Snapshot{}, fmt.Errorf("feed: %w: took %s, bound %s", domain.ErrStaleSnapshot, elapsed, g.staleness)
	case err != nil:
		return domain.Snapshot{}, fmt.Errorf("feed: %w: %v", domain.ErrIncompleteDepth, err)
	}

	snap := domain.Snapshot{
		Ladders:  make(map[string]domain.Ladder, len(ladders)),
		TakenAt:  start,
		Duration: elapsed,
	}
	for _, l := range ladders {
		if !l.Usable() {
			return domain.Snapshot{}, fmt.Errorf("feed: %w: %s has an empty side", domain.ErrIncompleteDepth, l.Instrument.Key())
		}
		snap.Ladders[l.Instrument.Key()] = l
	}

	if g.mirror != nil {
		g.mirrorSnapshot(ctx, ladders)
	}
	return snap, nil
}

func (g *SnapshotGate) mirrorSnapshot(ctx context.Context, ladders []domain.Ladder) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	go func() {
		defer cancel()
		for _, l := range ladders {
			if err := g.mirror.SetLadder(mctx, l); err != nil {
				g.logger.Warn("ladder mirror failed",
					slog.String("instrument", l.Instrument.Key()),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}()
}
