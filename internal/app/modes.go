package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/arbengine/internal/blob/s3"
	"github.com/alanyoungcy/arbengine/internal/cache/redis"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/executor"
	"github.com/alanyoungcy/arbengine/internal/feed"
	"github.com/alanyoungcy/arbengine/internal/server"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
)

// TradeMode runs one engine per configured cycle against live or paper
// venues, plus any depth streams and the HTTP server.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies, defs []domain.CycleDefinition) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.String("mode", a.cfg.Mode),
		slog.Int("cycles", len(defs)),
	)

	venues, runners, err := a.buildVenues(defs, deps)
	if err != nil {
		return err
	}
	engines := a.buildEngines(defs, venues, deps)

	g, ctx := errgroup.WithContext(ctx)
	for _, run := range runners {
		g.Go(func() error { return run(ctx) })
	}
	for _, eng := range engines {
		g.Go(func() error {
			if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("trade mode: %w", err)
			}
			return nil
		})
	}

	if a.cfg.Server.Enabled {
		sources := make([]handler.StatusSource, len(engines))
		for i, eng := range engines {
			sources[i] = eng
		}
		a.startHTTPServer(ctx, g, deps, sources)
	}

	return g.Wait()
}

// buildEngines wires one engine per cycle definition. Every engine shares
// the venues and stores but owns its own state.
func (a *App) buildEngines(defs []domain.CycleDefinition, venues domain.Venues, deps *Dependencies) []*engine.Engine {
	ec := a.cfg.Engine
	var locks domain.LockManager
	if ec.UseLock {
		locks = deps.Locks
	}

	engines := make([]*engine.Engine, 0, len(defs))
	for _, def := range defs {
		gate := feed.NewSnapshotGate(venues, ec.Staleness.Duration, a.logger)
		// Live processes publish their books so paper processes can trade
		// against them.
		if deps.Ladders != nil && a.cfg.Mode == "live" {
			gate.WithLadderCache(deps.Ladders)
		}

		engines = append(engines, engine.New(def, engine.Config{
			Cadence:          ec.Cadence.Duration,
			FailureBackoff:   ec.FailureBackoff.Duration,
			SyncBalanceEvery: uint64(ec.SyncBalanceEvery),
			SyncOrdersEvery:  uint64(ec.SyncOrdersEvery),
			MaxPlanOrders:    ec.MaxPlanOrders,
			LockTTL:          ec.LockTTL.Duration,
		}, engine.Deps{
			Gate: gate,
			Lifecycle: executor.NewLifecycle(executor.LifecycleConfig{
				Venues:     venues,
				Orders:     deps.Orders,
				Executions: deps.Executions,
				Events:     deps.Events,
				Metrics:    deps.Metrics,
				Logger:     a.logger,
			}),
			Reconciler: executor.NewReconciler(executor.ReconcilerConfig{
				Venues:           venues,
				Orders:           deps.Orders,
				Balances:         deps.Balances,
				Limiter:          deps.Limiter,
				Events:           deps.Events,
				Metrics:          deps.Metrics,
				Logger:           a.logger,
				PollLimit:        ec.PollLimit,
				PollWindow:       ec.PollWindow.Duration,
				ReplanCanceled:   ec.ReplanCanceled,
				CancelStaleAfter: ec.CancelStaleAfter.Duration,
			}),
			Orders:  deps.Orders,
			Locks:   locks,
			Events:  deps.Events,
			Metrics: deps.Metrics,
			Logger:  a.logger,
		}))
	}
	return engines
}

// ArchiveMode moves terminal order rows older than the retention window to
// object storage and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Blob == nil {
		return fmt.Errorf("archive mode: blob storage is not configured")
	}
	before := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	a.logger.InfoContext(ctx, "starting archive mode", slog.Time("before", before))

	archiver := s3blob.NewArchiver(deps.Blob, deps.Orders, deps.Audit, a.logger)
	n, err := archiver.ArchiveOrders(ctx, before)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive complete", slog.Int64("orders", n))
	return nil
}

// startHTTPServer adds an HTTP server goroutine to the given errgroup. It
// shuts the server down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, engines []handler.StatusSource) {
	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(deps.Health, a.logger),
		Status:     handler.NewStatusHandler(a.cfg.Mode, engines),
		Orders:     handler.NewOrderHandler(deps.Orders, a.logger),
		Executions: handler.NewExecutionHandler(deps.Executions, a.logger),
		Audit:      handler.NewAuditHandler(deps.Audit, a.logger),
		Metrics:    deps.Metrics.Handler(),
	}
	if deps.Balances != nil {
		handlers.Balances = handler.NewBalanceHandler(deps.Balances, a.logger)
	}
	if deps.Bus != nil {
		handlers.Events = handler.NewEventHandler(deps.Bus, redis.EventsStream, a.logger)
	}

	srv := server.NewServer(server.Config{
		Addr:       ":" + strconv.Itoa(a.cfg.Server.Port),
		APIKey:     a.cfg.Server.APIKey,
		RateLimit:  a.cfg.Server.RateLimit,
		RateWindow: a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.Limiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
