package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/arbengine/internal/blob/s3"
	"github.com/alanyoungcy/arbengine/internal/cache/redis"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/metrics"
	"github.com/alanyoungcy/arbengine/internal/notify"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
	"github.com/alanyoungcy/arbengine/internal/store/memory"
	"github.com/alanyoungcy/arbengine/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes need. It is constructed
// by Wire and torn down by the returned cleanup function. Redis-backed
// fields are nil when Redis is disabled; Blob is nil outside archive mode.
type Dependencies struct {
	// Stores
	Orders     domain.OrderStore
	Executions domain.ExecutionStore
	Audit      domain.AuditStore

	// Caches
	Balances domain.BalanceCache
	Ladders  *redis.LadderCache
	Limiter  domain.RateLimiter
	Locks    domain.LockManager
	Bus      domain.SignalBus

	// Blob storage
	Blob domain.BlobWriter

	// Events fans engine events out to the stream, notifiers and audit log.
	Events   domain.EventSink
	Notifier *notify.Notifier

	Metrics *metrics.Metrics
	Health  map[string]handler.Check
}

// needsPostgres returns true when the mode or config requires a database.
func needsPostgres(cfg *config.Config) bool {
	return cfg.Postgres.Enabled || strings.ToLower(cfg.Mode) == "archive"
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	return strings.ToLower(mode) == "archive"
}

// Wire constructs the concrete dependency implementations from cfg and
// returns them together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Health:  map[string]handler.Check{},
	}

	// --- PostgreSQL, or in-memory stores when persistence is off ---
	if needsPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Orders = postgres.NewOrderStore(pool)
		deps.Executions = postgres.NewExecutionStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pgClient.Ping
	} else {
		logger.WarnContext(ctx, "postgres disabled, orders are kept in memory and lost on restart")
		deps.Orders = memory.NewOrderStore()
		deps.Executions = memory.NewExecutionStore()
		deps.Audit = memory.NewAuditStore()
	}

	// --- Redis ---
	var stream domain.EventSink
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Balances = redis.NewBalanceCache(redisClient)
		deps.Ladders = redis.NewLadderCache(redisClient, cfg.Redis.LadderTTL.Duration)
		deps.Limiter = redis.NewRateLimiter(redisClient, cfg.Engine.PollLimit, cfg.Engine.PollWindow.Duration)
		deps.Locks = redis.NewLockManager(redisClient)
		bus := redis.NewSignalBus(redisClient)
		deps.Bus = bus
		stream = redis.NewEventStream(bus, logger)
		deps.Health["redis"] = redisClient.Ping
	}

	// --- S3 blob storage (only for modes that need object storage) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blob = s3blob.NewWriter(s3Client)
		deps.Health["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}

	sinks := notify.Fanout{notify.NewAuditSink(deps.Audit, logger)}
	if stream != nil {
		sinks = append(sinks, stream)
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Prefix, logger)
		// Registered last so it closes first and drains in-flight sends
		// before the stores go away.
		closers = append(closers, func() { _ = deps.Notifier.Close() })
		sinks = append(sinks, deps.Notifier)
	}
	deps.Events = sinks

	return deps, cleanup, nil
}
