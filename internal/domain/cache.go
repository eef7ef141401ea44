package domain

import (
	"context"
	"time"
)

// BalanceCache publishes the engine's latest balance view per venue.
type BalanceCache interface {
	SetBalances(ctx context.Context, venue string, balances Balances, ts time.Time) error
	GetBalances(ctx context.Context, venue string) (Balances, time.Time, error)
}

// LadderCache mirrors the last usable ladder per instrument.
type LadderCache interface {
	SetLadder(ctx context.Context, ladder Ladder) error
	GetLadder(ctx context.Context, inst Instrument) (Ladder, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
