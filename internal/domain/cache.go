package domain

import (
	"context"
	"time"
)

// RateCache stores the last observed value of a quoted rate.
type RateCache interface {
	SetRate(ctx context.Context, key string, value float64, ts time.Time) error
	// GetRate returns ErrNotFound when nothing has been stored for key.
	GetRate(ctx context.Context, key string) (float64, time.Time, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe delivers messages published to channel until ctx is
	// cancelled, then closes the returned channel.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
