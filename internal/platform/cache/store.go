package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a store that cannot currently serve requests.
var ErrUnavailable = errors.New("cache: store unavailable")

// Entry is a stored value with its bookkeeping timestamps. A zero ExpiresAt never expires.
type Entry struct {
	Value     []byte
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Remaining reports how long the entry stays valid after now. Zero means no expiry.
func (e Entry) Remaining(now time.Time) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	if d := e.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return time.Nanosecond
}

// Store is one backend in a cache chain.
type Store interface {
	// Name identifies the store in logs and metrics.
	Name() string
	// Get returns the entry for key. A missing or expired key reports false with a nil error.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores value under key. A non-positive ttl stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix removes every key starting with prefix and returns the number removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
