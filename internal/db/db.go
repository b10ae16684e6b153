// Package db defines the key-value contract the quota daily record is kept
// behind. Backends live in the memory, sqlite and redis subpackages.
package db

import (
	"context"
	"time"
)

// Store is what cmd/replyguard opens at startup: a key-value backend that
// can also be health-checked and shut down.
type Store interface {
	Pinger
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger reports whether the backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore reads and writes expiring values. Every write carries a TTL so a
// record abandoned by a stopped process ages out on its own.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
