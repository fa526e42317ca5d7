package db

import (
	"context"
	"time"
)

// Store is the backend contract the repositories depend on: KNN vector
// search over prebuilt indexes plus a small KV surface for caching.
// Implementations must be safe for concurrent use.
type Store interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}
