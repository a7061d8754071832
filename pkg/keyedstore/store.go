package keyedstore

import (
	"context"
	"time"
)

// Store is a minimal durable key/value contract with TTL expiry. It backs
// the rate limiter and any other counter-style state shared across server
// instances. Get returns (nil, nil) when the key is absent or expired.
//
// Store does not provide insert-if-absent; callers that need an atomic
// reservation (the webhook guard) must use a uniqueness-enforcing table
// instead.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
