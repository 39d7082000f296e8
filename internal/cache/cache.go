// Package cache defines the shared tier behind the in-process tile cache.
package cache

import (
	"context"
	"time"
)

// Shared is a byte store reachable from every gateway replica.
type Shared interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// SetStore keeps string sets with an expiry; the area index lives in one.
type SetStore interface {
	SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error
}
