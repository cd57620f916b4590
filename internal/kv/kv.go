package kv

import (
	"context"
	"time"
)

// Store is a key-value store with expiring keys, used to deduplicate work across
// broker instances.
type Store interface {
	// SetNX sets the key only if it doesn't exist. Returns true if the key was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns model.ErrNotFound if the key is missing or expired.
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
