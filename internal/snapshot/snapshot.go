package snapshot

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists under the requested key.
var ErrNotFound = errors.New("snapshot not found")

// Store is a durable key/value blob store. The cart writes its rolling
// snapshot under one fixed key and parked sales under per-hold keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}
