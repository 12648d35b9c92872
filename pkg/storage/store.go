// Policache persists cache entries into a backing store. The cache decides which keys survive; the store only
// holds whatever it's told to hold and never interprets values.

package storage

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key was not found")

// Store is an opaque key-value store that a cache writes through to.
// Implementations must be safe for concurrent use.
type Store[V any] interface {
	// Get returns the value of `key`, or an error wrapping ErrKeyNotFound if the key is absent.
	Get(ctx context.Context, key string) (V, error)
	// Set inserts or overwrites the value of `key`.
	Set(ctx context.Context, key string, value V) error
	// Remove deletes `key`; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// RemoveAll deletes every key held by the store.
	RemoveAll(ctx context.Context) error
	Close() error
}
