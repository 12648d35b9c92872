// Policache bounds how many entries a backing store holds. A cache layer decides which keys survive according to its
// eviction policy and forwards every change to the store asynchronously. This module provides the interface shared
// by every policy, the sharded cache and the outer ports.

package cache

import (
	"context"

	"github.com/nobletooth/policache/pkg/utils"
)

// Layer is a bounded key-value cache in front of a storage.Store.
//
// Bookkeeping is applied synchronously: once Set, Remove or RemoveAll return, the cache's view (Contains, Keys, Len)
// reflects the change. The matching store operations run in the background in call order; the returned Pending
// reports their outcome and may be ignored.
type Layer[V any] interface {
	// Get returns the value of `key` and whether it was found.
	Get(ctx context.Context, key string) (V, bool)
	// Set inserts or updates `key`, evicting another key if the cache is full.
	Set(key string, value V) *Pending
	// Remove drops `key` from the cache and the store. It also reports whether the cache was tracking `key`.
	Remove(key string) (*Pending, bool)
	// RemoveAll drops every key from the cache and the store.
	RemoveAll() *Pending
	// Contains reports whether `key` is tracked by the cache without changing its eviction order.
	Contains(key string) bool
	Keys() []string // Returns the tracked keys in eviction order, or sorted for sharded caches.
	Len() int       // Returns the number of tracked keys.
	// Flush blocks until every store operation submitted so far has completed.
	Flush(ctx context.Context) error
}

// validCapacity clamps non-positive capacities to 1.
func validCapacity(module string, capacity int) int {
	if capacity <= 0 {
		utils.RaiseInvariant(module, "non_positive_capacity",
			"Invalid capacity has been given to cache.", "capacity", capacity)
		return 1
	}
	return capacity
}
