// LRU evicts the least recently used key. Memory only tracks recency: the value of record lives in the store and
// every hit reads it back through the persister queue, so a read observes every write submitted before it.

package cache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nobletooth/policache/pkg/storage"
	"github.com/nobletooth/policache/pkg/utils"
)

// LRU is a thread-safe least-recently-used cache.
type LRU[V any] struct { // Implements Layer.
	mux      sync.Mutex
	capacity int
	recency  linkedList[string] // Front is the most recently used key; back is the next victim.
	index    map[string]handle
	persist  *persister[V]
}

var _ Layer[[]byte] = (*LRU[[]byte])(nil)

// NewLRU is the constructor for LRU. Store operations run until `ctx` is cancelled.
func NewLRU[V any](ctx context.Context, store storage.Store[V], capacity int) *LRU[V] {
	return newLRU(newPersister(ctx, store, LRUPolicy), capacity)
}

func newLRU[V any](persist *persister[V], capacity int) *LRU[V] {
	capacity = validCapacity(string(LRUPolicy), capacity)
	return &LRU[V]{
		capacity: capacity,
		recency:  newLinkedList(newSlab[string](capacity+2), ""),
		index:    make(map[string]handle, capacity),
		persist:  persist,
	}
}

// Get marks `key` as most recently used and reads its value from the store. A key the store can't serve is reported
// as missing but stays tracked.
func (c *LRU[V]) Get(ctx context.Context, key string) (V, bool /*found*/) {
	c.mux.Lock()
	node, exists := c.index[key]
	if !exists {
		c.mux.Unlock()
		recordLookup(LRUPolicy, false)
		return *new(V), false
	}
	c.recency.MoveToFront(node)
	read := c.persist.read(key)
	c.mux.Unlock()

	if err := read.pending.Wait(ctx); err != nil {
		slog.Debug("Failed to read through the store.", "policy", LRUPolicy, "key", key, "err", err)
		recordLookup(LRUPolicy, false)
		return *new(V), false
	}
	recordLookup(LRUPolicy, read.found)
	return read.value, read.found
}

// Set marks `key` as most recently used. Admitting a new key into a full cache evicts the least recently used one
// first.
func (c *LRU[V]) Set(key string, value V) *Pending {
	c.mux.Lock()
	defer c.mux.Unlock()

	if node, exists := c.index[key]; exists {
		c.recency.MoveToFront(node)
		return c.persist.persist(setOp(key, value))
	}
	ops := make([]storeOp[V], 0, 2)
	if c.recency.Len() >= c.capacity {
		if evicted, ok := c.evictLocked(); ok {
			ops = append(ops, removeOp[V](evicted))
		}
	}
	c.index[key] = c.recency.PushFront(key)
	c.checkLocked()
	return c.persist.persist(append(ops, setOp(key, value))...)
}

// evictLocked drops the least recently used key.
func (c *LRU[V]) evictLocked() (string, bool) {
	back, ok := c.recency.Back()
	if !ok {
		utils.RaiseInvariant(string(LRUPolicy), "evict_from_empty", "Tried to evict from an empty recency list.",
			"index", len(c.index))
		return "", false
	}
	key := c.recency.Remove(back)
	delete(c.index, key)
	recordEviction(LRUPolicy)
	return key, true
}

func (c *LRU[V]) checkLocked() {
	if len(c.index) != c.recency.Len() {
		utils.RaiseInvariant(string(LRUPolicy), "index_size_mismatch", "Key index and recency list disagree.",
			"index", len(c.index), "recency", c.recency.Len())
	}
}

// Remove drops `key`; removing an untracked key is a no-op and never reaches the store.
func (c *LRU[V]) Remove(key string) (*Pending, bool /*tracked*/) {
	c.mux.Lock()
	defer c.mux.Unlock()
	node, exists := c.index[key]
	if !exists {
		return completed(nil), false
	}
	c.recency.Remove(node)
	delete(c.index, key)
	return c.persist.persist(removeOp[V](key)), true
}

func (c *LRU[V]) RemoveAll() *Pending {
	c.lock()
	defer c.unlock()
	c.purgeLocked()
	return c.persist.persist(removeAllOp[V]())
}

func (c *LRU[V]) Contains(key string) bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	_, exists := c.index[key]
	return exists
}

// Keys returns the tracked keys from least to most recently used.
func (c *LRU[V]) Keys() []string {
	c.mux.Lock()
	defer c.mux.Unlock()
	keys := make([]string, 0, c.recency.Len())
	for node := range c.recency.Backward() {
		keys = append(keys, c.recency.Value(node))
	}
	return keys
}

func (c *LRU[V]) Len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.index)
}

func (c *LRU[V]) Flush(ctx context.Context) error {
	return c.persist.flush(ctx)
}

func (c *LRU[V]) lock()   { c.mux.Lock() }
func (c *LRU[V]) unlock() { c.mux.Unlock() }

// purgeLocked resets the recency list so its sentinels point at each other and clears the index.
func (c *LRU[V]) purgeLocked() {
	c.recency.slab.reset()
	c.recency = newLinkedList(c.recency.slab, "")
	clear(c.index)
}
