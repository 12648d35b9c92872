// FIFO evicts keys in insertion order. Setting a known key counts as a fresh insertion: the key moves to the back of
// the queue. Lookups never change the order.

package cache

import (
	"context"
	"slices"
	"sync"

	"github.com/nobletooth/policache/pkg/storage"
	"github.com/nobletooth/policache/pkg/utils"
)

type fifoEntry[V any] struct {
	value V
	node  handle // Position inside FIFO.queue.
}

// FIFO is a thread-safe first-in-first-out cache.
type FIFO[V any] struct { // Implements Layer.
	mux      sync.RWMutex
	capacity int
	queue    linkedList[string] // Front is the oldest key, i.e. the next victim.
	entries  map[string]fifoEntry[V]
	persist  *persister[V]
}

var _ Layer[[]byte] = (*FIFO[[]byte])(nil)

// NewFIFO is the constructor for FIFO. Store operations run until `ctx` is cancelled.
func NewFIFO[V any](ctx context.Context, store storage.Store[V], capacity int) *FIFO[V] {
	return newFIFO(newPersister(ctx, store, FIFOPolicy), capacity)
}

func newFIFO[V any](persist *persister[V], capacity int) *FIFO[V] {
	capacity = validCapacity(string(FIFOPolicy), capacity)
	return &FIFO[V]{
		capacity: capacity,
		queue:    newLinkedList(newSlab[string](capacity+3), ""),
		entries:  make(map[string]fifoEntry[V], capacity+1),
		persist:  persist,
	}
}

// Get returns the in-memory value of `key`.
func (c *FIFO[V]) Get(_ context.Context, key string) (V, bool /*found*/) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	entry, found := c.entries[key]
	recordLookup(FIFOPolicy, found)
	return entry.value, found
}

// Set appends `key` to the back of the queue and evicts the oldest key if the cache overflows.
func (c *FIFO[V]) Set(key string, value V) *Pending {
	c.mux.Lock()
	defer c.mux.Unlock()

	if entry, exists := c.entries[key]; exists {
		c.queue.Remove(entry.node)
	}
	c.entries[key] = fifoEntry[V]{value: value, node: c.queue.PushBack(key)}
	ops := []storeOp[V]{setOp(key, value)}
	if c.queue.Len() > c.capacity {
		if evicted, ok := c.evictLocked(); ok {
			ops = append(ops, removeOp[V](evicted))
		}
	}
	c.checkLocked()
	return c.persist.persist(ops...)
}

// evictLocked drops the oldest key.
func (c *FIFO[V]) evictLocked() (string, bool) {
	front, ok := c.queue.Front()
	if !ok {
		utils.RaiseInvariant(string(FIFOPolicy), "evict_from_empty", "Tried to evict from an empty queue.",
			"entries", len(c.entries))
		return "", false
	}
	key := c.queue.Remove(front)
	delete(c.entries, key)
	recordEviction(FIFOPolicy)
	return key, true
}

func (c *FIFO[V]) checkLocked() {
	if len(c.entries) != c.queue.Len() {
		utils.RaiseInvariant(string(FIFOPolicy), "index_size_mismatch", "Key index and queue disagree.",
			"entries", len(c.entries), "queue", c.queue.Len())
	}
}

// Remove drops `key` if tracked. The store removal is submitted either way.
func (c *FIFO[V]) Remove(key string) (*Pending, bool /*tracked*/) {
	c.mux.Lock()
	defer c.mux.Unlock()
	entry, exists := c.entries[key]
	if exists {
		c.queue.Remove(entry.node)
		delete(c.entries, key)
	}
	return c.persist.persist(removeOp[V](key)), exists
}

func (c *FIFO[V]) RemoveAll() *Pending {
	c.lock()
	defer c.unlock()
	c.purgeLocked()
	return c.persist.persist(removeAllOp[V]())
}

func (c *FIFO[V]) Contains(key string) bool {
	c.mux.RLock()
	defer c.mux.RUnlock()
	_, exists := c.entries[key]
	return exists
}

// Keys returns the tracked keys from oldest to newest.
func (c *FIFO[V]) Keys() []string {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return slices.AppendSeq(make([]string, 0, c.queue.Len()), c.queue.Values())
}

func (c *FIFO[V]) Len() int {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return len(c.entries)
}

func (c *FIFO[V]) Flush(ctx context.Context) error {
	return c.persist.flush(ctx)
}

func (c *FIFO[V]) lock()   { c.mux.Lock() }
func (c *FIFO[V]) unlock() { c.mux.Unlock() }

// purgeLocked resets the queue and index without touching the store.
func (c *FIFO[V]) purgeLocked() {
	c.queue.slab.reset()
	c.queue = newLinkedList(c.queue.slab, "")
	clear(c.entries)
}
