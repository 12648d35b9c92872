// LFU evicts the least frequently used key. Keys are grouped into frequency buckets kept in ascending order after a
// frequency 0 head sentinel; every bucket holds the keys accessed exactly that many times, oldest arrival first.
// A hit moves the key into the next bucket (creating it if the next frequency is missing), so every operation is
// O(1). Empty buckets are unlinked right away.
//
// The victim is the oldest key of the lowest bucket. Buckets share a single key slab, so moving a key between
// buckets relinks its node instead of reallocating it.

package cache

import (
	"context"
	"sync"

	"github.com/nobletooth/policache/pkg/storage"
	"github.com/nobletooth/policache/pkg/utils"
)

// frequencyBucket holds the keys with the same access count.
type frequencyBucket struct {
	frequency int
	keys      linkedList[string] // Front is the key that entered the bucket first.
}

type lfuEntry[V any] struct {
	value  V
	bucket handle // Node of the bucket inside LFU.buckets.
	node   handle // Node of the key inside the bucket's key list.
}

// LFU is a thread-safe least-frequently-used cache.
type LFU[V any] struct { // Implements Layer.
	mux      sync.Mutex
	capacity int
	buckets  linkedList[frequencyBucket] // Ascending frequencies; the head sentinel has frequency 0.
	keySlab  *slab[string]               // Shared by the key lists of every bucket.
	entries  map[string]*lfuEntry[V]
	persist  *persister[V]
}

var _ Layer[[]byte] = (*LFU[[]byte])(nil)

// NewLFU is the constructor for LFU. Store operations run until `ctx` is cancelled.
func NewLFU[V any](ctx context.Context, store storage.Store[V], capacity int) *LFU[V] {
	return newLFU(newPersister(ctx, store, LFUPolicy), capacity)
}

func newLFU[V any](persist *persister[V], capacity int) *LFU[V] {
	capacity = validCapacity(string(LFUPolicy), capacity)
	return &LFU[V]{
		capacity: capacity,
		buckets:  newLinkedList(newSlab[frequencyBucket](8), frequencyBucket{}),
		keySlab:  newSlab[string](capacity + 8),
		entries:  make(map[string]*lfuEntry[V], capacity),
		persist:  persist,
	}
}

// bucketAt returns the bucket stored in `h`. The pointer is invalidated once another bucket is allocated.
func (c *LFU[V]) bucketAt(h handle) *frequencyBucket {
	return c.buckets.slab.at(h)
}

// bucketAfter returns the bucket right after `at` if it has `frequency`, or links a new one there.
func (c *LFU[V]) bucketAfter(at handle, frequency int) handle {
	if next, ok := c.buckets.Next(at); ok && c.bucketAt(next).frequency == frequency {
		return next
	}
	if next, ok := c.buckets.Next(at); ok && c.bucketAt(next).frequency < frequency {
		utils.RaiseInvariant(string(LFUPolicy), "bucket_order", "Frequency buckets are not ascending.",
			"frequency", frequency, "next", c.bucketAt(next).frequency)
	}
	keys := newLinkedList(c.keySlab, "")
	return c.buckets.InsertAfter(at, frequencyBucket{frequency: frequency, keys: keys})
}

// unlinkIfEmpty drops the bucket `h` once its last key is gone.
func (c *LFU[V]) unlinkIfEmpty(h handle) {
	bucket := c.bucketAt(h)
	if bucket.keys.Len() > 0 {
		return
	}
	bucket.keys.Free()
	c.buckets.Remove(h)
}

// touchLocked moves the key of `entry` into the bucket of the next frequency.
func (c *LFU[V]) touchLocked(entry *lfuEntry[V]) {
	source := entry.bucket
	target := c.bucketAfter(source, c.bucketAt(source).frequency+1)
	c.bucketAt(source).keys.MoveToBackOf(&c.bucketAt(target).keys, entry.node)
	entry.bucket = target
	c.unlinkIfEmpty(source)
}

// Get returns the in-memory value of `key` and counts the access.
func (c *LFU[V]) Get(_ context.Context, key string) (V, bool /*found*/) {
	c.mux.Lock()
	defer c.mux.Unlock()
	entry, exists := c.entries[key]
	recordLookup(LFUPolicy, exists)
	if !exists {
		return *new(V), false
	}
	c.touchLocked(entry)
	return entry.value, true
}

// Set updates a known key (counting it as an access) or admits a new key with frequency 1, evicting the least
// frequently used key first when the cache is full.
func (c *LFU[V]) Set(key string, value V) *Pending {
	c.mux.Lock()
	defer c.mux.Unlock()

	if entry, exists := c.entries[key]; exists {
		c.touchLocked(entry)
		entry.value = value
		return c.persist.persist(setOp(key, value))
	}

	ops := make([]storeOp[V], 0, 2)
	if len(c.entries) >= c.capacity {
		if evicted, ok := c.evictLocked(); ok {
			ops = append(ops, removeOp[V](evicted))
		}
	}
	bucket := c.bucketAfter(c.buckets.head, 1)
	node := c.bucketAt(bucket).keys.PushBack(key)
	c.entries[key] = &lfuEntry[V]{value: value, bucket: bucket, node: node}
	return c.persist.persist(append(ops, setOp(key, value))...)
}

// evictLocked drops the oldest key of the lowest frequency bucket.
func (c *LFU[V]) evictLocked() (string, bool) {
	lowest, ok := c.buckets.Front()
	if !ok {
		utils.RaiseInvariant(string(LFUPolicy), "evict_from_empty", "Tried to evict without frequency buckets.",
			"entries", len(c.entries))
		return "", false
	}
	keys := &c.bucketAt(lowest).keys
	oldest, ok := keys.Front()
	if !ok {
		utils.RaiseInvariant(string(LFUPolicy), "empty_bucket", "An empty frequency bucket is still linked.",
			"frequency", c.bucketAt(lowest).frequency)
		c.unlinkIfEmpty(lowest)
		return "", false
	}
	key := keys.Remove(oldest)
	delete(c.entries, key)
	c.unlinkIfEmpty(lowest)
	recordEviction(LFUPolicy)
	return key, true
}

// Remove drops `key`; removing an untracked key is a no-op and never reaches the store.
func (c *LFU[V]) Remove(key string) (*Pending, bool /*tracked*/) {
	c.mux.Lock()
	defer c.mux.Unlock()
	entry, exists := c.entries[key]
	if !exists {
		return completed(nil), false
	}
	c.bucketAt(entry.bucket).keys.Remove(entry.node)
	c.unlinkIfEmpty(entry.bucket)
	delete(c.entries, key)
	return c.persist.persist(removeOp[V](key)), true
}

func (c *LFU[V]) RemoveAll() *Pending {
	c.lock()
	defer c.unlock()
	c.purgeLocked()
	return c.persist.persist(removeAllOp[V]())
}

func (c *LFU[V]) Contains(key string) bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	_, exists := c.entries[key]
	return exists
}

// Keys returns the tracked keys by ascending frequency, oldest first within a frequency.
func (c *LFU[V]) Keys() []string {
	c.mux.Lock()
	defer c.mux.Unlock()
	keys := make([]string, 0, len(c.entries))
	for bucket := range c.buckets.Values() {
		for key := range bucket.keys.Values() {
			keys = append(keys, key)
		}
	}
	return keys
}

// Frequency returns the access count of `key`, or 0 when it's not tracked.
func (c *LFU[V]) Frequency(key string) int {
	c.mux.Lock()
	defer c.mux.Unlock()
	entry, exists := c.entries[key]
	if !exists {
		return 0
	}
	return c.bucketAt(entry.bucket).frequency
}

func (c *LFU[V]) Len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.entries)
}

func (c *LFU[V]) Flush(ctx context.Context) error {
	return c.persist.flush(ctx)
}

func (c *LFU[V]) lock()   { c.mux.Lock() }
func (c *LFU[V]) unlock() { c.mux.Unlock() }

// purgeLocked discards every bucket and leaves only the sentinels, without touching the store.
func (c *LFU[V]) purgeLocked() {
	c.keySlab.reset()
	c.buckets.slab.reset()
	c.buckets = newLinkedList(c.buckets.slab, frequencyBucket{})
	clear(c.entries)
}
