// This module implements cache sharding which distributes keys uniformly across cache shards. Each policy instance
// guards its bookkeeping with one mutex; sharding spreads the keys over several instances so goroutines touching
// different keys rarely wait on the same lock.
//
// All shards submit to one shared persister, so store operations keep a single global order. RemoveAll locks every
// shard at once and submits a single store RemoveAll; no shard can slip a write in between.

package cache

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/nobletooth/policache/pkg/scan"
	"github.com/nobletooth/policache/pkg/storage"
	"github.com/nobletooth/policache/pkg/utils"
)

// Sharded is a cache that distributes keys across multiple policy instances (shards).
type Sharded[V any] struct { // Implements Layer.
	shards  []shard[V]
	persist *persister[V]
}

var _ Layer[[]byte] = (*Sharded[[]byte])(nil)

// NewSharded is the constructor for Sharded. The total `capacity` is split across shards so that their capacities
// add up to it exactly; shards never get less than one key, so `shardCount` is lowered to `capacity` if needed.
func NewSharded[V any](ctx context.Context, policy Policy, store storage.Store[V], capacity, shardCount int,
) (*Sharded[V], error) {
	policy, err := ParsePolicy(string(policy))
	if err != nil {
		return nil, err
	}
	if shardCount <= 0 {
		utils.RaiseInvariant("shard", "non_positive_shard_count",
			"Invalid shard count has been given to sharded cache.", "shardCount", shardCount)
		shardCount = 1
	}
	capacity = validCapacity("shard", capacity)
	if shardCount > capacity {
		slog.Warn("Lowering shard count to the cache capacity.", "shardCount", shardCount, "capacity", capacity)
		shardCount = capacity
	}

	sharded := &Sharded[V]{shards: make([]shard[V], shardCount), persist: newPersister(ctx, store, policy)}
	for i := range shardCount {
		shardCapacity := capacity / shardCount
		if i < capacity%shardCount { // The remainder goes to the first shards.
			shardCapacity++
		}
		if sharded.shards[i], err = newShard(sharded.persist, policy, shardCapacity); err != nil {
			return nil, fmt.Errorf("failed to create shard %d: %w", i, err)
		}
	}
	return sharded, nil
}

// getShard maps `key` to its shard by hash.
func (c *Sharded[V]) getShard(key string) shard[V] {
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

func (c *Sharded[V]) Get(ctx context.Context, key string) (V, bool /*found*/) {
	return c.getShard(key).Get(ctx, key)
}

func (c *Sharded[V]) Set(key string, value V) *Pending {
	return c.getShard(key).Set(key, value)
}

func (c *Sharded[V]) Remove(key string) (*Pending, bool /*tracked*/) {
	return c.getShard(key).Remove(key)
}

// RemoveAll purges every shard and the store as one step.
func (c *Sharded[V]) RemoveAll() *Pending {
	for _, s := range c.shards {
		s.lock()
	}
	defer func() {
		for _, s := range c.shards {
			s.unlock()
		}
	}()
	for _, s := range c.shards {
		s.purgeLocked()
	}
	return c.persist.persist(removeAllOp[V]())
}

func (c *Sharded[V]) Contains(key string) bool {
	return c.getShard(key).Contains(key)
}

// Keys merges the keys of every shard into one sorted slice. This walks every shard, so it's expensive on large
// caches.
func (c *Sharded[V]) Keys() []string {
	sequences := make([]iter.Seq[string], 0, len(c.shards))
	total := 0
	for _, s := range c.shards {
		keys := s.Keys()
		slices.Sort(keys)
		total += len(keys)
		sequences = append(sequences, slices.Values(keys))
	}
	merged, err := scan.MultiHead(utils.CompareKeys, sequences)
	if err != nil {
		utils.RaiseInvariant("shard", "merge_failed", "Failed to merge shard keys.", "err", err)
		return nil
	}
	return slices.AppendSeq(make([]string, 0, total), merged)
}

func (c *Sharded[V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

func (c *Sharded[V]) Flush(ctx context.Context) error {
	return c.persist.flush(ctx)
}

// ShardCount returns the number of shards.
func (c *Sharded[V]) ShardCount() int {
	return len(c.shards)
}
