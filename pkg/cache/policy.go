package cache

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nobletooth/policache/pkg/storage"
)

var (
	cachePolicy     = flag.String("cache_policy", string(LRUPolicy), "Eviction policy; one of `fifo`, `lru` or `lfu`.")
	cacheCapacity   = flag.Int("cache_capacity", 1024, "Maximum number of keys kept by the cache.")
	cacheShardCount = flag.Int("cache_shard_count", 1, "Number of independently locked cache shards.")
)

// Policy names an eviction policy.
type Policy string

const (
	FIFOPolicy Policy = "fifo"
	LRUPolicy  Policy = "lru"
	LFUPolicy  Policy = "lfu"
)

// ParsePolicy resolves a case-insensitive policy name.
func ParsePolicy(name string) (Policy, error) {
	switch policy := Policy(strings.ToLower(strings.TrimSpace(name))); policy {
	case FIFOPolicy, LRUPolicy, LFUPolicy:
		return policy, nil
	default:
		return "", fmt.Errorf("unknown cache policy: %q", name)
	}
}

// shard is a policy instance that can be driven by Sharded.
type shard[V any] interface {
	Layer[V]
	lock()
	unlock()
	purgeLocked() // Resets bookkeeping without submitting store operations.
}

func newShard[V any](persist *persister[V], policy Policy, capacity int) (shard[V], error) {
	switch policy {
	case FIFOPolicy:
		return newFIFO(persist, capacity), nil
	case LRUPolicy:
		return newLRU(persist, capacity), nil
	case LFUPolicy:
		return newLFU(persist, capacity), nil
	default:
		return nil, fmt.Errorf("unknown cache policy: %q", policy)
	}
}

// New creates a single-shard cache of the given `policy` in front of `store`.
func New[V any](ctx context.Context, policy Policy, store storage.Store[V], capacity int) (Layer[V], error) {
	policy, err := ParsePolicy(string(policy))
	if err != nil {
		return nil, err
	}
	return newShard(newPersister(ctx, store, policy), policy, capacity)
}

// NewFromFlags creates the cache described by the cache_* flags.
func NewFromFlags[V any](ctx context.Context, store storage.Store[V]) (Layer[V], error) {
	policy, err := ParsePolicy(*cachePolicy)
	if err != nil {
		return nil, err
	}
	slog.Info("Creating cache.", "policy", policy, "capacity", *cacheCapacity, "shards", *cacheShardCount)
	if *cacheShardCount > 1 {
		sharded, err := NewSharded(ctx, policy, store, *cacheCapacity, *cacheShardCount)
		if err != nil {
			return nil, err
		}
		return sharded, nil
	}
	return New(ctx, policy, store, *cacheCapacity)
}
