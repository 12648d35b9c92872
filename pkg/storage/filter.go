// Remote and on-disk stores answer "not found" for most cache misses. A bloom filter over every key ever written
// lets those stores skip the round trip for keys they've certainly never seen. Removals can't be reflected in a
// bloom filter, so removed keys only cost a lookup like before.

package storage

import (
	"flag"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

var (
	bloomCapacity = flag.Uint("store_bloom_capacity", 100_000,
		"Expected number of distinct keys used to size the store's negative lookup filter.")
	bloomFalsePositiveRate = flag.Float64("store_bloom_fp_rate", 0.01,
		"Target false positive rate of the store's negative lookup filter.")
)

// keyFilter is a thread-safe bloom filter of keys written to a store.
type keyFilter struct {
	mux    sync.RWMutex
	filter *bloom.BloomFilter
}

// newKeyFilter sizes a filter according to the configured flags.
func newKeyFilter() *keyFilter {
	capacity, fpRate := *bloomCapacity, *bloomFalsePositiveRate
	if capacity == 0 {
		capacity = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	return &keyFilter{filter: bloom.NewWithEstimates(capacity, fpRate)}
}

func (f *keyFilter) add(key string) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.filter.AddString(key)
}

// mayContain returns false only if `key` was never added since the last reset.
func (f *keyFilter) mayContain(key string) bool {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return f.filter.TestString(key)
}

func (f *keyFilter) reset() {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.filter.ClearAll()
}
