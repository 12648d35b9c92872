package cache

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLRU(t *testing.T, store *fakeStore, capacity int) *LRU[string] {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewLRU[string](ctx, store, capacity)
}

// assertLRUStructure checks the recency list and the index describe the same keys.
func assertLRUStructure(t *testing.T, c *LRU[string]) {
	t.Helper()
	c.mux.Lock()
	defer c.mux.Unlock()
	require.Equal(t, len(c.index), c.recency.Len())
	for node := range c.recency.All() {
		key := c.recency.Value(node)
		indexed, exists := c.index[key]
		require.Truef(t, exists, "Listed key %s is missing from the index", key)
		require.Equal(t, node, indexed)
	}
	// Sentinels always point at each other when the list is empty.
	if c.recency.Len() == 0 {
		assert.Equal(t, c.recency.tail, c.recency.slab.node(c.recency.head).next)
		assert.Equal(t, c.recency.head, c.recency.slab.node(c.recency.tail).prev)
	}
}

func TestLRU_Scenario(t *testing.T) {
	store := newFakeStore()
	c := newTestLRU(t, store, 2)
	c.Set("a", "1")
	c.Set("b", "2")
	_, found := c.Get(context.Background(), "a")
	require.True(t, found)
	c.Set("c", "3")

	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("a"))
	assert.True(t, c.Contains("c"))
	assert.Equal(t, []string{"a", "c"}, c.Keys())
	assertLRUStructure(t, c)

	require.NoError(t, c.Flush(context.Background()))
	// The victim is removed before the new key is written.
	assert.Equal(t, []string{"set a=1", "set b=2", "remove b", "set c=3"}, store.writes())
	assert.Equal(t, []string{"a", "c"}, store.keys())
}

func TestLRU_ReadsThroughStore(t *testing.T) {
	store := newFakeStore()
	c := newTestLRU(t, store, 2)
	c.Set("a", "1")
	require.NoError(t, c.Flush(context.Background()))

	store.mux.Lock()
	store.data["a"] = "changed"
	store.mux.Unlock()
	value, found := c.Get(context.Background(), "a")
	assert.True(t, found)
	assert.Equal(t, "changed", value, "The store holds the value of record")

	store.mux.Lock()
	delete(store.data, "a")
	store.mux.Unlock()
	_, found = c.Get(context.Background(), "a")
	assert.False(t, found, "A key the store lost reads as missing")
	assert.True(t, c.Contains("a"))
}

func TestLRU_ReadFailureIsMiss(t *testing.T) {
	store := newFakeStore()
	store.failGet = func(string) bool { return true }
	c := newTestLRU(t, store, 2)
	c.Set("a", "1")
	_, found := c.Get(context.Background(), "a")
	assert.False(t, found)
}

func TestLRU_GetWaitsForPendingWrites(t *testing.T) {
	store := newFakeStore()
	store.gate = make(chan struct{})
	c := newTestLRU(t, store, 2)
	c.Set("a", "1") // Stuck behind the gate.

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, found := c.Get(ctx, "a")
	assert.False(t, found, "A cancelled read reports a miss")

	close(store.gate)
	value, found := c.Get(context.Background(), "a")
	assert.True(t, found)
	assert.Equal(t, "1", value)
}

func TestLRU_RemoveUntrackedIsNoOp(t *testing.T) {
	store := newFakeStore()
	c := newTestLRU(t, store, 2)
	pending, tracked := c.Remove("ghost")
	assert.False(t, tracked)
	assert.NoError(t, pending.Err())
	assert.NoError(t, pending.Wait(context.Background()))
	require.NoError(t, c.Flush(context.Background()))
	assert.Empty(t, store.writes())
}

func TestLRU_RecencyLaw(t *testing.T) {
	c := newTestLRU(t, newFakeStore(), 4)
	rnd := rand.New(rand.NewSource(11))
	expected := []string{} // Model ordered from least to most recently used.
	touch := func(key string) {
		expected = append(slices.DeleteFunc(expected, func(k string) bool { return k == key }), key)
	}
	for i := range 300 {
		key := fmt.Sprintf("k%d", rnd.Intn(9))
		switch rnd.Intn(3) {
		case 0:
			if _, found := c.Get(context.Background(), key); found {
				touch(key)
			}
		case 1:
			if !slices.Contains(expected, key) && len(expected) == 4 {
				expected = expected[1:]
			}
			c.Set(key, fmt.Sprint(i))
			touch(key)
		case 2:
			c.Remove(key)
			expected = slices.DeleteFunc(expected, func(k string) bool { return k == key })
		}
		require.Equal(t, expected, c.Keys())
	}
	assertLRUStructure(t, c)
}
