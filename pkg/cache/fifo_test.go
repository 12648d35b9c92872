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

func newTestFIFO(t *testing.T, store *fakeStore, capacity int) *FIFO[string] {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewFIFO[string](ctx, store, capacity)
}

// assertFIFOStructure checks the queue and the key index describe the same keys.
func assertFIFOStructure(t *testing.T, c *FIFO[string]) {
	t.Helper()
	c.mux.RLock()
	defer c.mux.RUnlock()
	require.Equal(t, len(c.entries), c.queue.Len())
	for node := range c.queue.All() {
		key := c.queue.Value(node)
		entry, exists := c.entries[key]
		require.Truef(t, exists, "Queued key %s is missing from the index", key)
		require.Equal(t, node, entry.node)
	}
	assert.Equal(t, c.queue.Len()+2, c.queue.slab.live(), "Only queued nodes and sentinels may be allocated")
}

func TestFIFO_Scenario(t *testing.T) {
	store := newFakeStore()
	c := newTestFIFO(t, store, 2)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "9") // Re-setting counts as a new insertion.
	c.Set("c", "3")

	assert.False(t, c.Contains("b"))
	value, found := c.Get(context.Background(), "a")
	assert.True(t, found)
	assert.Equal(t, "9", value)
	assert.True(t, c.Contains("c"))
	assert.Equal(t, []string{"a", "c"}, c.Keys())
	assertFIFOStructure(t, c)

	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, []string{"set a=1", "set b=2", "set a=9", "set c=3", "remove b"}, store.writes())
}

func TestFIFO_GetDoesNotReorder(t *testing.T) {
	c := newTestFIFO(t, newFakeStore(), 3)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")
	for range 3 {
		c.Get(context.Background(), "a")
	}
	c.Set("d", "4")
	assert.False(t, c.Contains("a"), "The oldest key is evicted no matter how often it's read")
	assert.Equal(t, []string{"b", "c", "d"}, c.Keys())
}

func TestFIFO_RemoveAlwaysReachesStore(t *testing.T) {
	store := newFakeStore()
	c := newTestFIFO(t, store, 2)
	pending, tracked := c.Remove("ghost")
	require.NoError(t, pending.Wait(context.Background()))
	assert.False(t, tracked)
	assert.Equal(t, []string{"remove ghost"}, store.writes())
}

func TestFIFO_EvictionOrderMatchesInsertionOrder(t *testing.T) {
	store := newFakeStore()
	c := newTestFIFO(t, store, 3)
	rnd := rand.New(rand.NewSource(7))
	expected := []string{} // Model of the queue.
	for i := range 300 {
		key := fmt.Sprintf("k%d", rnd.Intn(8))
		if rnd.Intn(5) == 0 {
			c.Remove(key)
			expected = slices.DeleteFunc(expected, func(k string) bool { return k == key })
			continue
		}
		c.Set(key, fmt.Sprint(i))
		expected = append(slices.DeleteFunc(expected, func(k string) bool { return k == key }), key)
		if len(expected) > 3 {
			expected = expected[1:]
		}
		require.Equal(t, expected, c.Keys())
	}
	assertFIFOStructure(t, c)
}
