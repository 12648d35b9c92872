// The in-memory store keeps its entries in a skip list so that scans come out sorted without a separate sort step.
//
// A skip list is a sorted linked list with extra forward pointers stacked on top of it. Every node lives on level 0
// and is promoted to each next level with probability p, so upper levels act as express lanes: a lookup walks the
// highest populated level until the next key would overshoot, then drops one level and repeats.
//
// Expected cost of Get/Set/Delete is O(log n); memory is O(n).

package storage

import (
	"cmp"
	"iter"
	"math/rand"
	"time"
)

const (
	skipListMaxLevel    = 16
	skipListPromoteProb = 0.25
)

type skipListNode[K cmp.Ordered, V any] struct {
	key      K
	value    V
	forwards []*skipListNode[K, V] // Forward pointer per level (0..len-1).
}

// SkipList is an ordered map over cmp.Ordered keys. It's not thread-safe; callers must serialize access.
type SkipList[K cmp.Ordered, V any] struct {
	head  *skipListNode[K, V]
	level int // Number of currently populated levels; at least 1.
	size  int
	rnd   *rand.Rand
}

// NewSkipList is the constructor for SkipList.
func NewSkipList[K cmp.Ordered, V any]() *SkipList[K, V] {
	return &SkipList[K, V]{
		head:  &skipListNode[K, V]{forwards: make([]*skipListNode[K, V], skipListMaxLevel)},
		level: 1,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SkipList[K, V]) randomLevel() int {
	lvl := 1
	for lvl < skipListMaxLevel && s.rnd.Float64() < skipListPromoteProb {
		lvl++
	}
	return lvl
}

// predecessors fills `update` with the last node before `key` on every populated level and returns the
// level 0 predecessor.
func (s *SkipList[K, V]) predecessors(key K, update []*skipListNode[K, V]) *skipListNode[K, V] {
	node := s.head
	for lvl := s.level - 1; lvl >= 0; lvl-- {
		for next := node.forwards[lvl]; next != nil && cmp.Less(next.key, key); next = node.forwards[lvl] {
			node = next
		}
		if update != nil {
			update[lvl] = node
		}
	}
	return node
}

// Get returns the value of `key` or ErrKeyNotFound.
func (s *SkipList[K, V]) Get(key K) (V, error) {
	candidate := s.predecessors(key, nil).forwards[0]
	if candidate != nil && candidate.key == key {
		return candidate.value, nil
	}
	return *new(V), ErrKeyNotFound
}

// Set inserts or updates `key` and reports whether the key existed before.
func (s *SkipList[K, V]) Set(key K, value V) ( /*alreadyExists*/ bool, error) {
	update := make([]*skipListNode[K, V], skipListMaxLevel)
	prev := s.predecessors(key, update)
	if next := prev.forwards[0]; next != nil && next.key == key {
		next.value = value
		return true, nil
	}

	lvl := s.randomLevel()
	for i := s.level; i < lvl; i++ { // Newly populated levels start right after head.
		update[i] = s.head
	}
	s.level = max(s.level, lvl)
	node := &skipListNode[K, V]{key: key, value: value, forwards: make([]*skipListNode[K, V], lvl)}
	for i := range lvl {
		node.forwards[i] = update[i].forwards[i]
		update[i].forwards[i] = node
	}
	s.size++
	return false, nil
}

// Delete removes `key` or returns ErrKeyNotFound.
func (s *SkipList[K, V]) Delete(key K) error {
	update := make([]*skipListNode[K, V], skipListMaxLevel)
	target := s.predecessors(key, update).forwards[0]
	if target == nil || target.key != key {
		return ErrKeyNotFound
	}
	for i := range s.level {
		if update[i].forwards[i] == target {
			update[i].forwards[i] = target.forwards[i]
		}
	}
	for s.level > 1 && s.head.forwards[s.level-1] == nil { // Trim levels left empty.
		s.level--
	}
	s.size--
	return nil
}

// Len returns the number of keys in the list.
func (s *SkipList[K, V]) Len() int {
	return s.size
}

// Clear drops every key.
func (s *SkipList[K, V]) Clear() {
	clear(s.head.forwards)
	s.level = 1
	s.size = 0
}

// All yields key-value pairs in ascending key order. The list must not be mutated while iterating.
func (s *SkipList[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for node := s.head.forwards[0]; node != nil; node = node.forwards[0] {
			if !yield(node.key, node.value) {
				return
			}
		}
	}
}
