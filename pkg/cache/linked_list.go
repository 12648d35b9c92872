// Cache policies keep their ordering in doubly linked lists. Instead of heap allocated nodes linked by pointers, the
// nodes live in a slab (a growable slice) and link to each other by handle, i.e. their index in the slab. Released
// handles go to a free list and are reused by later allocations, so a warmed up cache stops allocating.
//
// Every list owns two sentinel nodes allocated at construction: head and tail. Real nodes always sit between them,
// so linking and unlinking never branch on "is this the first/last node". Several lists can share one slab, which
// lets a node move between lists (e.g. LFU frequency buckets) by relinking its handle.

package cache

import (
	"iter"

	"github.com/nobletooth/policache/pkg/utils"
)

// handle addresses a node inside a slab.
type handle int32

// noHandle marks a link that points nowhere (only used for released nodes).
const noHandle handle = -1

type slabNode[T any] struct {
	value T
	prev  handle
	next  handle
	live  bool // False while the node is on the free list.
}

// slab stores list nodes of one or more lists.
type slab[T any] struct {
	nodes []slabNode[T]
	free  []handle
}

func newSlab[T any](capacity int) *slab[T] {
	return &slab[T]{nodes: make([]slabNode[T], 0, capacity)}
}

func (s *slab[T]) alloc(value T) handle {
	if n := len(s.free); n > 0 {
		h := s.free[n-1]
		s.free = s.free[:n-1]
		s.nodes[h] = slabNode[T]{value: value, prev: noHandle, next: noHandle, live: true}
		return h
	}
	s.nodes = append(s.nodes, slabNode[T]{value: value, prev: noHandle, next: noHandle, live: true})
	return handle(len(s.nodes) - 1)
}

func (s *slab[T]) release(h handle) {
	if !s.node(h).live {
		utils.RaiseInvariant("linked_list", "double_release", "A released node was released again.", "handle", h)
		return
	}
	s.nodes[h] = slabNode[T]{prev: noHandle, next: noHandle} // Drops the value so it can be collected.
	s.free = append(s.free, h)
}

func (s *slab[T]) node(h handle) *slabNode[T] {
	return &s.nodes[h]
}

// at returns a pointer to the value of `h`. The pointer is invalidated by the next alloc on the same slab.
func (s *slab[T]) at(h handle) *T {
	return &s.nodes[h].value
}

// live returns the number of allocated nodes, sentinels included.
func (s *slab[T]) live() int {
	return len(s.nodes) - len(s.free)
}

// reset releases every node at once; lists built on the slab must be recreated afterward.
func (s *slab[T]) reset() {
	clear(s.nodes)
	s.nodes = s.nodes[:0]
	s.free = s.free[:0]
}

// linkedList is a doubly linked list whose nodes live in a slab.
type linkedList[T any] struct {
	slab *slab[T]
	head handle // Sentinel before the first node.
	tail handle // Sentinel after the last node.
	size int
}

// newLinkedList allocates the sentinels of a new empty list on `s`. The sentinels carry `sentinel` as their value.
func newLinkedList[T any](s *slab[T], sentinel T) linkedList[T] {
	l := linkedList[T]{slab: s, head: s.alloc(sentinel), tail: s.alloc(sentinel)}
	s.node(l.head).next = l.tail
	s.node(l.tail).prev = l.head
	return l
}

// Len returns the number of elements in the list.
func (l *linkedList[T]) Len() int {
	return l.size
}

// Front returns the first node of the list or false if the list is empty.
func (l *linkedList[T]) Front() (handle, bool) {
	first := l.slab.node(l.head).next
	return first, first != l.tail
}

// Back returns the last node of the list or false if the list is empty.
func (l *linkedList[T]) Back() (handle, bool) {
	last := l.slab.node(l.tail).prev
	return last, last != l.head
}

// Next returns the node after `h`, or false when `h` is the last one.
func (l *linkedList[T]) Next(h handle) (handle, bool) {
	next := l.slab.node(h).next
	return next, next != l.tail
}

// Value returns the value held by `h`.
func (l *linkedList[T]) Value(h handle) T {
	return l.slab.node(h).value
}

// link inserts the detached node `h` right after `at`.
func (l *linkedList[T]) link(at, h handle) {
	atNode, node := l.slab.node(at), l.slab.node(h)
	node.prev, node.next = at, atNode.next
	l.slab.node(atNode.next).prev = h
	atNode.next = h
	l.size++
}

// unlink detaches `h` from its neighbours without releasing it.
func (l *linkedList[T]) unlink(h handle) {
	node := l.slab.node(h)
	if !node.live || h == l.head || h == l.tail {
		utils.RaiseInvariant("linked_list", "unlink_invalid_node",
			"Tried to unlink a released node or a sentinel.", "handle", h)
		return
	}
	l.slab.node(node.prev).next = node.next
	l.slab.node(node.next).prev = node.prev
	node.prev, node.next = noHandle, noHandle
	l.size--
}

// PushFront adds a new value to the front of the list.
func (l *linkedList[T]) PushFront(value T) handle {
	h := l.slab.alloc(value)
	l.link(l.head, h)
	return h
}

// PushBack adds a new value to the back of the list.
func (l *linkedList[T]) PushBack(value T) handle {
	h := l.slab.alloc(value)
	l.link(l.slab.node(l.tail).prev, h)
	return h
}

// InsertAfter adds a new value right after the node `at`; `at` may be the head sentinel.
func (l *linkedList[T]) InsertAfter(at handle, value T) handle {
	h := l.slab.alloc(value)
	l.link(at, h)
	return h
}

// Remove unlinks `h`, releases it back to the slab and returns its value.
func (l *linkedList[T]) Remove(h handle) T {
	value := l.slab.node(h).value
	l.unlink(h)
	l.slab.release(h)
	return value
}

// MoveToFront relinks `h` as the first node of the list.
func (l *linkedList[T]) MoveToFront(h handle) {
	if l.slab.node(l.head).next == h {
		return
	}
	l.unlink(h)
	l.link(l.head, h)
}

// MoveToBackOf detaches `h` from this list and appends it to `dst`. Both lists must share a slab.
func (l *linkedList[T]) MoveToBackOf(dst *linkedList[T], h handle) {
	if l.slab != dst.slab {
		utils.RaiseInvariant("linked_list", "cross_slab_move", "Tried to move a node between slabs.")
		return
	}
	l.unlink(h)
	dst.link(dst.slab.node(dst.tail).prev, h)
}

// Free releases the sentinels of an empty list. The list must not be used afterward.
func (l *linkedList[T]) Free() {
	if l.size != 0 {
		utils.RaiseInvariant("linked_list", "free_non_empty", "Tried to free a non-empty list.", "size", l.size)
		return
	}
	l.slab.release(l.head)
	l.slab.release(l.tail)
	l.head, l.tail = noHandle, noHandle
}

// All yields node handles from front to back. The list must not be mutated while iterating.
func (l *linkedList[T]) All() iter.Seq[handle] {
	return func(yield func(handle) bool) {
		for h := l.slab.node(l.head).next; h != l.tail; h = l.slab.node(h).next {
			if !yield(h) {
				return
			}
		}
	}
}

// Backward yields node handles from back to front. The list must not be mutated while iterating.
func (l *linkedList[T]) Backward() iter.Seq[handle] {
	return func(yield func(handle) bool) {
		for h := l.slab.node(l.tail).prev; h != l.head; h = l.slab.node(h).prev {
			if !yield(h) {
				return
			}
		}
	}
}

// Values yields values from front to back. The list must not be mutated while iterating.
func (l *linkedList[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for h := range l.All() {
			if !yield(l.slab.node(h).value) {
				return
			}
		}
	}
}
