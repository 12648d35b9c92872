// A sharded cache keeps every shard's keys apart; listing them in one sorted stream means merging several sorted
// streams. This module implements a heap-based k-way merge that pulls lazily from each stream, so memory usage stays
// proportional to the number of streams instead of the number of keys.
//
// Streams are prioritized by their position: when two streams yield the same key, only the first stream's copy is
// kept.

package scan

import (
	"container/heap"
	"errors"
	"iter"

	"github.com/nobletooth/policache/pkg/utils"
)

// heapElement is an item pulled from one of the merged streams.
type heapElement[K any] struct {
	key    K
	seqIdx int // Index of the stream that produced this element.
}

// mergeHeap holds the heads of all streams that still have items.
type mergeHeap[K any] struct { // Implements heap.Interface.
	compare  utils.CompareFn[K]
	elements []heapElement[K]
}

var _ heap.Interface = (*mergeHeap[int])(nil)

func (h *mergeHeap[K]) Len() int {
	return len(h.elements)
}

// Less orders by key, then by stream priority for equal keys.
func (h *mergeHeap[K]) Less(i, j int) bool {
	if order := h.compare(h.elements[i].key, h.elements[j].key); order != 0 {
		return order < 0
	}
	return h.elements[i].seqIdx < h.elements[j].seqIdx
}

func (h *mergeHeap[K]) Swap(i, j int) {
	h.elements[i], h.elements[j] = h.elements[j], h.elements[i]
}

func (h *mergeHeap[K]) Push(x any) {
	element, ok := x.(heapElement[K])
	if !ok {
		utils.RaiseInvariant("multi_head", "pushed_invalid_type", "An item with invalid type was pushed to heap.")
		return
	}
	h.elements = append(h.elements, element)
}

func (h *mergeHeap[K]) Pop() any {
	last := h.elements[len(h.elements)-1]
	h.elements = h.elements[:len(h.elements)-1]
	return last
}

// MultiHead merges increasing `sequences` into one increasing sequence without duplicates.
func MultiHead[K any](compare utils.CompareFn[K], sequences []iter.Seq[K]) (iter.Seq[K], error) {
	if compare == nil {
		return nil, errors.New("expected a non-nil comparison function")
	}
	if len(sequences) == 0 {
		return nil, errors.New("expected a non-empty sequences")
	}

	return func(yield func(K) bool) {
		h := &mergeHeap[K]{compare: compare, elements: make([]heapElement[K], 0, len(sequences))}
		pulls := make([]func() (K, bool), len(sequences))
		for i, seq := range sequences {
			pull, stop := iter.Pull(seq)
			defer stop()
			pulls[i] = pull
			if first, ok := pull(); ok {
				heap.Push(h, heapElement[K]{key: first, seqIdx: i})
			}
		}

		var last K
		emitted := false
		for h.Len() > 0 {
			top := heap.Pop(h).(heapElement[K])
			if next, ok := pulls[top.seqIdx](); ok {
				heap.Push(h, heapElement[K]{key: next, seqIdx: top.seqIdx})
			}
			if emitted && compare(last, top.key) == 0 { // Lower priority copy of a key already yielded.
				continue
			}
			if !yield(top.key) {
				return
			}
			last, emitted = top.key, true
		}
	}, nil
}
