package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/nobletooth/policache/pkg/utils"
)

var ErrStoreClosed = errors.New("store is closed")

// MemoryStore keeps entries in process memory; everything is lost once the process exits.
type MemoryStore[V any] struct { // Implements Store.
	mux     sync.RWMutex
	entries *SkipList[string, V]
	closed  bool
}

var _ Store[[]byte] = (*MemoryStore[[]byte])(nil)

// NewMemoryStore is the constructor for MemoryStore.
func NewMemoryStore[V any]() *MemoryStore[V] {
	return &MemoryStore[V]{entries: NewSkipList[string, V]()}
}

func (m *MemoryStore[V]) Get(_ context.Context, key string) (V, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if m.closed {
		return *new(V), ErrStoreClosed
	}
	value, err := m.entries.Get(key)
	if err != nil {
		return *new(V), fmt.Errorf("%w: %s", err, key)
	}
	return value, nil
}

func (m *MemoryStore[V]) Set(_ context.Context, key string, value V) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	_, err := m.entries.Set(key, value)
	return err
}

func (m *MemoryStore[V]) Remove(_ context.Context, key string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if err := m.entries.Delete(key); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return err
	}
	return nil
}

func (m *MemoryStore[V]) RemoveAll(_ context.Context) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.entries.Clear()
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore[V]) Len() int {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return m.entries.Len()
}

// Pairs returns a snapshot of the stored entries in ascending key order.
func (m *MemoryStore[V]) Pairs() iter.Seq[utils.Pair[string, V]] {
	m.mux.RLock()
	snapshot := make([]utils.Pair[string, V], 0, m.entries.Len())
	for key, value := range m.entries.All() {
		snapshot = append(snapshot, utils.Pair[string, V]{Key: key, Value: value})
	}
	m.mux.RUnlock()

	return func(yield func(utils.Pair[string, V]) bool) {
		for _, pair := range snapshot {
			if !yield(pair) {
				return
			}
		}
	}
}

func (m *MemoryStore[V]) Close() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.closed = true
	m.entries.Clear()
	return nil
}
