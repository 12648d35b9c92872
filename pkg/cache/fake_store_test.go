package cache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/nobletooth/policache/pkg/storage"
)

var errInjected = errors.New("injected store failure")

// fakeStore is a thread-safe map-backed store that records every call and can fail on demand.
type fakeStore struct { // Implements storage.Store.
	mux     sync.Mutex
	data    map[string]string
	log     []string
	failSet func(key string) bool
	failDel func(key string) bool
	failGet func(key string) bool
	// gate blocks every call until it's closed; nil means calls never block.
	gate chan struct{}
}

var _ storage.Store[string] = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) wait(ctx context.Context) error {
	f.mux.Lock()
	gate := f.gate
	f.mux.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mux.Lock()
	defer f.mux.Unlock()
	f.log = append(f.log, "get "+key)
	if f.failGet != nil && f.failGet(key) {
		return "", errInjected
	}
	value, exists := f.data[key]
	if !exists {
		return "", fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
	}
	return value, nil
}

func (f *fakeStore) Set(ctx context.Context, key string, value string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mux.Lock()
	defer f.mux.Unlock()
	f.log = append(f.log, "set "+key+"="+value)
	if f.failSet != nil && f.failSet(key) {
		return errInjected
	}
	f.data[key] = value
	return nil
}

func (f *fakeStore) Remove(ctx context.Context, key string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mux.Lock()
	defer f.mux.Unlock()
	f.log = append(f.log, "remove "+key)
	if f.failDel != nil && f.failDel(key) {
		return errInjected
	}
	delete(f.data, key)
	return nil
}

func (f *fakeStore) RemoveAll(ctx context.Context) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mux.Lock()
	defer f.mux.Unlock()
	f.log = append(f.log, "remove_all")
	clear(f.data)
	return nil
}

func (f *fakeStore) Close() error {
	return nil
}

// writes returns the recorded calls except reads.
func (f *fakeStore) writes() []string {
	f.mux.Lock()
	defer f.mux.Unlock()
	return slices.DeleteFunc(slices.Clone(f.log), func(entry string) bool { return strings.HasPrefix(entry, "get ") })
}

// keys returns the stored keys in sorted order.
func (f *fakeStore) keys() []string {
	f.mux.Lock()
	defer f.mux.Unlock()
	return slices.Sorted(maps.Keys(f.data))
}

func (f *fakeStore) value(key string) (string, bool) {
	f.mux.Lock()
	defer f.mux.Unlock()
	value, exists := f.data[key]
	return value, exists
}
