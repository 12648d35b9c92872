// Caches never call the store on the caller's goroutine. Every cache call turns into one job: the list of store
// operations its bookkeeping produced (e.g. an eviction Remove followed by a Set). Jobs are queued while the cache's
// mutex is held and a single background goroutine, the persister, executes them strictly in queue order. The store
// therefore sees operations in the same order the cache applied them, even when callers don't wait.
//
// Cancelling the persister's context stops it; queued and later jobs complete with the context's error.

package cache

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nobletooth/policache/pkg/storage"
)

var persistQueueSize = flag.Int("persist_queue_size", 256,
	"Number of cache calls whose store operations may be queued before callers block.")

type opKind int

const (
	opGet opKind = iota
	opSet
	opRemove
	opRemoveAll
)

func (k opKind) String() string {
	switch k {
	case opGet:
		return "get"
	case opSet:
		return "set"
	case opRemove:
		return "remove"
	case opRemoveAll:
		return "remove_all"
	default:
		return "unknown"
	}
}

// storeOp is a single store call.
type storeOp[V any] struct {
	kind  opKind
	key   string
	value V // Only set for opSet.
}

func setOp[V any](key string, value V) storeOp[V] {
	return storeOp[V]{kind: opSet, key: key, value: value}
}

func removeOp[V any](key string) storeOp[V] {
	return storeOp[V]{kind: opRemove, key: key}
}

func removeAllOp[V any]() storeOp[V] {
	return storeOp[V]{kind: opRemoveAll}
}

// persistJob is the set of store operations produced by one cache call.
type persistJob[V any] struct {
	ops     []storeOp[V]
	pending *Pending
	// Result of an opGet; valid once pending is done.
	value V
	found bool
}

// persister executes store operations in submission order on a background goroutine.
type persister[V any] struct {
	ctx    context.Context
	store  storage.Store[V]
	policy Policy // Metrics label.
	jobs   chan *persistJob[V]
	// mux guards stopped; submitters hold it shared so stopping waits for in-flight sends.
	mux     sync.RWMutex
	stopped bool
}

// newPersister starts the persister goroutine; it runs until `ctx` is cancelled.
func newPersister[V any](ctx context.Context, store storage.Store[V], policy Policy) *persister[V] {
	queueSize := *persistQueueSize
	if queueSize < 0 {
		queueSize = 0
	}
	p := &persister[V]{ctx: ctx, store: store, policy: policy, jobs: make(chan *persistJob[V], queueSize)}
	go p.run()
	return p
}

// submit queues `ops` as one job. It blocks while the queue is full.
func (p *persister[V]) submit(ops ...storeOp[V]) *persistJob[V] {
	job := &persistJob[V]{ops: ops, pending: newPending()}
	p.mux.RLock()
	defer p.mux.RUnlock()
	if p.stopped {
		job.pending.complete(p.ctx.Err())
		return job
	}
	select {
	case p.jobs <- job:
	case <-p.ctx.Done():
		job.pending.complete(p.ctx.Err())
	}
	return job
}

// persist queues `ops` and returns their completion handle; a call without ops completes immediately.
func (p *persister[V]) persist(ops ...storeOp[V]) *Pending {
	if len(ops) == 0 {
		return completed(nil)
	}
	return p.submit(ops...).pending
}

// read queues a store Get of `key`; the result is available once the job's pending is done.
func (p *persister[V]) read(key string) *persistJob[V] {
	return p.submit(storeOp[V]{kind: opGet, key: key})
}

// flush waits for every job submitted before the call.
func (p *persister[V]) flush(ctx context.Context) error {
	// Jobs run in order; an empty job completes only after everything queued before it.
	return p.submit().pending.Wait(ctx)
}

func (p *persister[V]) run() {
	for {
		select {
		case <-p.ctx.Done():
			p.stop()
			return
		case job := <-p.jobs:
			p.execute(job)
		}
	}
}

// stop fails every queued job and rejects future ones.
func (p *persister[V]) stop() {
	p.mux.Lock()
	p.stopped = true
	p.mux.Unlock()
	slog.Debug("Stopping cache persister.", "policy", p.policy, "queued", len(p.jobs))
	for {
		select {
		case job := <-p.jobs:
			job.pending.complete(p.ctx.Err())
		default:
			return
		}
	}
}

func (p *persister[V]) execute(job *persistJob[V]) {
	if err := p.ctx.Err(); err != nil {
		job.pending.complete(err)
		return
	}
	var errs []error
	for _, op := range job.ops {
		if err := p.apply(job, op); err != nil {
			errs = append(errs, err)
		}
	}
	job.pending.complete(errors.Join(errs...))
}

// apply runs a single store operation and records its outcome. Failures are not retried.
func (p *persister[V]) apply(job *persistJob[V], op storeOp[V]) error {
	var err error
	switch op.kind {
	case opGet:
		job.value, err = p.store.Get(p.ctx, op.key)
		if errors.Is(err, storage.ErrKeyNotFound) {
			storeOpsMetric.WithLabelValues(string(p.policy), op.kind.String(), "not_found").Inc()
			return nil
		}
		if err != nil {
			err = fmt.Errorf("%w: get %s: %w", ErrStoreRead, op.key, err)
		}
		job.found = err == nil
	case opSet:
		if err = p.store.Set(p.ctx, op.key, op.value); err != nil {
			err = fmt.Errorf("%w: set %s: %w", ErrStoreWrite, op.key, err)
		}
	case opRemove:
		if err = p.store.Remove(p.ctx, op.key); err != nil {
			err = fmt.Errorf("%w: remove %s: %w", ErrStoreRemove, op.key, err)
		}
	case opRemoveAll:
		if err = p.store.RemoveAll(p.ctx); err != nil {
			err = fmt.Errorf("%w: remove all: %w", ErrStoreRemove, err)
		}
	}
	if err != nil {
		storeOpsMetric.WithLabelValues(string(p.policy), op.kind.String(), "error").Inc()
		slog.Error("Store operation failed.", "policy", p.policy, "op", op.kind, "key", op.key, "err", err)
		return err
	}
	storeOpsMetric.WithLabelValues(string(p.policy), op.kind.String(), "ok").Inc()
	return nil
}
