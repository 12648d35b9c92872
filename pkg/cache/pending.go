package cache

import (
	"context"
	"sync"
)

// Pending is the completion handle of the store operations submitted by one cache call.
type Pending struct {
	done chan struct{}
	once sync.Once
	err  error // Written once before done is closed.
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// completed returns a Pending that's already done with `err`; used when a call had nothing to persist.
func completed(err error) *Pending {
	p := newPending()
	p.complete(err)
	return p
}

func (p *Pending) complete(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed once every store operation of the call has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the joined store errors once done; nil while still pending.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the store operations finish or ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
