package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPending(t *testing.T) {
	pending := newPending()
	assert.NoError(t, pending.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pending.Wait(ctx), context.DeadlineExceeded)

	failure := errors.New("boom")
	pending.complete(failure)
	pending.complete(nil) // Only the first completion counts.
	<-pending.Done()
	assert.ErrorIs(t, pending.Err(), failure)
	assert.ErrorIs(t, pending.Wait(context.Background()), failure)
}

func TestCompleted(t *testing.T) {
	pending := completed(nil)
	assert.NoError(t, pending.Wait(context.Background()))
	select {
	case <-pending.Done():
	default:
		t.Fatal("Expected a completed pending")
	}
}
