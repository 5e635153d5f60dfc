package types

import (
	"context"
	"sync"
	"time"
)

// Work is a zero-argument unit of work admitted to the scheduler.
// The context is the scheduler's own lifecycle context, not the
// submitting caller's: an abandoned caller must not cancel the call.
type Work func(ctx context.Context) (interface{}, error)

type Scheduler interface {
	LifecycleManager
	Submit(work Work) (*Future, error)
	SetMinimumSpacing(spacing time.Duration) error
	Pending() int
}

// Future is the pending outcome of a submitted Work. It settles exactly
// once; every waiter observes the same value or error.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value interface{}
	err   error
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) Settle(value interface{}, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx expires. A ctx expiry
// abandons the wait only; the underlying work still runs to completion.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, WrapError(ctx.Err(), "abandoned wait for pending result")
	}
}

// Outcome returns the settled value and error without blocking.
// Valid only after Done is closed.
func (f *Future) Outcome() (interface{}, error) {
	return f.value, f.err
}
