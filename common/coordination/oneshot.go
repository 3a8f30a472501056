package coordination

import (
	"context"
	"sync"
	"time"
)

// OneShot is a gate which can be released by any number of independent
// triggers but only ever records the first.
type OneShot[T any] struct {
	once   sync.Once
	doneCh chan struct{}
	value  T
}

func NewOneShot[T any]() *OneShot[T] {
	return &OneShot[T]{
		doneCh: make(chan struct{}),
	}
}

// Fire releases the gate with value, returning false if it had already been
// released by another trigger.
func (o *OneShot[T]) Fire(value T) bool {
	fired := false
	o.once.Do(func() {
		o.value = value
		close(o.doneCh)
		fired = true
	})
	return fired
}

func (o *OneShot[T]) Done() <-chan struct{} {
	return o.doneCh
}

// Wait blocks until the gate is released, the timeout elapses or ctx is
// cancelled.  The boolean is false unless the gate was released.
func (o *OneShot[T]) Wait(ctx context.Context, timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-o.doneCh:
		return o.value, true
	case <-timer.C:
	case <-ctx.Done():
	}

	// a trigger might have raced the timeout, prefer its value
	select {
	case <-o.doneCh:
		return o.value, true
	default:
	}

	var empty T
	return empty, false
}
