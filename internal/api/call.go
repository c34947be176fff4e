package api

import (
	"context"
	"sync"
)

// Result is the single outcome of a Call: a value or an error
type Result[T any] struct {
	Value T
	Err   error
}

// Call is an in-flight request. It yields at most one Result; after Cancel
// nothing is delivered.
type Call[T any] struct {
	cancel context.CancelFunc
	done   chan Result[T]

	mu        sync.Mutex
	cancelled bool
	finished  bool
}

// Send starts req on its own goroutine and returns the running call
func Send[T any](ctx context.Context, c *Client, req Request) *Call[T] {
	ctx, cancel := context.WithCancel(ctx)
	call := &Call[T]{
		cancel: cancel,
		done:   make(chan Result[T], 1),
	}

	go func() {
		defer cancel()
		value, err := Do[T](ctx, c, req)
		call.finish(Result[T]{Value: value, Err: err})
	}()

	return call
}

func (c *Call[T]) finish(r Result[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cancelled {
		c.done <- r
	}
	c.finished = true
	close(c.done)
}

// Done yields the result, then closes. A cancelled call closes without a value.
func (c *Call[T]) Done() <-chan Result[T] {
	return c.done
}

// Cancel aborts the underlying HTTP request. Cancelling a finished call is a no-op.
func (c *Call[T]) Cancel() {
	c.mu.Lock()
	if !c.finished {
		c.cancelled = true
	}
	c.mu.Unlock()
	c.cancel()
}

// Wait blocks until the call resolves. A cancelled call returns context.Canceled.
func (c *Call[T]) Wait() (T, error) {
	r, ok := <-c.done
	if !ok {
		var zero T
		return zero, context.Canceled
	}
	return r.Value, r.Err
}
