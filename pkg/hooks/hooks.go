// Package hooks implements the extension-point chain shared by the queue,
// share and upload components: a named, ordered list of subscriber
// functions that can veto or transform an operation before it proceeds.
//
// Hooks run in subscriber registration order. Each hook gets its own
// timeout; a hook that rejects or times out aborts the chain and the
// rejection is surfaced verbatim to the caller. A hook may also return a
// transformed version of its input (for example, a different target path
// or priority), which is threaded into the next hook's input.
package hooks

import (
	"context"
	"fmt"
	"time"
)

// Rejection is returned by a hook (or synthesized on timeout) to abort the
// chain. It is surfaced to the caller unmodified.
type Rejection struct {
	HookID   string
	RejectID string
	Message  string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("hook %s rejected (%s): %s", r.HookID, r.RejectID, r.Message)
}

// Func is a single hook subscriber. It receives the current aggregated
// input and returns either a (possibly transformed) replacement value, or
// a Rejection. Returning a nil replacement leaves the input unchanged.
type Func[T any] func(ctx context.Context, input T) (transformed *T, rejection *Rejection)

// subscriber pairs a hook function with the id used to identify it in a
// Rejection.
type subscriber[T any] struct {
	id string
	fn Func[T]
}

// Chain is an ordered list of hooks for a single extension point, all
// operating on values of type T.
type Chain[T any] struct {
	timeout     time.Duration
	subscribers []subscriber[T]
}

// NewChain returns an empty Chain with the given per-hook timeout. A zero
// timeout disables the timeout and runs each hook to completion.
func NewChain[T any](timeout time.Duration) *Chain[T] {
	return &Chain[T]{timeout: timeout}
}

// Register appends a hook under the given id, used in registration order
// and referenced in any Rejection it produces.
func (c *Chain[T]) Register(id string, fn Func[T]) {
	c.subscribers = append(c.subscribers, subscriber[T]{id: id, fn: fn})
}

// Len returns the number of registered hooks.
func (c *Chain[T]) Len() int { return len(c.subscribers) }

// Run executes the chain against input, in registration order, merging
// each hook's transformation into the value passed to the next hook. It
// stops and returns the first Rejection encountered.
func (c *Chain[T]) Run(ctx context.Context, input T) (T, *Rejection) {
	current := input
	for _, sub := range c.subscribers {
		result, rejection := c.runOne(ctx, sub, current)
		if rejection != nil {
			return current, rejection
		}
		if result != nil {
			current = *result
		}
	}
	return current, nil
}

func (c *Chain[T]) runOne(ctx context.Context, sub subscriber[T], input T) (*T, *Rejection) {
	if c.timeout <= 0 {
		return sub.fn(ctx, input)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type outcome struct {
		result    *T
		rejection *Rejection
	}
	done := make(chan outcome, 1)
	go func() {
		result, rejection := sub.fn(callCtx, input)
		done <- outcome{result: result, rejection: rejection}
	}()

	select {
	case out := <-done:
		return out.result, out.rejection
	case <-callCtx.Done():
		return nil, &Rejection{
			HookID:   sub.id,
			RejectID: "timeout",
			Message:  fmt.Sprintf("hook did not complete within %s", c.timeout),
		}
	}
}
