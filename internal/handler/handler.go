// Package handler holds the compiled handler registry for a service
// and resolves dotted handler references to invocable handlers.
package handler

import "context"

// Handler is one invocable tool implementation. Cooperative and
// blocking handlers both satisfy it, so the dispatcher treats them
// uniformly.
type Handler interface {
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Func adapts a context-aware function to Handler. Use it for
// handlers that yield cooperatively: they run inline on the calling
// goroutine.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Invoke implements Handler.
func (f Func) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// BlockingFunc adapts a plain blocking function to Handler. Invoke
// runs it on its own goroutine so a slow handler cannot starve the
// serve loop, and returns early if the call's context is canceled.
// The goroutine itself runs to completion either way; the core imposes
// no per-call timeout.
type BlockingFunc func(args map[string]any) (any, error)

type blockingResult struct {
	value any
	err   error
}

// Invoke implements Handler.
func (f BlockingFunc) Invoke(ctx context.Context, args map[string]any) (any, error) {
	done := make(chan blockingResult, 1)
	go func() {
		value, err := f(args)
		done <- blockingResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
