// Package race waits for the first of several mutually exclusive signals.
package race

import (
	"context"
	"time"
)

// Branch is one awaited signal. Wait must return once ctx is done.
type Branch[T any] struct {
	Tag  string
	Wait func(ctx context.Context) (T, error)
}

// Outcome tells which branch resolved first. When no branch resolved within
// the timeout, or all of them failed, Tag is the fallback tag and TimedOut
// reports whether the timeout was the cause.
type Outcome[T any] struct {
	Tag      string
	Value    T
	TimedOut bool
	Errs     []error
}

// First runs every branch concurrently and returns the first one that
// resolves without error. The remaining branches are cancelled.
func First[T any](ctx context.Context, timeout time.Duration, fallback string, branches ...Branch[T]) Outcome[T] {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		tag   string
		value T
		err   error
	}
	results := make(chan result, len(branches))
	for _, b := range branches {
		b := b
		go func() {
			v, err := b.Wait(ctx)
			results <- result{tag: b.Tag, value: v, err: err}
		}()
	}

	var errs []error
	for range branches {
		select {
		case r := <-results:
			if r.err == nil {
				return Outcome[T]{Tag: r.tag, Value: r.value}
			}
			errs = append(errs, r.err)
		case <-ctx.Done():
			return Outcome[T]{Tag: fallback, TimedOut: true, Errs: errs}
		}
	}
	return Outcome[T]{Tag: fallback, TimedOut: ctx.Err() != nil, Errs: errs}
}
