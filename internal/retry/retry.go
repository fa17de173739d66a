// Package retry wraps a fallible, context-bound operation with bounded
// retry-with-timeout, for collaborator calls (a network-backed Downloader,
// a flaky extraction step) where one transient failure shouldn't abort the
// whole phase.
//
// Grounded on the teacher's internal/TaskExtensions.go WaitForRetry, kept
// generic over the callback's result type, with the C#-shaped
// retry-callback hook reduced to a plain OnRetry func in Options.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Options configures Do's retry behavior. Zero value is DefaultOptions.
type Options struct {
	Attempts     int
	Timeout      time.Duration
	TimeoutStep  time.Duration
	OnRetry      func(attempt, attempts int, err error)
}

// DefaultOptions mirrors the teacher's DefaultTimeoutSec/DefaultRetryAttempt.
func DefaultOptions() Options {
	return Options{
		Attempts: 10,
		Timeout:  20 * time.Second,
	}
}

// Do runs fn up to opts.Attempts times, each attempt bound by a fresh
// per-attempt timeout derived from ctx. It returns the first success, or
// the last error if every attempt fails. A cancellation of the parent ctx
// aborts immediately without exhausting remaining attempts.
func Do[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if opts.Attempts <= 0 {
		opts = DefaultOptions()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultOptions().Timeout
	}

	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, opts.Attempts, err)
		}
		timeout += opts.TimeoutStep
	}
	return zero, fmt.Errorf("retry: exhausted %d attempts: %w", opts.Attempts, lastErr)
}
