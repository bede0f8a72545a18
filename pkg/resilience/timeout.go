// Package resilience bounds calls to remote authorities.
package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when an operation exceeds its timeout.
var ErrTimeout = errors.New("operation timed out")

// WithTimeout runs fn with a deadline. A non-positive timeout only inherits
// the deadline of ctx. If fn ignores its context, WithTimeout still returns
// ErrTimeout once the deadline passes and fn finishes in the background.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return timeoutCtx.Err()
	}
}
