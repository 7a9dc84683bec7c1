package concurrency

import "context"

// Limiter is satisfied by both Mutex and Semaphore.
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// RunExclusive acquires l, runs fn and releases l. The release is deferred,
// so it happens exactly once whether fn returns a value, an error, or panics.
func RunExclusive[T any](ctx context.Context, l Limiter, fn func() (T, error)) (T, error) {
	if err := l.Acquire(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer l.Release()
	return fn()
}

// Do is RunExclusive for functions that only return an error.
func Do(ctx context.Context, l Limiter, fn func() error) error {
	_, err := RunExclusive(ctx, l, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
