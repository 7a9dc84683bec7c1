// Package concurrency provides the two admission-control primitives shared by
// every account session: a FIFO Mutex and a bounded, FIFO Semaphore.
//
// Both are thin wrappers over golang.org/x/sync/semaphore.Weighted, whose
// waiter list is a queue: a caller that starts waiting is served before any
// caller that starts waiting after it, and a caller arriving while others are
// queued never jumps ahead even if capacity is momentarily free.
//
// # Scoped use
//
// Prefer RunExclusive over manual Acquire/Release pairs:
//
//	outcome, err := concurrency.RunExclusive(ctx, solveSlots, func() (Outcome, error) {
//	    return solve(ctx)
//	})
//
// The slot is returned whether fn returns normally, returns an error or
// panics; the error (or panic) reaches the caller after the release.
package concurrency
