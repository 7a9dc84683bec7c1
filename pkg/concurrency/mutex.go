package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Mutex is a context-aware exclusive lock that serves waiters strictly in
// arrival order.
type Mutex struct {
	sem    *semaphore.Weighted
	locked atomic.Bool
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{sem: semaphore.NewWeighted(1)}
}

// Lock blocks until the caller is the exclusive holder or ctx is done.
func (m *Mutex) Lock(ctx context.Context) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire mutex: %w", err)
	}
	m.locked.Store(true)
	return nil
}

// TryLock takes the lock only if it is free and nobody is queued.
func (m *Mutex) TryLock() bool {
	if !m.sem.TryAcquire(1) {
		return false
	}
	m.locked.Store(true)
	return true
}

// Unlock hands the lock to the longest-waiting caller, or marks it free.
func (m *Mutex) Unlock() {
	if !m.locked.CompareAndSwap(true, false) {
		panic("concurrency: unlock of unlocked mutex")
	}
	m.sem.Release(1)
}

// Locked reports whether the mutex is currently held.
func (m *Mutex) Locked() bool {
	return m.locked.Load()
}

// Acquire and Release let a Mutex be used wherever a Limiter is expected.
func (m *Mutex) Acquire(ctx context.Context) error { return m.Lock(ctx) }

// Release is Unlock.
func (m *Mutex) Release() { m.Unlock() }
