package concurrency

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrInvalidConcurrency is returned when a limiter is built with a capacity
// below one.
var ErrInvalidConcurrency = errors.New("concurrency: max concurrency must be >= 1")

// Semaphore admits up to Max concurrent holders and queues the rest in
// arrival order.
type Semaphore struct {
	name  string
	max   int
	sem   *semaphore.Weighted
	inUse atomic.Int64
	peak  atomic.Int64
}

// NewSemaphore creates a semaphore with the given capacity.
func NewSemaphore(name string, maxConcurrency int) (*Semaphore, error) {
	if maxConcurrency < 1 {
		return nil, fmt.Errorf("%w: %s got %d", ErrInvalidConcurrency, name, maxConcurrency)
	}
	return &Semaphore{
		name: name,
		max:  maxConcurrency,
		sem:  semaphore.NewWeighted(int64(maxConcurrency)),
	}, nil
}

// MustSemaphore is NewSemaphore for capacities known at compile time.
func MustSemaphore(name string, maxConcurrency int) *Semaphore {
	s, err := NewSemaphore(name, maxConcurrency)
	if err != nil {
		panic(err)
	}
	return s
}

// Acquire blocks until a slot is free or ctx is done. On a ctx error no slot
// is held and Release must not be called.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire %s: %w", s.name, err)
	}
	s.track()
	return nil
}

// TryAcquire takes a slot only if one is free and nobody is queued.
func (s *Semaphore) TryAcquire() bool {
	if !s.sem.TryAcquire(1) {
		return false
	}
	s.track()
	return true
}

// Release returns one slot. The longest-waiting caller, if any, gets it.
// Releasing more slots than were acquired panics.
func (s *Semaphore) Release() {
	if s.inUse.Add(-1) < 0 {
		s.inUse.Add(1)
		panic(fmt.Sprintf("concurrency: %s released more than acquired", s.name))
	}
	s.sem.Release(1)
}

// InUse reports how many slots are currently held.
func (s *Semaphore) InUse() int {
	return int(s.inUse.Load())
}

// Peak reports the highest number of slots ever held at once.
func (s *Semaphore) Peak() int {
	return int(s.peak.Load())
}

// Max returns the capacity.
func (s *Semaphore) Max() int {
	return s.max
}

func (s *Semaphore) track() {
	n := s.inUse.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			return
		}
	}
}
