package exercise

import (
	"sync"

	"github.com/entrhq/orthoforge/pkg/concurrency"
)

// SessionLocks hands out one Mutex per session id, created on first use.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[string]*concurrency.Mutex
}

// NewSessionLocks creates an empty lock map.
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[string]*concurrency.Mutex)}
}

// Get returns the Mutex of sessionID.
func (s *SessionLocks) Get(sessionID string) *concurrency.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.locks[sessionID]
	if !ok {
		m = concurrency.NewMutex()
		s.locks[sessionID] = m
	}
	return m
}

// Len reports how many sessions have a lock.
func (s *SessionLocks) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
