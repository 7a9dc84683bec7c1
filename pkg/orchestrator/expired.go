package orchestrator

import (
	"sort"
	"sync"
)

// ExpiredSet records the accounts whose session time has run out during
// this process. Timer callbacks write it while account loops read it.
type ExpiredSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewExpiredSet creates an empty set.
func NewExpiredSet() *ExpiredSet {
	return &ExpiredSet{ids: make(map[string]struct{})}
}

// Add marks id expired.
func (s *ExpiredSet) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Remove un-expires id.
func (s *ExpiredSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Has reports whether id is expired.
func (s *ExpiredSet) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// IDs returns the expired ids, sorted.
func (s *ExpiredSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
