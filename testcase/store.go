package testcase

import (
	"sync"

	"github.com/google/uuid"
)

// Store is an in-memory test case store. Lifetime is the process lifetime;
// durability and eviction are the integrating system's concern.
type Store struct {
	mu    sync.RWMutex
	cases map[uuid.UUID]TestCase
	order []uuid.UUID
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{cases: make(map[uuid.UUID]TestCase)}
}

// Put inserts or replaces a test case.
func (s *Store) Put(tc TestCase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cases[tc.ID]; !exists {
		s.order = append(s.order, tc.ID)
	}
	s.cases[tc.ID] = tc
}

// Get returns a test case by id.
func (s *Store) Get(id uuid.UUID) (TestCase, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tc, ok := s.cases[id]
	return tc, ok
}

// List returns all test cases in insertion order.
func (s *Store) List() []TestCase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TestCase, 0, len(s.cases))
	for _, id := range s.order {
		if tc, ok := s.cases[id]; ok {
			out = append(out, tc)
		}
	}
	return out
}

// Delete removes a test case by id. Returns false when the id is unknown.
func (s *Store) Delete(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cases[id]; !ok {
		return false
	}
	delete(s.cases, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of stored cases.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}
