// Package connset provides the registry of open connections shared by the
// accept loop and the read loop.
package connset

import (
	"sort"
	"sync"

	"github.com/cyberinferno/go-linesrv/connid"
)

// Set is a thread-safe collection of values keyed by connection ID. One
// goroutine may add or remove entries while another iterates: iteration
// always works on a copied snapshot, so it never observes a half-applied
// mutation and never holds the lock while the caller runs.
type Set[T any] struct {
	m map[connid.ID]T
	sync.RWMutex
}

// NewSet creates and returns a new empty Set.
func NewSet[T any]() *Set[T] {
	return &Set[T]{m: make(map[connid.ID]T)}
}

// Add inserts value under id, replacing any previous entry for the same id.
//
// Parameters:
//   - id: The connection ID
//   - value: The value to store
func (s *Set[T]) Add(id connid.ID, value T) {
	s.Lock()
	defer s.Unlock()
	s.m[id] = value
}

// Remove deletes the entry for id and returns it.
//
// Parameters:
//   - id: The connection ID to remove
//
// Returns:
//   - The removed value and true, or the zero value and false if absent
func (s *Set[T]) Remove(id connid.ID) (T, bool) {
	s.Lock()
	defer s.Unlock()
	v, ok := s.m[id]
	if ok {
		delete(s.m, id)
	}

	return v, ok
}

// Get returns the value stored under id.
func (s *Set[T]) Get(id connid.ID) (T, bool) {
	s.RLock()
	defer s.RUnlock()
	v, ok := s.m[id]
	return v, ok
}

// Contains reports whether the set has an entry for id.
func (s *Set[T]) Contains(id connid.ID) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.m[id]
	return ok
}

// Len returns the number of entries in the set.
func (s *Set[T]) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.m)
}

// Snapshot returns a copy of the current values ordered by ascending ID.
// Later mutations of the set do not affect the returned slice.
//
// Returns:
//   - The values present at the time of the call
func (s *Set[T]) Snapshot() []T {
	s.RLock()
	ids := make([]connid.ID, 0, len(s.m))
	for id := range s.m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = s.m[id]
	}
	s.RUnlock()

	return out
}

// Range calls f for each value of a snapshot taken at the start of the call.
// Iteration stops if f returns false. f may freely add to or remove from the
// set.
//
// Parameters:
//   - f: Function called for each value; return false to stop iteration
func (s *Set[T]) Range(f func(value T) bool) {
	for _, v := range s.Snapshot() {
		if !f(v) {
			return
		}
	}
}

// Reset removes all entries and returns the values that were present.
func (s *Set[T]) Reset() []T {
	s.Lock()
	defer s.Unlock()
	out := make([]T, 0, len(s.m))
	for _, v := range s.m {
		out = append(out, v)
	}

	s.m = make(map[connid.ID]T)
	return out
}
