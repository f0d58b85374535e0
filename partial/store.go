// Package partial holds the bytes of in-progress messages: everything read
// from a connection since its last delimiter. Entries carry framing state
// across poll cycles and are never shown to message sinks directly.
package partial

import (
	"sync"

	"github.com/cyberinferno/go-linesrv/connid"
	"github.com/cyberinferno/go-linesrv/utils"
)

// Store is a concurrent map from connection ID to buffered message bytes.
// It is safe for use by multiple goroutines. Stored slices are owned by the
// store; callers receive copies or popped slices they may keep.
//
// A Store must not be copied after first use.
type Store struct {
	mu    sync.Mutex
	m     map[connid.ID][]byte
	total int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{m: make(map[connid.ID][]byte)}
}

// Pop removes and returns the bytes buffered for id. A missing entry yields
// nil, which callers treat as an empty prefix.
//
// Parameters:
//   - id: The connection ID
//
// Returns:
//   - The buffered bytes, or nil if there were none
func (s *Store) Pop(id connid.ID) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[id]
	if !ok {
		return nil
	}

	delete(s.m, id)
	s.total -= len(b)
	return b
}

// Merge appends fragment to whatever is buffered for id and stores the
// combined bytes back as the new entry. An empty fragment is a no-op. The
// fragment is copied, so the caller may reuse its buffer afterwards.
//
// Parameters:
//   - id: The connection ID
//   - fragment: Unterminated bytes read in the latest poll cycle
//
// Returns:
//   - The length of the entry after merging
func (s *Store) Merge(id connid.ID, fragment []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	held := s.m[id]
	if len(fragment) == 0 {
		return len(held)
	}

	s.m[id] = utils.JoinBytes(held, fragment)
	s.total += len(fragment)
	return len(held) + len(fragment)
}

// Discard drops the entry for id and reports how many bytes were thrown away.
// It is used when a connection goes away with an unterminated message.
func (s *Store) Discard(id connid.ID) int {
	return len(s.Pop(id))
}

// Len returns the number of connections with buffered bytes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Buffered returns the total number of bytes held across all connections.
func (s *Store) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Reset drops every entry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[connid.ID][]byte)
	s.total = 0
}
