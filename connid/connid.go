// Package connid hands out process-unique connection identifiers. IDs are
// drawn from a 64-bit monotonically increasing counter and are never reused
// while the generator lives, so a closed connection's ID cannot be mistaken
// for a newer one.
package connid

import (
	"strconv"
	"sync/atomic"
)

// ID identifies one accepted connection. The zero ID is never issued and can
// be used to mean "no connection".
type ID uint64

// String returns the ID in the "#<n>" form used in log output.
func (id ID) String() string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// IsZero reports whether id is the unassigned zero ID.
func (id ID) IsZero() bool {
	return id == 0
}

// Generator generates monotonically increasing IDs in a concurrency-safe
// manner. The first call to Next returns start+1.
type Generator struct {
	start uint64
	last  atomic.Uint64
}

// NewGenerator creates a Generator whose first issued ID is start+1.
//
// Parameters:
//   - start: The value to initialize the counter to
//
// Returns:
//   - A new Generator instance
func NewGenerator(start uint64) *Generator {
	g := &Generator{start: start}
	g.last.Store(start)
	return g
}

// Next returns the next unique ID by atomically incrementing the counter.
//
// Returns:
//   - The next ID
func (g *Generator) Next() ID {
	return ID(g.last.Add(1))
}

// Issued returns how many IDs have been handed out so far.
func (g *Generator) Issued() uint64 {
	return g.last.Load() - g.start
}
