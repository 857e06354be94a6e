package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable UUID-shaped instance ids:
// 00000000-0000-7000-8000-000000000001, ...000002, and so on.
//
// Thread-safety: safe for concurrent use.
type SequenceIDs struct {
	mu sync.Mutex
	n  int
}

// NewSequenceIDs starts the sequence at 1.
func NewSequenceIDs() *SequenceIDs {
	return &SequenceIDs{}
}

// Generate returns the next id.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", g.n)
}

// FixedIDs returns predetermined ids in order and panics when they run out,
// which surfaces tests that create more instances than they expect.
type FixedIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator over ids.
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// Generate returns the next predetermined id.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedIDs: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
