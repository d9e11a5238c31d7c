package hnsw

import "github.com/bits-and-blooms/bitset"

// SearchContext holds the reusable scratch state a single graph traversal
// needs: a visited-set bitmap sized to next_id (spec §9 — "a visited-set
// bitmap sized to next_id... reuse buffers across calls via a reusable
// search context owned by the engine, never shared"). The engine owns one
// SearchContext per logical thread of operations and passes it into every
// Insert/Search call; it must never be shared across concurrent callers.
type SearchContext struct {
	visited *bitset.BitSet
}

// NewSearchContext creates a context with an initial capacity hint.
func NewSearchContext(capacityHint uint) *SearchContext {
	if capacityHint == 0 {
		capacityHint = 1024
	}
	return &SearchContext{visited: bitset.New(capacityHint)}
}

// reset clears the visited set for a new traversal, growing the
// underlying bitmap if next_id has grown past its current capacity.
func (c *SearchContext) reset(nextID uint32) {
	c.visited.ClearAll()
	if uint(nextID) > c.visited.Len() {
		c.visited = bitset.New(uint(nextID) + 1)
	}
}

func (c *SearchContext) isVisited(id uint32) bool {
	return c.visited.Test(uint(id))
}

func (c *SearchContext) markVisited(id uint32) {
	c.visited.Set(uint(id))
}
