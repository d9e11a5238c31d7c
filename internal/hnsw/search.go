package hnsw

import "github.com/edgevec/edgevec/internal/ids"

// searchLayer implements spec §4.2's search_layer: maintains a min-heap
// frontier for expansion and a bounded max-heap result (capacity ef),
// both seeded from entries, and expands the frontier until no unexplored
// candidate can improve the result set. dist computes distance from an
// id to the fixed target (a query vector during search, or the new
// node's id during insert) — unifying both call sites.
func (g *Graph[Q]) searchLayer(ctx *SearchContext, dist func(id ids.VectorId) float32, entries []ids.VectorId, layer int, ef int) []Candidate {
	frontier := newCandHeap(true)
	result := newCandHeap(false)

	for _, e := range entries {
		if ctx.isVisited(uint32(e)) {
			continue
		}
		ctx.markVisited(uint32(e))
		c := Candidate{ID: e, Distance: dist(e)}
		frontier.push(c)
		result.push(c)
	}

	for !frontier.empty() {
		c := frontier.top()
		if result.Len() >= ef && c.Distance > result.top().Distance {
			break
		}
		frontier.pop()

		for _, n := range g.Neighbors(c.ID, layer) {
			if ctx.isVisited(uint32(n)) {
				continue
			}
			ctx.markVisited(uint32(n))
			d := dist(n)
			if result.Len() < ef || d < result.top().Distance {
				cand := Candidate{ID: n, Distance: d}
				frontier.push(cand)
				result.push(cand)
				if result.Len() > ef {
					result.pop()
				}
			}
		}
	}

	return result.sortedAscending()
}

// Search performs the top-level ANN query of spec §4.2: greedy descent
// from entry_point down to layer 1, a full search_layer pass at layer 0
// with ef = max(ef_search, k), filtering by allowed (the metadata
// predicate, spec §4.4) and returning the first k ascending results.
//
// ef_search < k clamps to k; ef_search > liveCount clamps to liveCount.
func (g *Graph[Q]) Search(ctx *SearchContext, query Q, k int, efSearch int, liveCount int, allowed func(ids.VectorId) bool) []Candidate {
	if !g.hasEntry || k <= 0 {
		return nil
	}
	if efSearch < k {
		efSearch = k
	}
	if liveCount > 0 && efSearch > liveCount {
		efSearch = liveCount
	}

	dist := func(id ids.VectorId) float32 { return g.space.DistanceToQuery(id, query) }

	current := g.entryPoint
	for layer := g.entryLayer; layer > 0; layer-- {
		ctx.reset(uint32(g.maxID) + 1)
		best := g.searchLayer(ctx, dist, []ids.VectorId{current}, layer, 1)
		if len(best) > 0 {
			current = best[0].ID
		}
	}

	ctx.reset(uint32(g.maxID) + 1)
	candidates := g.searchLayer(ctx, dist, []ids.VectorId{current}, 0, efSearch)

	out := make([]Candidate, 0, k)
	for _, c := range candidates {
		if allowed != nil && !allowed(c.ID) {
			continue
		}
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out
}
