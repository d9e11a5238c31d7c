package hnsw

import "github.com/edgevec/edgevec/internal/ids"

// heuristicSelect implements the neighbor-selection heuristic of spec
// §4.2 (Malkov/Yashunin §4): pool must already be sorted ascending by
// distance to reference, with ties broken by ascending id. A candidate is
// kept iff its distance to reference is less than its distance to every
// already-kept candidate — otherwise it is "dominated" by an already
// closer, mutually-close neighbor and discarded. Stops once m are kept.
func (g *Graph[Q]) heuristicSelect(reference ids.VectorId, pool []Candidate, m int) []ids.VectorId {
	kept := make([]ids.VectorId, 0, m)
	for _, cand := range pool {
		if len(kept) >= m {
			break
		}
		dominated := false
		for _, k := range kept {
			if cand.Distance >= g.space.Distance(cand.ID, k) {
				dominated = true
				break
			}
		}
		if !dominated {
			kept = append(kept, cand.ID)
		}
	}
	return kept
}

// candidatesAgainst converts a node's current neighbor list at layer into
// an ascending-sorted Candidate pool relative to reference, for re-running
// the heuristic during pruning.
func (g *Graph[Q]) candidatesAgainst(reference ids.VectorId, neighbors []ids.VectorId) []Candidate {
	pool := make([]Candidate, len(neighbors))
	for i, n := range neighbors {
		pool[i] = Candidate{ID: n, Distance: g.space.Distance(reference, n)}
	}
	sortCandidatesAscending(pool)
	return pool
}
