package hnsw

import "sort"

// sortCandidatesAscending sorts by distance, then by id to make the
// heuristic selector's tie-break deterministic (spec §4.2: "Tie-break by
// ascending candidate id").
func sortCandidatesAscending(c []Candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Distance != c[j].Distance {
			return c[i].Distance < c[j].Distance
		}
		return c[i].ID < c[j].ID
	})
}
