package hnsw

import "github.com/edgevec/edgevec/internal/ids"

// Insert implements spec §4.2's insertion algorithm. id must already have
// a vector resident in storage (the graph never mints ids itself — that
// is the engine's job, which enforces VectorId monotonicity on the
// public path and only relaxes it for compact's insert-with-id rebuild,
// spec §4.8 / §9). ctx is the caller's reusable search-context buffer.
func (g *Graph[Q]) Insert(ctx *SearchContext, id ids.VectorId) {
	if id > g.maxID || !g.hasEntry {
		g.maxID = id
	}

	level := g.rng.sampleLevel(g.levelLambda)
	n := &node{maxLayer: level, neighbors: make([][]ids.VectorId, level+1)}
	g.nodes[id] = n

	if !g.hasEntry {
		g.entryPoint = id
		g.entryLayer = level
		g.hasEntry = true
		return
	}

	dist := func(other ids.VectorId) float32 { return g.space.Distance(other, id) }

	current := g.entryPoint
	top := min(level, g.entryLayer)

	// Greedy single-step descent above the construction range (spec
	// §4.2 step 3): ef=1 search_layer is exactly "move to the closest
	// neighbor, stop when none is closer".
	for layer := g.entryLayer; layer > top; layer-- {
		ctx.reset(uint32(g.maxID) + 1)
		best := g.searchLayer(ctx, dist, []ids.VectorId{current}, layer, 1)
		if len(best) > 0 {
			current = best[0].ID
		}
	}

	for layer := top; layer >= 0; layer-- {
		ctx.reset(uint32(g.maxID) + 1)
		pool := g.searchLayer(ctx, dist, []ids.VectorId{current}, layer, g.p.EfConstruction)
		if len(pool) > 0 {
			current = pool[0].ID
		}

		limit := g.fanoutLimit(layer)
		selected := g.heuristicSelect(id, pool, limit)
		n.neighbors[layer] = selected

		for _, neighbor := range selected {
			g.connect(neighbor, id, layer)
		}
	}

	if level > g.entryLayer {
		g.entryPoint = id
		g.entryLayer = level
	}
}

// connect adds a bidirectional edge (other, id) at layer and, if other
// now exceeds its fanout at that layer, prunes it with the same
// heuristic selector (spec §4.2 step 4).
func (g *Graph[Q]) connect(other, id ids.VectorId, layer int) {
	on, ok := g.nodes[other]
	if !ok || layer > on.maxLayer {
		return
	}
	on.neighbors[layer] = append(on.neighbors[layer], id)

	limit := g.fanoutLimit(layer)
	if len(on.neighbors[layer]) <= limit {
		return
	}
	pool := g.candidatesAgainst(other, on.neighbors[layer])
	on.neighbors[layer] = g.heuristicSelect(other, pool, limit)
}

// InsertWithID is the rebuild-path entry point compaction uses (spec
// §4.8 / §9): it is semantically identical to Insert but its existence
// as a separate name keeps the regular engine Insert from accidentally
// exposing caller-assigned ids on the normal path.
func (g *Graph[Q]) InsertWithID(ctx *SearchContext, id ids.VectorId) {
	g.Insert(ctx, id)
}
