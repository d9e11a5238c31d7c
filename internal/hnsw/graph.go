// Package hnsw implements the layered proximity graph of spec §4.2: a
// hierarchical navigable small world index supporting insert, search, and
// the heuristic neighbor selection of Malkov & Yashunin §4.
package hnsw

import (
	"math"

	"github.com/edgevec/edgevec/internal/ids"
)

// Space is what the graph needs from vector storage to operate. Distance
// is used once both endpoints already live in storage (insert, pruning,
// heuristic selection); DistanceToQuery is used for an owned query vector
// that was never appended to storage. Q is []float32 for a Float-backed
// graph or []byte for a Binary-backed (Hamming) graph.
type Space[Q any] interface {
	Distance(a, b ids.VectorId) float32
	DistanceToQuery(a ids.VectorId, query Q) float32
}

// Candidate is a search result: an id and its distance to the query
// (smaller = closer, per spec §4.1's convention).
type Candidate struct {
	ID       ids.VectorId
	Distance float32
}

// Params are the tunable HNSW parameters of spec §4.2.
type Params struct {
	M              int // max neighbors per node above layer 0 (default 16)
	M0             int // max neighbors per node at layer 0 (default 2M)
	EfConstruction int // candidate pool size during insert (default 200)
	EfSearch       int // candidate pool size during search (default 50)
	Seed           uint64
}

// DefaultParams returns spec §4.2's defaults.
func DefaultParams(seed uint64) Params {
	return Params{M: 16, M0: 32, EfConstruction: 200, EfSearch: 50, Seed: seed}
}

type node struct {
	maxLayer  int
	neighbors [][]ids.VectorId // len == maxLayer+1, neighbors[l] for layer l
}

// Graph is the HNSW index over storage-level VectorIds. It never stores
// vector data itself — only adjacency and layer assignments — and
// delegates every distance computation to Space.
type Graph[Q any] struct {
	space Space[Q]
	p     Params

	levelLambda float64
	rng         *splitMix64

	nodes      map[ids.VectorId]*node
	entryPoint ids.VectorId
	hasEntry   bool
	entryLayer int
	maxID      ids.VectorId // highest id ever inserted, for visited-bitmap sizing
}

// New constructs an empty graph bound to space, using the RNG seed in p.
func New[Q any](space Space[Q], p Params) *Graph[Q] {
	if p.M <= 0 {
		p.M = 16
	}
	if p.M0 <= 0 {
		p.M0 = 2 * p.M
	}
	if p.EfConstruction <= 0 {
		p.EfConstruction = 200
	}
	if p.EfSearch <= 0 {
		p.EfSearch = 50
	}
	return &Graph[Q]{
		space:       space,
		p:           p,
		levelLambda: 1.0 / math.Log(float64(p.M)),
		rng:         newSplitMix64(p.Seed),
		nodes:       make(map[ids.VectorId]*node),
		entryPoint:  ids.Invalid,
	}
}

// Len returns the number of nodes currently in the graph (including
// tombstoned ones — the graph has no deletion concept of its own, only
// the engine's tombstone set does, per spec §4.8).
func (g *Graph[Q]) Len() int { return len(g.nodes) }

// EntryPoint returns the current entry point and whether the graph is
// non-empty (spec §3 invariant (c): entry_point exists iff non-empty).
func (g *Graph[Q]) EntryPoint() (ids.VectorId, bool) { return g.entryPoint, g.hasEntry }

// MaxLayer returns a node's assigned max layer, or -1 if absent.
func (g *Graph[Q]) MaxLayer(id ids.VectorId) int {
	if n, ok := g.nodes[id]; ok {
		return n.maxLayer
	}
	return -1
}

// Neighbors returns node id's neighbor list at layer l (empty if absent
// or l exceeds its max layer). The returned slice aliases internal state
// and must not be mutated by callers.
func (g *Graph[Q]) Neighbors(id ids.VectorId, layer int) []ids.VectorId {
	n, ok := g.nodes[id]
	if !ok || layer > n.maxLayer {
		return nil
	}
	return n.neighbors[layer]
}

// Has reports whether id has a node in the graph.
func (g *Graph[Q]) Has(id ids.VectorId) bool {
	_, ok := g.nodes[id]
	return ok
}

// DistanceToQuery exposes the underlying Space's query distance, letting
// callers (the filter planner's pre-filter scan) compute exact distances
// without reaching into graph internals.
func (g *Graph[Q]) DistanceToQuery(id ids.VectorId, query Q) float32 {
	return g.space.DistanceToQuery(id, query)
}

// RestoreNode installs a node's adjacency directly, bypassing insertion —
// used only by persistence's load path to rehydrate a graph from a saved
// format without recomputing it (spec §4.9). neighbors must have length
// maxLayer+1, one slice per layer.
func (g *Graph[Q]) RestoreNode(id ids.VectorId, maxLayer int, neighbors [][]ids.VectorId) {
	g.nodes[id] = &node{maxLayer: maxLayer, neighbors: neighbors}
	if !g.hasEntry || id > g.maxID {
		g.maxID = id
	}
}

// RestoreEntryPoint sets the graph's entry point directly, the
// persistence load path's counterpart to RestoreNode.
func (g *Graph[Q]) RestoreEntryPoint(id ids.VectorId, layer int) {
	g.entryPoint = id
	g.entryLayer = layer
	g.hasEntry = true
}

// fanoutLimit returns M0 at layer 0, M elsewhere (spec §3 invariant I4).
func (g *Graph[Q]) fanoutLimit(layer int) int {
	if layer == 0 {
		return g.p.M0
	}
	return g.p.M
}
