package hnsw

import (
	"math"
	"math/rand"
	"testing"

	"github.com/edgevec/edgevec/internal/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFloatSpace is a minimal in-memory Space[[]float32] for exercising
// the graph without a real storage arena.
type fakeFloatSpace struct {
	vectors map[ids.VectorId][]float32
}

func newFakeSpace() *fakeFloatSpace { return &fakeFloatSpace{vectors: map[ids.VectorId][]float32{}} }

func (s *fakeFloatSpace) add(id ids.VectorId, v []float32) { s.vectors[id] = v }

func (s *fakeFloatSpace) Distance(a, b ids.VectorId) float32 {
	return s.DistanceToQuery(a, s.vectors[b])
}

func (s *fakeFloatSpace) DistanceToQuery(a ids.VectorId, query []float32) float32 {
	v := s.vectors[a]
	var sum float32
	for i := range v {
		d := v[i] - query[i]
		sum += d * d
	}
	return sum
}

func TestScenario1_BasicL2Search(t *testing.T) {
	space := newFakeSpace()
	space.add(0, []float32{1, 0, 0, 0})
	space.add(1, []float32{0, 1, 0, 0})

	g := New[[]float32](space, DefaultParams(42))
	ctx := NewSearchContext(16)
	g.Insert(ctx, 0)
	g.Insert(ctx, 1)

	results := g.Search(ctx, []float32{1, 0, 0, 0}, 2, 50, 2, nil)
	require.Len(t, results, 2)
	assert.Equal(t, ids.VectorId(0), results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.Equal(t, ids.VectorId(1), results[1].ID)
	assert.InDelta(t, 2, results[1].Distance, 1e-6)
}

func TestInsertEmptyGraphBecomesEntryPoint(t *testing.T) {
	space := newFakeSpace()
	space.add(0, []float32{0, 0})
	g := New[[]float32](space, DefaultParams(1))
	ctx := NewSearchContext(8)

	g.Insert(ctx, 0)
	ep, ok := g.EntryPoint()
	assert.True(t, ok)
	assert.Equal(t, ids.VectorId(0), ep)
}

func TestSearchOnEmptyGraphReturnsNil(t *testing.T) {
	space := newFakeSpace()
	g := New[[]float32](space, DefaultParams(1))
	ctx := NewSearchContext(8)
	assert.Nil(t, g.Search(ctx, []float32{0, 0}, 5, 50, 0, nil))
}

func TestSearchRespectsAllowedPredicate(t *testing.T) {
	space := newFakeSpace()
	for i := 0; i < 10; i++ {
		space.add(ids.VectorId(i), []float32{float32(i), 0})
	}
	g := New[[]float32](space, DefaultParams(7))
	ctx := NewSearchContext(32)
	for i := 0; i < 10; i++ {
		g.Insert(ctx, ids.VectorId(i))
	}

	allowed := func(id ids.VectorId) bool { return id%2 == 0 }
	results := g.Search(ctx, []float32{0, 0}, 3, 50, 10, allowed)
	for _, r := range results {
		assert.Zero(t, int(r.ID)%2)
	}
}

// buildRandomGraph inserts n random vectors of dimension dim with a fixed
// seed, exercising I3/I4 invariants (bidirectional edges, fanout bounds).
func buildRandomGraph(t *testing.T, n, dim int, seed uint64, m int) (*Graph[[]float32], *fakeFloatSpace) {
	t.Helper()
	space := newFakeSpace()
	rng := rand.New(rand.NewSource(int64(seed)))
	for i := 0; i < n; i++ {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		space.add(ids.VectorId(i), v)
	}
	p := DefaultParams(seed)
	p.M = m
	p.M0 = 2 * m
	g := New[[]float32](space, p)
	ctx := NewSearchContext(uint(n) + 1)
	for i := 0; i < n; i++ {
		g.Insert(ctx, ids.VectorId(i))
	}
	return g, space
}

func TestInvariant_BidirectionalEdges(t *testing.T) {
	g, _ := buildRandomGraph(t, 200, 8, 42, 8)
	for id, n := range g.nodes {
		for layer := 0; layer <= n.maxLayer; layer++ {
			for _, neighbor := range n.neighbors[layer] {
				found := false
				for _, back := range g.Neighbors(neighbor, layer) {
					if back == id {
						found = true
						break
					}
				}
				assert.True(t, found, "edge %d->%d at layer %d is not bidirectional", id, neighbor, layer)
			}
		}
	}
}

func TestInvariant_FanoutBounds(t *testing.T) {
	g, _ := buildRandomGraph(t, 200, 8, 7, 8)
	for _, n := range g.nodes {
		for layer := 0; layer <= n.maxLayer; layer++ {
			limit := g.fanoutLimit(layer)
			assert.LessOrEqual(t, len(n.neighbors[layer]), limit)
		}
	}
}

func TestDeterminism_SameSeedSameGraph(t *testing.T) {
	g1, _ := buildRandomGraph(t, 100, 6, 99, 8)
	g2, _ := buildRandomGraph(t, 100, 6, 99, 8)

	for id, n1 := range g1.nodes {
		n2, ok := g2.nodes[id]
		require.True(t, ok)
		require.Equal(t, n1.maxLayer, n2.maxLayer)
		for layer := 0; layer <= n1.maxLayer; layer++ {
			assert.Equal(t, n1.neighbors[layer], n2.neighbors[layer])
		}
	}
	ep1, _ := g1.EntryPoint()
	ep2, _ := g2.EntryPoint()
	assert.Equal(t, ep1, ep2)
}

func TestSplitMix64Uniform01InRange(t *testing.T) {
	rng := newSplitMix64(123)
	for i := 0; i < 1000; i++ {
		u := rng.uniform01()
		assert.True(t, u > 0 && u <= 1)
	}
}

func TestSampleLevelNeverNegative(t *testing.T) {
	rng := newSplitMix64(1)
	lambda := 1.0 / math.Log(16)
	for i := 0; i < 1000; i++ {
		assert.GreaterOrEqual(t, rng.sampleLevel(lambda), 0)
	}
}

func TestRestoreNodeAndEntryPoint_RehydratesGraphForSearch(t *testing.T) {
	space := newFakeSpace()
	space.add(0, []float32{1, 0, 0, 0})
	space.add(1, []float32{0, 1, 0, 0})
	g := New[[]float32](space, DefaultParams(1))

	g.RestoreNode(0, 0, [][]ids.VectorId{{1}})
	g.RestoreNode(1, 0, [][]ids.VectorId{{0}})
	g.RestoreEntryPoint(0, 0)

	ep, ok := g.EntryPoint()
	require.True(t, ok)
	assert.Equal(t, ids.VectorId(0), ep)
	assert.Equal(t, []ids.VectorId{1}, g.Neighbors(0, 0))

	ctx := NewSearchContext(4)
	results := g.Search(ctx, []float32{1, 0, 0, 0}, 2, 10, 2, nil)
	require.Len(t, results, 2)
	assert.Equal(t, ids.VectorId(0), results[0].ID)
}
