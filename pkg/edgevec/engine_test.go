package edgevec

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgevec/edgevec/internal/config"
	"github.com/edgevec/edgevec/internal/everr"
	"github.com/edgevec/edgevec/internal/ids"
	"github.com/edgevec/edgevec/internal/metadata"
	"github.com/edgevec/edgevec/internal/planner"
	"github.com/edgevec/edgevec/internal/sparse"
)

func floatIndexConfig(dim uint32) *config.IndexConfig {
	c := config.NewIndexConfig()
	c.Dimensions = dim
	return c
}

func TestNewFloat_RejectsInvalidConfig(t *testing.T) {
	cfg := floatIndexConfig(0)
	_, err := NewFloat(cfg)
	require.Error(t, err)
}

func TestNewBinary_RequiresBinaryVectorType(t *testing.T) {
	cfg := floatIndexConfig(16)
	_, err := NewBinary(cfg)
	require.Error(t, err)
}

func TestSearch_BasicL2(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)

	id0, err := e.Insert([]float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)
	id1, err := e.Insert([]float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, ids.VectorId(0), id0)
	assert.Equal(t, ids.VectorId(1), id1)

	res, err := e.Search([]float32{1, 0, 0, 0}, 2, "", planner.StrategyAuto, 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, id0, res.Results[0].ID)
	assert.InDelta(t, 0, res.Results[0].Distance, 1e-6)
	assert.Equal(t, id1, res.Results[1].ID)
	assert.InDelta(t, 2, res.Results[1].Distance, 1e-6)
}

func TestSearch_MetadataFilter(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)

	_, err = e.Insert([]float32{1, 0, 0, 0}, map[string]metadata.Value{
		"category": metadata.String("gpu"), "price": metadata.Integer(499),
	})
	require.NoError(t, err)
	_, err = e.Insert([]float32{0, 1, 0, 0}, map[string]metadata.Value{
		"category": metadata.String("cpu"), "price": metadata.Integer(299),
	})
	require.NoError(t, err)

	res, err := e.Search([]float32{1, 0, 0, 0}, 10, `category = "gpu"`, planner.StrategyAuto, 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, ids.VectorId(0), res.Results[0].ID)
	assert.InDelta(t, 0.5, res.ObservedSelectivity, 0.2)
}

func TestCompileFilter_CachesAcrossSearches(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)
	_, err = e.Insert([]float32{1, 0, 0, 0}, map[string]metadata.Value{"category": metadata.String("gpu")})
	require.NoError(t, err)

	first, err := e.compileFilter(`category = "gpu"`)
	require.NoError(t, err)
	second, err := e.compileFilter(`category = "gpu"`)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestInsertBatch_InsertsEveryValidVector(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)

	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
	res, err := e.InsertBatch(vectors, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.IDs, 3)
}

func TestInsertBatch_RejectsEmpty(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)
	_, err = e.InsertBatch(nil, nil)
	require.Error(t, err)
}

func TestSoftDelete_IsIdempotent(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)
	id, err := e.Insert([]float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)

	assert.True(t, e.SoftDelete(id))
	assert.False(t, e.SoftDelete(id))
}

func TestDeleteBatch_DeduplicatesInput(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)
	id, err := e.Insert([]float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)

	deleted, already := e.DeleteBatch([]ids.VectorId{id, id, id})
	assert.Equal(t, 1, deleted)
	assert.Equal(t, 2, already)
}

func TestCompact_PreservesLiveIDsAndDistances(t *testing.T) {
	cfg := floatIndexConfig(8)
	cfg.Seed = 42
	e, err := NewFloat(cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	const n = 200
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, 8)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vectors[i] = v
		_, err := e.Insert(v, nil)
		require.NoError(t, err)
	}
	for id := ids.VectorId(1); int(id) < n; id += 2 {
		e.SoftDelete(id)
	}
	require.Equal(t, n/2, e.LiveCount())

	result, err := e.Compact()
	require.NoError(t, err)
	assert.Equal(t, n/2, e.LiveCount())
	assert.Positive(t, result.TombstonesRemoved)

	res, err := e.Search(vectors[0], 1, "", planner.StrategyAuto, 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, ids.VectorId(0), res.Results[0].ID)
	assert.InDelta(t, 0, res.Results[0].Distance, 1e-4)
}

func TestSearch_BinaryHamming(t *testing.T) {
	cfg := config.NewIndexConfig()
	cfg.Dimensions = 16
	cfg.VectorType = config.VectorTypeBinary
	cfg.Metric = config.MetricHamming
	e, err := NewBinary(cfg)
	require.NoError(t, err)

	_, err = e.Insert([]byte{0xFF, 0xFF}, nil)
	require.NoError(t, err)
	_, err = e.Insert([]byte{0x00, 0x00}, nil)
	require.NoError(t, err)

	res, err := e.Search([]byte{0xFF, 0xF0}, 2, "", planner.StrategyAuto, 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, ids.VectorId(0), res.Results[0].ID)
	assert.InDelta(t, 4, res.Results[0].Distance, 1e-6)
	assert.Equal(t, ids.VectorId(1), res.Results[1].ID)
	assert.InDelta(t, 12, res.Results[1].Distance, 1e-6)
}

func TestHybridSearch_FusesRankingsByRRF(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)

	target := ids.VectorId(99)
	dense := []sparse.RankedID{{ID: 1, Score: 3}, {ID: 2, Score: 2}, {ID: target, Score: 1}}
	sparseRanking := make([]sparse.RankedID, 7)
	for i := range sparseRanking {
		sparseRanking[i] = sparse.RankedID{ID: ids.VectorId(1000 + i), Score: float64(7 - i)}
	}
	sparseRanking[6].ID = target

	fused := e.HybridSearch(dense, sparseRanking, sparse.FusionRRF, 0)
	var found *sparse.FusedResult
	for _, f := range fused {
		if f.ID == target {
			found = f
		}
	}
	require.NotNil(t, found)
	assert.InDelta(t, 1.0/63.0+1.0/67.0, found.FusedScore, 1e-4)
}

func TestMemoryUsage_ReflectsArenaGrowth(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)
	before := e.MemoryUsage()
	_, err = e.Insert([]float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)
	after := e.MemoryUsage()
	assert.Greater(t, after.Used, before.Used)
}

type memStore struct{ blocks map[string][]byte }

func newMemStore() *memStore { return &memStore{blocks: map[string][]byte{}} }

func (m *memStore) Read(ctx context.Context, name string) ([]byte, error) {
	b, ok := m.blocks[name]
	if !ok {
		return nil, assert.AnError
	}
	return b, nil
}

func (m *memStore) Write(ctx context.Context, name string, data []byte) error {
	m.blocks[name] = append([]byte(nil), data...)
	return nil
}

func TestSaveLoad_RoundTripsVectorsGraphAndMetadata(t *testing.T) {
	cfg := floatIndexConfig(4)
	e, err := NewFloat(cfg)
	require.NoError(t, err)

	_, err = e.Insert([]float32{1, 0, 0, 0}, map[string]metadata.Value{"category": metadata.String("gpu")})
	require.NoError(t, err)
	_, err = e.Insert([]float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, e.Save(ctx, store, "index"))

	loaded, err := LoadFloat(ctx, cfg, store, "index")
	require.NoError(t, err)

	res, err := loaded.Search([]float32{1, 0, 0, 0}, 2, "", planner.StrategyAuto, 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, ids.VectorId(0), res.Results[0].ID)
	assert.InDelta(t, 0, res.Results[0].Distance, 1e-6)

	filtered, err := loaded.Search([]float32{1, 0, 0, 0}, 10, `category = "gpu"`, planner.StrategyAuto, 0, 0)
	require.NoError(t, err)
	require.Len(t, filtered.Results, 1)
	assert.Equal(t, ids.VectorId(0), filtered.Results[0].ID)
}

func TestSaveLoad_RoundTripsAfterCompaction(t *testing.T) {
	cfg := floatIndexConfig(4)
	e, err := NewFloat(cfg)
	require.NoError(t, err)

	for _, v := range [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}} {
		_, err := e.Insert(v, nil)
		require.NoError(t, err)
	}
	e.SoftDelete(1)
	e.SoftDelete(3)
	_, err = e.Compact()
	require.NoError(t, err)

	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, e.Save(ctx, store, "index"))

	loaded, err := LoadFloat(ctx, cfg, store, "index")
	require.NoError(t, err)
	assert.Equal(t, e.LiveCount(), loaded.LiveCount())

	res, err := loaded.Search([]float32{1, 0, 0, 0}, 1, "", planner.StrategyAuto, 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, ids.VectorId(0), res.Results[0].ID)
	assert.InDelta(t, 0, res.Results[0].Distance, 1e-6)
}

func TestSearch_FlatIndexType_MatchesExactKNN(t *testing.T) {
	cfg := floatIndexConfig(4)
	cfg.IndexType = config.IndexTypeFlat
	e, err := NewFloat(cfg)
	require.NoError(t, err)

	id0, err := e.Insert([]float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)
	id1, err := e.Insert([]float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)

	res, err := e.Search([]float32{1, 0, 0, 0}, 2, "", planner.StrategyAuto, 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, id0, res.Results[0].ID)
	assert.InDelta(t, 0, res.Results[0].Distance, 1e-6)
	assert.Equal(t, id1, res.Results[1].ID)
	assert.InDelta(t, 2, res.Results[1].Distance, 1e-6)

	filtered, err := e.Search([]float32{1, 0, 0, 0}, 10, `category = "gpu"`, planner.StrategyAuto, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, filtered.Results)
}

func TestSearch_FlatIndexType_NeverInsertsIntoGraph(t *testing.T) {
	cfg := floatIndexConfig(4)
	cfg.IndexType = config.IndexTypeFlat
	e, err := NewFloat(cfg)
	require.NoError(t, err)

	_, err = e.Insert([]float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)

	_, hasEntry := e.graph.EntryPoint()
	assert.False(t, hasEntry)
}

func TestEnableBQ_RescoredSearchMatchesExactNearest(t *testing.T) {
	cfg := floatIndexConfig(8)
	e, err := NewFloat(cfg)
	require.NoError(t, err)

	vectors := [][]float32{
		{1, 1, 1, 1, 1, 1, 1, 1},
		{-1, -1, -1, -1, -1, -1, -1, -1},
		{1, 1, 1, 1, -1, -1, -1, -1},
	}
	for _, v := range vectors {
		_, err := e.Insert(v, nil)
		require.NoError(t, err)
	}
	require.NoError(t, e.EnableBQ())

	res, err := e.SearchBQRescored([]float32{0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9}, 1, 2)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, ids.VectorId(0), res[0].ID)
}

func TestSearchBQRescored_DisabledReturnsError(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(8))
	require.NoError(t, err)
	_, err = e.Insert([]float32{1, 0, 0, 0, 0, 0, 0, 0}, nil)
	require.NoError(t, err)

	_, err = e.SearchBQRescored([]float32{1, 0, 0, 0, 0, 0, 0, 0}, 1, 2)
	require.Error(t, err)
	assert.Equal(t, everr.CodeBQDisabled, everr.Code(err))
}

func TestEnableBQ_RejectsDimensionNotDivisibleByEight(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)

	err = e.EnableBQ()
	require.Error(t, err)
	assert.Equal(t, everr.CodeDimensionMismatch, everr.Code(err))
}

func TestStats_ReflectsLiveDeletedAndGraphShape(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)
	id0, err := e.Insert([]float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)
	_, err = e.Insert([]float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)
	e.SoftDelete(id0)

	stats := e.Stats()
	assert.Equal(t, 4, stats.Dimensions)
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, 1, stats.LiveCount)
	assert.Equal(t, 1, stats.DeletedCount)
	assert.Positive(t, stats.GraphDepth)
}

func TestEstimateMemoryUsage_GrowsWithMetadataAndFeedsMemctl(t *testing.T) {
	e, err := NewFloat(floatIndexConfig(4))
	require.NoError(t, err)
	before := e.EstimateMemoryUsage()

	_, err = e.Insert([]float32{1, 0, 0, 0}, map[string]metadata.Value{"category": metadata.String("gpu")})
	require.NoError(t, err)

	after := e.EstimateMemoryUsage()
	assert.Greater(t, after.StorageBytes, before.StorageBytes)
	assert.Greater(t, after.MetadataBytes, before.MetadataBytes)

	usage := e.MemoryUsage()
	assert.Equal(t, after.StorageBytes+after.GraphBytes+after.MetadataBytes+after.SparseBytes, usage.Used)
}

func TestSaveLoad_RoundTripsSparseState(t *testing.T) {
	cfg := floatIndexConfig(4)
	e, err := NewFloat(cfg)
	require.NoError(t, err)
	_, err = e.Insert([]float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)

	_, err = e.SparseInsert(sparse.Vector{Indices: []uint32{0, 2}, Values: []float32{1.5, 2.5}, Dim: 4})
	require.NoError(t, err)

	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, e.Save(ctx, store, "index"))

	loaded, err := LoadFloat(ctx, cfg, store, "index")
	require.NoError(t, err)

	hits := loaded.SparseSearch(sparse.Vector{Indices: []uint32{0}, Values: []float32{1}, Dim: 4}, 1)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.5, hits[0].Score, 1e-6)
}
