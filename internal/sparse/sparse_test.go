package sparse

import (
	"math"
	"testing"

	"github.com/edgevec/edgevec/internal/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndSearch_RanksByDotProduct(t *testing.T) {
	s := New()
	idA, err := s.Insert(Vector{Indices: []uint32{0, 2}, Values: []float32{1, 1}, Dim: 4})
	require.NoError(t, err)
	idB, err := s.Insert(Vector{Indices: []uint32{0}, Values: []float32{0.1}, Dim: 4})
	require.NoError(t, err)

	hits := s.Search(Vector{Indices: []uint32{0, 2}, Values: []float32{1, 1}, Dim: 4}, 10)
	require.Len(t, hits, 2)
	assert.Equal(t, idA, hits[0].ID)
	assert.Equal(t, idB, hits[1].ID)
}

func TestInsert_RejectsNonIncreasingIndices(t *testing.T) {
	s := New()
	_, err := s.Insert(Vector{Indices: []uint32{2, 1}, Values: []float32{1, 1}, Dim: 4})
	assert.Error(t, err)
}

func TestInsert_RejectsIndexOutOfRange(t *testing.T) {
	s := New()
	_, err := s.Insert(Vector{Indices: []uint32{5}, Values: []float32{1}, Dim: 4})
	assert.Error(t, err)
}

func TestSearch_KZeroReturnsNil(t *testing.T) {
	s := New()
	assert.Nil(t, s.Search(Vector{Dim: 4}, 0))
}

func TestScenario6_RRFFusionScore(t *testing.T) {
	dense := make([]RankedID, 20)
	for i := range dense {
		dense[i] = RankedID{ID: ids.VectorId(100 + i), Score: float64(i)}
	}
	dense[2] = RankedID{ID: 42, Score: 3}

	sparseRanking := make([]RankedID, 20)
	for i := range sparseRanking {
		sparseRanking[i] = RankedID{ID: ids.VectorId(200 + i), Score: float64(20 - i)}
	}
	sparseRanking[6] = RankedID{ID: 42, Score: 13}

	fused := Fuse(dense, sparseRanking, FusionRRF, 0)
	var got *FusedResult
	for _, f := range fused {
		if f.ID == 42 {
			got = f
			break
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, 3, got.DenseRank)
	assert.Equal(t, 7, got.SparseRank)
	expected := 1.0/63.0 + 1.0/67.0
	assert.InDelta(t, expected, got.FusedScore, 1e-9)
	assert.InDelta(t, 0.03079, got.FusedScore, 1e-4)
}

func TestFuseRRF_TieBreaksByDenseRank(t *testing.T) {
	dense := []RankedID{{ID: 1, Score: 0}, {ID: 2, Score: 1}}
	sparseRanking := []RankedID{{ID: 2, Score: 10}, {ID: 1, Score: 9}}
	fused := Fuse(dense, sparseRanking, FusionRRF, 0)
	require.Len(t, fused, 2)
	assert.Equal(t, ids.VectorId(1), fused[0].ID)
}

func TestFuseLinear_NormalizesAndWeights(t *testing.T) {
	dense := []RankedID{{ID: 1, Score: 0}, {ID: 2, Score: 10}}
	sparseRanking := []RankedID{{ID: 1, Score: 5}, {ID: 2, Score: 0}}
	fused := Fuse(dense, sparseRanking, FusionLinear, 0.5)
	require.Len(t, fused, 2)
	// id 1: dense distance 0 (best, normalized 1), sparse score 5 (best, normalized 1) -> fused 1.0
	assert.Equal(t, ids.VectorId(1), fused[0].ID)
	assert.InDelta(t, 1.0, fused[0].FusedScore, 1e-9)
}

func TestMinMaxNormalize_HandlesZeroSpan(t *testing.T) {
	ranking := []RankedID{{ID: 1, Score: 5}, {ID: 2, Score: 5}}
	norm := minMaxNormalizeDescendingIsBetter(ranking, false)
	assert.Equal(t, 1.0, norm[1])
	assert.Equal(t, 1.0, norm[2])
}

func TestRankOrZeroMax_TreatsAbsentAsWorst(t *testing.T) {
	assert.True(t, rankOrZeroMax(0) > 1000000)
	assert.Equal(t, 3, rankOrZeroMax(3))
}

func TestFusedScore_NeverNaN(t *testing.T) {
	fused := Fuse(nil, nil, FusionRRF, 0)
	assert.Empty(t, fused)
	for _, f := range fused {
		assert.False(t, math.IsNaN(f.FusedScore))
	}
}
