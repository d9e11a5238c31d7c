package sparse

import (
	"sort"

	"github.com/edgevec/edgevec/internal/ids"
)

// rrfK is the RRF smoothing constant (spec §4.6), the conventional
// default of 60.
const rrfK = 60

// FusionMethod selects spec §4.6's scoring rule.
type FusionMethod int

const (
	FusionRRF FusionMethod = iota
	FusionLinear
)

// RankedID is one entry in a source ranking: an id at a 0-indexed
// position, plus that source's own score (used only by linear fusion's
// normalization).
type RankedID struct {
	ID    ids.VectorId
	Score float64
}

// FusedResult is one hybrid search result with per-source provenance:
// the fused score plus each source's rank and raw score.
type FusedResult struct {
	ID          ids.VectorId
	FusedScore  float64
	DenseRank   int // 1-indexed, 0 if absent
	DenseScore  float64
	SparseRank  int // 1-indexed, 0 if absent
	SparseScore float64
	InBoth      bool
}

// Fuse combines a dense ranking (ascending by distance, so rank 1 is
// closest) and a sparse ranking (descending by score, so rank 1 is
// highest) per spec §4.6.
func Fuse(dense, sparseRanking []RankedID, method FusionMethod, alpha float64) []*FusedResult {
	switch method {
	case FusionLinear:
		return fuseLinear(dense, sparseRanking, alpha)
	default:
		return fuseRRF(dense, sparseRanking)
	}
}

func getOrCreate(m map[ids.VectorId]*FusedResult, id ids.VectorId) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ID: id}
	m[id] = r
	return r
}

// fuseRRF implements score(id) = Σ 1/(60 + rank_i) across participating
// rankings, tie-broken by dense rank (spec §4.6).
func fuseRRF(dense, sparseRanking []RankedID) []*FusedResult {
	scores := make(map[ids.VectorId]*FusedResult, len(dense)+len(sparseRanking))

	for i, r := range dense {
		fr := getOrCreate(scores, r.ID)
		fr.DenseRank = i + 1
		fr.DenseScore = r.Score
		fr.FusedScore += 1.0 / float64(rrfK+i+1)
	}
	for i, r := range sparseRanking {
		fr := getOrCreate(scores, r.ID)
		fr.SparseRank = i + 1
		fr.SparseScore = r.Score
		fr.FusedScore += 1.0 / float64(rrfK+i+1)
		if fr.DenseRank > 0 {
			fr.InBoth = true
		}
	}

	return sortFused(scores, func(a, b *FusedResult) bool {
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		return rankOrZeroMax(a.DenseRank) < rankOrZeroMax(b.DenseRank)
	})
}

func rankOrZeroMax(rank int) int {
	if rank == 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

// fuseLinear implements score(id) = α·normalized_dense(id) +
// (1−α)·normalized_sparse(id), min-max normalized per ranking (spec §4.6).
func fuseLinear(dense, sparseRanking []RankedID, alpha float64) []*FusedResult {
	scores := make(map[ids.VectorId]*FusedResult, len(dense)+len(sparseRanking))

	denseNorm := minMaxNormalizeDescendingIsBetter(dense, true) // distance: smaller is better
	sparseNorm := minMaxNormalizeDescendingIsBetter(sparseRanking, false)

	for i, r := range dense {
		fr := getOrCreate(scores, r.ID)
		fr.DenseRank = i + 1
		fr.DenseScore = r.Score
		fr.FusedScore += alpha * denseNorm[r.ID]
	}
	for i, r := range sparseRanking {
		fr := getOrCreate(scores, r.ID)
		fr.SparseRank = i + 1
		fr.SparseScore = r.Score
		fr.FusedScore += (1 - alpha) * sparseNorm[r.ID]
		if fr.DenseRank > 0 {
			fr.InBoth = true
		}
	}

	return sortFused(scores, func(a, b *FusedResult) bool {
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		return a.ID < b.ID
	})
}

// minMaxNormalizeDescendingIsBetter scales a ranking's raw scores to
// [0,1]. lowerIsBetter inverts the scale (distances: the minimum becomes
// 1.0) so every normalized value follows "higher is better".
func minMaxNormalizeDescendingIsBetter(ranking []RankedID, lowerIsBetter bool) map[ids.VectorId]float64 {
	out := make(map[ids.VectorId]float64, len(ranking))
	if len(ranking) == 0 {
		return out
	}
	min, max := ranking[0].Score, ranking[0].Score
	for _, r := range ranking {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	span := max - min
	for _, r := range ranking {
		if span == 0 {
			out[r.ID] = 1
			continue
		}
		v := (r.Score - min) / span
		if lowerIsBetter {
			v = 1 - v
		}
		out[r.ID] = v
	}
	return out
}

func sortFused(m map[ids.VectorId]*FusedResult, less func(a, b *FusedResult) bool) []*FusedResult {
	out := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
