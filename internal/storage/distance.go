package storage

import (
	"math"
	"math/bits"

	"github.com/edgevec/edgevec/internal/storage/simd"
)

// Distance computes the scalar distance between two float32 vectors under
// metric m, using the convention "smaller = closer" throughout the engine
// (spec §4.1): dot is negated on output, cosine is 1 - cosθ.
//
// Bulk float kernels are dispatched through internal/storage/simd, which
// resolves the best-available vectorized backend at process start and
// falls back transparently to the pure-Go scalar loop below; callers never
// see the backend, only this scalar contract.
func Distance(m MetricKind, a, b []float32) float32 {
	switch m {
	case L2Squared:
		return simd.L2Squared(a, b)
	case Cosine:
		dot, na, nb := simd.DotAndNorms(a, b)
		if na == 0 || nb == 0 {
			return 1
		}
		cos := dot / float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
		if cos > 1 {
			cos = 1
		} else if cos < -1 {
			cos = -1
		}
		return 1 - cos
	case Dot:
		return -simd.Dot(a, b)
	default:
		return 0
	}
}

// HammingDistance counts differing bits between two packed binary vectors,
// promoted to f32 per spec §4.1. Both slices must have equal length
// (⌈dim/8⌉ bytes); callers enforce DimensionMismatch before calling.
func HammingDistance(a, b []byte) float32 {
	var total int
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for ; i+8 <= n; i += 8 {
		x := uint64(a[i]) | uint64(a[i+1])<<8 | uint64(a[i+2])<<16 | uint64(a[i+3])<<24 |
			uint64(a[i+4])<<32 | uint64(a[i+5])<<40 | uint64(a[i+6])<<48 | uint64(a[i+7])<<56
		y := uint64(b[i]) | uint64(b[i+1])<<8 | uint64(b[i+2])<<16 | uint64(b[i+3])<<24 |
			uint64(b[i+4])<<32 | uint64(b[i+5])<<40 | uint64(b[i+6])<<48 | uint64(b[i+7])<<56
		total += bits.OnesCount64(x ^ y)
	}
	for ; i < n; i++ {
		total += bits.OnesCount8(a[i] ^ b[i])
	}
	return float32(total)
}

// NormalizeInPlace L2-normalizes v, used when cosine similarity is
// computed against a pre-normalized arena.
func NormalizeInPlace(v []float32) {
	var sumSq float32
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(float64(sumSq)))
	for i := range v {
		v[i] /= norm
	}
}
