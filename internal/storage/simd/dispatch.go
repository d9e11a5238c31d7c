// Package simd selects a distance-kernel backend once per process. Per
// spec §4.1 ("Implementations dispatch at construction time to the
// best-available vectorized backend but expose only the scalar contract
// above"), every exported function here has a pure-Go fallback; on
// platforms where a native BLAS is dlopen-able via purego, Dot is routed
// through its cblas_sdot instead (L2Squared and DotAndNorms always run
// the pure-Go loops). The selection is a process-wide decision (made once,
// on the first kernel call), not a per-call one — callers
// never observe which backend served a given call, only its result, and
// results must stay byte-exact with the scalar path for L2 (spec §4.1's
// backend-parity requirement).
package simd

import "sync"

// Backend names the kernel implementation chosen at startup, exposed only
// for diagnostics (Stats()) — never branched on by callers.
type Backend string

const (
	BackendScalar Backend = "scalar"
	BackendNative Backend = "native-libm"
)

var (
	once      sync.Once
	active    Backend = BackendScalar
	nativeDot func(a, b []float32) float32
)

func ensureInit() {
	once.Do(func() {
		active, nativeDot = selectBackend()
	})
}

// Active returns the backend resolved at process start.
func Active() Backend {
	ensureInit()
	return active
}

// Dot returns the inner product of a and b. Panics (via index) if lengths
// differ; callers validate DimensionMismatch before reaching here.
func Dot(a, b []float32) float32 {
	ensureInit()
	if nativeDot != nil {
		return nativeDot(a, b)
	}
	return scalarDot(a, b)
}

// L2Squared returns the squared Euclidean distance between a and b.
func L2Squared(a, b []float32) float32 {
	ensureInit()
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// DotAndNorms returns dot(a,b), ||a||^2, ||b||^2 in one pass, used by
// cosine distance to avoid three separate traversals.
func DotAndNorms(a, b []float32) (dot, na, nb float32) {
	ensureInit()
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	return dot, na, nb
}

func scalarDot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
