// Package ids defines the stable identifier types used across EdgeVec:
// VectorId for dense/binary vectors and SparseVectorId for the sparse
// hybrid store.
package ids

import "math"

// VectorId is a stable 32-bit handle assigned monotonically on insert.
// IDs are never reused except by compact, which preserves them across
// rebuild.
type VectorId uint32

// Invalid is the sentinel used where "no id" must be distinguished from
// a real id (e.g. an empty graph's entry point).
const Invalid VectorId = math.MaxUint32

// SparseVectorId is the analogous handle for the sparse term-vector store.
type SparseVectorId uint32

// MaxVectorId is the highest representable VectorId before CapacityExceeded
// must be raised by the storage arena.
const MaxVectorId VectorId = math.MaxUint32 - 1
