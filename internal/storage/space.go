package storage

import (
	"github.com/edgevec/edgevec/internal/hnsw"
	"github.com/edgevec/edgevec/internal/ids"
)

// FloatSpace adapts a FloatArena (plus an id->slot lookup) to hnsw.Space,
// letting the HNSW graph compute distances without knowing anything about
// arenas or slots.
type FloatSpace struct {
	Arena *FloatArena
	Slot  func(ids.VectorId) int
}

func (s FloatSpace) Distance(a, b ids.VectorId) float32 {
	return s.Arena.DistanceBetween(s.Slot(a), s.Slot(b))
}

func (s FloatSpace) DistanceToQuery(a ids.VectorId, query []float32) float32 {
	return s.Arena.Distance(s.Slot(a), query)
}

// BinarySpace is FloatSpace's Hamming-metric analogue over a BinaryArena.
type BinarySpace struct {
	Arena *BinaryArena
	Slot  func(ids.VectorId) int
}

func (s BinarySpace) Distance(a, b ids.VectorId) float32 {
	return s.Arena.DistanceBetween(s.Slot(a), s.Slot(b))
}

func (s BinarySpace) DistanceToQuery(a ids.VectorId, query []byte) float32 {
	return s.Arena.Distance(s.Slot(a), query)
}

var (
	_ hnsw.Space[[]float32] = FloatSpace{}
	_ hnsw.Space[[]byte]    = BinarySpace{}
)
