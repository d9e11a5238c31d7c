package storage

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/edgevec/edgevec/internal/everr"
)

// FloatArena is a contiguous arena of dim*f32 slots, one per live
// VectorId, satisfying the invariant "arena length is exactly
// live_slots x stride" (spec §3).
type FloatArena struct {
	dim    int
	metric MetricKind
	data   []float32 // len == slotCount*dim
}

// NewFloatArena constructs an arena for dim-dimensional vectors under
// metric m. m must be one of L2Squared/Cosine/Dot (spec §3).
func NewFloatArena(dim int, m MetricKind) (*FloatArena, error) {
	if !MetricAllowed(Float, m) {
		return nil, everr.New(everr.CodeInvalidVector, "metric not valid for float storage", nil)
	}
	return &FloatArena{dim: dim, metric: m}, nil
}

func (a *FloatArena) Dim() int        { return a.dim }
func (a *FloatArena) Metric() MetricKind { return a.metric }
func (a *FloatArena) Len() int        { return len(a.data) / a.dim }

// Append validates and appends v, returning the newly occupied slot index
// (not a VectorId — callers assign the id). Fails InvalidVector on
// non-finite components, DimensionMismatch on wrong length.
func (a *FloatArena) Append(v []float32) (int, error) {
	if len(v) != a.dim {
		return 0, everr.New(everr.CodeDimensionMismatch, "vector has wrong dimension", nil).
			WithDetail("expected", strconv.Itoa(a.dim)).WithDetail("got", strconv.Itoa(len(v)))
	}
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return 0, everr.New(everr.CodeInvalidVector, "vector contains non-finite component", nil)
		}
	}
	slot := a.Len()
	cp := make([]float32, a.dim)
	copy(cp, v)
	if a.metric == Cosine {
		NormalizeInPlace(cp)
	}
	a.data = append(a.data, cp...)
	return slot, nil
}

// At returns the vector stored at slot i. The returned slice aliases the
// arena; callers must not mutate it.
func (a *FloatArena) At(slot int) []float32 {
	start := slot * a.dim
	return a.data[start : start+a.dim]
}

// Distance computes the configured metric between the vector at slot and
// an owned query vector.
func (a *FloatArena) Distance(slot int, query []float32) float32 {
	return Distance(a.metric, a.At(slot), query)
}

// DistanceBetween computes the configured metric between two stored slots.
func (a *FloatArena) DistanceBetween(slotA, slotB int) float32 {
	return Distance(a.metric, a.At(slotA), a.At(slotB))
}

// Bytes packs the arena's f32 components little-endian, spec §4.9's
// on-disk storage arena encoding.
func (a *FloatArena) Bytes() []byte {
	out := make([]byte, len(a.data)*4)
	for i, x := range a.data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

// AppendBytes restores f32 components from a little-endian byte run
// produced by Bytes, the inverse used when rehydrating from persistence.
// raw's length must be a multiple of 4; partial trailing bytes are
// dropped rather than causing a panic, since callers size raw exactly.
func (a *FloatArena) AppendBytes(raw []byte) {
	n := len(raw) / 4
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		a.data = append(a.data, math.Float32frombits(bits))
	}
}

// BinaryArena is a contiguous arena of ⌈dim/8⌉ packed bytes per slot
// (spec §3). Only Hamming is a legal metric.
type BinaryArena struct {
	dim    int
	stride int // ⌈dim/8⌉
	data   []byte
}

// NewBinaryArena constructs an arena for dim-dimensional packed binary
// vectors.
func NewBinaryArena(dim int) *BinaryArena {
	return &BinaryArena{dim: dim, stride: (dim + 7) / 8}
}

func (a *BinaryArena) Dim() int    { return a.dim }
func (a *BinaryArena) Stride() int { return a.stride }
func (a *BinaryArena) Len() int {
	if a.stride == 0 {
		return 0
	}
	return len(a.data) / a.stride
}

// Append appends a packed vector, validating its length.
func (a *BinaryArena) Append(packed []byte) (int, error) {
	if len(packed) != a.stride {
		return 0, everr.New(everr.CodeDimensionMismatch, "packed vector has wrong length", nil).
			WithDetail("expected", strconv.Itoa(a.stride)).WithDetail("got", strconv.Itoa(len(packed)))
	}
	slot := a.Len()
	cp := make([]byte, a.stride)
	copy(cp, packed)
	a.data = append(a.data, cp...)
	return slot, nil
}

func (a *BinaryArena) At(slot int) []byte {
	start := slot * a.stride
	return a.data[start : start+a.stride]
}

func (a *BinaryArena) Distance(slot int, query []byte) float32 {
	return HammingDistance(a.At(slot), query)
}

func (a *BinaryArena) DistanceBetween(slotA, slotB int) float32 {
	return HammingDistance(a.At(slotA), a.At(slotB))
}

// Bytes returns the arena's packed storage exactly as persistence writes
// it to disk (spec §4.9's "contiguous storage arena" section): it is
// already byte-packed, so this is just the backing slice.
func (a *BinaryArena) Bytes() []byte {
	return a.data
}

// AppendBytes restores slotCount slots worth of packed vectors in one
// shot, the inverse of Bytes, used when rehydrating from persistence.
func (a *BinaryArena) AppendBytes(raw []byte) {
	a.data = append(a.data, raw...)
}

// QuantizeSign derives a sign-quantized packed vector from v: bit=1 iff
// component > 0 (spec §3's BinaryQuantization rule). len(v) must be a
// multiple of 8 (enforced at enable time, spec §4.5).
func QuantizeSign(v []float32) []byte {
	out := make([]byte, (len(v)+7)/8)
	for i, x := range v {
		if x > 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

