// Package persistence implements spec §4.9's versioned binary format: a
// fixed header, contiguous storage arena, per-node graph adjacency,
// packed tombstone bitset, ordered metadata entries, an optional sparse
// side, and a CRC32C trailer over everything preceding it.
package persistence

import "github.com/edgevec/edgevec/internal/ids"

// magic is the four-byte file signature (spec §4.9).
var magic = [4]byte{'E', 'D', 'G', 'V'}

// formatVersion is bumped whenever the on-disk layout changes
// incompatibly.
const formatVersion uint16 = 1

// sentinelEntryPoint marks "no entry point" (an empty graph) in Header.EntryPoint.
const sentinelEntryPoint uint32 = 0xFFFFFFFF

// Flag bits in the header's u16 flags field.
const (
	flagHasSparse uint16 = 1 << 0
)

// Header is spec §4.9's fixed-layout header, written immediately after
// the magic/version/flags triple.
type Header struct {
	Dim            uint32
	Metric         uint8
	VectorType     uint8
	M              uint8
	M0             uint8
	EfConstruction uint16
	NextID         uint32
	EntryPoint     uint32 // sentinelEntryPoint if the graph is empty
	Seed           uint64
}

// GraphView is the minimal read access Save needs into an HNSW graph;
// callers pass their concrete *hnsw.Graph[Q] satisfying this directly
// since Graph already exports MaxLayer and Neighbors.
type GraphView interface {
	MaxLayer(id ids.VectorId) int
	Neighbors(id ids.VectorId, layer int) []ids.VectorId
}

// MetadataEntry is one (vector_id, key, value) triple in the metadata
// section, which must be supplied in ascending-VectorId, ascending-key
// order (spec §4.9's "CRDT-stable ordering").
type MetadataEntry struct {
	VectorID ids.VectorId
	Key      string
	Value    MetadataValue
}

// MetadataValueKind mirrors metadata.ValueKind without importing the
// metadata package, keeping persistence's wire format independent of the
// in-memory store's API.
type MetadataValueKind uint8

const (
	MetaString MetadataValueKind = iota
	MetaInteger
	MetaFloat
	MetaBoolean
	MetaStringArray
)

// MetadataValue is the wire encoding of metadata.Value.
type MetadataValue struct {
	Kind        MetadataValueKind
	Str         string
	Int         int64
	Float       float64
	Bool        bool
	StringArray []string
}
