package persistence

import (
	"bytes"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/edgevec/edgevec/internal/everr"
	"github.com/edgevec/edgevec/internal/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGraph is a minimal GraphView test double, independent of hnsw.Graph
// so this package's tests don't need a real index built.
type fakeGraph struct {
	adjacency map[ids.VectorId][][]ids.VectorId // per-node, per-layer
}

func (f *fakeGraph) MaxLayer(id ids.VectorId) int {
	layers, ok := f.adjacency[id]
	if !ok {
		return -1
	}
	return len(layers) - 1
}

func (f *fakeGraph) Neighbors(id ids.VectorId, layer int) []ids.VectorId {
	layers, ok := f.adjacency[id]
	if !ok || layer >= len(layers) {
		return nil
	}
	return layers[layer]
}

func fixtureHeader() Header {
	return Header{
		Dim:            4,
		Metric:         0,
		VectorType:     0,
		M:              16,
		M0:             32,
		EfConstruction: 200,
		NextID:         3,
		EntryPoint:     0,
		Seed:           42,
	}
}

func fixtureGraph() *fakeGraph {
	return &fakeGraph{adjacency: map[ids.VectorId][][]ids.VectorId{
		0: {{1, 2}, {1}},
		1: {{0, 2}},
		2: {{0, 1}},
	}}
}

func fixtureMetadata() []MetadataEntry {
	return []MetadataEntry{
		{VectorID: 0, Key: "category", Value: MetadataValue{Kind: MetaString, Str: "gpu"}},
		{VectorID: 0, Key: "price", Value: MetadataValue{Kind: MetaInteger, Int: 499}},
		{VectorID: 1, Key: "tags", Value: MetadataValue{Kind: MetaStringArray, StringArray: []string{"a", "b"}}},
		{VectorID: 2, Key: "active", Value: MetadataValue{Kind: MetaBoolean, Bool: true}},
	}
}

func TestSaveLoad_RoundTripsStructurally(t *testing.T) {
	h := fixtureHeader()
	storage := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	graph := fixtureGraph()
	ts := roaring.New()
	ts.Add(2)
	meta := fixtureMetadata()

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, h, storage, int(h.NextID), graph, ts, meta, nil))

	loaded, err := Load(bytes.NewReader(buf.Bytes()), func(lh Header) int { return len(storage) })
	require.NoError(t, err)

	assert.Equal(t, h, loaded.Header)
	assert.False(t, loaded.HasSparse)
	assert.Equal(t, storage, loaded.Storage)
	assert.True(t, loaded.Tombstones.Contains(2))
	assert.Equal(t, uint64(1), loaded.Tombstones.GetCardinality())
	assert.Equal(t, meta, loaded.Metadata)

	require.Len(t, loaded.Graph, 3)
	assert.Equal(t, 1, loaded.Graph[0].MaxLayer)
	assert.Equal(t, []ids.VectorId{1, 2}, loaded.Graph[0].Neighbors[0])
	assert.Equal(t, []ids.VectorId{1}, loaded.Graph[0].Neighbors[1])
	assert.Equal(t, 0, loaded.Graph[1].MaxLayer)
	assert.Equal(t, []ids.VectorId{0, 2}, loaded.Graph[1].Neighbors[0])
}

func TestSaveLoad_WithSparseSection(t *testing.T) {
	h := fixtureHeader()
	storage := []byte{9, 9}
	graph := &fakeGraph{adjacency: map[ids.VectorId][][]ids.VectorId{0: {{}}}}
	sparse := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, h, storage, int(h.NextID), graph, roaring.New(), nil, sparse))

	loaded, err := Load(bytes.NewReader(buf.Bytes()), func(Header) int { return len(storage) })
	require.NoError(t, err)
	assert.True(t, loaded.HasSparse)
	assert.Equal(t, sparse, loaded.Sparse)
}

func TestLoad_CorruptedMagicFailsCRCCheck(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, fixtureHeader(), nil, 0, &fakeGraph{}, roaring.New(), nil, nil))
	corrupted := buf.Bytes()
	corrupted[0] = 'X'

	_, err := Load(bytes.NewReader(corrupted), func(Header) int { return 0 })
	require.Error(t, err)
	assert.Equal(t, everr.CodeCRCMismatch, everr.Code(err))
}

func TestLoad_RejectsTruncatedFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, fixtureHeader(), []byte{1, 2, 3}, 0, &fakeGraph{}, roaring.New(), nil, nil))
	truncated := buf.Bytes()[:len(buf.Bytes())-10]

	_, err := Load(bytes.NewReader(truncated), func(Header) int { return 3 })
	require.Error(t, err)
}

func TestSaveStream_ConcatenationEqualsSave(t *testing.T) {
	h := fixtureHeader()
	storage := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	graph := fixtureGraph()
	ts := roaring.New()
	ts.Add(1)
	meta := fixtureMetadata()

	var direct bytes.Buffer
	require.NoError(t, Save(&direct, h, storage, int(h.NextID), graph, ts, meta, nil))

	stream, err := NewSaveStream(7, h, storage, int(h.NextID), graph, ts, meta, nil)
	require.NoError(t, err)

	var streamed bytes.Buffer
	for {
		chunk, ok := stream.NextChunk()
		if !ok {
			break
		}
		streamed.Write(chunk)
	}

	assert.Equal(t, direct.Bytes(), streamed.Bytes())
}

func TestSaveStream_RejectsNonPositiveChunkSize(t *testing.T) {
	_, err := NewSaveStream(0, fixtureHeader(), nil, 0, &fakeGraph{}, roaring.New(), nil, nil)
	require.Error(t, err)
}

func TestSaveStream_SingleChunkWhenLargerThanPayload(t *testing.T) {
	h := fixtureHeader()
	graph := &fakeGraph{adjacency: map[ids.VectorId][][]ids.VectorId{0: {{}}}}
	stream, err := NewSaveStream(1<<20, h, []byte{1, 2}, 1, graph, roaring.New(), nil, nil)
	require.NoError(t, err)

	_, ok := stream.NextChunk()
	require.True(t, ok)
	_, ok = stream.NextChunk()
	assert.False(t, ok)
}
