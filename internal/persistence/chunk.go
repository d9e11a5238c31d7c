package persistence

import (
	"bytes"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/edgevec/edgevec/internal/everr"
)

// ChunkIterator implements spec §4.9's streaming save: successive
// next_chunk() calls return byte runs that concatenate to exactly what
// Save would write in one shot (law R3). The snapshot is taken once, at
// construction, since the index must not be mutated while a stream is
// outstanding (spec §5's ordering rule) — there is nothing left to
// re-read lazily, so NewSaveStream just runs Save into a buffer and
// hands out chunkSize-sized slices of it.
type ChunkIterator struct {
	buf       *bytes.Buffer
	chunkSize int
}

// NewSaveStream snapshots the given state via Save and returns an
// iterator that yields it in chunkSize-sized runs.
func NewSaveStream(chunkSize int, h Header, storage []byte, graphSize int, graph GraphView, tombstones *roaring.Bitmap, metadataEntries []MetadataEntry, sparse []byte) (*ChunkIterator, error) {
	if chunkSize <= 0 {
		return nil, everr.New(everr.CodeInvalidExpression, "chunk_bytes must be positive", nil)
	}
	var buf bytes.Buffer
	if err := Save(&buf, h, storage, graphSize, graph, tombstones, metadataEntries, sparse); err != nil {
		return nil, err
	}
	return &ChunkIterator{buf: &buf, chunkSize: chunkSize}, nil
}

// NextChunk returns the next run and true, or nil and false at
// end-of-stream. The returned slice is only valid until the next call.
func (it *ChunkIterator) NextChunk() ([]byte, bool) {
	if it.buf.Len() == 0 {
		return nil, false
	}
	n := min(it.buf.Len(), it.chunkSize)
	return it.buf.Next(n), true
}

// Remaining reports the number of bytes not yet emitted, for callers
// that want to preallocate a destination buffer.
func (it *ChunkIterator) Remaining() int {
	return it.buf.Len()
}
