package persistence

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/edgevec/edgevec/internal/everr"
	"github.com/edgevec/edgevec/internal/ids"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// crcWriter tees every write through to an underlying CRC32C hash so the
// trailer can be computed without buffering the whole stream twice.
type crcWriter struct {
	w    io.Writer
	hash hash.Hash32
}

func newCRCWriter(w io.Writer) *crcWriter {
	return &crcWriter{w: w, hash: crc32.New(castagnoli)}
}

func (c *crcWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	c.hash.Write(p[:n])
	return n, nil
}

func (c *crcWriter) writeField(v any) error {
	return binary.Write(c, binary.LittleEndian, v)
}

// Save writes the complete binary format of spec §4.9 to w: magic,
// version, flags, header, storage arena, graph adjacency, tombstone
// bitset, metadata entries, an optional sparse section, and a CRC32C
// trailer over everything written before it.
//
// graphSize is the number of VectorId slots the graph covers (next_id),
// including tombstoned ones — spec §4.9 serializes every slot, not just
// live ones, so load can reconstruct exact adjacency.
func Save(w io.Writer, h Header, storage []byte, graphSize int, graph GraphView, tombstones *roaring.Bitmap, metadataEntries []MetadataEntry, sparse []byte) error {
	cw := newCRCWriter(w)

	flags := uint16(0)
	if sparse != nil {
		flags |= flagHasSparse
	}

	if _, err := cw.Write(magic[:]); err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	if err := cw.writeField(formatVersion); err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	if err := cw.writeField(flags); err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	if err := writeHeader(cw, h); err != nil {
		return err
	}
	if _, err := cw.Write(storage); err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	if err := writeGraph(cw, graphSize, graph); err != nil {
		return err
	}
	if err := writeTombstones(cw, tombstones); err != nil {
		return err
	}
	if err := writeMetadata(cw, metadataEntries); err != nil {
		return err
	}
	if sparse != nil {
		if err := cw.writeField(uint32(len(sparse))); err != nil {
			return everr.Wrap(everr.CodePersistenceError, err)
		}
		if _, err := cw.Write(sparse); err != nil {
			return everr.Wrap(everr.CodePersistenceError, err)
		}
	}

	trailer := cw.hash.Sum32()
	if err := binary.Write(w, binary.LittleEndian, trailer); err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	return nil
}

func writeHeader(cw *crcWriter, h Header) error {
	fields := []any{h.Dim, h.Metric, h.VectorType, h.M, h.M0, h.EfConstruction, h.NextID, h.EntryPoint, h.Seed}
	for _, f := range fields {
		if err := cw.writeField(f); err != nil {
			return everr.Wrap(everr.CodePersistenceError, err)
		}
	}
	return nil
}

func writeGraph(cw *crcWriter, graphSize int, graph GraphView) error {
	for id := ids.VectorId(0); int(id) < graphSize; id++ {
		maxLayer := graph.MaxLayer(id)
		if err := cw.writeField(int8(maxLayer)); err != nil {
			return everr.Wrap(everr.CodePersistenceError, err)
		}
		for layer := 0; layer <= maxLayer; layer++ {
			neighbors := graph.Neighbors(id, layer)
			if err := cw.writeField(uint16(len(neighbors))); err != nil {
				return everr.Wrap(everr.CodePersistenceError, err)
			}
			for _, n := range neighbors {
				if err := cw.writeField(uint32(n)); err != nil {
					return everr.Wrap(everr.CodePersistenceError, err)
				}
			}
		}
	}
	return nil
}

func writeTombstones(cw *crcWriter, tombstones *roaring.Bitmap) error {
	if tombstones == nil {
		tombstones = roaring.New()
	}
	packed, err := tombstones.ToBytes()
	if err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	if err := cw.writeField(uint32(len(packed))); err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	if _, err := cw.Write(packed); err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	return nil
}

func writeMetadata(cw *crcWriter, entries []MetadataEntry) error {
	if err := cw.writeField(uint32(len(entries))); err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	for _, e := range entries {
		if err := cw.writeField(uint32(e.VectorID)); err != nil {
			return everr.Wrap(everr.CodePersistenceError, err)
		}
		if err := cw.writeField(uint8(len(e.Key))); err != nil {
			return everr.Wrap(everr.CodePersistenceError, err)
		}
		if _, err := cw.Write([]byte(e.Key)); err != nil {
			return everr.Wrap(everr.CodePersistenceError, err)
		}
		if err := writeMetadataValue(cw, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeMetadataValue(cw *crcWriter, v MetadataValue) error {
	if err := cw.writeField(uint8(v.Kind)); err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	switch v.Kind {
	case MetaString:
		return writeString(cw, v.Str)
	case MetaInteger:
		if err := cw.writeField(v.Int); err != nil {
			return everr.Wrap(everr.CodePersistenceError, err)
		}
	case MetaFloat:
		if err := cw.writeField(v.Float); err != nil {
			return everr.Wrap(everr.CodePersistenceError, err)
		}
	case MetaBoolean:
		if err := cw.writeField(v.Bool); err != nil {
			return everr.Wrap(everr.CodePersistenceError, err)
		}
	case MetaStringArray:
		if err := cw.writeField(uint16(len(v.StringArray))); err != nil {
			return everr.Wrap(everr.CodePersistenceError, err)
		}
		for _, s := range v.StringArray {
			if err := writeString(cw, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeString(cw *crcWriter, s string) error {
	if err := cw.writeField(uint32(len(s))); err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	if _, err := cw.Write([]byte(s)); err != nil {
		return everr.Wrap(everr.CodePersistenceError, err)
	}
	return nil
}
