package persistence

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/edgevec/edgevec/internal/everr"
	"github.com/edgevec/edgevec/internal/ids"
)

// NodeAdjacency is one node's per-layer neighbor lists, in layer order
// (layer 0 first), as reconstructed from the graph section.
type NodeAdjacency struct {
	MaxLayer  int
	Neighbors [][]ids.VectorId // Neighbors[layer]
}

// Loaded holds everything Load reconstructs from a stream; the caller
// (the engine façade) uses it to repopulate storage, rebuild the HNSW
// graph's adjacency, and restore tombstones and metadata.
type Loaded struct {
	Header     Header
	HasSparse  bool
	Storage    []byte
	Graph      []NodeAdjacency // indexed by VectorId, length == Header.NextID
	Tombstones *roaring.Bitmap
	Metadata   []MetadataEntry
	Sparse     []byte
}

// Load parses and validates a stream written by Save: it verifies the
// magic and version, reads every section, and checks the CRC32C trailer
// before returning anything — a corrupt or truncated file never yields a
// partially-populated Loaded (spec §7: failed loads must not leave the
// engine in a half-restored state).
//
// storageSize gives the exact byte length of the storage arena section; the
// caller knows this from Header.Dim/VectorType once it has read Header,
// but since Header is itself inside the CRC-covered stream, Load takes a
// sizer function that is handed the parsed Header and returns the arena
// length to read.
func Load(r io.Reader, storageSize func(h Header) int) (*Loaded, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}
	if len(raw) < 4+2+2+4 {
		return nil, everr.New(everr.CodePersistenceError, "truncated file: shorter than fixed preamble", nil)
	}

	body, trailer := raw[:len(raw)-4], raw[len(raw)-4:]
	wantCRC := binary.LittleEndian.Uint32(trailer)
	gotCRC := crc32.Checksum(body, castagnoli)
	if gotCRC != wantCRC {
		return nil, everr.New(everr.CodeCRCMismatch, "CRC32C trailer mismatch: file is corrupt or truncated", nil)
	}

	rd := bytes.NewReader(body)

	var gotMagic [4]byte
	if _, err := io.ReadFull(rd, gotMagic[:]); err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}
	if gotMagic != magic {
		return nil, everr.New(everr.CodeBadMagic, "not an edgevec index file", nil)
	}

	var version, flags uint16
	if err := binary.Read(rd, binary.LittleEndian, &version); err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}
	if version != formatVersion {
		return nil, everr.New(everr.CodeUnsupportedVersion, "unsupported format version", nil)
	}
	if err := binary.Read(rd, binary.LittleEndian, &flags); err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}

	h, err := readHeader(rd)
	if err != nil {
		return nil, err
	}

	storage := make([]byte, storageSize(h))
	if _, err := io.ReadFull(rd, storage); err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}

	graph, err := readGraph(rd, int(h.NextID))
	if err != nil {
		return nil, err
	}

	tombstones, err := readTombstones(rd)
	if err != nil {
		return nil, err
	}

	metadataEntries, err := readMetadata(rd)
	if err != nil {
		return nil, err
	}

	var sparse []byte
	hasSparse := flags&flagHasSparse != 0
	if hasSparse {
		var n uint32
		if err := binary.Read(rd, binary.LittleEndian, &n); err != nil {
			return nil, everr.Wrap(everr.CodePersistenceError, err)
		}
		sparse = make([]byte, n)
		if _, err := io.ReadFull(rd, sparse); err != nil {
			return nil, everr.Wrap(everr.CodePersistenceError, err)
		}
	}

	return &Loaded{
		Header:     h,
		HasSparse:  hasSparse,
		Storage:    storage,
		Graph:      graph,
		Tombstones: tombstones,
		Metadata:   metadataEntries,
		Sparse:     sparse,
	}, nil
}

func readHeader(rd *bytes.Reader) (Header, error) {
	var h Header
	fields := []any{&h.Dim, &h.Metric, &h.VectorType, &h.M, &h.M0, &h.EfConstruction, &h.NextID, &h.EntryPoint, &h.Seed}
	for _, f := range fields {
		if err := binary.Read(rd, binary.LittleEndian, f); err != nil {
			return Header{}, everr.Wrap(everr.CodePersistenceError, err)
		}
	}
	return h, nil
}

func readGraph(rd *bytes.Reader, graphSize int) ([]NodeAdjacency, error) {
	out := make([]NodeAdjacency, graphSize)
	for id := 0; id < graphSize; id++ {
		var maxLayer int8
		if err := binary.Read(rd, binary.LittleEndian, &maxLayer); err != nil {
			return nil, everr.Wrap(everr.CodePersistenceError, err)
		}
		node := NodeAdjacency{MaxLayer: int(maxLayer)}
		if maxLayer >= 0 {
			node.Neighbors = make([][]ids.VectorId, int(maxLayer)+1)
			for layer := 0; layer <= int(maxLayer); layer++ {
				var count uint16
				if err := binary.Read(rd, binary.LittleEndian, &count); err != nil {
					return nil, everr.Wrap(everr.CodePersistenceError, err)
				}
				neighbors := make([]ids.VectorId, count)
				for i := range neighbors {
					var n uint32
					if err := binary.Read(rd, binary.LittleEndian, &n); err != nil {
						return nil, everr.Wrap(everr.CodePersistenceError, err)
					}
					neighbors[i] = ids.VectorId(n)
				}
				node.Neighbors[layer] = neighbors
			}
		}
		out[id] = node
	}
	return out, nil
}

func readTombstones(rd *bytes.Reader) (*roaring.Bitmap, error) {
	var n uint32
	if err := binary.Read(rd, binary.LittleEndian, &n); err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}
	packed := make([]byte, n)
	if _, err := io.ReadFull(rd, packed); err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}
	bm := roaring.New()
	if _, err := bm.FromBuffer(packed); err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}
	return bm, nil
}

func readMetadata(rd *bytes.Reader) ([]MetadataEntry, error) {
	var count uint32
	if err := binary.Read(rd, binary.LittleEndian, &count); err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}
	entries := make([]MetadataEntry, count)
	for i := range entries {
		var vid uint32
		if err := binary.Read(rd, binary.LittleEndian, &vid); err != nil {
			return nil, everr.Wrap(everr.CodePersistenceError, err)
		}
		var keyLen uint8
		if err := binary.Read(rd, binary.LittleEndian, &keyLen); err != nil {
			return nil, everr.Wrap(everr.CodePersistenceError, err)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(rd, key); err != nil {
			return nil, everr.Wrap(everr.CodePersistenceError, err)
		}
		value, err := readMetadataValue(rd)
		if err != nil {
			return nil, err
		}
		entries[i] = MetadataEntry{VectorID: ids.VectorId(vid), Key: string(key), Value: value}
	}
	return entries, nil
}

func readMetadataValue(rd *bytes.Reader) (MetadataValue, error) {
	var kind uint8
	if err := binary.Read(rd, binary.LittleEndian, &kind); err != nil {
		return MetadataValue{}, everr.Wrap(everr.CodePersistenceError, err)
	}
	v := MetadataValue{Kind: MetadataValueKind(kind)}
	switch v.Kind {
	case MetaString:
		s, err := readString(rd)
		if err != nil {
			return MetadataValue{}, err
		}
		v.Str = s
	case MetaInteger:
		if err := binary.Read(rd, binary.LittleEndian, &v.Int); err != nil {
			return MetadataValue{}, everr.Wrap(everr.CodePersistenceError, err)
		}
	case MetaFloat:
		if err := binary.Read(rd, binary.LittleEndian, &v.Float); err != nil {
			return MetadataValue{}, everr.Wrap(everr.CodePersistenceError, err)
		}
	case MetaBoolean:
		if err := binary.Read(rd, binary.LittleEndian, &v.Bool); err != nil {
			return MetadataValue{}, everr.Wrap(everr.CodePersistenceError, err)
		}
	case MetaStringArray:
		var n uint16
		if err := binary.Read(rd, binary.LittleEndian, &n); err != nil {
			return MetadataValue{}, everr.Wrap(everr.CodePersistenceError, err)
		}
		arr := make([]string, n)
		for i := range arr {
			s, err := readString(rd)
			if err != nil {
				return MetadataValue{}, err
			}
			arr[i] = s
		}
		v.StringArray = arr
	default:
		return MetadataValue{}, everr.New(everr.CodePersistenceError, "unknown metadata value kind on disk", nil)
	}
	return v, nil
}

func readString(rd *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(rd, binary.LittleEndian, &n); err != nil {
		return "", everr.Wrap(everr.CodePersistenceError, err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return "", everr.Wrap(everr.CodePersistenceError, err)
	}
	return string(buf), nil
}
