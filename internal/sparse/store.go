// Package sparse implements the inverted-list sparse vector store and
// hybrid fusion of spec §4.6: a SparseVectorId-keyed store searchable by
// dot product over an inverted index, and dense/sparse rank fusion
// (Reciprocal Rank Fusion or linear combination).
package sparse

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/edgevec/edgevec/internal/everr"
	"github.com/edgevec/edgevec/internal/ids"
)

// Vector is spec §3's SparseVector: strictly increasing indices, each
// paired with a value, all indices < Dim.
type Vector struct {
	Indices []uint32
	Values  []float32
	Dim     uint32
}

func (v Vector) validate() error {
	if len(v.Indices) != len(v.Values) {
		return everr.New(everr.CodeInvalidVector, "sparse vector indices/values length mismatch", nil)
	}
	prev := int64(-1)
	for _, idx := range v.Indices {
		if int64(idx) <= prev {
			return everr.New(everr.CodeInvalidVector, "sparse vector indices must be strictly increasing", nil)
		}
		if idx >= v.Dim {
			return everr.New(everr.CodeInvalidVector, "sparse vector index out of range", nil)
		}
		prev = int64(idx)
	}
	return nil
}

// posting is one (SparseVectorId, value) pair in an inverted list.
type posting struct {
	id    ids.SparseVectorId
	value float32
}

// Store maps SparseVectorId to its Vector, plus an inverted
// index->postings list search_sparse walks.
type Store struct {
	vectors map[ids.SparseVectorId]Vector
	index   map[uint32][]posting
	nextID  ids.SparseVectorId
}

// New constructs an empty sparse store.
func New() *Store {
	return &Store{
		vectors: make(map[ids.SparseVectorId]Vector),
		index:   make(map[uint32][]posting),
	}
}

// Insert validates and stores v, returning its freshly assigned id.
func (s *Store) Insert(v Vector) (ids.SparseVectorId, error) {
	if err := v.validate(); err != nil {
		return 0, err
	}
	id := s.nextID
	s.nextID++
	s.vectors[id] = v
	for i, idx := range v.Indices {
		s.index[idx] = append(s.index[idx], posting{id: id, value: v.Values[i]})
	}
	return id, nil
}

// Get returns the vector stored under id.
func (s *Store) Get(id ids.SparseVectorId) (Vector, bool) {
	v, ok := s.vectors[id]
	return v, ok
}

// Hit is one search_sparse result: an id and its accumulated dot-product
// score, descending.
type Hit struct {
	ID    ids.SparseVectorId
	Score float32
}

// Search implements spec §4.6's search_sparse: iterate q's nonzero terms,
// accumulate dot products in a scores map, return the top-k by score.
func (s *Store) Search(q Vector, k int) []Hit {
	if k <= 0 {
		return nil
	}
	scores := make(map[ids.SparseVectorId]float32)
	for i, idx := range q.Indices {
		for _, p := range s.index[idx] {
			scores[p.id] += q.Values[i] * p.value
		}
	}
	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, Hit{ID: id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Len reports how many sparse vectors the store holds.
func (s *Store) Len() int { return len(s.vectors) }

// Encode serializes the store to a flat byte section persistence can
// embed opaquely: a count, then per vector (ascending by id) its id,
// dim, and index/value pairs. The inverted index itself is not
// serialized — Decode rebuilds it from the restored vectors the same way
// Insert would.
func (s *Store) Encode() []byte {
	ordered := make([]ids.SparseVectorId, 0, len(s.vectors))
	for id := range s.vectors {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	buf := make([]byte, 4, 4+len(ordered)*16)
	binary.LittleEndian.PutUint32(buf, uint32(len(ordered)))
	for _, id := range ordered {
		v := s.vectors[id]
		head := make([]byte, 12)
		binary.LittleEndian.PutUint32(head[0:], uint32(id))
		binary.LittleEndian.PutUint32(head[4:], v.Dim)
		binary.LittleEndian.PutUint32(head[8:], uint32(len(v.Indices)))
		buf = append(buf, head...)
		for i, idx := range v.Indices {
			var pair [8]byte
			binary.LittleEndian.PutUint32(pair[0:], idx)
			binary.LittleEndian.PutUint32(pair[4:], math.Float32bits(v.Values[i]))
			buf = append(buf, pair[:]...)
		}
	}
	return buf
}

// Decode rebuilds a Store from bytes written by Encode, preserving the
// original SparseVectorIds and restoring nextID and the inverted index.
func Decode(data []byte) (*Store, error) {
	if len(data) < 4 {
		return nil, everr.New(everr.CodePersistenceError, "sparse section truncated: missing count", nil)
	}
	count := binary.LittleEndian.Uint32(data)
	off := 4
	s := New()
	var maxID ids.SparseVectorId
	for i := uint32(0); i < count; i++ {
		if off+12 > len(data) {
			return nil, everr.New(everr.CodePersistenceError, "sparse section truncated: vector header", nil)
		}
		id := ids.SparseVectorId(binary.LittleEndian.Uint32(data[off:]))
		dim := binary.LittleEndian.Uint32(data[off+4:])
		n := binary.LittleEndian.Uint32(data[off+8:])
		off += 12

		v := Vector{Dim: dim, Indices: make([]uint32, n), Values: make([]float32, n)}
		for j := uint32(0); j < n; j++ {
			if off+8 > len(data) {
				return nil, everr.New(everr.CodePersistenceError, "sparse section truncated: index/value pair", nil)
			}
			v.Indices[j] = binary.LittleEndian.Uint32(data[off:])
			v.Values[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:]))
			off += 8
		}

		s.vectors[id] = v
		for k, idx := range v.Indices {
			s.index[idx] = append(s.index[idx], posting{id: id, value: v.Values[k]})
		}
		if id >= maxID {
			maxID = id + 1
		}
	}
	s.nextID = maxID
	return s, nil
}
