// Package metadata implements the per-vector key/value store of spec §3 and
// §4.7: a bounded map from ASCII key to a tagged MetadataValue, plus a
// field-name membership index (HasField, IDsWithField, FieldNames) that
// answers which ids have a key set without scanning every vector's map.
package metadata

import (
	"math"
	"regexp"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/edgevec/edgevec/internal/everr"
	"github.com/edgevec/edgevec/internal/ids"
)

const (
	maxKeyLen     = 256
	maxKeysPerVec = 64
	maxStringLen  = 4096
	maxArrayElems = 256
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValueKind tags the MetadataValue union (spec §3).
type ValueKind uint8

const (
	KindString ValueKind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindStringArray
)

// Value is the tagged union {String, Integer, Float, Boolean, StringArray}.
// Only the field matching Kind is meaningful.
type Value struct {
	Kind        ValueKind
	Str         string
	Int         int64
	Float       float64
	Bool        bool
	StringArray []string
}

func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Integer(i int64) Value      { return Value{Kind: KindInteger, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func Boolean(b bool) Value       { return Value{Kind: KindBoolean, Bool: b} }
func StringArray(ss []string) Value {
	cp := make([]string, len(ss))
	copy(cp, ss)
	return Value{Kind: KindStringArray, StringArray: cp}
}

// validate enforces the bounds spec §3 places on values.
func (v Value) validate() error {
	switch v.Kind {
	case KindString:
		if len(v.Str) > maxStringLen {
			return everr.New(everr.CodeInvalidExpression, "string value exceeds 4 KiB", nil)
		}
	case KindFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return everr.New(everr.CodeInvalidExpression, "float value must be finite", nil)
		}
	case KindInteger:
		if v.Int > 1<<53 || v.Int < -(1<<53) {
			return everr.New(everr.CodeInvalidExpression, "integer value exceeds ±2^53", nil)
		}
	case KindStringArray:
		if len(v.StringArray) > maxArrayElems {
			return everr.New(everr.CodeArrayTooLarge, "string array exceeds 256 elements", nil)
		}
		for _, s := range v.StringArray {
			if len(s) > maxStringLen {
				return everr.New(everr.CodeInvalidExpression, "string array element exceeds 4 KiB", nil)
			}
		}
	}
	return nil
}

func validateKey(key string) error {
	if len(key) == 0 || len(key) > maxKeyLen {
		return everr.New(everr.CodeInvalidExpression, "key length must be 1..256", nil).WithDetail("key", key)
	}
	if !keyPattern.MatchString(key) {
		return everr.New(everr.CodeInvalidExpression, "key must match [A-Za-z0-9_]+", nil).WithDetail("key", key)
	}
	return nil
}

// Store is the engine's metadata subsystem: one bounded key->Value map per
// live VectorId, plus a field index for membership queries.
type Store struct {
	entries map[ids.VectorId]map[string]Value
	byField map[string]*roaring.Bitmap
}

// New constructs an empty metadata store.
func New() *Store {
	return &Store{
		entries: make(map[ids.VectorId]map[string]Value),
		byField: make(map[string]*roaring.Bitmap),
	}
}

// Set assigns key=value for id, overwriting an existing key. Setting a
// new key when the vector already has 64 keys fails METADATA_KEY_LIMIT
// (spec §4.7).
func (s *Store) Set(id ids.VectorId, key string, v Value) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := v.validate(); err != nil {
		return err
	}

	m, ok := s.entries[id]
	if !ok {
		m = make(map[string]Value)
		s.entries[id] = m
	}
	if _, exists := m[key]; !exists && len(m) >= maxKeysPerVec {
		return everr.New(everr.CodeMetadataKeyLimit, "vector already has 64 metadata keys", nil).
			WithDetail("key", key)
	}
	m[key] = v
	s.indexAdd(key, id)
	return nil
}

// SetAll replaces the entire metadata map for id (insert_with_metadata).
func (s *Store) SetAll(id ids.VectorId, values map[string]Value) error {
	if len(values) > maxKeysPerVec {
		return everr.New(everr.CodeMetadataKeyLimit, "metadata map exceeds 64 keys", nil)
	}
	for k, v := range values {
		if err := validateKey(k); err != nil {
			return err
		}
		if err := v.validate(); err != nil {
			return err
		}
	}
	for k := range s.entries[id] {
		s.indexRemove(k, id)
	}
	cp := make(map[string]Value, len(values))
	for k, v := range values {
		cp[k] = v
		s.indexAdd(k, id)
	}
	s.entries[id] = cp
	return nil
}

// Get returns the value for key on id, and whether it is present. Absence
// of a key models SQL NULL (spec §3).
func (s *Store) Get(id ids.VectorId, key string) (Value, bool) {
	m, ok := s.entries[id]
	if !ok {
		return Value{}, false
	}
	v, ok := m[key]
	return v, ok
}

// Has reports whether id has key set.
func (s *Store) Has(id ids.VectorId, key string) bool {
	_, ok := s.Get(id, key)
	return ok
}

// Delete removes a single key from id's map.
func (s *Store) Delete(id ids.VectorId, key string) {
	m, ok := s.entries[id]
	if !ok {
		return
	}
	delete(m, key)
	s.indexRemove(key, id)
}

// DeleteAll removes every metadata entry for id (called directly, or by
// compaction when id is not retained).
func (s *Store) DeleteAll(id ids.VectorId) {
	m, ok := s.entries[id]
	if !ok {
		return
	}
	for k := range m {
		s.indexRemove(k, id)
	}
	delete(s.entries, id)
}

// GetAll returns a copy of id's metadata map.
func (s *Store) GetAll(id ids.VectorId) map[string]Value {
	m, ok := s.entries[id]
	if !ok {
		return nil
	}
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// KeyCount returns the number of keys set on id.
func (s *Store) KeyCount(id ids.VectorId) int {
	return len(s.entries[id])
}

// HasField reports whether any vector has key set, answered from the
// membership index without a full scan.
func (s *Store) HasField(key string) bool {
	bm, ok := s.byField[key]
	return ok && !bm.IsEmpty()
}

// IDsWithField returns, in ascending order, every id that has key set.
func (s *Store) IDsWithField(key string) []ids.VectorId {
	bm, ok := s.byField[key]
	if !ok {
		return nil
	}
	out := make([]ids.VectorId, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, ids.VectorId(it.Next()))
	}
	return out
}

// FieldNames returns, in sorted order, every field name that at least
// one vector has set.
func (s *Store) FieldNames() []string {
	names := make([]string, 0, len(s.byField))
	for k, bm := range s.byField {
		if !bm.IsEmpty() {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Store) indexAdd(key string, id ids.VectorId) {
	bm, ok := s.byField[key]
	if !ok {
		bm = roaring.New()
		s.byField[key] = bm
	}
	bm.Add(uint32(id))
}

func (s *Store) indexRemove(key string, id ids.VectorId) {
	if bm, ok := s.byField[key]; ok {
		bm.Remove(uint32(id))
	}
}
