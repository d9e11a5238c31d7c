// Package lifecycle implements spec §4.8's tombstone set and compaction:
// vectors are masked, not removed, by soft_delete, and only physically
// discarded when compact() rebuilds storage and the graph from the live
// set.
package lifecycle

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/edgevec/edgevec/internal/ids"
)

// defaultCompactionThreshold is spec §4.8's default tombstone_ratio
// trigger (settable 0.01-0.99).
const defaultCompactionThreshold = 0.30

// Tombstones is a bitset over allocated VectorIds; a set bit means
// "deleted" (spec §3). Tombstoned vectors are unreachable from search
// results but remain addressable for metadata inspection and compaction.
type Tombstones struct {
	bits      *roaring.Bitmap
	threshold float64
}

// NewTombstones constructs an empty tombstone set with the default
// compaction threshold.
func NewTombstones() *Tombstones {
	return &Tombstones{bits: roaring.New(), threshold: defaultCompactionThreshold}
}

// SetThreshold updates the compaction trigger ratio; spec §4.8 bounds it
// to [0.01, 0.99].
func (t *Tombstones) SetThreshold(ratio float64) {
	if ratio < 0.01 {
		ratio = 0.01
	}
	if ratio > 0.99 {
		ratio = 0.99
	}
	t.threshold = ratio
}

// SoftDelete sets id's tombstone bit, returning false if it was already
// set (idempotent, spec §4.8).
func (t *Tombstones) SoftDelete(id ids.VectorId) bool {
	return t.bits.CheckedAdd(uint32(id))
}

// IsDeleted reports whether id is tombstoned.
func (t *Tombstones) IsDeleted(id ids.VectorId) bool {
	return t.bits.Contains(uint32(id))
}

// LiveCount and DeletedCount are pure functions of totalAllocated and the
// tombstone set (spec §4.8, and invariant I1: live+deleted=total_allocated).
func (t *Tombstones) LiveCount(totalAllocated int) int {
	return totalAllocated - t.DeletedCount()
}

func (t *Tombstones) DeletedCount() int {
	return int(t.bits.GetCardinality())
}

// TombstoneRatio is deleted/total, 0 when nothing has been allocated yet.
func (t *Tombstones) TombstoneRatio(totalAllocated int) float64 {
	if totalAllocated == 0 {
		return 0
	}
	return float64(t.DeletedCount()) / float64(totalAllocated)
}

// NeedsCompaction reports whether TombstoneRatio exceeds the configured
// threshold (spec §4.8).
func (t *Tombstones) NeedsCompaction(totalAllocated int) bool {
	return t.TombstoneRatio(totalAllocated) > t.threshold
}

// Bitmap exposes the underlying packed bitset for persistence, which
// serializes it verbatim (spec §4.9). Callers must not mutate it.
func (t *Tombstones) Bitmap() *roaring.Bitmap {
	return t.bits
}

// RestoreBitmap replaces the tombstone set with bm, used by persistence's
// load path to rehydrate from a saved file.
func (t *Tombstones) RestoreBitmap(bm *roaring.Bitmap) {
	t.bits = bm
}

// LiveIDsAscending returns every VectorId in [0, totalAllocated) that is
// not tombstoned, in ascending order — the compaction source order and
// the pre-filter strategy's full scan order.
func (t *Tombstones) LiveIDsAscending(totalAllocated int) []ids.VectorId {
	out := make([]ids.VectorId, 0, totalAllocated-t.DeletedCount())
	for id := ids.VectorId(0); int(id) < totalAllocated; id++ {
		if !t.bits.Contains(uint32(id)) {
			out = append(out, id)
		}
	}
	return out
}
