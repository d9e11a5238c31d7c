package lifecycle

import (
	"time"

	"github.com/edgevec/edgevec/internal/everr"
	"github.com/edgevec/edgevec/internal/ids"
)

// CompactionResult is spec §4.8's compact() return contract:
// {tombstones_removed, new_size, duration_ms}.
type CompactionResult struct {
	TombstonesRemoved int
	NewSize           int
	DurationMs        float64
}

// Compact implements spec §4.8's five-step algorithm in terms the caller
// supplies: reinsert is invoked once per live id, in ascending order,
// against freshly-allocated storage/graph/metadata the caller owns (step
// 2). Compact itself only sequences the iteration (step 3) and produces
// the result envelope (step 5's bookkeeping) — the caller performs the
// actual swap once Compact returns without error, since only the caller
// holds both the old and new state to swap between.
//
// reinsert failing at any id aborts with CompactionFailed wrapping the
// cause; the caller's new storage/graph must then be discarded, leaving
// old state untouched (spec §7: "failed saves leave the in-memory state
// untouched" — compaction follows the same rule).
func Compact(totalAllocated int, tombstones *Tombstones, reinsert func(id ids.VectorId) error) (CompactionResult, error) {
	start := time.Now()
	live := tombstones.LiveIDsAscending(totalAllocated)

	for _, id := range live {
		if err := reinsert(id); err != nil {
			return CompactionResult{}, everr.Wrap(everr.CodeCompactionFailed, err)
		}
	}

	return CompactionResult{
		TombstonesRemoved: tombstones.DeletedCount(),
		NewSize:           len(live),
		DurationMs:        float64(time.Since(start).Nanoseconds()) / 1e6,
	}, nil
}
