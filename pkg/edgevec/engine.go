// Package edgevec is the top-level façade spec §6 describes: a single
// Engine wiring configuration, vector storage, the HNSW graph, metadata,
// filtering, the strategy planner, sparse fusion, tombstone lifecycle,
// persistence, and memory pressure tracking behind one external surface.
package edgevec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/edgevec/edgevec/internal/blockstore"
	"github.com/edgevec/edgevec/internal/config"
	"github.com/edgevec/edgevec/internal/everr"
	"github.com/edgevec/edgevec/internal/filter"
	"github.com/edgevec/edgevec/internal/hnsw"
	"github.com/edgevec/edgevec/internal/ids"
	"github.com/edgevec/edgevec/internal/lifecycle"
	"github.com/edgevec/edgevec/internal/memctl"
	"github.com/edgevec/edgevec/internal/metadata"
	"github.com/edgevec/edgevec/internal/persistence"
	"github.com/edgevec/edgevec/internal/planner"
	"github.com/edgevec/edgevec/internal/sparse"
	"github.com/edgevec/edgevec/internal/storage"
)

// vectorArena is the narrow slice of storage.FloatArena/BinaryArena the
// engine needs generically: appending and reading back a query-typed
// vector, counting live slots, and round-tripping through persistence's
// byte encoding.
type vectorArena[Q any] interface {
	Len() int
	Append(v Q) (int, error)
	At(slot int) Q
	Bytes() []byte
	AppendBytes(raw []byte)
}

// Engine is the generic index handle. Q is []float32 for a float32
// index or []byte for a binary (Hamming) index; construct one via
// NewFloat/LoadFloat or NewBinary/LoadBinary.
type Engine[Q any] struct {
	cfg *config.IndexConfig
	dim int

	arena        vectorArena[Q]
	newEmptyArena func() vectorArena[Q]
	rebuildSpace func(arena vectorArena[Q], slotOf map[ids.VectorId]int) hnsw.Space[Q]

	graph     *hnsw.Graph[Q]
	searchCtx *hnsw.SearchContext

	meta   *metadata.Store
	tomb   *lifecycle.Tombstones
	sparse *sparse.Store
	mem    *memctl.Controller

	slotOf map[ids.VectorId]int
	nextID ids.VectorId

	// filterCache memoizes Compile(src) for repeated filter strings across
	// Search calls, avoiding reparsing the same predicate on every query
	// (spec §4.4 treats Search as the hot path; filter text is typically
	// reused verbatim across a client's query loop).
	filterCache *lru.Cache[string, *filter.Node]

	// Binary quantization shadow (spec §4.5). quantize is non-nil only for
	// float engines; bqArena/bqGraph/bqSlotOf mirror arena/graph/slotOf but
	// over the sign-quantized packed representation, kept in lockstep with
	// Insert/Compact once EnableBQ has been called.
	quantize   func(Q) []byte
	bqEnabled  bool
	bqArena    *storage.BinaryArena
	bqGraph    *hnsw.Graph[[]byte]
	bqSlotOf   map[ids.VectorId]int

	logger *slog.Logger
}

// defaultFilterCacheSize bounds how many distinct compiled filters Search
// keeps warm.
const defaultFilterCacheSize = 256

// InsertResult is spec §5's batch-insert contract, reused for single
// inserts with total=1.
type InsertResult struct {
	Inserted int
	Total    int
	IDs      []ids.VectorId
}

func (e *Engine[Q]) params() hnsw.Params {
	return hnsw.Params{M: int(e.cfg.M), M0: int(e.cfg.M0), EfConstruction: int(e.cfg.EfConstruction), EfSearch: int(e.cfg.EfSearch), Seed: e.cfg.Seed}
}

// SetLogger installs the *slog.Logger Insert/Compact/Save and the
// memory-pressure path log through. Unset, the engine logs through
// slog.Default() — the same default the bench CLI's --debug flag points
// at (cmd/edgevec-bench/cmd/root.go), so an engine embedded without an
// explicit logger still surfaces through whatever default the host
// process configured.
func (e *Engine[Q]) SetLogger(l *slog.Logger) { e.logger = l }

func (e *Engine[Q]) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// usesGraph reports whether this engine maintains HNSW graph edges at
// all. A Flat-type engine (spec's supplemented "Flat index type") never
// inserts into e.graph — it keeps the arena and distance function but
// answers Search with a brute-force scan (searchFlat), so graph
// mutation and its associated bookkeeping are skipped entirely.
func (e *Engine[Q]) usesGraph() bool {
	return e.cfg.IndexType != config.IndexTypeFlat
}

// NewFloat constructs a float32-backed engine (metric l2/cosine/dot).
func NewFloat(cfg *config.IndexConfig) (*Engine[[]float32], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metric, err := storage.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	arena, err := storage.NewFloatArena(int(cfg.Dimensions), metric)
	if err != nil {
		return nil, err
	}

	e := &Engine[[]float32]{
		cfg:    cfg,
		dim:    int(cfg.Dimensions),
		meta:   metadata.New(),
		tomb:   lifecycle.NewTombstones(),
		mem:    memctl.New(1 << 30),
		slotOf: make(map[ids.VectorId]int),
		arena:  arena,
	}
	e.quantize = storage.QuantizeSign
	e.filterCache, _ = lru.New[string, *filter.Node](defaultFilterCacheSize)
	e.newEmptyArena = func() vectorArena[[]float32] {
		a, _ := storage.NewFloatArena(int(cfg.Dimensions), metric)
		return a
	}
	e.rebuildSpace = func(a vectorArena[[]float32], slotOf map[ids.VectorId]int) hnsw.Space[[]float32] {
		fa := a.(*storage.FloatArena)
		return storage.FloatSpace{Arena: fa, Slot: func(id ids.VectorId) int { return slotOf[id] }}
	}
	e.graph = hnsw.New(e.rebuildSpace(e.arena, e.slotOf), e.params())
	e.searchCtx = hnsw.NewSearchContext(1024)
	return e, nil
}

// NewBinary constructs a binary (Hamming) engine.
func NewBinary(cfg *config.IndexConfig) (*Engine[[]byte], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VectorType != config.VectorTypeBinary {
		return nil, everr.New(everr.CodeInvalidConfig, "NewBinary requires vector_type=binary", nil)
	}
	arena := storage.NewBinaryArena(int(cfg.Dimensions))

	e := &Engine[[]byte]{
		cfg:    cfg,
		dim:    int(cfg.Dimensions),
		meta:   metadata.New(),
		tomb:   lifecycle.NewTombstones(),
		mem:    memctl.New(1 << 30),
		slotOf: make(map[ids.VectorId]int),
		arena:  arena,
	}
	e.filterCache, _ = lru.New[string, *filter.Node](defaultFilterCacheSize)
	e.newEmptyArena = func() vectorArena[[]byte] {
		return storage.NewBinaryArena(int(cfg.Dimensions))
	}
	e.rebuildSpace = func(a vectorArena[[]byte], slotOf map[ids.VectorId]int) hnsw.Space[[]byte] {
		ba := a.(*storage.BinaryArena)
		return storage.BinarySpace{Arena: ba, Slot: func(id ids.VectorId) int { return slotOf[id] }}
	}
	e.graph = hnsw.New(e.rebuildSpace(e.arena, e.slotOf), e.params())
	e.searchCtx = hnsw.NewSearchContext(1024)
	return e, nil
}

// Insert appends one vector plus optional metadata, returning its
// assigned id. Ids are assigned monotonically and never reused except
// by Compact.
func (e *Engine[Q]) Insert(vector Q, meta map[string]metadata.Value) (ids.VectorId, error) {
	if !e.mem.CanInsert() {
		return 0, everr.New(everr.CodeMemoryCritical, "memory pressure at critical level", nil)
	}
	slot, err := e.arena.Append(vector)
	if err != nil {
		return 0, err
	}
	id := e.nextID
	e.nextID++
	e.slotOf[id] = slot
	if e.usesGraph() {
		e.graph.Insert(e.searchCtx, id)
	}
	if e.bqEnabled {
		e.insertBQ(id, vector)
	}
	e.log().Debug("graph mutation", "op", "insert", "id", id)
	if len(meta) > 0 {
		if err := e.meta.SetAll(id, meta); err != nil {
			return id, err
		}
	}
	return id, nil
}

// insertBQ appends vector's sign-quantized shadow to the BQ arena and
// graph, keeping it in lockstep with the main arena/graph for id.
func (e *Engine[Q]) insertBQ(id ids.VectorId, vector Q) {
	packed := e.quantize(vector)
	slot, err := e.bqArena.Append(packed)
	if err != nil {
		e.log().Warn("bq shadow insert failed", "id", id, "error", err)
		return
	}
	e.bqSlotOf[id] = slot
	e.bqGraph.Insert(e.searchCtx, id)
}

// InsertBatch implements spec §5's prefix-success contract: the first
// validation error aborts the batch, returning the successfully
// inserted prefix.
func (e *Engine[Q]) InsertBatch(vectors []Q, metas []map[string]metadata.Value) (InsertResult, error) {
	if len(vectors) == 0 {
		return InsertResult{}, everr.New(everr.CodeEmptyBatch, "insert_batch called with zero vectors", nil)
	}
	res := InsertResult{Total: len(vectors)}
	for i, v := range vectors {
		var m map[string]metadata.Value
		if i < len(metas) {
			m = metas[i]
		}
		id, err := e.Insert(v, m)
		if err != nil {
			return res, err
		}
		res.IDs = append(res.IDs, id)
		res.Inserted++
	}
	return res, nil
}

// SoftDelete tombstones id; idempotent (spec §4.8).
func (e *Engine[Q]) SoftDelete(id ids.VectorId) bool {
	return e.tomb.SoftDelete(id)
}

// DeleteBatch deduplicates ids then tombstones each, per spec §5's
// "deletion batches deduplicate input IDs" rule, returning how many were
// newly deleted versus already-tombstoned.
func (e *Engine[Q]) DeleteBatch(idList []ids.VectorId) (deleted, alreadyDeleted int) {
	seen := make(map[ids.VectorId]bool, len(idList))
	for _, id := range idList {
		if seen[id] {
			continue
		}
		seen[id] = true
		if e.tomb.SoftDelete(id) {
			deleted++
		} else {
			alreadyDeleted++
		}
	}
	return deleted, alreadyDeleted
}

// IsLive, LiveCount, LiveIDsAscending, and Lookup implement
// planner.Source, letting Engine itself drive the strategy planner.
func (e *Engine[Q]) IsLive(id ids.VectorId) bool {
	return id < e.nextID && !e.tomb.IsDeleted(id)
}
func (e *Engine[Q]) LiveCount() int { return e.tomb.LiveCount(int(e.nextID)) }
func (e *Engine[Q]) LiveIDsAscending() []ids.VectorId {
	return e.tomb.LiveIDsAscending(int(e.nextID))
}
func (e *Engine[Q]) Lookup(id ids.VectorId) filter.Lookup {
	return func(field string) (metadata.Value, bool) { return e.meta.Get(id, field) }
}

// Search implements spec §4.4's filtered search. filterSrc is the wire
// filter text, or empty for no filter.
func (e *Engine[Q]) Search(query Q, k int, filterSrc string, strategy planner.Strategy, oversample float32, efSearch int) (planner.Result, error) {
	var node *filter.Node
	if filterSrc != "" {
		var err error
		node, err = e.compileFilter(filterSrc)
		if err != nil {
			return planner.Result{}, err
		}
	}
	if e.cfg.IndexType == config.IndexTypeFlat {
		return e.searchFlat(query, k, node), nil
	}
	pe := &planner.Engine[Q]{Graph: e.graph, Source: e, DefaultEfSearch: int(e.cfg.EfSearch)}
	opts := planner.Options{Filter: node, Strategy: strategy, OversampleFactor: oversample, EfSearch: efSearch}
	return pe.Search(e.searchCtx, query, k, opts), nil
}

// searchFlat implements the supplemented Flat index type: brute-force
// exact k-NN over every live vector, the same O(N) scan planner.searchPre
// uses for its pre-filter strategy, but driven directly since a Flat
// engine's e.graph never has edges to traverse.
func (e *Engine[Q]) searchFlat(query Q, k int, ast *filter.Node) planner.Result {
	if k <= 0 {
		return planner.Result{Complete: true}
	}
	live := e.LiveIDsAscending()
	survivors := make([]hnsw.Candidate, 0, k)
	evaluated := 0
	for _, id := range live {
		if ast != nil {
			evaluated++
			if filter.Eval(ast, e.Lookup(id)) != filter.True {
				continue
			}
		}
		d := e.graph.DistanceToQuery(id, query)
		survivors = append(survivors, hnsw.Candidate{ID: id, Distance: d})
	}
	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].Distance != survivors[j].Distance {
			return survivors[i].Distance < survivors[j].Distance
		}
		return survivors[i].ID < survivors[j].ID
	})
	if len(survivors) > k {
		survivors = survivors[:k]
	}
	res := planner.Result{Results: survivors, Complete: true, StrategyUsed: planner.StrategyPre, VectorsEvaluated: len(live)}
	if ast != nil {
		res.VectorsEvaluated = evaluated
		if len(live) > 0 {
			res.ObservedSelectivity = float64(len(survivors)) / float64(len(live))
		}
	}
	return res
}

// EnableBQ turns on the binary-quantization shadow of spec §4.5: every
// live vector is sign-quantized into a parallel Hamming-metric HNSW
// graph, and subsequent Insert/Compact calls keep it synchronized.
// Requires a float32 engine (quantize is only wired by NewFloat) and
// dim%8==0, the same packing rule config.Validate enforces for native
// binary engines.
func (e *Engine[Q]) EnableBQ() error {
	if e.quantize == nil {
		return everr.New(everr.CodeBQDisabled, "BQ requires a float32 engine", nil)
	}
	if e.dim%8 != 0 {
		return everr.New(everr.CodeDimensionMismatch, "BQ requires dimensions divisible by 8", nil).
			WithDetail("dimensions", fmt.Sprintf("%d", e.dim))
	}

	arena := storage.NewBinaryArena(e.dim)
	slotOf := make(map[ids.VectorId]int)
	graph := hnsw.New(storage.BinarySpace{Arena: arena, Slot: func(id ids.VectorId) int { return slotOf[id] }}, e.params())

	for _, id := range e.LiveIDsAscending() {
		vec := e.arena.At(e.slotOf[id])
		slot, err := arena.Append(e.quantize(vec))
		if err != nil {
			return err
		}
		slotOf[id] = slot
		graph.Insert(e.searchCtx, id)
	}

	e.bqArena = arena
	e.bqSlotOf = slotOf
	e.bqGraph = graph
	e.bqEnabled = true
	e.log().Info("bq shadow enabled", "live", e.LiveCount())
	return nil
}

// SearchBQRescored implements spec §4.5's search_bq_rescored: quantize
// query, run Hamming HNSW on the binary shadow with
// ef=max(k*rescoreFactor, ef_search), then recompute exact distance under
// the engine's configured float metric for those candidates and return
// the top-k by exact distance.
func (e *Engine[Q]) SearchBQRescored(query Q, k int, rescoreFactor int) ([]hnsw.Candidate, error) {
	if !e.bqEnabled {
		return nil, everr.New(everr.CodeBQDisabled, "BQ is not enabled on this engine", nil)
	}
	if rescoreFactor < 1 {
		rescoreFactor = 1
	}
	liveCount := e.LiveCount()
	ef := max(int(e.cfg.EfSearch), k*rescoreFactor)

	quantized := e.quantize(query)
	shadowHits := e.bqGraph.Search(e.searchCtx, quantized, k*rescoreFactor, ef, liveCount, e.IsLive)

	rescored := make([]hnsw.Candidate, 0, len(shadowHits))
	for _, hit := range shadowHits {
		d := e.graph.DistanceToQuery(hit.ID, query)
		rescored = append(rescored, hnsw.Candidate{ID: hit.ID, Distance: d})
	}
	sort.Slice(rescored, func(i, j int) bool {
		if rescored[i].Distance != rescored[j].Distance {
			return rescored[i].Distance < rescored[j].Distance
		}
		return rescored[i].ID < rescored[j].ID
	})
	if len(rescored) > k {
		rescored = rescored[:k]
	}
	return rescored, nil
}

// compileFilter compiles src, serving from filterCache on repeat.
func (e *Engine[Q]) compileFilter(src string) (*filter.Node, error) {
	if node, ok := e.filterCache.Get(src); ok {
		return node, nil
	}
	compiled := filter.Compile(src)
	if !compiled.Valid {
		return nil, compiled.Errors[0]
	}
	e.filterCache.Add(src, compiled.Compiled)
	return compiled.Compiled, nil
}

// Compact rebuilds storage and the graph from the live set, preserving
// VectorIds (spec §4.8), and resets tombstones.
func (e *Engine[Q]) Compact() (lifecycle.CompactionResult, error) {
	newArena := e.newEmptyArena()
	newSlotOf := make(map[ids.VectorId]int)
	newGraph := hnsw.New(e.rebuildSpace(newArena, newSlotOf), e.params())

	var newBQArena *storage.BinaryArena
	var newBQSlotOf map[ids.VectorId]int
	var newBQGraph *hnsw.Graph[[]byte]
	if e.bqEnabled {
		newBQArena = storage.NewBinaryArena(e.dim)
		newBQSlotOf = make(map[ids.VectorId]int)
		newBQGraph = hnsw.New(storage.BinarySpace{Arena: newBQArena, Slot: func(id ids.VectorId) int { return newBQSlotOf[id] }}, e.params())
	}

	result, err := lifecycle.Compact(int(e.nextID), e.tomb, func(id ids.VectorId) error {
		vec := e.arena.At(e.slotOf[id])
		newSlot, err := newArena.Append(vec)
		if err != nil {
			return err
		}
		newSlotOf[id] = newSlot
		if e.usesGraph() {
			newGraph.Insert(e.searchCtx, id)
		}
		if e.bqEnabled {
			packed := e.quantize(vec)
			bqSlot, err := newBQArena.Append(packed)
			if err != nil {
				return err
			}
			newBQSlotOf[id] = bqSlot
			newBQGraph.Insert(e.searchCtx, id)
		}
		return nil
	})
	if err != nil {
		return lifecycle.CompactionResult{}, err
	}

	e.arena = newArena
	e.graph = newGraph
	e.slotOf = newSlotOf
	e.tomb = lifecycle.NewTombstones()
	if e.bqEnabled {
		e.bqArena = newBQArena
		e.bqSlotOf = newBQSlotOf
		e.bqGraph = newBQGraph
	}
	e.log().Info("compaction complete", "tombstones_removed", result.TombstonesRemoved, "live", e.LiveCount())
	return result, nil
}

// ensureSparse lazily constructs the sparse inverted-list store.
func (e *Engine[Q]) ensureSparse() {
	if e.sparse == nil {
		e.sparse = sparse.New()
	}
}

// SparseInsert and SparseSearch delegate to the sparse inverted-list
// store (spec §4.6).
func (e *Engine[Q]) SparseInsert(v sparse.Vector) (ids.SparseVectorId, error) {
	e.ensureSparse()
	return e.sparse.Insert(v)
}
func (e *Engine[Q]) SparseSearch(q sparse.Vector, k int) []sparse.Hit {
	e.ensureSparse()
	return e.sparse.Search(q, k)
}

// HybridSearch fuses a dense HNSW ranking with a sparse ranking via RRF
// or linear fusion (spec §4.6).
func (e *Engine[Q]) HybridSearch(dense, sparseRanking []sparse.RankedID, method sparse.FusionMethod, alpha float64) []*sparse.FusedResult {
	return sparse.Fuse(dense, sparseRanking, method, alpha)
}

// Stats is the supplemented diagnostics snapshot SPEC_FULL.md promises:
// config echo, live/deleted counts from the tombstone ledger, and the
// graph's observed shape.
type Stats struct {
	Dimensions     int
	Metric         string
	VectorType     string
	IndexType      string
	TotalCount     int
	LiveCount      int
	DeletedCount   int
	TombstoneRatio float64
	GraphDepth     int
	AverageDegree  float64
	BQEnabled      bool
}

// Stats reports the engine's current shape and configuration.
func (e *Engine[Q]) Stats() Stats {
	depth, avgDegree := e.graphShape()
	return Stats{
		Dimensions:     e.dim,
		Metric:         e.cfg.Metric,
		VectorType:     e.cfg.VectorType,
		IndexType:      e.cfg.IndexType,
		TotalCount:     int(e.nextID),
		LiveCount:      e.LiveCount(),
		DeletedCount:   e.tomb.DeletedCount(),
		TombstoneRatio: e.tomb.TombstoneRatio(int(e.nextID)),
		GraphDepth:     depth,
		AverageDegree:  avgDegree,
		BQEnabled:      e.bqEnabled,
	}
}

// graphShape walks the live set's layer-0 adjacency to report depth
// (highest assigned layer + 1) and average out-degree. Flat engines never
// populate e.graph, so both are zero.
func (e *Engine[Q]) graphShape() (depth int, avgDegree float64) {
	if !e.usesGraph() {
		return 0, 0
	}
	live := e.LiveIDsAscending()
	if len(live) == 0 {
		return 0, 0
	}
	maxLayer := -1
	var totalDegree int
	for _, id := range live {
		if l := e.graph.MaxLayer(id); l > maxLayer {
			maxLayer = l
		}
		totalDegree += len(e.graph.Neighbors(id, 0))
	}
	if maxLayer < 0 {
		return 0, 0
	}
	return maxLayer + 1, float64(totalDegree) / float64(len(live))
}

// MemoryEstimate is EstimateMemoryUsage's per-subsystem breakdown, the
// same four counters memctl.Controller tracks.
type MemoryEstimate struct {
	StorageBytes  uint64
	GraphBytes    uint64
	MetadataBytes uint64
	SparseBytes   uint64
	TotalBytes    uint64
}

// EstimateMemoryUsage computes an approximate byte footprint per
// subsystem: the arena's exact packed size, the graph's adjacency lists
// (4 bytes per stored neighbor id, across both the main graph and, if
// enabled, the BQ shadow, whose packed arena is also counted as graph
// bytes), the metadata store's key/value payload, and the sparse store's
// encoded size.
func (e *Engine[Q]) EstimateMemoryUsage() MemoryEstimate {
	storageBytes := uint64(len(e.arena.Bytes()))
	graphBytes := e.estimateGraphBytes()
	metadataBytes := e.estimateMetadataBytes()
	var sparseBytes uint64
	if e.sparse != nil {
		sparseBytes = uint64(len(e.sparse.Encode()))
	}
	return MemoryEstimate{
		StorageBytes:  storageBytes,
		GraphBytes:    graphBytes,
		MetadataBytes: metadataBytes,
		SparseBytes:   sparseBytes,
		TotalBytes:    storageBytes + graphBytes + metadataBytes + sparseBytes,
	}
}

func (e *Engine[Q]) estimateGraphBytes() uint64 {
	var total uint64
	if e.usesGraph() {
		for _, id := range e.LiveIDsAscending() {
			maxLayer := e.graph.MaxLayer(id)
			for layer := 0; layer <= maxLayer; layer++ {
				total += uint64(len(e.graph.Neighbors(id, layer))) * 4
			}
		}
	}
	if e.bqEnabled {
		total += uint64(len(e.bqArena.Bytes()))
		for _, id := range e.LiveIDsAscending() {
			maxLayer := e.bqGraph.MaxLayer(id)
			for layer := 0; layer <= maxLayer; layer++ {
				total += uint64(len(e.bqGraph.Neighbors(id, layer))) * 4
			}
		}
	}
	return total
}

func (e *Engine[Q]) estimateMetadataBytes() uint64 {
	var total uint64
	for _, entry := range e.metadataEntries() {
		total += uint64(len(entry.Key)) + metadataValueBytes(entry.Value)
	}
	return total
}

func metadataValueBytes(v persistence.MetadataValue) uint64 {
	switch v.Kind {
	case persistence.MetaString:
		return uint64(len(v.Str))
	case persistence.MetaInteger, persistence.MetaFloat:
		return 8
	case persistence.MetaBoolean:
		return 1
	case persistence.MetaStringArray:
		var n uint64
		for _, s := range v.StringArray {
			n += uint64(len(s))
		}
		return n
	default:
		return 0
	}
}

// MemoryUsage refreshes the controller's per-subsystem counters from the
// live arena, graph, metadata, and sparse store, then reports the
// current {level, used, total, percent} snapshot — logging a warning or
// error once pressure crosses into warning/critical territory.
func (e *Engine[Q]) MemoryUsage() memctl.Usage {
	est := e.EstimateMemoryUsage()
	e.mem.UpdateStorage(est.StorageBytes)
	e.mem.UpdateGraph(est.GraphBytes)
	e.mem.UpdateMetadata(est.MetadataBytes)
	e.mem.UpdateSparse(est.SparseBytes)
	usage := e.mem.Usage()
	switch usage.Level {
	case memctl.LevelWarning:
		e.log().Warn("memory pressure", "level", usage.Level, "used", usage.Used, "total", usage.Total)
	case memctl.LevelCritical:
		e.log().Error("memory pressure critical", "level", usage.Level, "used", usage.Used, "total", usage.Total)
	}
	return usage
}

// Memctl exposes the controller directly for callers that want to feed
// it graph/metadata/sparse byte counts or adjust thresholds.
func (e *Engine[Q]) Memctl() *memctl.Controller { return e.mem }

// Save serializes the current state and writes it to store under name.
//
// The storage section is written in VectorId order, one stride per id in
// [0, NextID), which is the layout Load reads back (it rebuilds slotOf as
// the identity map). After Compact the arena holds only the surviving
// vectors in consecutive slots, so Save first rewrites it into id order,
// writing zero bytes for ids that have no stored vector.
func (e *Engine[Q]) Save(ctx context.Context, store blockstore.Store, name string) error {
	h := e.header()
	metaEntries := e.metadataEntries()

	var sparseBytes []byte
	if e.sparse != nil && e.sparse.Len() > 0 {
		sparseBytes = e.sparse.Encode()
	}

	storageBytes := e.arena.Bytes()
	if e.arena.Len() != int(e.nextID) {
		stride := e.dim * 4
		if e.cfg.VectorType == config.VectorTypeBinary {
			stride = (e.dim + 7) / 8
		}
		full := make([]byte, int(e.nextID)*stride)
		for id, slot := range e.slotOf {
			copy(full[int(id)*stride:], storageBytes[slot*stride:(slot+1)*stride])
		}
		storageBytes = full
	}

	var buf bytes.Buffer
	if err := persistence.Save(&buf, h, storageBytes, int(e.nextID), e.graph, e.tomb.Bitmap(), metaEntries, sparseBytes); err != nil {
		e.log().Error("save failed", "name", name, "error", err)
		return err
	}
	if err := store.Write(ctx, name, buf.Bytes()); err != nil {
		e.log().Error("save failed", "name", name, "error", err)
		return err
	}
	e.log().Info("save complete", "name", name, "live", e.LiveCount(), "bytes", buf.Len())
	return nil
}

func (e *Engine[Q]) header() persistence.Header {
	entry := uint32(0xFFFFFFFF)
	if ep, ok := e.graph.EntryPoint(); ok {
		entry = uint32(ep)
	}
	metric, _ := storage.ParseMetric(e.cfg.Metric)
	vtype := uint8(0)
	if e.cfg.VectorType == config.VectorTypeBinary {
		vtype = 1
	}
	return persistence.Header{
		Dim:            uint32(e.dim),
		Metric:         uint8(metric),
		VectorType:     vtype,
		M:              e.cfg.M,
		M0:             e.cfg.M0,
		EfConstruction: e.cfg.EfConstruction,
		NextID:         uint32(e.nextID),
		EntryPoint:     entry,
		Seed:           e.cfg.Seed,
	}
}

func (e *Engine[Q]) metadataEntries() []persistence.MetadataEntry {
	var out []persistence.MetadataEntry
	for id := ids.VectorId(0); id < e.nextID; id++ {
		for key, v := range e.meta.GetAll(id) {
			out = append(out, persistence.MetadataEntry{VectorID: id, Key: key, Value: toWireValue(v)})
		}
	}
	return out
}

func toWireValue(v metadata.Value) persistence.MetadataValue {
	switch v.Kind {
	case metadata.KindInteger:
		return persistence.MetadataValue{Kind: persistence.MetaInteger, Int: v.Int}
	case metadata.KindFloat:
		return persistence.MetadataValue{Kind: persistence.MetaFloat, Float: v.Float}
	case metadata.KindBoolean:
		return persistence.MetadataValue{Kind: persistence.MetaBoolean, Bool: v.Bool}
	case metadata.KindStringArray:
		return persistence.MetadataValue{Kind: persistence.MetaStringArray, StringArray: v.StringArray}
	default:
		return persistence.MetadataValue{Kind: persistence.MetaString, Str: v.Str}
	}
}

func fromWireValue(v persistence.MetadataValue) metadata.Value {
	switch v.Kind {
	case persistence.MetaInteger:
		return metadata.Integer(v.Int)
	case persistence.MetaFloat:
		return metadata.FloatValue(v.Float)
	case persistence.MetaBoolean:
		return metadata.Boolean(v.Bool)
	case persistence.MetaStringArray:
		return metadata.StringArray(v.StringArray)
	default:
		return metadata.String(v.Str)
	}
}

// LoadFloat reconstructs a float32 engine previously written by Save.
func LoadFloat(ctx context.Context, cfg *config.IndexConfig, store blockstore.Store, name string) (*Engine[[]float32], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	raw, err := store.Read(ctx, name)
	if err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}
	loaded, err := persistence.Load(bytes.NewReader(raw), func(h persistence.Header) int {
		return int(h.NextID) * int(h.Dim) * 4
	})
	if err != nil {
		return nil, err
	}

	e, err := NewFloat(cfg)
	if err != nil {
		return nil, err
	}
	return e, rehydrate(e, loaded)
}

// LoadBinary reconstructs a binary (Hamming) engine previously written by
// Save.
func LoadBinary(ctx context.Context, cfg *config.IndexConfig, store blockstore.Store, name string) (*Engine[[]byte], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	raw, err := store.Read(ctx, name)
	if err != nil {
		return nil, everr.Wrap(everr.CodePersistenceError, err)
	}
	loaded, err := persistence.Load(bytes.NewReader(raw), func(h persistence.Header) int {
		stride := (int(h.Dim) + 7) / 8
		return int(h.NextID) * stride
	})
	if err != nil {
		return nil, err
	}

	e, err := NewBinary(cfg)
	if err != nil {
		return nil, err
	}
	return e, rehydrate(e, loaded)
}

// rehydrate repopulates a freshly constructed engine from a Loaded
// snapshot: storage bytes, graph adjacency and entry point, tombstones,
// and metadata, in that order. slotOf is rebuilt as the identity map over
// [0, NextID) since Save only ever writes a slot-identity storage section
// (see Save's doc comment on the slot == id assumption).
func rehydrate[Q any](e *Engine[Q], loaded *persistence.Loaded) error {
	e.arena.AppendBytes(loaded.Storage)
	e.nextID = ids.VectorId(loaded.Header.NextID)
	for id := ids.VectorId(0); id < e.nextID; id++ {
		e.slotOf[id] = int(id)
	}

	for id, adj := range loaded.Graph {
		if adj.Neighbors == nil {
			continue
		}
		e.graph.RestoreNode(ids.VectorId(id), adj.MaxLayer, adj.Neighbors)
	}
	if loaded.Header.EntryPoint != 0xFFFFFFFF {
		epID := ids.VectorId(loaded.Header.EntryPoint)
		layer := 0
		if int(epID) < len(loaded.Graph) {
			layer = loaded.Graph[epID].MaxLayer
		}
		e.graph.RestoreEntryPoint(epID, layer)
	}

	e.tomb.RestoreBitmap(loaded.Tombstones)

	for _, entry := range loaded.Metadata {
		if err := e.meta.Set(entry.VectorID, entry.Key, fromWireValue(entry.Value)); err != nil {
			return err
		}
	}

	if loaded.HasSparse {
		store, err := sparse.Decode(loaded.Sparse)
		if err != nil {
			e.log().Error("load failed: sparse section corrupt", "error", err)
			return err
		}
		e.sparse = store
	}

	e.log().Info("load complete", "live", e.LiveCount())
	return nil
}
