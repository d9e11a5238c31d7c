package cmd

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/edgevec/edgevec/internal/blockstore"
	"github.com/edgevec/edgevec/internal/config"
	"github.com/edgevec/edgevec/internal/filter"
	"github.com/edgevec/edgevec/internal/ids"
	"github.com/edgevec/edgevec/internal/metadata"
	"github.com/edgevec/edgevec/internal/planner"
	"github.com/edgevec/edgevec/internal/sparse"
	"github.com/edgevec/edgevec/pkg/edgevec"
)

// scenario is one of spec §8's literal named checks: a self-contained
// function that returns a human-readable failure description, or "" on
// success.
type scenario struct {
	name string
	run  func() string
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every literal scenario and report pass/fail",
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios := []scenario{
				{"scenario-1-basic-l2-search", scenarioBasicL2Search},
				{"scenario-2-metadata-filter", scenarioMetadataFilter},
				{"scenario-3-between-roundtrip", scenarioBetweenRoundtrip},
				{"scenario-4-compaction", scenarioCompaction},
				{"scenario-5-binary-hamming", scenarioBinaryHamming},
				{"scenario-6-hybrid-rrf-fusion", scenarioHybridRRF},
				{"scenario-7-save-load-roundtrip", scenarioSaveLoadRoundtrip},
			}

			color := isColorTerminal()
			failures := 0
			for _, s := range scenarios {
				if msg := s.run(); msg != "" {
					failures++
					cmd.Println(mark(color, false) + " " + s.name + ": " + msg)
				} else {
					cmd.Println(mark(color, true) + " " + s.name)
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d/%d scenarios failed", failures, len(scenarios))
			}
			cmd.Printf("all %d scenarios passed\n", len(scenarios))
			return nil
		},
	}
}

func mark(color, pass bool) string {
	if !color {
		if pass {
			return "PASS"
		}
		return "FAIL"
	}
	if pass {
		return "\033[32mPASS\033[0m"
	}
	return "\033[31mFAIL\033[0m"
}

func floatConfig(dim uint32) *config.IndexConfig {
	c := config.NewIndexConfig()
	c.Dimensions = dim
	return c
}

// scenarioBasicL2Search is spec §8 scenario 1.
func scenarioBasicL2Search() string {
	e, err := edgevec.NewFloat(floatConfig(4))
	if err != nil {
		return err.Error()
	}
	if _, err := e.Insert([]float32{1, 0, 0, 0}, nil); err != nil {
		return err.Error()
	}
	if _, err := e.Insert([]float32{0, 1, 0, 0}, nil); err != nil {
		return err.Error()
	}

	res, err := e.Search([]float32{1, 0, 0, 0}, 2, "", planner.StrategyAuto, 0, 0)
	if err != nil {
		return err.Error()
	}
	if len(res.Results) != 2 {
		return fmt.Sprintf("expected 2 results, got %d", len(res.Results))
	}
	if res.Results[0].ID != 0 || math.Abs(float64(res.Results[0].Distance)) > 1e-6 {
		return fmt.Sprintf("expected {id:0, score:0}, got %+v", res.Results[0])
	}
	if res.Results[1].ID != 1 || math.Abs(float64(res.Results[1].Distance)-2) > 1e-6 {
		return fmt.Sprintf("expected {id:1, score:2}, got %+v", res.Results[1])
	}
	return ""
}

// scenarioMetadataFilter is spec §8 scenario 2.
func scenarioMetadataFilter() string {
	e, err := edgevec.NewFloat(floatConfig(4))
	if err != nil {
		return err.Error()
	}
	if _, err := e.Insert([]float32{1, 0, 0, 0}, map[string]metadata.Value{
		"category": metadata.String("gpu"), "price": metadata.Integer(499),
	}); err != nil {
		return err.Error()
	}
	if _, err := e.Insert([]float32{0, 1, 0, 0}, map[string]metadata.Value{
		"category": metadata.String("cpu"), "price": metadata.Integer(299),
	}); err != nil {
		return err.Error()
	}

	res, err := e.Search([]float32{1, 0, 0, 0}, 10, `category = "gpu"`, planner.StrategyAuto, 0, 0)
	if err != nil {
		return err.Error()
	}
	if len(res.Results) != 1 || res.Results[0].ID != 0 {
		return fmt.Sprintf("expected exactly id=0, got %+v", res.Results)
	}
	if math.Abs(res.ObservedSelectivity-0.5) > 0.2 {
		return fmt.Sprintf("expected observed_selectivity ~= 0.5, got %f", res.ObservedSelectivity)
	}
	return ""
}

// scenarioBetweenRoundtrip is spec §8 scenario 3.
func scenarioBetweenRoundtrip() string {
	const src = "price BETWEEN 100 AND 500"
	node, err := filter.Parse(src)
	if err != nil {
		return err.Error()
	}
	if node.Kind != filter.NodeBetween {
		return fmt.Sprintf("expected Between root, got kind %v", node.Kind)
	}
	if len(node.Children) != 3 || node.Children[0].Field != "price" ||
		node.Children[1].Int != 100 || node.Children[2].Int != 500 {
		return fmt.Sprintf("unexpected AST shape: %+v", node)
	}
	if got := filter.Print(node); got != src {
		return fmt.Sprintf("round-trip mismatch: got %q", got)
	}
	return ""
}

// scenarioCompaction is spec §8 scenario 4.
func scenarioCompaction() string {
	cfg := floatConfig(128)
	cfg.Seed = 42
	e, err := edgevec.NewFloat(cfg)
	if err != nil {
		return err.Error()
	}

	rng := rand.New(rand.NewSource(42))
	const n = 1000
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, 128)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vectors[i] = v
		if _, err := e.Insert(v, nil); err != nil {
			return err.Error()
		}
	}
	for id := ids.VectorId(1); int(id) < n; id += 2 {
		e.SoftDelete(id)
	}
	if e.LiveCount() != 500 {
		return fmt.Sprintf("expected live_count=500, got %d", e.LiveCount())
	}

	result, err := e.Compact()
	if err != nil {
		return err.Error()
	}
	if e.LiveCount() != 500 {
		return fmt.Sprintf("expected live_count=500 after compact, got %d", e.LiveCount())
	}
	if result.TombstonesRemoved == 0 {
		return "expected tombstones_removed > 0"
	}

	// Every even id survived compaction; searching its own vector must
	// return itself at distance 0 once reinserted into the rebuilt graph.
	const survivor = ids.VectorId(0)
	self, err := e.Search(vectors[survivor], 1, "", planner.StrategyAuto, 0, 0)
	if err != nil {
		return err.Error()
	}
	if len(self.Results) == 0 || self.Results[0].ID != survivor || self.Results[0].Distance != 0 {
		return fmt.Sprintf("expected surviving id=%d at distance 0, got %+v", survivor, self.Results)
	}
	return ""
}

// scenarioBinaryHamming is spec §8 scenario 5.
func scenarioBinaryHamming() string {
	cfg := config.NewIndexConfig()
	cfg.Dimensions = 16
	cfg.VectorType = config.VectorTypeBinary
	cfg.Metric = config.MetricHamming
	e, err := edgevec.NewBinary(cfg)
	if err != nil {
		return err.Error()
	}
	if _, err := e.Insert([]byte{0xFF, 0xFF}, nil); err != nil {
		return err.Error()
	}
	if _, err := e.Insert([]byte{0x00, 0x00}, nil); err != nil {
		return err.Error()
	}

	res, err := e.Search([]byte{0xFF, 0xF0}, 2, "", planner.StrategyAuto, 0, 0)
	if err != nil {
		return err.Error()
	}
	if len(res.Results) != 2 {
		return fmt.Sprintf("expected 2 results, got %d", len(res.Results))
	}
	if res.Results[0].ID != 0 || res.Results[0].Distance != 4 {
		return fmt.Sprintf("expected {id:0, score:4}, got %+v", res.Results[0])
	}
	if res.Results[1].ID != 1 || res.Results[1].Distance != 12 {
		return fmt.Sprintf("expected {id:1, score:12}, got %+v", res.Results[1])
	}
	return ""
}

// scenarioHybridRRF is spec §8 scenario 6.
func scenarioHybridRRF() string {
	target := ids.VectorId(99)
	dense := make([]sparse.RankedID, 3)
	for i := range dense {
		dense[i] = sparse.RankedID{ID: ids.VectorId(i), Score: float64(10 - i)}
	}
	dense[2].ID = target // target lands at 0-indexed position 2 -> rank 3

	sparseRanking := make([]sparse.RankedID, 7)
	for i := range sparseRanking {
		sparseRanking[i] = sparse.RankedID{ID: ids.VectorId(1000 + i), Score: float64(10 - i)}
	}
	sparseRanking[6].ID = target // position 6 -> rank 7

	fused := sparse.Fuse(dense, sparseRanking, sparse.FusionRRF, 0)
	for _, f := range fused {
		if f.ID == target {
			want := 1.0/63.0 + 1.0/67.0
			if math.Abs(f.FusedScore-want) > 1e-4 {
				return fmt.Sprintf("expected fused score ~= %.5f, got %.5f", want, f.FusedScore)
			}
			return ""
		}
	}
	return "target id missing from fused results"
}

// scenarioSaveLoadRoundtrip exercises the persistence round trip: an
// index saved to a block store and reloaded must answer the same
// nearest-neighbor query with the same ids and distances.
func scenarioSaveLoadRoundtrip() string {
	cfg := floatConfig(4)
	e, err := edgevec.NewFloat(cfg)
	if err != nil {
		return err.Error()
	}
	if _, err := e.Insert([]float32{1, 0, 0, 0}, map[string]metadata.Value{
		"category": metadata.String("gpu"),
	}); err != nil {
		return err.Error()
	}
	if _, err := e.Insert([]float32{0, 1, 0, 0}, nil); err != nil {
		return err.Error()
	}

	ctx := context.Background()
	store := newMemStore()
	if err := e.Save(ctx, store, "index"); err != nil {
		return err.Error()
	}

	loaded, err := edgevec.LoadFloat(ctx, cfg, store, "index")
	if err != nil {
		return err.Error()
	}

	res, err := loaded.Search([]float32{1, 0, 0, 0}, 2, "", planner.StrategyAuto, 0, 0)
	if err != nil {
		return err.Error()
	}
	if len(res.Results) != 2 || res.Results[0].ID != 0 || res.Results[0].Distance != 0 {
		return fmt.Sprintf("expected reloaded {id:0, score:0} first, got %+v", res.Results)
	}
	filtered, err := loaded.Search([]float32{1, 0, 0, 0}, 10, `category = "gpu"`, planner.StrategyAuto, 0, 0)
	if err != nil {
		return err.Error()
	}
	if len(filtered.Results) != 1 || filtered.Results[0].ID != 0 {
		return fmt.Sprintf("expected reloaded metadata to survive round trip, got %+v", filtered.Results)
	}
	return ""
}

// memStore is an in-process blockstore.Store used only by the save/load
// round-trip scenario; it is not a production block-store implementation.
var _ blockstore.Store = (*memStore)(nil)

type memStore struct{ blocks map[string][]byte }

func newMemStore() *memStore { return &memStore{blocks: map[string][]byte{}} }

func (m *memStore) Read(ctx context.Context, name string) ([]byte, error) {
	b, ok := m.blocks[name]
	if !ok {
		return nil, fmt.Errorf("no such block: %s", name)
	}
	return b, nil
}

func (m *memStore) Write(ctx context.Context, name string, data []byte) error {
	m.blocks[name] = append([]byte(nil), data...)
	return nil
}
