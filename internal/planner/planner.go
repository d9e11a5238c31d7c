// Package planner implements spec §4.4's filter strategy planner: it
// combines HNSW traversal with predicate evaluation to return the top-k
// matching vectors under bounded work, choosing between pre-filter,
// post-filter, hybrid, and an auto mode that estimates selectivity first.
package planner

import (
	"math/rand"
	"sort"
	"time"

	"github.com/edgevec/edgevec/internal/filter"
	"github.com/edgevec/edgevec/internal/hnsw"
	"github.com/edgevec/edgevec/internal/ids"
)

// Strategy selects how the predicate is combined with HNSW traversal.
type Strategy string

const (
	StrategyAuto   Strategy = "auto"
	StrategyPre    Strategy = "pre"
	StrategyPost   Strategy = "post"
	StrategyHybrid Strategy = "hybrid"
)

// defaultOversample and fMax are spec §4.4's F and F_max constants.
const (
	defaultOversample = 3.0
	fMax              = 64.0
	autoSampleSize    = 128
	postSelective     = 0.25
	hybridSelective   = 0.02
)

// Options is the search-option object of spec §6, restricted to the
// fields the planner itself consumes.
type Options struct {
	Filter           *filter.Node // nil means "no filter"
	Strategy         Strategy     // zero value defaults to Auto
	OversampleFactor float32      // zero value defaults to 3.0
	EfSearch         int          // zero value defaults to the graph's configured ef_search
}

// Result is spec §4.4's contract: {results[], complete, observed_selectivity,
// strategy_used, vectors_evaluated, filter_time_ms, total_time_ms}.
type Result struct {
	Results             []hnsw.Candidate
	Complete            bool
	ObservedSelectivity float64
	StrategyUsed        Strategy
	VectorsEvaluated    int
	FilterTimeMs        float64
	TotalTimeMs         float64
}

// Source is what the planner needs from the engine's live-vector
// bookkeeping: liveness (tombstone-aware), a stable ascending id scan for
// pre-filter, and a per-vector filter lookup fed by the metadata store.
type Source interface {
	IsLive(id ids.VectorId) bool
	LiveCount() int
	LiveIDsAscending() []ids.VectorId
	Lookup(id ids.VectorId) filter.Lookup
}

// Engine ties an HNSW graph of storage-level query type Q to a Source for
// filtered search (spec §4.4). defaultEfSearch mirrors the graph's own
// ef_search so plain (unfiltered) queries need no extra configuration.
type Engine[Q any] struct {
	Graph          *hnsw.Graph[Q]
	Source         Source
	DefaultEfSearch int
}

// Search implements spec §4.4's filtered-search contract.
func (e *Engine[Q]) Search(ctx *hnsw.SearchContext, query Q, k int, opts Options) Result {
	start := time.Now()
	if k <= 0 {
		return Result{Complete: true}
	}
	liveCount := e.Source.LiveCount()
	if k > liveCount {
		k = liveCount
	}
	ef := opts.EfSearch
	if ef <= 0 {
		ef = e.DefaultEfSearch
	}

	if opts.Filter == nil {
		cands := e.Graph.Search(ctx, query, k, ef, liveCount, e.Source.IsLive)
		return Result{
			Results:      cands,
			Complete:     true,
			StrategyUsed: "",
			TotalTimeMs:  elapsedMs(start),
		}
	}

	if filter.IsTautology(opts.Filter) {
		cands := e.Graph.Search(ctx, query, k, ef, liveCount, e.Source.IsLive)
		return Result{Results: cands, Complete: true, ObservedSelectivity: 1, TotalTimeMs: elapsedMs(start)}
	}
	if filter.IsContradiction(opts.Filter) {
		return Result{Complete: true, ObservedSelectivity: 0, TotalTimeMs: elapsedMs(start)}
	}

	oversample := opts.OversampleFactor
	if oversample < 1 {
		oversample = defaultOversample
	}

	strategy := opts.Strategy
	var estimatedSelectivity float64
	var estimateVectorsEvaluated int
	filterStart := time.Now()
	if strategy == "" || strategy == StrategyAuto {
		estimatedSelectivity, estimateVectorsEvaluated = e.estimateSelectivity(opts.Filter)
		strategy = pickStrategy(estimatedSelectivity)
	}
	filterElapsed := elapsedMs(filterStart)

	var res Result
	switch strategy {
	case StrategyPre:
		res = e.searchPre(query, k, opts.Filter)
	case StrategyPost:
		res = e.searchPost(ctx, query, k, ef, liveCount, opts.Filter, oversample)
	case StrategyHybrid:
		res = e.searchHybrid(ctx, query, k, ef, liveCount, opts.Filter, oversample)
	default:
		res = e.searchPre(query, k, opts.Filter)
	}

	res.StrategyUsed = strategy
	res.ObservedSelectivity = estimatedSelectivity
	res.VectorsEvaluated += estimateVectorsEvaluated
	res.FilterTimeMs += filterElapsed
	res.TotalTimeMs = elapsedMs(start)
	return res
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}

func pickStrategy(selectivity float64) Strategy {
	switch {
	case selectivity >= postSelective:
		return StrategyPost
	case selectivity >= hybridSelective:
		return StrategyHybrid
	default:
		return StrategyPre
	}
}

// estimateSelectivity implements spec §4.4's auto-mode phase 2: sample up
// to 128 random live vectors, evaluate the predicate, and report the
// observed fraction.
func (e *Engine[Q]) estimateSelectivity(ast *filter.Node) (float64, int) {
	live := e.Source.LiveIDsAscending()
	if len(live) == 0 {
		return 0, 0
	}
	n := len(live)
	sampleSize := autoSampleSize
	if sampleSize > n {
		sampleSize = n
	}
	rng := rand.New(rand.NewSource(1))
	matches := 0
	for _, idx := range rng.Perm(n)[:sampleSize] {
		id := live[idx]
		if filter.Eval(ast, e.Source.Lookup(id)) == filter.True {
			matches++
		}
	}
	return float64(matches) / float64(sampleSize), sampleSize
}

// searchPre implements spec §4.4's pre-filter strategy: evaluate the
// predicate on every live vector, compute exact distances over
// survivors, return top-k. O(N), correct for every predicate.
func (e *Engine[Q]) searchPre(query Q, k int, ast *filter.Node) Result {
	live := e.Source.LiveIDsAscending()
	survivors := make([]hnsw.Candidate, 0, k)
	evaluated := 0
	for _, id := range live {
		evaluated++
		if filter.Eval(ast, e.Source.Lookup(id)) != filter.True {
			continue
		}
		d := e.Graph.DistanceToQuery(id, query)
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
	return Result{Results: survivors, Complete: true, VectorsEvaluated: evaluated}
}

// searchPost implements spec §4.4's post-filter strategy: run HNSW with
// ef=k·F, evaluate the predicate on returned candidates, keep top-k.
func (e *Engine[Q]) searchPost(ctx *hnsw.SearchContext, query Q, k, ef, liveCount int, ast *filter.Node, oversample float32) Result {
	searchEf := max(ef, int(float32(k)*oversample))
	cands := e.Graph.Search(ctx, query, searchEf, searchEf, liveCount, e.Source.IsLive)
	survivors := make([]hnsw.Candidate, 0, k)
	for _, c := range cands {
		if filter.Eval(ast, e.Source.Lookup(c.ID)) == filter.True {
			survivors = append(survivors, c)
			if len(survivors) == k {
				break
			}
		}
	}
	return Result{Results: survivors, Complete: len(survivors) >= k, VectorsEvaluated: len(cands)}
}

// searchHybrid implements spec §4.4's hybrid strategy: run HNSW with
// ef=k·F; if fewer than k survivors, double F up to F_max and re-run;
// fall back to pre-filter if still short.
func (e *Engine[Q]) searchHybrid(ctx *hnsw.SearchContext, query Q, k, ef, liveCount int, ast *filter.Node, oversample float32) Result {
	evaluated := 0
	for f := oversample; f <= fMax; f *= 2 {
		searchEf := max(ef, int(float32(k)*f))
		if searchEf > liveCount {
			searchEf = liveCount
		}
		cands := e.Graph.Search(ctx, query, searchEf, searchEf, liveCount, e.Source.IsLive)
		evaluated += len(cands)
		survivors := make([]hnsw.Candidate, 0, k)
		for _, c := range cands {
			if filter.Eval(ast, e.Source.Lookup(c.ID)) == filter.True {
				survivors = append(survivors, c)
				if len(survivors) == k {
					break
				}
			}
		}
		if len(survivors) >= k || searchEf >= liveCount {
			return Result{Results: survivors, Complete: len(survivors) >= k, VectorsEvaluated: evaluated}
		}
	}
	res := e.searchPre(query, k, ast)
	res.VectorsEvaluated += evaluated
	return res
}
