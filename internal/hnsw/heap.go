package hnsw

import "container/heap"

// candHeap is a binary heap of Candidates ordered by Distance; the min
// field, set at construction time, selects the order so the same type
// serves both the frontier min-heap and the bounded result max-heap of search_layer
// (spec §4.2).
type candHeap struct {
	items []Candidate
	min   bool // true: pop smallest distance first; false: pop largest first
}

func newCandHeap(min bool) *candHeap {
	h := &candHeap{min: min}
	heap.Init(h)
	return h
}

func (h *candHeap) Len() int { return len(h.items) }
func (h *candHeap) Less(i, j int) bool {
	if h.min {
		return h.items[i].Distance < h.items[j].Distance
	}
	return h.items[i].Distance > h.items[j].Distance
}
func (h *candHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *candHeap) Push(x any)    { h.items = append(h.items, x.(Candidate)) }
func (h *candHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func (h *candHeap) push(c Candidate) { heap.Push(h, c) }
func (h *candHeap) pop() Candidate   { return heap.Pop(h).(Candidate) }
func (h *candHeap) top() Candidate   { return h.items[0] }
func (h *candHeap) empty() bool      { return len(h.items) == 0 }

// sortedAscending returns the heap's contents sorted by ascending
// distance with a deterministic ascending-id tie-break (used to produce
// search_layer's ascending result list).
func (h *candHeap) sortedAscending() []Candidate {
	out := make([]Candidate, len(h.items))
	copy(out, h.items)
	sortCandidatesAscending(out)
	return out
}
