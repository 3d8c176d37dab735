// Package query implements the top-k accumulator and the five query
// processing engines (DAAT, TAAT, WAND, MaxScore, SAAT) plus Fagin's
// threshold algorithm, all built on the cursor primitives in
// pkg/postings.
package query

import (
	"container/heap"
	"math"
	"sort"

	"github.com/wizenheimer/irkit/pkg/ids"
)

// Result is one ranked hit.
type Result struct {
	Rank     int
	Document ids.Document
	Score    ids.Score
}

// Results is the outcome of running a query to completion or to
// cancellation.
type Results struct {
	Hits      []Result
	Cancelled bool
}

type scoredDoc struct {
	doc   ids.Document
	score ids.Score
}

// lessEvictable orders two candidates by how eligible they are for
// eviction from the top-k set: lower score is more evictable, and
// among equal scores the larger document id is more evictable, so
// that ties resolve in favor of the smaller document id surviving.
func lessEvictable(a, b scoredDoc) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.doc > b.doc
}

// minHeap is a bounded min-heap of scoredDoc, ordered so the root is
// always the most evictable candidate.
type minHeap []scoredDoc

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return lessEvictable(h[i], h[j]) }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(scoredDoc)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopK is a bounded min-heap accumulator of the k highest-scoring
// candidates seen so far. It is the shared termination and pruning
// primitive for every engine in this package.
type TopK struct {
	k int
	h minHeap
}

// NewTopK creates an accumulator bounded to k results.
func NewTopK(k int) *TopK {
	return &TopK{k: k}
}

// Push offers a candidate. It is kept if the heap has fewer than k
// entries, or if its score exceeds the current threshold, or equals it
// with a smaller document id than the root's.
func (t *TopK) Push(doc ids.Document, score ids.Score) {
	if t.k <= 0 {
		return
	}
	candidate := scoredDoc{doc, score}
	if len(t.h) < t.k {
		heap.Push(&t.h, candidate)
		return
	}
	if lessEvictable(t.h[0], candidate) {
		t.h[0] = candidate
		heap.Fix(&t.h, 0)
	}
}

// Full reports whether the accumulator holds k candidates.
func (t *TopK) Full() bool { return len(t.h) >= t.k }

// Threshold returns the current cutoff: the minimum score that would
// still be admitted. Before the accumulator fills, pruning algorithms
// must treat the threshold as admitting everything.
func (t *TopK) Threshold() ids.Score {
	if !t.Full() {
		return ids.Score(math.Inf(-1))
	}
	return t.h[0].score
}

// Results drains the accumulator, sorted by descending score with ties
// broken by ascending document id.
func (t *TopK) Results() []Result {
	items := make([]scoredDoc, len(t.h))
	copy(items, t.h)
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].doc < items[j].doc
	})
	out := make([]Result, len(items))
	for i, it := range items {
		out[i] = Result{Rank: i + 1, Document: it.doc, Score: it.score}
	}
	return out
}
