package cluster

import (
	"container/heap"
	"sort"

	"github.com/wizenheimer/irkit/pkg/ids"
)

// scoredTitle is a merge candidate keyed by (shard-local title, global
// score), per §4.13's merge rule — document ids from different shards
// are not comparable, so titles stand in for cross-shard identity.
type scoredTitle struct {
	title string
	score ids.Score
}

func lessEvictableTitle(a, b scoredTitle) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.title > b.title
}

type titleMinHeap []scoredTitle

func (h titleMinHeap) Len() int            { return len(h) }
func (h titleMinHeap) Less(i, j int) bool  { return lessEvictableTitle(h[i], h[j]) }
func (h titleMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *titleMinHeap) Push(x interface{}) { *h = append(*h, x.(scoredTitle)) }
func (h *titleMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// mergeHeap accumulates the global top-k across every shard's
// per-shard top-k, mirroring query.TopK's bounded min-heap but keyed
// by title instead of document id.
type mergeHeap struct {
	k int
	h titleMinHeap
}

func newMergeHeap(k int) *mergeHeap {
	return &mergeHeap{k: k}
}

func (m *mergeHeap) push(title string, score ids.Score) {
	if m.k <= 0 {
		return
	}
	candidate := scoredTitle{title, score}
	if len(m.h) < m.k {
		heap.Push(&m.h, candidate)
		return
	}
	if lessEvictableTitle(m.h[0], candidate) {
		m.h[0] = candidate
		heap.Fix(&m.h, 0)
	}
}

func (m *mergeHeap) results() []Hit {
	items := make([]scoredTitle, len(m.h))
	copy(items, m.h)
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].title < items[j].title
	})
	out := make([]Hit, len(items))
	for i, it := range items {
		out[i] = Hit{Rank: i + 1, Title: it.title, Score: it.score}
	}
	return out
}
