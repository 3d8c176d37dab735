package query

import (
	"container/heap"
	"context"
	"sort"

	"github.com/wizenheimer/irkit/pkg/ids"
)

type scoredEntry struct {
	doc   ids.Document
	score ids.Score
}

// decodeSortedByScore materializes a term's entire posting list and
// sorts it by descending weighted score. SAAT and the threshold
// algorithm both need random access into a score-ordered view of a
// term that the on-disk posting lists, sorted by document id, do not
// provide directly.
func decodeSortedByScore(qt QueryTerm) ([]scoredEntry, error) {
	c := qt.Postings.Cursor()
	var entries []scoredEntry
	for !c.End() {
		d, err := c.Document()
		if err != nil {
			return nil, err
		}
		payload, err := c.Payload(0)
		if err != nil {
			return nil, err
		}
		entries = append(entries, scoredEntry{doc: d, score: qt.weighted(d, payload)})
		if err := c.Next(); err != nil {
			return nil, err
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].score > entries[j].score })
	return entries, nil
}

type saatPtr struct {
	term, pos int
}

type saatHeap struct {
	lists [][]scoredEntry
	ptrs  []saatPtr
}

func (h *saatHeap) Len() int { return len(h.ptrs) }
func (h *saatHeap) Less(i, j int) bool {
	a := h.lists[h.ptrs[i].term][h.ptrs[i].pos]
	b := h.lists[h.ptrs[j].term][h.ptrs[j].pos]
	return a.score > b.score
}
func (h *saatHeap) Swap(i, j int)       { h.ptrs[i], h.ptrs[j] = h.ptrs[j], h.ptrs[i] }
func (h *saatHeap) Push(x interface{})  { h.ptrs = append(h.ptrs, x.(saatPtr)) }
func (h *saatHeap) Pop() interface{} {
	n := len(h.ptrs)
	x := h.ptrs[n-1]
	h.ptrs = h.ptrs[:n-1]
	return x
}

// SAAT runs score-at-a-time retrieval: each term's postings are
// pre-sorted by descending score, and a max-heap merges across terms
// in strictly decreasing score order, accumulating partial sums per
// document until budget postings have been consumed or every list is
// exhausted. Cancellation is checked every accumulatorCheckInterval
// postings; when it fires, the partial sums gathered so far are ranked
// and the result is marked Cancelled.
func SAAT(ctx context.Context, terms []QueryTerm, k, budget int) (*Results, error) {
	lists := make([][]scoredEntry, len(terms))
	for i, qt := range terms {
		entries, err := decodeSortedByScore(qt)
		if err != nil {
			return nil, err
		}
		lists[i] = entries
	}

	h := &saatHeap{lists: lists}
	for i, l := range lists {
		if len(l) > 0 {
			h.ptrs = append(h.ptrs, saatPtr{term: i, pos: 0})
		}
	}
	heap.Init(h)

	acc := make(map[ids.Document]ids.Score)
	var didCancel bool
	processed := 0
	for h.Len() > 0 && processed < budget {
		if processed%accumulatorCheckInterval == 0 && cancelled(ctx) {
			didCancel = true
			break
		}
		top := heap.Pop(h).(saatPtr)
		e := lists[top.term][top.pos]
		acc[e.doc] += e.score
		processed++
		if top.pos+1 < len(lists[top.term]) {
			heap.Push(h, saatPtr{term: top.term, pos: top.pos + 1})
		}
	}

	topk := NewTopK(k)
	for d, s := range acc {
		topk.Push(d, s)
	}
	return &Results{Hits: topk.Results(), Cancelled: didCancel}, nil
}
