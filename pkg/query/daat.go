package query

import (
	"container/heap"
	"context"

	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/postings"
)

// QueryTerm is one term's contribution to a query: the term's posting
// view, its per-query weight, and a Score function turning a
// (document, payload) pair at the cursor into a partial score. Score
// covers both the on-the-fly case (payload is a raw term frequency,
// closed over a score.Scorer and document-length lookup) and the
// precomputed-scorer case (payload is an already-quantized score,
// closed over a score.Quantizer.Dequantize).
//
// MaxScore is the upper bound on Score over the entire posting list,
// used by WAND and MaxScore for pruning. It is the term's weight
// already folded in, or left to the caller — engines multiply it by
// Weight again, so callers must pick one convention and hold to it;
// this package expects MaxScore to NOT include Weight.
type QueryTerm struct {
	Postings *postings.View
	Weight   float64
	MaxScore ids.Score
	Score    func(doc ids.Document, payload uint64) ids.Score
}

func (qt QueryTerm) weighted(doc ids.Document, payload uint64) ids.Score {
	return ids.Score(qt.Weight) * qt.Score(doc, payload)
}

type cursorState struct {
	idx int
	cur *postings.Cursor
	doc ids.Document
}

type cursorHeap []*cursorState

func (h cursorHeap) Len() int            { return len(h) }
func (h cursorHeap) Less(i, j int) bool  { return h[i].doc < h[j].doc }
func (h cursorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*cursorState)) }
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// DAAT runs document-at-a-time retrieval: a min-heap of cursors keyed
// by current document id, popping every cursor tied at the frontier
// document, summing their weighted scores, and pushing the sum into
// the top-k accumulator before advancing.
func DAAT(ctx context.Context, terms []QueryTerm, k int) (*Results, error) {
	topk := NewTopK(k)
	var h cursorHeap
	for i, qt := range terms {
		c := qt.Postings.Cursor()
		if c.End() {
			continue
		}
		d, err := c.Document()
		if err != nil {
			return nil, err
		}
		heap.Push(&h, &cursorState{idx: i, cur: c, doc: d})
	}

	var didCancel bool
	for h.Len() > 0 {
		if cancelled(ctx) {
			didCancel = true
			break
		}
		frontier := h[0].doc
		var sum ids.Score
		var advanced []*cursorState
		for h.Len() > 0 && h[0].doc == frontier {
			cs := heap.Pop(&h).(*cursorState)
			payload, err := cs.cur.Payload(0)
			if err != nil {
				return nil, err
			}
			sum += terms[cs.idx].weighted(frontier, payload)
			if err := cs.cur.Next(); err != nil {
				return nil, err
			}
			if !cs.cur.End() {
				nd, err := cs.cur.Document()
				if err != nil {
					return nil, err
				}
				cs.doc = nd
				advanced = append(advanced, cs)
			}
		}
		for _, cs := range advanced {
			heap.Push(&h, cs)
		}
		topk.Push(frontier, sum)
	}

	return &Results{Hits: topk.Results(), Cancelled: didCancel}, nil
}
