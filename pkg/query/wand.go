package query

import (
	"container/heap"
	"context"
	"sort"

	"github.com/wizenheimer/irkit/pkg/ids"
)

// WAND runs the Weak AND algorithm (Broder et al.): cursors are kept
// sorted by current document id, a pivot term is chosen as the first
// prefix whose cumulative max-score bound reaches the top-k
// threshold, and every cursor strictly behind the pivot document is
// advanced to it without being scored. Once every cursor named by the
// prefix already sits on the pivot document, that document is scored
// in full and pushed to the accumulator. This must select exactly the
// same top-k set as DAAT; it only skips scoring work.
func WAND(ctx context.Context, terms []QueryTerm, k int) (*Results, error) {
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

		items := make([]*cursorState, len(h))
		copy(items, h)
		sort.Slice(items, func(i, j int) bool { return items[i].doc < items[j].doc })

		threshold := topk.Threshold()
		var cum ids.Score
		pivot := -1
		for i, cs := range items {
			cum += ids.Score(terms[cs.idx].Weight) * terms[cs.idx].MaxScore
			if cum >= threshold {
				pivot = i
				break
			}
		}
		if pivot == -1 {
			break
		}
		pivotDoc := items[pivot].doc

		if items[0].doc == pivotDoc {
			var sum ids.Score
			j := 0
			for j < len(items) && items[j].doc == pivotDoc {
				cs := items[j]
				payload, err := cs.cur.Payload(0)
				if err != nil {
					return nil, err
				}
				sum += terms[cs.idx].weighted(pivotDoc, payload)
				j++
			}
			topk.Push(pivotDoc, sum)

			h = h[:0]
			for _, cs := range items {
				if cs.doc == pivotDoc {
					if err := cs.cur.Next(); err != nil {
						return nil, err
					}
					if cs.cur.End() {
						continue
					}
					nd, err := cs.cur.Document()
					if err != nil {
						return nil, err
					}
					cs.doc = nd
				}
				h = append(h, cs)
			}
			heap.Init(&h)
			continue
		}

		h = h[:0]
		for i, cs := range items {
			if i <= pivot && cs.doc < pivotDoc {
				if err := cs.cur.AdvanceTo(pivotDoc); err != nil {
					return nil, err
				}
				if cs.cur.End() {
					continue
				}
				nd, err := cs.cur.Document()
				if err != nil {
					return nil, err
				}
				cs.doc = nd
			}
			h = append(h, cs)
		}
		heap.Init(&h)
	}

	return &Results{Hits: topk.Results(), Cancelled: didCancel}, nil
}
