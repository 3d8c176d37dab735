package query

import (
	"context"
	"sort"

	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/postings"
)

// MaxScore runs the MaxScore algorithm (Turtle & Flood): terms are
// split into an essential set and a non-essential set, where the
// non-essential set's cumulative max-score bound alone cannot push a
// candidate past the current top-k threshold. Only essential cursors
// drive document discovery; non-essential cursors are consulted with
// AdvanceTo only for documents that already look promising enough to
// be worth the random access.
func MaxScore(ctx context.Context, terms []QueryTerm, k int) (*Results, error) {
	order := make([]int, len(terms))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return terms[order[i]].MaxScore < terms[order[j]].MaxScore })

	cursors := make([]*postings.Cursor, len(terms))
	for i, qt := range terms {
		cursors[i] = qt.Postings.Cursor()
	}

	essential := make([]bool, len(terms))
	for _, i := range order {
		essential[i] = true
	}

	topk := NewTopK(k)

	repartition := func() {
		for {
			var nonEssentialSum ids.Score
			smallest := -1
			for _, i := range order {
				if !essential[i] {
					nonEssentialSum += ids.Score(terms[i].Weight) * terms[i].MaxScore
				} else if smallest == -1 {
					smallest = i
				}
			}
			if smallest == -1 {
				return
			}
			bound := ids.Score(terms[smallest].Weight) * terms[smallest].MaxScore
			if topk.Full() && bound+nonEssentialSum <= topk.Threshold() {
				essential[smallest] = false
				continue
			}
			return
		}
	}

	var didCancel bool
	for {
		if cancelled(ctx) {
			didCancel = true
			break
		}
		repartition()

		frontier := ids.NoDocument
		for i := range terms {
			if !essential[i] || cursors[i].End() {
				continue
			}
			d, err := cursors[i].Document()
			if err != nil {
				return nil, err
			}
			if frontier == ids.NoDocument || d < frontier {
				frontier = d
			}
		}
		if frontier == ids.NoDocument {
			break
		}

		var essentialSum ids.Score
		for i := range terms {
			if !essential[i] || cursors[i].End() {
				continue
			}
			d, err := cursors[i].Document()
			if err != nil {
				return nil, err
			}
			if d != frontier {
				continue
			}
			payload, err := cursors[i].Payload(0)
			if err != nil {
				return nil, err
			}
			essentialSum += terms[i].weighted(frontier, payload)
			if err := cursors[i].Next(); err != nil {
				return nil, err
			}
		}

		var nonEssentialMax ids.Score
		for i := range terms {
			if !essential[i] {
				nonEssentialMax += ids.Score(terms[i].Weight) * terms[i].MaxScore
			}
		}

		if essentialSum+nonEssentialMax < topk.Threshold() {
			continue
		}

		sum := essentialSum
		for i := range terms {
			if essential[i] || cursors[i].End() {
				continue
			}
			if err := cursors[i].AdvanceTo(frontier); err != nil {
				return nil, err
			}
			if cursors[i].End() {
				continue
			}
			d, err := cursors[i].Document()
			if err != nil {
				return nil, err
			}
			if d != frontier {
				continue
			}
			payload, err := cursors[i].Payload(0)
			if err != nil {
				return nil, err
			}
			sum += terms[i].weighted(frontier, payload)
		}
		topk.Push(frontier, sum)
	}

	return &Results{Hits: topk.Results(), Cancelled: didCancel}, nil
}
