package query

import (
	"context"

	"github.com/wizenheimer/irkit/pkg/ids"
)

// ThresholdAlgorithm runs Fagin's Threshold Algorithm (TA): each
// term's postings are pre-sorted by descending score, and the lists
// are read in lock step, one position per term per round. The first
// time a document is seen under any list it is scored in full via
// random access (AdvanceTo) into every term's ordinary, document-id-
// ordered posting list. The algorithm stops once the best score any
// unseen document could still achieve — the sum of each list's next
// unread score — can no longer beat the top-k accumulator's
// threshold.
func ThresholdAlgorithm(ctx context.Context, terms []QueryTerm, k int) (*Results, error) {
	sortedLists := make([][]scoredEntry, len(terms))
	for i, qt := range terms {
		entries, err := decodeSortedByScore(qt)
		if err != nil {
			return nil, err
		}
		sortedLists[i] = entries
	}

	topk := NewTopK(k)
	seen := make(map[ids.Document]bool)
	pos := make(map[int]int)

	var didCancel bool
	round := 0
	for {
		round++
		if round%accumulatorCheckInterval == 0 && cancelled(ctx) {
			didCancel = true
			break
		}

		var bestUnseen ids.Score
		active := false
		for i := range terms {
			if pos[i] < len(sortedLists[i]) {
				active = true
				bestUnseen += sortedLists[i][pos[i]].score
			}
		}
		if !active {
			break
		}
		if topk.Full() && bestUnseen <= topk.Threshold() {
			break
		}

		for i := range terms {
			if pos[i] >= len(sortedLists[i]) {
				continue
			}
			e := sortedLists[i][pos[i]]
			pos[i]++
			if seen[e.doc] {
				continue
			}
			seen[e.doc] = true

			var sum ids.Score
			for j, other := range terms {
				c := other.Postings.Cursor()
				if err := c.AdvanceTo(e.doc); err != nil {
					return nil, err
				}
				if c.End() {
					continue
				}
				d, err := c.Document()
				if err != nil {
					return nil, err
				}
				if d != e.doc {
					continue
				}
				payload, err := c.Payload(0)
				if err != nil {
					return nil, err
				}
				sum += terms[j].weighted(e.doc, payload)
			}
			topk.Push(e.doc, sum)
		}
	}

	return &Results{Hits: topk.Results(), Cancelled: didCancel}, nil
}
