package query

import (
	"context"

	"github.com/bits-and-blooms/bitset"

	"github.com/wizenheimer/irkit/pkg/ids"
)

// TAAT runs term-at-a-time retrieval: one dense accumulator array over
// the whole collection, walked once per term. A bitset records which
// documents were touched so the final scan only visits candidates
// instead of the full collection. Cancellation is checked every
// accumulatorCheckInterval postings within a term, so a deadline still
// bounds a single very long posting list.
func TAAT(ctx context.Context, terms []QueryTerm, k int, collectionSize int) (*Results, error) {
	acc := make([]ids.Score, collectionSize)
	touched := bitset.New(uint(collectionSize))

	var didCancel bool
term:
	for _, qt := range terms {
		c := qt.Postings.Cursor()
		n := 0
		for !c.End() {
			n++
			if n%accumulatorCheckInterval == 0 && cancelled(ctx) {
				didCancel = true
				break term
			}
			d, err := c.Document()
			if err != nil {
				return nil, err
			}
			payload, err := c.Payload(0)
			if err != nil {
				return nil, err
			}
			acc[int(d)] += qt.weighted(d, payload)
			touched.Set(uint(d))
			if err := c.Next(); err != nil {
				return nil, err
			}
		}
	}

	topk := NewTopK(k)
	for e, ok := touched.NextSet(0); ok; e, ok = touched.NextSet(e + 1) {
		topk.Push(ids.Document(e), acc[e])
	}
	return &Results{Hits: topk.Results(), Cancelled: didCancel}, nil
}

const accumulatorCheckInterval = 4096

// blockAccumulator tracks the running max score contributed by each
// fixed-size block of the accumulator array, letting BlockedTAAT skip
// whole blocks once the top-k threshold rules them out of contention.
type blockAccumulator struct {
	blockSize int
	acc       []ids.Score
	touched   *bitset.BitSet
	blockMax  []ids.Score
}

func newBlockAccumulator(collectionSize, blockSize int) *blockAccumulator {
	numBlocks := (collectionSize + blockSize - 1) / blockSize
	return &blockAccumulator{
		blockSize: blockSize,
		acc:       make([]ids.Score, collectionSize),
		touched:   bitset.New(uint(collectionSize)),
		blockMax:  make([]ids.Score, numBlocks),
	}
}

func (b *blockAccumulator) add(d ids.Document, s ids.Score) {
	b.acc[int(d)] += s
	b.touched.Set(uint(d))
	blk := int(d) / b.blockSize
	if b.acc[int(d)] > b.blockMax[blk] {
		b.blockMax[blk] = b.acc[int(d)]
	}
}

// BlockedTAAT is TAAT with block-max pruning (§4.9.3): accumulation
// proceeds exactly as TAAT does, one term at a time, but it also tracks
// each fixed-size block's running max score as postings arrive. Only
// once accumulation is finished does a top-k threshold exist, so that
// is where the pruning happens: the final aggregation scan walks the
// accumulator block by block, and skips any block whose max score can
// no longer clear the current threshold without inspecting its
// individual documents. This is an optimization over TAAT's linear
// scan, not a different result: both must agree exactly, since a
// skipped block's true max is already known to be below the cutoff.
func BlockedTAAT(ctx context.Context, terms []QueryTerm, k, collectionSize, blockSize int) (*Results, error) {
	ba := newBlockAccumulator(collectionSize, blockSize)

	var didCancel bool
term:
	for _, qt := range terms {
		c := qt.Postings.Cursor()
		n := 0
		for !c.End() {
			n++
			if n%accumulatorCheckInterval == 0 && cancelled(ctx) {
				didCancel = true
				break term
			}
			d, err := c.Document()
			if err != nil {
				return nil, err
			}
			payload, err := c.Payload(0)
			if err != nil {
				return nil, err
			}
			ba.add(d, qt.weighted(d, payload))
			if err := c.Next(); err != nil {
				return nil, err
			}
		}
	}

	topk := NewTopK(k)
	numBlocks := len(ba.blockMax)
	for blk := 0; blk < numBlocks; blk++ {
		if topk.Full() && ba.blockMax[blk] <= topk.Threshold() {
			continue
		}
		start := blk * blockSize
		end := start + blockSize
		if end > collectionSize {
			end = collectionSize
		}
		for e, ok := ba.touched.NextSet(uint(start)); ok && int(e) < end; e, ok = ba.touched.NextSet(e + 1) {
			topk.Push(ids.Document(e), ba.acc[e])
		}
	}
	return &Results{Hits: topk.Results(), Cancelled: didCancel}, nil
}
