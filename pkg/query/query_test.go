package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/postings"
	"github.com/wizenheimer/irkit/pkg/query"
	"github.com/wizenheimer/irkit/pkg/vbyte"
)

// withByteSizePrefix prepends the self-referential var-byte byte_size
// header field every block-compressed list starts with.
func withByteSizePrefix(rest []byte) []byte {
	total := len(rest)
	for {
		prefixLen := len(vbyte.AppendUint64(nil, uint64(total)))
		newTotal := len(rest) + prefixLen
		if newTotal == total {
			return append(vbyte.AppendUint64(nil, uint64(total)), rest...)
		}
		total = newTotal
	}
}

func buildDocListBuf(docs []uint64, blockSize int) []byte {
	numBlocks := 0
	if len(docs) > 0 {
		numBlocks = (len(docs) + blockSize - 1) / blockSize
	}
	var blocks [][]byte
	blockLast := make([]uint64, numBlocks)
	for bi := 0; bi < numBlocks; bi++ {
		start := bi * blockSize
		end := start + blockSize
		if end > len(docs) {
			end = len(docs)
		}
		var v0 uint64
		if bi > 0 {
			v0 = docs[start-1]
		}
		blocks = append(blocks, vbyte.EncodeDelta(v0, docs[start:end]))
		blockLast[bi] = docs[end-1]
	}
	leaderOffsets := make([]uint64, numBlocks)
	var offset uint64
	for bi, blk := range blocks {
		leaderOffsets[bi] = offset
		offset += uint64(len(blk))
	}
	var rest []byte
	rest = vbyte.AppendUint64(rest, uint64(blockSize))
	rest = vbyte.AppendUint64(rest, uint64(numBlocks))
	rest = append(rest, vbyte.EncodeDelta(0, leaderOffsets)...)
	rest = append(rest, vbyte.EncodeDelta(0, blockLast)...)
	for _, blk := range blocks {
		rest = append(rest, blk...)
	}
	return withByteSizePrefix(rest)
}

func buildPayloadListBuf(vals []uint64, blockSize int) []byte {
	numBlocks := 0
	if len(vals) > 0 {
		numBlocks = (len(vals) + blockSize - 1) / blockSize
	}
	var blocks [][]byte
	for bi := 0; bi < numBlocks; bi++ {
		start := bi * blockSize
		end := start + blockSize
		if end > len(vals) {
			end = len(vals)
		}
		blocks = append(blocks, vbyte.EncodePlain(vals[start:end]))
	}
	leaderOffsets := make([]uint64, numBlocks)
	var offset uint64
	for bi, blk := range blocks {
		leaderOffsets[bi] = offset
		offset += uint64(len(blk))
	}
	var rest []byte
	rest = vbyte.AppendUint64(rest, uint64(blockSize))
	rest = vbyte.AppendUint64(rest, uint64(numBlocks))
	rest = append(rest, vbyte.EncodeDelta(0, leaderOffsets)...)
	for _, blk := range blocks {
		rest = append(rest, blk...)
	}
	return withByteSizePrefix(rest)
}

// termFixture builds a QueryTerm directly from (document, tf) pairs,
// scoring a hit as its raw term frequency — enough to make expected
// sums easy to hand-compute in scenario tests.
func termFixture(t *testing.T, pairs [][2]uint64, blockSize int) query.QueryTerm {
	t.Helper()
	docs := make([]uint64, len(pairs))
	tfs := make([]uint64, len(pairs))
	var maxTF uint64
	for i, p := range pairs {
		docs[i] = p[0]
		tfs[i] = p[1]
		if p[1] > maxTF {
			maxTF = p[1]
		}
	}
	docBuf := buildDocListBuf(docs, blockSize)
	payBuf := buildPayloadListBuf(tfs, blockSize)

	dl, err := postings.OpenDocList(docBuf, len(docs))
	require.NoError(t, err)
	pl, err := postings.OpenPayloadList(payBuf, len(tfs))
	require.NoError(t, err)
	view, err := postings.NewView(dl, pl)
	require.NoError(t, err)

	return query.QueryTerm{
		Postings: view,
		Weight:   1,
		MaxScore: ids.Score(maxTF),
		Score:    func(_ ids.Document, payload uint64) ids.Score { return ids.Score(payload) },
	}
}

// scenarioS4Terms builds the two-term fixture from the specification's
// DAAT/TAAT equivalence scenario: A = [(0,1),(1,2)], B = [(1,3),(2,1)].
func scenarioS4Terms(t *testing.T) []query.QueryTerm {
	a := termFixture(t, [][2]uint64{{0, 1}, {1, 2}}, 4)
	b := termFixture(t, [][2]uint64{{1, 3}, {2, 1}}, 4)
	return []query.QueryTerm{a, b}
}

func TestDAATMatchesScenarioS4(t *testing.T) {
	results, err := query.DAAT(context.Background(), scenarioS4Terms(t), 2)
	require.NoError(t, err)
	require.False(t, results.Cancelled)
	require.Len(t, results.Hits, 2)
	require.Equal(t, ids.Document(1), results.Hits[0].Document)
	require.Equal(t, ids.Score(5), results.Hits[0].Score)
	require.Equal(t, ids.Document(0), results.Hits[1].Document)
	require.Equal(t, ids.Score(1), results.Hits[1].Score)
}

func TestTAATMatchesDAATOnScenarioS4(t *testing.T) {
	daat, err := query.DAAT(context.Background(), scenarioS4Terms(t), 2)
	require.NoError(t, err)
	taat, err := query.TAAT(context.Background(), scenarioS4Terms(t), 2, 3)
	require.NoError(t, err)
	require.Equal(t, daat.Hits, taat.Hits)
}

func TestBlockedTAATMatchesTAATOnScenarioS4(t *testing.T) {
	taat, err := query.TAAT(context.Background(), scenarioS4Terms(t), 2, 3)
	require.NoError(t, err)
	blocked, err := query.BlockedTAAT(context.Background(), scenarioS4Terms(t), 2, 3, 2)
	require.NoError(t, err)
	require.Equal(t, taat.Hits, blocked.Hits)
}

// TestBlockedTAATSkipsLowScoringBlocks uses a small block size against
// the wide scenario so several blocks hold only documents that can
// never clear a k=1 top-k threshold, forcing the final aggregation
// scan to actually exercise its block-skip branch while still landing
// on the exact TAAT result.
func TestBlockedTAATSkipsLowScoringBlocks(t *testing.T) {
	taat, err := query.TAAT(context.Background(), wideScenarioTerms(t), 1, 8)
	require.NoError(t, err)
	blocked, err := query.BlockedTAAT(context.Background(), wideScenarioTerms(t), 1, 8, 2)
	require.NoError(t, err)
	require.Equal(t, taat.Hits, blocked.Hits)
	require.Len(t, blocked.Hits, 1)
	require.Equal(t, ids.Document(7), blocked.Hits[0].Document)
}

// wideScenarioTerms builds a larger multi-term fixture so WAND and
// MaxScore have real pruning decisions to make, not just the
// three-document scenario.
func wideScenarioTerms(t *testing.T) []query.QueryTerm {
	a := termFixture(t, [][2]uint64{{0, 5}, {2, 1}, {4, 3}, {7, 2}}, 3)
	b := termFixture(t, [][2]uint64{{1, 4}, {2, 4}, {5, 1}, {7, 6}}, 3)
	c := termFixture(t, [][2]uint64{{0, 1}, {3, 2}, {4, 1}, {7, 1}}, 3)
	return []query.QueryTerm{a, b, c}
}

func TestWANDMatchesDAATOnWideScenario(t *testing.T) {
	daat, err := query.DAAT(context.Background(), wideScenarioTerms(t), 3)
	require.NoError(t, err)
	wand, err := query.WAND(context.Background(), wideScenarioTerms(t), 3)
	require.NoError(t, err)
	require.Equal(t, daat.Hits, wand.Hits)
}

func TestMaxScoreMatchesDAATOnWideScenario(t *testing.T) {
	daat, err := query.DAAT(context.Background(), wideScenarioTerms(t), 3)
	require.NoError(t, err)
	ms, err := query.MaxScore(context.Background(), wideScenarioTerms(t), 3)
	require.NoError(t, err)
	require.Equal(t, daat.Hits, ms.Hits)
}

func TestSAATMatchesDAATWhenBudgetUnconstrained(t *testing.T) {
	daat, err := query.DAAT(context.Background(), wideScenarioTerms(t), 3)
	require.NoError(t, err)
	saat, err := query.SAAT(context.Background(), wideScenarioTerms(t), 3, 1<<20)
	require.NoError(t, err)
	require.Equal(t, daat.Hits, saat.Hits)
}

func TestThresholdAlgorithmMatchesDAAT(t *testing.T) {
	daat, err := query.DAAT(context.Background(), wideScenarioTerms(t), 3)
	require.NoError(t, err)
	ta, err := query.ThresholdAlgorithm(context.Background(), wideScenarioTerms(t), 3)
	require.NoError(t, err)
	require.Equal(t, daat.Hits, ta.Hits)
}

func TestTopKBreaksTiesByAscendingDocumentID(t *testing.T) {
	topk := query.NewTopK(2)
	topk.Push(5, 1)
	topk.Push(2, 1)
	topk.Push(9, 1)
	hits := topk.Results()
	require.Len(t, hits, 2)
	require.Equal(t, ids.Document(2), hits[0].Document)
	require.Equal(t, ids.Document(5), hits[1].Document)
}

func TestDAATRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := query.DAAT(ctx, scenarioS4Terms(t), 2)
	require.NoError(t, err)
	require.True(t, results.Cancelled)
}
