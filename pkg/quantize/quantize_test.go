package quantize_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/quantize"
)

// buildFive builds a five-document index directly through the Builder,
// bypassing pkg/analyze so the expected postings are known exactly.
// Five documents keeps "ipsum"'s document frequency (2) below half the
// collection size, so its BM25 idf comes out positive and its raw
// scores are ordinary, rather than exercising the near-all-documents
// negative-idf corner case.
func buildFive(t *testing.T, dir string) {
	t.Helper()
	b := index.NewBuilder(index.WithBlockSize(4), index.WithKeysPerBlock(2))
	b.AddDocument("Doc00")
	for _, tok := range []string{"lorem", "ipsum", "dolor"} {
		require.NoError(t, b.AddTerm(tok))
	}
	b.AddDocument("Doc01")
	for _, tok := range []string{"lorem", "sit"} {
		require.NoError(t, b.AddTerm(tok))
	}
	b.AddDocument("Doc02")
	for _, tok := range []string{"ipsum", "ipsum", "amet"} {
		require.NoError(t, b.AddTerm(tok))
	}
	b.AddDocument("Doc03")
	for _, tok := range []string{"foo", "bar"} {
		require.NoError(t, b.AddTerm(tok))
	}
	b.AddDocument("Doc04")
	for _, tok := range []string{"baz", "qux"} {
		require.NoError(t, b.AddTerm(tok))
	}
	require.NoError(t, b.Finish(dir))
}

func TestWriteProducesScoredPostings(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	buildFive(t, dir)

	src, err := index.Open(dir)
	require.NoError(t, err)
	view, err := index.OpenView(src)
	require.NoError(t, err)
	termID, ok := view.TermID("ipsum")
	require.True(t, ok)
	require.NoError(t, src.Close())

	src, err = index.Open(dir)
	require.NoError(t, err)
	view, err = index.OpenView(src)
	require.NoError(t, err)
	require.NoError(t, quantize.Write(view, "bm25", index.ScorerBM25, 8, dir))
	require.NoError(t, src.Close())

	// Reopen so the newly written .scores/.offsets/.maxscore/.max/.mean/.var
	// files are discovered by index.Open, matching how a caller would pick
	// up a scorer layer written by a separate pass.
	src, err = index.Open(dir)
	require.NoError(t, err)
	defer src.Close()
	view, err = index.OpenView(src)
	require.NoError(t, err)

	scored, maxScore, err := view.ScoredPostings(termID, "bm25")
	require.NoError(t, err)
	require.Greater(t, maxScore, uint64(0))

	c := scored.Cursor()
	require.False(t, c.End())
	d, err := c.Document()
	require.NoError(t, err)
	require.Equal(t, ids.Document(0), d)
	q0, err := c.Payload(0)
	require.NoError(t, err)
	require.LessOrEqual(t, q0, maxScore)

	require.NoError(t, c.Next())
	require.False(t, c.End())
	d, err = c.Document()
	require.NoError(t, err)
	require.Equal(t, ids.Document(2), d)
	q1, err := c.Payload(0)
	require.NoError(t, err)
	require.LessOrEqual(t, q1, maxScore)
	require.Equal(t, maxScore, q1) // "ipsum" occurs twice in Doc02, scoring higher than Doc00's single occurrence

	require.NoError(t, c.Next())
	require.True(t, c.End())

	meanTbl, ok := view.ScoreMean("bm25")
	require.True(t, ok)
	meanRaw, err := meanTbl.Lookup(int(termID))
	require.NoError(t, err)
	mean := math.Float64frombits(meanRaw)
	require.Greater(t, mean, 0.0)

	maxTbl, ok := view.ScoreMax("bm25")
	require.True(t, ok)
	maxRaw, err := maxTbl.Lookup(int(termID))
	require.NoError(t, err)
	require.Greater(t, math.Float64frombits(maxRaw), 0.0)
}

func TestWriteRejectsInvalidBitWidth(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	buildFive(t, dir)

	src, err := index.Open(dir)
	require.NoError(t, err)
	defer src.Close()
	view, err := index.OpenView(src)
	require.NoError(t, err)

	err = quantize.Write(view, "bm25", index.ScorerBM25, 12, dir)
	require.Error(t, err)
}
