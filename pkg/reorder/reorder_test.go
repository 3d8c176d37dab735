package reorder_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/reorder"
)

func buildSrc(t *testing.T) *index.View {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "idx")
	b := index.NewBuilder(index.WithBlockSize(4), index.WithKeysPerBlock(2))

	b.AddDocument("Doc00")
	for _, tok := range []string{"lorem", "ipsum"} {
		require.NoError(t, b.AddTerm(tok))
	}
	b.AddDocument("Doc01")
	for _, tok := range []string{"lorem", "sit"} {
		require.NoError(t, b.AddTerm(tok))
	}
	b.AddDocument("Doc02")
	for _, tok := range []string{"ipsum", "ipsum"} {
		require.NoError(t, b.AddTerm(tok))
	}
	require.NoError(t, b.Finish(dir))

	src, err := index.Open(dir)
	require.NoError(t, err)
	view, err := index.OpenView(src)
	require.NoError(t, err)
	return view
}

func openView(t *testing.T, dir string) *index.View {
	t.Helper()
	src, err := index.Open(dir)
	require.NoError(t, err)
	view, err := index.OpenView(src)
	require.NoError(t, err)
	return view
}

// TestReorderIdentityPermutationPreservesPostings checks the testable
// property that permuting by the index's own title order in ascending
// document id leaves every document's postings and sizes unchanged.
func TestReorderIdentityPermutationPreservesPostings(t *testing.T) {
	src := buildSrc(t)
	outDir := filepath.Join(t.TempDir(), "reordered")

	require.NoError(t, reorder.Reorder(src, []string{"Doc00", "Doc01", "Doc02"}, outDir))

	out := openView(t, outDir)
	require.Equal(t, src.CollectionSize(), out.CollectionSize())
	require.Equal(t, src.TermCount(), out.TermCount())

	for d := 0; d < src.CollectionSize(); d++ {
		wantSize, err := src.DocumentSize(ids.Document(d))
		require.NoError(t, err)
		gotSize, err := out.DocumentSize(ids.Document(d))
		require.NoError(t, err)
		require.Equal(t, wantSize, gotSize)
	}

	for _, term := range []string{"lorem", "ipsum", "sit"} {
		srcID, ok := src.TermID(term)
		require.True(t, ok)
		outID, ok := out.TermID(term)
		require.True(t, ok)

		wantPV, err := src.Postings(srcID)
		require.NoError(t, err)
		gotPV, err := out.Postings(outID)
		require.NoError(t, err)

		wantCur, gotCur := wantPV.Cursor(), gotPV.Cursor()
		for !wantCur.End() {
			require.False(t, gotCur.End())
			wd, err := wantCur.Document()
			require.NoError(t, err)
			gd, err := gotCur.Document()
			require.NoError(t, err)
			require.Equal(t, wd, gd)

			wf, err := wantCur.Payload(0)
			require.NoError(t, err)
			gf, err := gotCur.Payload(0)
			require.NoError(t, err)
			require.Equal(t, wf, gf)

			require.NoError(t, wantCur.Next())
			require.NoError(t, gotCur.Next())
		}
		require.True(t, gotCur.End())
	}
}

// TestReorderDropsDocumentsMissingFromPermutation checks that a
// document absent from the target permutation is dropped entirely,
// shrinking document_count and the postings of every term it
// contributed to.
func TestReorderDropsDocumentsMissingFromPermutation(t *testing.T) {
	src := buildSrc(t)
	outDir := filepath.Join(t.TempDir(), "reordered")

	// Drop Doc01 ("lorem", "sit"); keep Doc02 before Doc00.
	require.NoError(t, reorder.Reorder(src, []string{"Doc02", "Doc00"}, outDir))

	out := openView(t, outDir)
	require.Equal(t, 2, out.CollectionSize())

	// New id 0 is Doc02 (size 2), new id 1 is Doc00 (size 2).
	title0, err := out.Titles().KeyAt(0)
	require.NoError(t, err)
	require.Equal(t, "Doc02", title0)
	title1, err := out.Titles().KeyAt(1)
	require.NoError(t, err)
	require.Equal(t, "Doc00", title1)

	// "sit" only ever appeared in the dropped Doc01, so it now has zero
	// document frequency.
	sitID, ok := out.TermID("sit")
	require.True(t, ok)
	df, err := out.TermCollectionFrequency(sitID)
	require.NoError(t, err)
	require.Equal(t, ids.Frequency(0), df)

	// "ipsum" appeared in Doc00 (new id 1) and Doc02 (new id 0); its
	// postings must now be ascending by new id: 0 then 1.
	ipsumID, ok := out.TermID("ipsum")
	require.True(t, ok)
	pv, err := out.Postings(ipsumID)
	require.NoError(t, err)
	c := pv.Cursor()
	d0, err := c.Document()
	require.NoError(t, err)
	require.Equal(t, ids.Document(0), d0)
	require.NoError(t, c.Next())
	d1, err := c.Document()
	require.NoError(t, err)
	require.Equal(t, ids.Document(1), d1)
	require.NoError(t, c.Next())
	require.True(t, c.End())
}

// TestReorderIgnoresUnknownTitles checks that a title named in the
// permutation but absent from the index is silently skipped rather
// than erroring.
func TestReorderIgnoresUnknownTitles(t *testing.T) {
	src := buildSrc(t)
	outDir := filepath.Join(t.TempDir(), "reordered")

	require.NoError(t, reorder.Reorder(src, []string{"Doc00", "NoSuchDoc", "Doc01", "Doc02"}, outDir))

	out := openView(t, outDir)
	require.Equal(t, 3, out.CollectionSize())
}
