package lexicon_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/irkit/pkg/lexicon"
)

func words() []string {
	w := []string{"apple", "banana", "cherry", "date", "elderberry", "fig", "grape", "honeydew", "kiwi", "lemon"}
	sort.Strings(w)
	return w
}

func TestLexiconRoundTrip(t *testing.T) {
	w := words()
	buf, err := lexicon.BuildFromSorted(w, 3)
	require.NoError(t, err)

	lx, err := lexicon.Open(buf)
	require.NoError(t, err)
	require.Equal(t, len(w), lx.Len())

	for id, key := range w {
		got, err := lx.KeyAt(id)
		require.NoError(t, err)
		require.Equal(t, key, got)

		idx, ok := lx.IndexAt(key)
		require.True(t, ok)
		require.Equal(t, id, idx)
	}
}

func TestLexiconMissingKey(t *testing.T) {
	buf, err := lexicon.BuildFromSorted(words(), 3)
	require.NoError(t, err)
	lx, err := lexicon.Open(buf)
	require.NoError(t, err)

	_, ok := lx.IndexAt("zzz-not-present")
	require.False(t, ok)
	_, ok = lx.IndexAt("aaa")
	require.False(t, ok)
}

func TestLexiconAllIteration(t *testing.T) {
	w := words()
	buf, err := lexicon.BuildFromSorted(w, 4)
	require.NoError(t, err)
	lx, err := lexicon.Open(buf)
	require.NoError(t, err)

	entries, err := lx.All()
	require.NoError(t, err)
	require.Len(t, entries, len(w))
	for i, e := range entries {
		require.Equal(t, i, e.ID)
		require.Equal(t, w[i], e.Key)
	}
}

func TestBuilderRejectsNonIncreasing(t *testing.T) {
	b := lexicon.NewBuilder(4)
	require.NoError(t, b.Append("a"))
	require.Error(t, b.Append("a"))
	require.Error(t, b.Append(""))
}

func TestBuildFromEntriesArbitraryIDs(t *testing.T) {
	// Titles arrive in document-insertion order, not lexicographic
	// order: "banana" is document 0, "apple" is document 1, etc.
	titlesByDoc := []string{"banana", "apple", "cherry"}
	entries := []lexicon.SortedEntry{
		{Key: "apple", ID: 1},
		{Key: "banana", ID: 0},
		{Key: "cherry", ID: 2},
	}
	buf, err := lexicon.BuildFromEntries(entries, 2)
	require.NoError(t, err)

	lx, err := lexicon.Open(buf)
	require.NoError(t, err)
	require.Equal(t, 3, lx.Len())

	for docID, title := range titlesByDoc {
		got, err := lx.KeyAt(docID)
		require.NoError(t, err)
		require.Equal(t, title, got)

		id, ok := lx.IndexAt(title)
		require.True(t, ok)
		require.Equal(t, docID, id)
	}

	all, err := lx.All()
	require.NoError(t, err)
	require.Equal(t, []lexicon.Entry{{ID: 1, Key: "apple"}, {ID: 0, Key: "banana"}, {ID: 2, Key: "cherry"}}, all)
}

func TestSingleKeyBlockOfOne(t *testing.T) {
	buf, err := lexicon.BuildFromSorted([]string{"only"}, 1)
	require.NoError(t, err)
	lx, err := lexicon.Open(buf)
	require.NoError(t, err)
	key, err := lx.KeyAt(0)
	require.NoError(t, err)
	require.Equal(t, "only", key)
}
