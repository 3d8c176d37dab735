package partition_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/irkit/pkg/compact"
	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/lexicon"
	"github.com/wizenheimer/irkit/pkg/partition"
)

func newCompactTable(t *testing.T, path string) (*compact.Table, error) {
	t.Helper()
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	return compact.Open(buf)
}

func newLexicon(t *testing.T, path string) (*lexicon.Lexicon, error) {
	t.Helper()
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	return lexicon.Open(buf)
}

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

// TestPartitionScenarioS6 partitions a three-document index with shard
// assignment [0,1,0]: documents 0 and 2 land in shard 0 (as local ids
// 0 and 1), document 1 is alone in shard 1.
func TestPartitionScenarioS6(t *testing.T) {
	view := buildSrc(t)
	clusterDir := filepath.Join(t.TempDir(), "cluster")

	shardOf := partition.Assignment{0, 1, 0}
	require.NoError(t, partition.Partition(view, shardOf, 2, clusterDir))

	clusterSrc, err := index.Open(clusterDir)
	require.NoError(t, err)
	require.Equal(t, 2, clusterSrc.Properties.ShardCount)
	require.Equal(t, 3, clusterSrc.Properties.DocumentCount)

	shard0Src, err := index.Open(filepath.Join(clusterDir, "000"))
	require.NoError(t, err)
	require.Equal(t, 2, shard0Src.Properties.DocumentCount)

	shard1Src, err := index.Open(filepath.Join(clusterDir, "001"))
	require.NoError(t, err)
	require.Equal(t, 1, shard1Src.Properties.DocumentCount)

	reverse0, err := newCompactTable(t, filepath.Join(clusterDir, "000", "reverse.map"))
	require.NoError(t, err)
	got0, err := reverse0.Lookup(0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), got0)
	got1, err := reverse0.Lookup(1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), got1)

	reverse1, err := newCompactTable(t, filepath.Join(clusterDir, "001", "reverse.map"))
	require.NoError(t, err)
	got, err := reverse1.Lookup(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), got)
}

func TestPartitionRejectsMismatchedAssignmentLength(t *testing.T) {
	view := buildSrc(t)
	clusterDir := filepath.Join(t.TempDir(), "cluster")
	err := partition.Partition(view, partition.Assignment{0, 1}, 2, clusterDir)
	require.Error(t, err)
}

func TestPartitionedShardTermsMatchGlobalDocFrequency(t *testing.T) {
	view := buildSrc(t)
	clusterDir := filepath.Join(t.TempDir(), "cluster")
	shardOf := partition.Assignment{0, 1, 0}
	require.NoError(t, partition.Partition(view, shardOf, 2, clusterDir))

	_, err := index.Open(filepath.Join(clusterDir, "000"))
	require.NoError(t, err)

	// Shard 0 holds documents 0 and 2, both of which contain "ipsum".
	termsMap, err := newLexicon(t, filepath.Join(clusterDir, "terms.map"))
	require.NoError(t, err)
	ipsumID, ok := termsMap.IndexAt("ipsum")
	require.True(t, ok)

	docFreq, err := newCompactTable(t, filepath.Join(clusterDir, "000", "terms.docfreq"))
	require.NoError(t, err)
	df, err := docFreq.Lookup(ipsumID)
	require.NoError(t, err)
	require.Equal(t, uint64(2), df)
}
