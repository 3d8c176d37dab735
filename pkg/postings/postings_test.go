package postings_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/postings"
	"github.com/wizenheimer/irkit/pkg/vbyte"
)

// withByteSizePrefix prepends a var-byte byte_size field whose value is
// the total encoded length, including the field's own encoding. Since
// the field's width can itself affect the total, this converges by
// fixed point — at most two iterations for any realistic test buffer.
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

// buildDocListBuf hand-assembles a block-compressed delta-coded document
// list from a strictly increasing sequence of document ids, mirroring
// what pkg/index's builder will eventually emit.
func buildDocListBuf(t *testing.T, docs []uint64, blockSize int) []byte {
	t.Helper()
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

	out := withByteSizePrefix(rest)
	require.Equal(t, len(out), len(rest)+len(vbyte.AppendUint64(nil, uint64(len(out)))))
	return out
}

func buildPayloadListBuf(t *testing.T, vals []uint64, blockSize int) []byte {
	t.Helper()
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

func TestDocListAdvanceToScenarioS3(t *testing.T) {
	docs := []uint64{1, 5, 6, 8, 12, 14, 20, 23}
	buf := buildDocListBuf(t, docs, 3)

	dl, err := postings.OpenDocList(buf, len(docs))
	require.NoError(t, err)
	require.Equal(t, len(docs), dl.Len())

	c := dl.Cursor()
	require.NoError(t, c.AdvanceTo(9))
	require.False(t, c.End())
	v, err := c.Value()
	require.NoError(t, err)
	require.Equal(t, ids.Document(12), v)

	require.NoError(t, c.AdvanceTo(23))
	require.False(t, c.End())
	v, err = c.Value()
	require.NoError(t, err)
	require.Equal(t, ids.Document(23), v)

	require.NoError(t, c.AdvanceTo(30))
	require.True(t, c.End())
}

func TestDocListFullIteration(t *testing.T) {
	docs := []uint64{1, 5, 6, 8, 12, 14, 20, 23}
	buf := buildDocListBuf(t, docs, 3)
	dl, err := postings.OpenDocList(buf, len(docs))
	require.NoError(t, err)

	c := dl.Cursor()
	var got []ids.Document
	for !c.End() {
		v, err := c.Value()
		require.NoError(t, err)
		got = append(got, v)
		require.NoError(t, c.Next())
	}
	require.Len(t, got, len(docs))
	for i, d := range docs {
		require.Equal(t, ids.Document(d), got[i])
	}
}

func TestDocListFetch(t *testing.T) {
	docs := []uint64{1, 5, 6, 8, 12, 14, 20, 23}
	buf := buildDocListBuf(t, docs, 3)
	dl, err := postings.OpenDocList(buf, len(docs))
	require.NoError(t, err)

	start := dl.Cursor()
	end := dl.Cursor()
	require.NoError(t, end.AdvanceTo(20))

	got, err := start.Fetch(end)
	require.NoError(t, err)
	require.Equal(t, []ids.Document{1, 5, 6, 8, 12, 14}, got)
}

func TestViewZipsDocsAndPayloads(t *testing.T) {
	docs := []uint64{1, 5, 6, 8, 12, 14, 20, 23}
	freqs := []uint64{2, 1, 4, 1, 3, 1, 1, 9}
	docBuf := buildDocListBuf(t, docs, 3)
	payBuf := buildPayloadListBuf(t, freqs, 3)

	dl, err := postings.OpenDocList(docBuf, len(docs))
	require.NoError(t, err)
	pl, err := postings.OpenPayloadList(payBuf, len(freqs))
	require.NoError(t, err)

	view, err := postings.NewView(dl, pl)
	require.NoError(t, err)

	c := view.Cursor()
	var gotDocs []ids.Document
	var gotFreqs []uint64
	for !c.End() {
		d, err := c.Document()
		require.NoError(t, err)
		f, err := c.Payload(0)
		require.NoError(t, err)
		gotDocs = append(gotDocs, d)
		gotFreqs = append(gotFreqs, f)
		require.NoError(t, c.Next())
	}

	for i := range docs {
		require.Equal(t, ids.Document(docs[i]), gotDocs[i])
		require.Equal(t, freqs[i], gotFreqs[i])
	}
}

func TestViewRejectsMismatchedLengths(t *testing.T) {
	docs := []uint64{1, 2, 3}
	freqs := []uint64{1, 1}
	docBuf := buildDocListBuf(t, docs, 2)
	payBuf := buildPayloadListBuf(t, freqs, 2)

	dl, err := postings.OpenDocList(docBuf, len(docs))
	require.NoError(t, err)
	pl, err := postings.OpenPayloadList(payBuf, len(freqs))
	require.NoError(t, err)

	_, err = postings.NewView(dl, pl)
	require.Error(t, err)
}

func TestViewAdvanceToAlignsPayload(t *testing.T) {
	docs := []uint64{1, 5, 6, 8, 12, 14, 20, 23}
	freqs := []uint64{2, 1, 4, 1, 3, 1, 1, 9}
	docBuf := buildDocListBuf(t, docs, 3)
	payBuf := buildPayloadListBuf(t, freqs, 3)

	dl, err := postings.OpenDocList(docBuf, len(docs))
	require.NoError(t, err)
	pl, err := postings.OpenPayloadList(payBuf, len(freqs))
	require.NoError(t, err)
	view, err := postings.NewView(dl, pl)
	require.NoError(t, err)

	c := view.Cursor()
	require.NoError(t, c.AdvanceTo(12))
	d, err := c.Document()
	require.NoError(t, err)
	require.Equal(t, ids.Document(12), d)
	f, err := c.Payload(0)
	require.NoError(t, err)
	require.Equal(t, uint64(3), f)
}
