// Package reorder rewrites an index under a new document ordering
// given as a target permutation expressed by a sequence of document
// titles.
package reorder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/wizenheimer/irkit/pkg/compact"
	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/lexicon"
	"github.com/wizenheimer/irkit/pkg/vbyte"
)

// Option configures a reorder run.
type Option func(*options)

type options struct {
	blockSize    int
	keysPerBlock int
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{blockSize: 64, keysPerBlock: 16, logger: slog.Default()}
}

func WithBlockSize(n int) Option    { return func(o *options) { o.blockSize = n } }
func WithKeysPerBlock(n int) Option { return func(o *options) { o.keysPerBlock = n } }
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// Reorder rewrites src into outDir under the document ordering named
// by permutation: permutation[i] is the title that should become
// document id i in the output. A title named in permutation but not
// present in src is ignored (not an error); a document present in src
// but not named anywhere in permutation is dropped from the output,
// shrinking document_count accordingly.
func Reorder(src *index.View, permutation []string, outDir string, opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	oldToNew := make(map[ids.Document]ids.Document)
	var newTitles []string
	var newSizes []int
	for _, title := range permutation {
		oldID, ok := src.Titles().IndexAt(title)
		if !ok {
			continue // named in the permutation but absent from the index: ignored
		}
		sz, err := src.DocumentSize(ids.Document(oldID))
		if err != nil {
			return fmt.Errorf("reorder: reading size for document %d: %w", oldID, err)
		}
		newID := ids.Document(len(newTitles))
		oldToNew[ids.Document(oldID)] = newID
		newTitles = append(newTitles, title)
		newSizes = append(newSizes, sz)
	}

	o.logger.Info("computed reorder permutation",
		slog.Int("retained", len(newTitles)),
		slog.Int("dropped", src.CollectionSize()-len(newTitles)))

	termStrings := make([]string, src.TermCount())
	docFreqs := make([]uint64, src.TermCount())
	occurrences := make([]uint64, src.TermCount())
	var docIDBuf, countBuf bytes.Buffer
	docOffsets := compact.NewBuilder(uint32(o.blockSize), true)
	countOffsets := compact.NewBuilder(uint32(o.blockSize), true)

	type posting struct {
		doc  uint64
		freq uint64
	}

	for t := 0; t < src.TermCount(); t++ {
		term, err := src.Term(ids.Term(t))
		if err != nil {
			return fmt.Errorf("reorder: reading term %d: %w", t, err)
		}
		termStrings[t] = term

		pv, err := src.Postings(ids.Term(t))
		if err != nil {
			return fmt.Errorf("reorder: opening postings for term %d: %w", t, err)
		}
		c := pv.Cursor()
		var plist []posting
		var occ uint64
		for !c.End() {
			oldDoc, err := c.Document()
			if err != nil {
				return err
			}
			newDoc, kept := oldToNew[oldDoc]
			if kept {
				f, err := c.Payload(0)
				if err != nil {
					return err
				}
				plist = append(plist, posting{doc: uint64(newDoc), freq: f})
				occ += f
			}
			if err := c.Next(); err != nil {
				return err
			}
		}
		sort.Slice(plist, func(i, j int) bool { return plist[i].doc < plist[j].doc })

		docFreqs[t] = uint64(len(plist))
		occurrences[t] = occ

		docs := make([]uint64, len(plist))
		freqs := make([]uint64, len(plist))
		for i, p := range plist {
			docs[i] = p.doc
			freqs[i] = p.freq
		}

		docOffsets.Append(uint64(docIDBuf.Len()))
		countOffsets.Append(uint64(countBuf.Len()))
		docBuf, freqBuf := encodePostingList(docs, freqs, uint64(o.blockSize))
		docIDBuf.Write(docBuf)
		countBuf.Write(freqBuf)
	}

	docOffBytes, err := docOffsets.Finish()
	if err != nil {
		return err
	}
	countOffBytes, err := countOffsets.Finish()
	if err != nil {
		return err
	}
	docFreqBytes, err := compact.BuildPlain(docFreqs, uint32(o.blockSize))
	if err != nil {
		return err
	}
	occBytes, err := compact.BuildPlain(occurrences, uint32(o.blockSize))
	if err != nil {
		return err
	}

	titleEntries := make([]lexicon.SortedEntry, len(newTitles))
	for newID, title := range newTitles {
		titleEntries[newID] = lexicon.SortedEntry{Key: title, ID: uint32(newID)}
	}
	sort.Slice(titleEntries, func(i, j int) bool { return titleEntries[i].Key < titleEntries[j].Key })
	titlesMapBytes, err := lexicon.BuildFromEntries(titleEntries, o.keysPerBlock)
	if err != nil {
		return err
	}

	sizes := make([]uint64, len(newSizes))
	var total uint64
	var maxSize int
	for i, sz := range newSizes {
		sizes[i] = uint64(sz)
		total += uint64(sz)
		if sz > maxSize {
			maxSize = sz
		}
	}
	sizesBytes, err := compact.BuildPlain(sizes, uint32(o.blockSize))
	if err != nil {
		return err
	}

	var avgSize float64
	if len(newSizes) > 0 {
		avgSize = float64(total) / float64(len(newSizes))
	}
	props := index.Properties{
		DocumentCount:    len(newTitles),
		OccurrencesCount: total,
		SkipBlockSize:    o.blockSize,
		AvgDocumentSize:  avgSize,
		MaxDocumentSize:  maxSize,
	}
	propsBytes, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return err
	}

	termsMapBytes, err := lexicon.BuildFromSorted(termStrings, o.keysPerBlock)
	if err != nil {
		return fmt.Errorf("reorder: building terms.map: %w", err)
	}

	tmpDir := outDir + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return err
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	files := map[string][]byte{
		"properties.json":   propsBytes,
		"terms.map":         termsMapBytes,
		"terms.txt":         []byte(joinLines(termStrings)),
		"terms.docfreq":     docFreqBytes,
		"terms.occurrences": occBytes,
		"titles.map":        titlesMapBytes,
		"titles.txt":        []byte(joinLines(newTitles)),
		"doc.sizes":         sizesBytes,
		"doc.id":            docIDBuf.Bytes(),
		"doc.idoff":         docOffBytes,
		"doc.count":         countBuf.Bytes(),
		"doc.countoff":      countOffBytes,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), data, 0o644); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(outDir); err != nil {
		return err
	}
	if err := os.Rename(tmpDir, outDir); err != nil {
		return err
	}
	o.logger.Info("finished reordering index", slog.String("dir", outDir), slog.Int("documents", len(newTitles)))
	return nil
}

func joinLines(lines []string) string {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.String()
}

func encodePostingList(docs, freqs []uint64, blockSize uint64) (docBuf, countBuf []byte) {
	n := len(docs)
	numBlocks := 0
	if n > 0 {
		numBlocks = (n + int(blockSize) - 1) / int(blockSize)
	}

	var docBlocks, countBlocks [][]byte
	blockLast := make([]uint64, numBlocks)
	for bi := 0; bi < numBlocks; bi++ {
		start := bi * int(blockSize)
		end := start + int(blockSize)
		if end > n {
			end = n
		}
		var v0 uint64
		if bi > 0 {
			v0 = docs[start-1]
		}
		docBlocks = append(docBlocks, vbyte.EncodeDelta(v0, docs[start:end]))
		countBlocks = append(countBlocks, vbyte.EncodePlain(freqs[start:end]))
		blockLast[bi] = docs[end-1]
	}

	docLeaders := leaderOffsetsOf(docBlocks)
	countLeaders := leaderOffsetsOf(countBlocks)

	var docRest []byte
	docRest = vbyte.AppendUint64(docRest, blockSize)
	docRest = vbyte.AppendUint64(docRest, uint64(numBlocks))
	docRest = append(docRest, vbyte.EncodeDelta(0, docLeaders)...)
	docRest = append(docRest, vbyte.EncodeDelta(0, blockLast)...)
	for _, blk := range docBlocks {
		docRest = append(docRest, blk...)
	}

	var countRest []byte
	countRest = vbyte.AppendUint64(countRest, blockSize)
	countRest = vbyte.AppendUint64(countRest, uint64(numBlocks))
	countRest = append(countRest, vbyte.EncodeDelta(0, countLeaders)...)
	for _, blk := range countBlocks {
		countRest = append(countRest, blk...)
	}

	return withByteSizePrefix(docRest), withByteSizePrefix(countRest)
}

func leaderOffsetsOf(blocks [][]byte) []uint64 {
	offsets := make([]uint64, len(blocks))
	var offset uint64
	for i, blk := range blocks {
		offsets[i] = offset
		offset += uint64(len(blk))
	}
	return offsets
}

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
