package index

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/wizenheimer/irkit/pkg/compact"
	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/lexicon"
	"github.com/wizenheimer/irkit/pkg/vbyte"
)

// BuilderOption configures a Builder.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	blockSize      int
	keysPerBlock   int
	memoryBudget   int // approximate bytes of in-memory postings before a flush; 0 = unbounded
	logger         *slog.Logger
}

func defaultBuilderOptions() builderOptions {
	return builderOptions{
		blockSize:    64,
		keysPerBlock: 16,
		memoryBudget: 0,
		logger:       slog.Default(),
	}
}

// WithBlockSize sets the posting-list and compact-table block size.
func WithBlockSize(n int) BuilderOption {
	return func(o *builderOptions) { o.blockSize = n }
}

// WithKeysPerBlock sets the lexicon block size.
func WithKeysPerBlock(n int) BuilderOption {
	return func(o *builderOptions) { o.keysPerBlock = n }
}

// WithMemoryBudget bounds the approximate number of bytes of in-memory
// posting data the builder holds before flushing a partial index to
// disk and continuing. Zero means unbounded (single in-memory pass).
func WithMemoryBudget(bytes int) BuilderOption {
	return func(o *builderOptions) { o.memoryBudget = bytes }
}

// WithLogger overrides the builder's structured logger.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(o *builderOptions) { o.logger = l }
}

type posting struct {
	Doc  ids.Document
	Freq uint32
}

// estBytesPerPosting approximates a posting's in-memory footprint
// (struct overhead plus slice growth amortization) for the memory
// budget check; it does not need to be exact.
const estBytesPerPosting = 24

// Builder accumulates postings from a tokenized document stream and
// writes the on-disk index layout on Finish. Phase 1 (add_document /
// add_term) is in-memory accumulation; Finish runs phase 2 (sort
// terms, emit files) and, if any partial indexes were flushed along
// the way, a k-way alphabetical merge first.
type Builder struct {
	opts builderOptions

	termID      map[string]int
	termOrder   []string
	postingsBy  [][]posting
	occurrences []uint64
	estBytes    int

	titles   []string
	docSizes []int

	currentDoc ids.Document
	haveDoc    bool
	curLen     int

	partialPaths []string
}

// NewBuilder creates an index builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	o := defaultBuilderOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Builder{
		opts:   o,
		termID: make(map[string]int),
	}
}

// AddDocument starts a new document with the given title and returns
// its document id. The previous document (if any) is closed out: its
// accumulated token count is recorded in doc.sizes.
func (b *Builder) AddDocument(title string) ids.Document {
	if b.haveDoc {
		b.docSizes = append(b.docSizes, b.curLen)
		b.currentDoc++
	}
	b.haveDoc = true
	b.curLen = 0
	b.titles = append(b.titles, title)
	return b.currentDoc
}

// AddTerm records one occurrence of term in the current document. It
// must be called after at least one AddDocument.
func (b *Builder) AddTerm(term string) error {
	if !b.haveDoc {
		return fmt.Errorf("index: AddTerm called before AddDocument")
	}
	// Flush only before the current document's first term, so every
	// partial holds whole documents.
	if b.opts.memoryBudget > 0 && b.curLen == 0 && b.estBytes >= b.opts.memoryBudget {
		if err := b.flushPartial(); err != nil {
			return err
		}
	}
	id, ok := b.termID[term]
	if !ok {
		id = len(b.termOrder)
		b.termID[term] = id
		b.termOrder = append(b.termOrder, term)
		b.postingsBy = append(b.postingsBy, nil)
		b.occurrences = append(b.occurrences, 0)
	}

	plist := b.postingsBy[id]
	if len(plist) > 0 && plist[len(plist)-1].Doc == b.currentDoc {
		plist[len(plist)-1].Freq++
	} else {
		plist = append(plist, posting{Doc: b.currentDoc, Freq: 1})
		b.estBytes += estBytesPerPosting
	}
	b.postingsBy[id] = plist
	b.occurrences[id]++
	b.curLen++
	return nil
}

type partialIndex struct {
	Terms       []string
	Postings    [][]posting
	Occurrences []uint64
}

// flushPartial writes the current in-memory term accumulation to a
// temporary file as a sorted partial index, then clears in-memory term
// state so accumulation can continue. Titles and document sizes are
// untouched: they belong to the global document-id space and are
// written once, at Finish.
func (b *Builder) flushPartial() error {
	if len(b.termOrder) == 0 {
		return nil
	}
	perm := sortedTermPermutation(b.termOrder)
	p := partialIndex{
		Terms:       make([]string, len(perm)),
		Postings:    make([][]posting, len(perm)),
		Occurrences: make([]uint64, len(perm)),
	}
	for rank, id := range perm {
		p.Terms[rank] = b.termOrder[id]
		p.Postings[rank] = b.postingsBy[id]
		p.Occurrences[rank] = b.occurrences[id]
	}

	f, err := os.CreateTemp("", "irkit-partial-*.gob")
	if err != nil {
		return fmt.Errorf("index: creating partial index file: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(p); err != nil {
		return fmt.Errorf("index: writing partial index: %w", err)
	}
	b.partialPaths = append(b.partialPaths, f.Name())
	b.opts.logger.Info("flushed partial index", slog.String("path", f.Name()), slog.Int("terms", len(p.Terms)))

	b.termID = make(map[string]int)
	b.termOrder = nil
	b.postingsBy = nil
	b.occurrences = nil
	b.estBytes = 0
	return nil
}

func sortedTermPermutation(terms []string) []int {
	perm := make([]int, len(terms))
	for i := range perm {
		perm[i] = i
	}
	sort.Slice(perm, func(i, j int) bool { return terms[perm[i]] < terms[perm[j]] })
	return perm
}

// mergedTerm is one alphabetically-merged term accumulated from one or
// more partial indexes.
type mergedTerm struct {
	term        string
	postings    []posting
	occurrences uint64
}

// mergeAll performs the k-way alphabetical merge across all flushed
// partial indexes plus any remaining in-memory terms, per §4.7: walk
// terms alphabetically across partials, concatenating document ranges
// (already disjoint and individually sorted by construction, since
// each partial only ever saw a contiguous run of document ids) and
// summing occurrence counts where a term spans multiple partials.
func (b *Builder) mergeAll() ([]mergedTerm, error) {
	type source struct {
		terms       []string
		postings    [][]posting
		occurrences []uint64
		pos         int
	}

	var sources []*source
	for _, path := range b.partialPaths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("index: reopening partial index %s: %w", path, err)
		}
		var p partialIndex
		err = gob.NewDecoder(f).Decode(&p)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("index: decoding partial index %s: %w", path, err)
		}
		sources = append(sources, &source{terms: p.Terms, postings: p.Postings, occurrences: p.Occurrences})
	}
	if len(b.termOrder) > 0 {
		perm := sortedTermPermutation(b.termOrder)
		s := &source{terms: make([]string, len(perm)), postings: make([][]posting, len(perm)), occurrences: make([]uint64, len(perm))}
		for rank, id := range perm {
			s.terms[rank] = b.termOrder[id]
			s.postings[rank] = b.postingsBy[id]
			s.occurrences[rank] = b.occurrences[id]
		}
		sources = append(sources, s)
	}

	if len(sources) == 0 {
		return nil, nil
	}
	if len(sources) == 1 {
		s := sources[0]
		out := make([]mergedTerm, len(s.terms))
		for i := range s.terms {
			out[i] = mergedTerm{term: s.terms[i], postings: s.postings[i], occurrences: s.occurrences[i]}
		}
		return out, nil
	}

	var merged []mergedTerm
	for {
		// Find the lexicographically smallest current term across all
		// non-exhausted sources.
		smallest := ""
		found := false
		for _, s := range sources {
			if s.pos >= len(s.terms) {
				continue
			}
			if !found || s.terms[s.pos] < smallest {
				smallest = s.terms[s.pos]
				found = true
			}
		}
		if !found {
			break
		}

		var mt mergedTerm
		mt.term = smallest
		for _, s := range sources {
			if s.pos < len(s.terms) && s.terms[s.pos] == smallest {
				mt.postings = append(mt.postings, s.postings[s.pos]...)
				mt.occurrences += s.occurrences[s.pos]
				s.pos++
			}
		}
		merged = append(merged, mt)
	}
	return merged, nil
}

// Finish closes out the final document, sorts terms (merging partial
// indexes if any were flushed), and writes the complete on-disk index
// to dir. Writing is all-or-nothing: files are assembled in a sibling
// temporary directory and the result is renamed into place only on
// success, per the transactional-build discipline in §5.
func (b *Builder) Finish(dir string) error {
	if b.haveDoc {
		b.docSizes = append(b.docSizes, b.curLen)
	}

	merged, err := b.mergeAll()
	if err != nil {
		return err
	}

	tmpDir := dir + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return fmt.Errorf("index: clearing temporary build directory: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("index: creating temporary build directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := b.writeFiles(tmpDir, merged); err != nil {
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("index: clearing target directory: %w", err)
	}
	if err := os.Rename(tmpDir, dir); err != nil {
		return fmt.Errorf("index: publishing built index: %w", err)
	}

	b.opts.logger.Info("finished building index",
		slog.String("dir", dir),
		slog.Int("documents", len(b.titles)),
		slog.Int("terms", len(merged)))
	for _, p := range b.partialPaths {
		os.Remove(p)
	}
	return nil
}

func (b *Builder) writeFiles(dir string, merged []mergedTerm) error {
	termStrings := make([]string, len(merged))
	docFreqs := make([]uint64, len(merged))
	occurrenceCounts := make([]uint64, len(merged))
	var docIDBuilder, countBuilder bytes.Buffer
	docOffsets := compact.NewBuilder(uint32(b.opts.blockSize), true)
	countOffsets := compact.NewBuilder(uint32(b.opts.blockSize), true)

	blockSize := uint64(b.opts.blockSize)
	for i, mt := range merged {
		termStrings[i] = mt.term
		docFreqs[i] = uint64(len(mt.postings))
		occurrenceCounts[i] = mt.occurrences

		docOffsets.Append(uint64(docIDBuilder.Len()))
		countOffsets.Append(uint64(countBuilder.Len()))

		docBuf, countBuf := encodePostingList(mt.postings, blockSize)
		docIDBuilder.Write(docBuf)
		countBuilder.Write(countBuf)
	}

	docOffBytes, err := docOffsets.Finish()
	if err != nil {
		return fmt.Errorf("index: building doc.idoff: %w", err)
	}
	countOffBytes, err := countOffsets.Finish()
	if err != nil {
		return fmt.Errorf("index: building doc.countoff: %w", err)
	}
	termsMapBytes, err := lexicon.BuildFromSorted(termStrings, b.opts.keysPerBlock)
	if err != nil {
		return fmt.Errorf("index: building terms.map: %w", err)
	}
	docFreqBytes, err := compact.BuildPlain(docFreqs, uint32(b.opts.blockSize))
	if err != nil {
		return fmt.Errorf("index: building terms.docfreq: %w", err)
	}
	occBytes, err := compact.BuildPlain(occurrenceCounts, uint32(b.opts.blockSize))
	if err != nil {
		return fmt.Errorf("index: building terms.occurrences: %w", err)
	}

	titleEntries := make([]lexicon.SortedEntry, len(b.titles))
	for docID, title := range b.titles {
		titleEntries[docID] = lexicon.SortedEntry{Key: title, ID: uint32(docID)}
	}
	sort.Slice(titleEntries, func(i, j int) bool { return titleEntries[i].Key < titleEntries[j].Key })
	titlesMapBytes, err := lexicon.BuildFromEntries(titleEntries, b.opts.keysPerBlock)
	if err != nil {
		return fmt.Errorf("index: building titles.map: %w", err)
	}

	sizes := make([]uint64, len(b.docSizes))
	var totalSize, maxSize uint64
	for i, sz := range b.docSizes {
		sizes[i] = uint64(sz)
		totalSize += uint64(sz)
		if uint64(sz) > maxSize {
			maxSize = uint64(sz)
		}
	}
	docSizesBytes, err := compact.BuildPlain(sizes, uint32(b.opts.blockSize))
	if err != nil {
		return fmt.Errorf("index: building doc.sizes: %w", err)
	}

	var avgSize float64
	if len(b.docSizes) > 0 {
		avgSize = float64(totalSize) / float64(len(b.docSizes))
	}
	props := Properties{
		DocumentCount:    len(b.titles),
		OccurrencesCount: totalSize,
		SkipBlockSize:    b.opts.blockSize,
		AvgDocumentSize:  avgSize,
		MaxDocumentSize:  int(maxSize),
	}
	propsBytes, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return fmt.Errorf("index: marshaling properties.json: %w", err)
	}

	files := map[string][]byte{
		"properties.json":    propsBytes,
		"terms.txt":           []byte(joinLines(termStrings)),
		"terms.map":           termsMapBytes,
		"terms.docfreq":       docFreqBytes,
		"terms.occurrences":   occBytes,
		"titles.txt":          []byte(joinLines(b.titles)),
		"titles.map":          titlesMapBytes,
		"doc.sizes":           docSizesBytes,
		"doc.id":              docIDBuilder.Bytes(),
		"doc.idoff":           docOffBytes,
		"doc.count":           countBuilder.Bytes(),
		"doc.countoff":        countOffBytes,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("index: writing %s: %w", name, err)
		}
	}
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

// encodePostingList block-encodes a term's postings into the document-
// list and frequency-list byte layouts described in §6.2.
func encodePostingList(postings []posting, blockSize uint64) (docBuf, countBuf []byte) {
	n := len(postings)
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
		docs := make([]uint64, end-start)
		freqs := make([]uint64, end-start)
		for i := start; i < end; i++ {
			docs[i-start] = uint64(postings[i].Doc)
			freqs[i-start] = uint64(postings[i].Freq)
		}
		var v0 uint64
		if bi > 0 {
			v0 = uint64(postings[start-1].Doc)
		}
		docBlocks = append(docBlocks, vbyte.EncodeDelta(v0, docs))
		countBlocks = append(countBlocks, vbyte.EncodePlain(freqs))
		blockLast[bi] = uint64(postings[end-1].Doc)
	}

	docLeaderOffsets := leaderOffsetsOf(docBlocks)
	countLeaderOffsets := leaderOffsetsOf(countBlocks)

	var docRest []byte
	docRest = vbyte.AppendUint64(docRest, blockSize)
	docRest = vbyte.AppendUint64(docRest, uint64(numBlocks))
	docRest = append(docRest, vbyte.EncodeDelta(0, docLeaderOffsets)...)
	docRest = append(docRest, vbyte.EncodeDelta(0, blockLast)...)
	for _, blk := range docBlocks {
		docRest = append(docRest, blk...)
	}

	var countRest []byte
	countRest = vbyte.AppendUint64(countRest, blockSize)
	countRest = vbyte.AppendUint64(countRest, uint64(numBlocks))
	countRest = append(countRest, vbyte.EncodeDelta(0, countLeaderOffsets)...)
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

// withByteSizePrefix prepends a var-byte byte_size field equal to the
// total encoded length including the field's own width, converging by
// fixed point (the field's width can itself change the total).
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
