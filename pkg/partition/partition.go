// Package partition splits a built index into S shard subdirectories
// under a cluster directory, given an assignment of each document to
// a shard. It streams one term at a time across all shards so peak
// memory stays proportional to one term's posting set, not the whole
// index.
package partition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/wizenheimer/irkit/pkg/compact"
	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/lexicon"
	"github.com/wizenheimer/irkit/pkg/score"
	"github.com/wizenheimer/irkit/pkg/vbyte"
)

// Assignment maps each global document id to a shard index in
// [0, numShards).
type Assignment []int

// Option configures a partition run.
type Option func(*options)

type options struct {
	blockSize        int
	keysPerBlock     int
	maxInFlightBytes int
	logger           *slog.Logger
}

func defaultOptions() options {
	return options{
		blockSize:        64,
		keysPerBlock:     16,
		maxInFlightBytes: 0,
		logger:           slog.Default(),
	}
}

// WithBlockSize sets the per-shard posting-list and compact-table
// block size.
func WithBlockSize(n int) Option { return func(o *options) { o.blockSize = n } }

// WithKeysPerBlock sets the per-shard lexicon block size.
func WithKeysPerBlock(n int) Option { return func(o *options) { o.keysPerBlock = n } }

// WithMaxInFlightBytes bounds the approximate combined in-memory size
// of one term's posting set across every shard before the partitioner
// logs a high-water warning. It defaults to the size of one term's
// full posting set across all shards, i.e. unbounded per-term
// accounting is accepted as the normal case; this knob exists so a
// caller partitioning an unusually high-frequency term can be warned
// before peak memory grows unexpectedly.
func WithMaxInFlightBytes(n int) Option { return func(o *options) { o.maxInFlightBytes = n } }

// WithLogger overrides the partitioner's structured logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

const estBytesPerPosting = 24

type shardBuild struct {
	reverse      []ids.Document // local id -> global id
	docCount     int
	titles       []string
	sizes        []int
	docIDBuf     bytes.Buffer
	countBuf     bytes.Buffer
	docOffsets   *compact.Builder
	countOffsets *compact.Builder
	docFreqs     []uint64
	occurrences  []uint64

	scorerScoreBuf map[string]*bytes.Buffer
	scorerOffsets  map[string]*compact.Builder
	scorerMax      map[string][]uint64
	scorerVarAcc   map[string][]score.Statistics
}

// Partition builds a sharded cluster at clusterDir from src, given the
// per-document shard assignment. Shards are written to numbered
// subdirectories ("000", "001", ...). The global term tables are
// copied into the cluster root, and terms.map is also copied into
// every shard so each shard opens as a complete index; term
// identifiers are shared across the whole cluster.
func Partition(src *index.View, shardOf Assignment, numShards int, clusterDir string, opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	n := src.CollectionSize()
	if len(shardOf) != n {
		return fmt.Errorf("partition: shard_of has length %d, collection has %d documents", len(shardOf), n)
	}
	for _, s := range shardOf {
		if s < 0 || s >= numShards {
			return fmt.Errorf("partition: shard assignment %d out of range [0,%d)", s, numShards)
		}
	}

	builds := make([]*shardBuild, numShards)
	local := make([]ids.Document, n)
	for i := range builds {
		builds[i] = &shardBuild{
			docOffsets:    compact.NewBuilder(uint32(o.blockSize), true),
			countOffsets:  compact.NewBuilder(uint32(o.blockSize), true),
			scorerScoreBuf: make(map[string]*bytes.Buffer),
			scorerOffsets: make(map[string]*compact.Builder),
			scorerMax:     make(map[string][]uint64),
			scorerVarAcc:  make(map[string][]score.Statistics),
		}
	}
	for d := 0; d < n; d++ {
		s := shardOf[d]
		b := builds[s]
		local[d] = ids.Document(len(b.reverse))
		b.reverse = append(b.reverse, ids.Document(d))
	}

	for d := 0; d < n; d++ {
		s := shardOf[d]
		b := builds[s]
		title, err := src.Titles().KeyAt(d)
		if err != nil {
			return fmt.Errorf("partition: reading title for document %d: %w", d, err)
		}
		sz, err := src.DocumentSize(ids.Document(d))
		if err != nil {
			return fmt.Errorf("partition: reading size for document %d: %w", d, err)
		}
		b.titles = append(b.titles, title)
		b.sizes = append(b.sizes, sz)
		b.docCount++
	}

	scorerNames := src.ScorerNames()

	// fullySpreadTerms counts terms whose postings land in every shard,
	// tracked per term via a Roaring bitmap of touched shard indices
	// (one Add per posting) so the summary log line needs no extra pass
	// over perShardDocs.
	var fullySpreadTerms int

	for t := 0; t < src.TermCount(); t++ {
		perShardDocs := make([][]uint64, numShards)
		perShardFreqs := make([][]uint64, numShards)
		shardSpread := roaring.New()

		postingsView, err := src.Postings(ids.Term(t))
		if err != nil {
			return fmt.Errorf("partition: opening postings for term %d: %w", t, err)
		}
		c := postingsView.Cursor()
		inFlight := 0
		for !c.End() {
			d, err := c.Document()
			if err != nil {
				return err
			}
			f, err := c.Payload(0)
			if err != nil {
				return err
			}
			s := shardOf[int(d)]
			perShardDocs[s] = append(perShardDocs[s], uint64(local[int(d)]))
			perShardFreqs[s] = append(perShardFreqs[s], f)
			shardSpread.Add(uint32(s))
			inFlight += estBytesPerPosting
			if err := c.Next(); err != nil {
				return err
			}
		}
		if o.maxInFlightBytes > 0 && inFlight > o.maxInFlightBytes {
			o.logger.Warn("term posting set exceeds MaxInFlightBytes",
				slog.Int("term", t), slog.Int("bytes", inFlight), slog.Int("limit", o.maxInFlightBytes))
		}
		if int(shardSpread.GetCardinality()) == numShards {
			fullySpreadTerms++
		}

		for s, b := range builds {
			b.docOffsets.Append(uint64(b.docIDBuf.Len()))
			b.countOffsets.Append(uint64(b.countBuf.Len()))
			docBuf, countBuf := encodePostingList(perShardDocs[s], perShardFreqs[s], uint64(o.blockSize), true)
			b.docIDBuf.Write(docBuf)
			b.countBuf.Write(countBuf)
			b.docFreqs = append(b.docFreqs, uint64(len(perShardDocs[s])))
			var occ uint64
			for _, f := range perShardFreqs[s] {
				occ += f
			}
			b.occurrences = append(b.occurrences, occ)
		}

		for _, scorer := range scorerNames {
			scoredView, _, err := src.ScoredPostings(ids.Term(t), scorer)
			if err != nil {
				return fmt.Errorf("partition: opening %s postings for term %d: %w", scorer, t, err)
			}
			perShardScores := make([][]uint64, numShards)
			sc := scoredView.Cursor()
			for !sc.End() {
				d, err := sc.Document()
				if err != nil {
					return err
				}
				v, err := sc.Payload(0)
				if err != nil {
					return err
				}
				s := shardOf[int(d)]
				perShardScores[s] = append(perShardScores[s], v)
				if err := sc.Next(); err != nil {
					return err
				}
			}
			for s, b := range builds {
				if b.scorerOffsets[scorer] == nil {
					b.scorerOffsets[scorer] = compact.NewBuilder(uint32(o.blockSize), true)
					b.scorerScoreBuf[scorer] = &bytes.Buffer{}
				}
				b.scorerOffsets[scorer].Append(uint64(b.scorerScoreBuf[scorer].Len()))
				_, scoreBuf := encodePostingList(perShardDocs[s], perShardScores[s], uint64(o.blockSize), false)
				b.scorerScoreBuf[scorer].Write(scoreBuf)

				var maxV uint64
				vals := make([]float64, len(perShardScores[s]))
				for i, v := range perShardScores[s] {
					if v > maxV {
						maxV = v
					}
					vals[i] = float64(v)
				}
				b.scorerMax[scorer] = append(b.scorerMax[scorer], maxV)
				b.scorerVarAcc[scorer] = append(b.scorerVarAcc[scorer], score.ComputeStatistics(vals))
			}
		}
	}

	if err := os.RemoveAll(clusterDir); err != nil {
		return fmt.Errorf("partition: clearing cluster directory: %w", err)
	}
	if err := os.MkdirAll(clusterDir, 0o755); err != nil {
		return fmt.Errorf("partition: creating cluster directory: %w", err)
	}

	rawSrc := src.Source()
	globalFiles := []string{"terms.map", "terms.txt", "terms.docfreq", "terms.occurrences"}
	for _, scorer := range src.ScorerNames() {
		globalFiles = append(globalFiles, scorer+".max", scorer+".mean", scorer+".var")
	}
	for _, name := range globalFiles {
		buf, ok := rawSrc.File(name)
		if !ok {
			continue
		}
		if err := os.WriteFile(filepath.Join(clusterDir, name), buf, 0o644); err != nil {
			return fmt.Errorf("partition: copying %s to cluster directory: %w", name, err)
		}
	}

	var totalOccurrences uint64
	var maxDocSize int
	for s, b := range builds {
		shardDir := filepath.Join(clusterDir, fmt.Sprintf("%03d", s))
		if err := os.MkdirAll(shardDir, 0o755); err != nil {
			return err
		}
		if err := writeShard(shardDir, b, o); err != nil {
			return fmt.Errorf("partition: writing shard %d: %w", s, err)
		}
		if buf, ok := rawSrc.File("terms.map"); ok {
			if err := os.WriteFile(filepath.Join(shardDir, "terms.map"), buf, 0o644); err != nil {
				return fmt.Errorf("partition: copying terms.map to shard %d: %w", s, err)
			}
		}
		for _, sz := range b.sizes {
			totalOccurrences += uint64(sz)
			if sz > maxDocSize {
				maxDocSize = sz
			}
		}
	}

	var avgSize float64
	if n > 0 {
		avgSize = float64(totalOccurrences) / float64(n)
	}
	clusterProps := index.Properties{
		DocumentCount:    n,
		OccurrencesCount: totalOccurrences,
		SkipBlockSize:    o.blockSize,
		AvgDocumentSize:  avgSize,
		MaxDocumentSize:  maxDocSize,
		ShardCount:       numShards,
	}
	propsBytes, err := json.MarshalIndent(clusterProps, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(clusterDir, "properties.json"), propsBytes, 0o644); err != nil {
		return err
	}

	o.logger.Info("partitioned index",
		slog.String("cluster_dir", clusterDir),
		slog.Int("shards", numShards),
		slog.Int("documents", n),
		slog.Int("fully_spread_terms", fullySpreadTerms))
	return nil
}

func writeShard(dir string, b *shardBuild, o options) error {
	docOffBytes, err := b.docOffsets.Finish()
	if err != nil {
		return err
	}
	countOffBytes, err := b.countOffsets.Finish()
	if err != nil {
		return err
	}
	docFreqBytes, err := compact.BuildPlain(b.docFreqs, uint32(o.blockSize))
	if err != nil {
		return err
	}
	occBytes, err := compact.BuildPlain(b.occurrences, uint32(o.blockSize))
	if err != nil {
		return err
	}

	titleEntries := make([]lexicon.SortedEntry, len(b.titles))
	for localID, title := range b.titles {
		titleEntries[localID] = lexicon.SortedEntry{Key: title, ID: uint32(localID)}
	}
	sort.Slice(titleEntries, func(i, j int) bool { return titleEntries[i].Key < titleEntries[j].Key })
	titlesMapBytes, err := lexicon.BuildFromEntries(titleEntries, o.keysPerBlock)
	if err != nil {
		return err
	}

	sizes := make([]uint64, len(b.sizes))
	reverseVals := make([]uint64, len(b.reverse))
	var total uint64
	var maxSize int
	for i, sz := range b.sizes {
		sizes[i] = uint64(sz)
		total += uint64(sz)
		if sz > maxSize {
			maxSize = sz
		}
		reverseVals[i] = uint64(b.reverse[i])
	}
	sizesBytes, err := compact.BuildPlain(sizes, uint32(o.blockSize))
	if err != nil {
		return err
	}
	reverseBytes, err := compact.BuildPlain(reverseVals, uint32(o.blockSize))
	if err != nil {
		return err
	}

	var avgSize float64
	if len(b.sizes) > 0 {
		avgSize = float64(total) / float64(len(b.sizes))
	}
	props := index.Properties{
		DocumentCount:    b.docCount,
		OccurrencesCount: total,
		SkipBlockSize:    o.blockSize,
		AvgDocumentSize:  avgSize,
		MaxDocumentSize:  maxSize,
	}
	propsBytes, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return err
	}

	files := map[string][]byte{
		"properties.json":  propsBytes,
		"titles.map":        titlesMapBytes,
		"titles.txt":        []byte(joinLines(b.titles)),
		"doc.sizes":         sizesBytes,
		"doc.id":            b.docIDBuf.Bytes(),
		"doc.idoff":         docOffBytes,
		"doc.count":         b.countBuf.Bytes(),
		"doc.countoff":      countOffBytes,
		"terms.docfreq":     docFreqBytes,
		"terms.occurrences": occBytes,
		"reverse.map":       reverseBytes,
	}
	for scorer, buf := range b.scorerScoreBuf {
		offBytes, err := b.scorerOffsets[scorer].Finish()
		if err != nil {
			return err
		}
		maxBytes, err := compact.BuildPlain(b.scorerMax[scorer], uint32(o.blockSize))
		if err != nil {
			return err
		}
		var maxStatVals, meanVals, varVals []uint64
		for _, st := range b.scorerVarAcc[scorer] {
			maxStatVals = append(maxStatVals, math.Float64bits(st.Max))
			meanVals = append(meanVals, math.Float64bits(st.Mean))
			varVals = append(varVals, math.Float64bits(st.Variance))
		}
		maxStatBytes, err := compact.BuildPlain(maxStatVals, uint32(o.blockSize))
		if err != nil {
			return err
		}
		meanBytes, err := compact.BuildPlain(meanVals, uint32(o.blockSize))
		if err != nil {
			return err
		}
		varBytes, err := compact.BuildPlain(varVals, uint32(o.blockSize))
		if err != nil {
			return err
		}
		files[scorer+".scores"] = buf.Bytes()
		files[scorer+".offsets"] = offBytes
		files[scorer+".maxscore"] = maxBytes
		files[scorer+".max"] = maxStatBytes
		files[scorer+".mean"] = meanBytes
		files[scorer+".var"] = varBytes
	}

	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
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

// encodePostingList block-encodes a posting list from already-remapped
// document ids and their payloads. When docsDelta is true the document
// ids are delta-coded with a block-last leader table, matching the
// doc.id layout; payloads are always plain-coded.
func encodePostingList(docs, payloads []uint64, blockSize uint64, docsDelta bool) (docBuf, payloadBuf []byte) {
	n := len(docs)
	numBlocks := 0
	if n > 0 {
		numBlocks = (n + int(blockSize) - 1) / int(blockSize)
	}

	var docBlocks, payloadBlocks [][]byte
	blockLast := make([]uint64, numBlocks)
	for bi := 0; bi < numBlocks; bi++ {
		start := bi * int(blockSize)
		end := start + int(blockSize)
		if end > n {
			end = n
		}
		if docsDelta {
			var v0 uint64
			if bi > 0 {
				v0 = docs[start-1]
			}
			docBlocks = append(docBlocks, vbyte.EncodeDelta(v0, docs[start:end]))
		} else {
			docBlocks = append(docBlocks, vbyte.EncodePlain(docs[start:end]))
		}
		payloadBlocks = append(payloadBlocks, vbyte.EncodePlain(payloads[start:end]))
		blockLast[bi] = docs[end-1]
	}

	docLeaders := leaderOffsetsOf(docBlocks)
	payloadLeaders := leaderOffsetsOf(payloadBlocks)

	var docRest []byte
	docRest = vbyte.AppendUint64(docRest, blockSize)
	docRest = vbyte.AppendUint64(docRest, uint64(numBlocks))
	docRest = append(docRest, vbyte.EncodeDelta(0, docLeaders)...)
	if docsDelta {
		docRest = append(docRest, vbyte.EncodeDelta(0, blockLast)...)
	}
	for _, blk := range docBlocks {
		docRest = append(docRest, blk...)
	}

	var payloadRest []byte
	payloadRest = vbyte.AppendUint64(payloadRest, blockSize)
	payloadRest = vbyte.AppendUint64(payloadRest, uint64(numBlocks))
	payloadRest = append(payloadRest, vbyte.EncodeDelta(0, payloadLeaders)...)
	for _, blk := range payloadBlocks {
		payloadRest = append(payloadRest, blk...)
	}

	return withByteSizePrefix(docRest), withByteSizePrefix(payloadRest)
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
