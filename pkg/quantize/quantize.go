// Package quantize implements the offline scoring pass half of the
// scorer & quantizer component (C9): given a built index and a chosen
// on-the-fly scorer, it computes every posting's score, quantizes the
// result to a fixed bit width, and writes the quantized-score layer
// files alongside the index's original files, per §4.8 and §3's "scoring
// a previously built index is an offline pass that writes new files...
// originals are untouched."
package quantize

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/wizenheimer/irkit/pkg/compact"
	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/score"
	"github.com/wizenheimer/irkit/pkg/vbyte"
)

// Option configures a Write call.
type Option func(*options)

type options struct {
	blockSize int
	logger    *slog.Logger
}

func defaultOptions() options {
	return options{blockSize: 64, logger: slog.Default()}
}

// WithBlockSize sets the block size used by the scorer's offsets,
// maxscore, and statistics tables. The score lists themselves are
// blocked by the index's skip_block_size.
func WithBlockSize(n int) Option { return func(o *options) { o.blockSize = n } }

// WithLogger overrides the pass's structured logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// Write scores every posting in view under tag, quantizes the results
// to bitWidth bits (one of 8, 16, 24, 32), and writes scorerName's
// .scores, .offsets, .maxscore, .max, .mean, and .var files into dir.
// dir must be the directory view's index.Source was opened from; Write
// never modifies the files already there, only adds to them.
func Write(view *index.View, scorerName string, tag index.ScorerTag, bitWidth int, dir string, opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	termCount := view.TermCount()
	perTermScores := make([][]float64, termCount)
	var globalMax float64

	for t := 0; t < termCount; t++ {
		scorer, err := view.TermScorer(ids.Term(t), tag)
		if err != nil {
			return fmt.Errorf("quantize: building scorer for term %d: %w", t, err)
		}
		pv, err := view.Postings(ids.Term(t))
		if err != nil {
			return fmt.Errorf("quantize: opening postings for term %d: %w", t, err)
		}
		c := pv.Cursor()
		var scores []float64
		for !c.End() {
			d, err := c.Document()
			if err != nil {
				return err
			}
			f, err := c.Payload(0)
			if err != nil {
				return err
			}
			sz, err := view.DocumentSize(d)
			if err != nil {
				return err
			}
			s := float64(scorer(sz, ids.Frequency(f)))
			scores = append(scores, s)
			if s > globalMax {
				globalMax = s
			}
			if err := c.Next(); err != nil {
				return err
			}
		}
		perTermScores[t] = scores
	}

	q, err := score.NewQuantizer(bitWidth, globalMax)
	if err != nil {
		return fmt.Errorf("quantize: %w", err)
	}

	// Score lists share the document lists' block boundaries, so they
	// are blocked by the index's skip_block_size, not by o.blockSize.
	listBlockSize := uint64(view.Source().Properties.SkipBlockSize)
	if listBlockSize == 0 {
		listBlockSize = uint64(o.blockSize)
	}

	var scoreBuf bytes.Buffer
	offsets := compact.NewBuilder(uint32(o.blockSize), true)
	maxQuantized := make([]uint64, termCount)
	maxRaw := make([]uint64, termCount)
	meanRaw := make([]uint64, termCount)
	varRaw := make([]uint64, termCount)

	for t, raw := range perTermScores {
		offsets.Append(uint64(scoreBuf.Len()))

		quantized := make([]uint64, len(raw))
		var maxQ uint64
		for i, s := range raw {
			v := q.Quantize(ids.Score(s))
			quantized[i] = v
			if v > maxQ {
				maxQ = v
			}
		}
		scoreBuf.Write(encodeScoreBlocks(quantized, listBlockSize))
		maxQuantized[t] = maxQ

		stats := score.ComputeStatistics(raw)
		maxRaw[t] = math.Float64bits(stats.Max)
		meanRaw[t] = math.Float64bits(stats.Mean)
		varRaw[t] = math.Float64bits(stats.Variance)
	}

	offBytes, err := offsets.Finish()
	if err != nil {
		return fmt.Errorf("quantize: building %s.offsets: %w", scorerName, err)
	}
	maxScoreBytes, err := compact.BuildPlain(maxQuantized, uint32(o.blockSize))
	if err != nil {
		return fmt.Errorf("quantize: building %s.maxscore: %w", scorerName, err)
	}
	maxBytes, err := compact.BuildPlain(maxRaw, uint32(o.blockSize))
	if err != nil {
		return fmt.Errorf("quantize: building %s.max: %w", scorerName, err)
	}
	meanBytes, err := compact.BuildPlain(meanRaw, uint32(o.blockSize))
	if err != nil {
		return fmt.Errorf("quantize: building %s.mean: %w", scorerName, err)
	}
	varBytes, err := compact.BuildPlain(varRaw, uint32(o.blockSize))
	if err != nil {
		return fmt.Errorf("quantize: building %s.var: %w", scorerName, err)
	}

	files := map[string][]byte{
		scorerName + ".scores":   scoreBuf.Bytes(),
		scorerName + ".offsets":  offBytes,
		scorerName + ".maxscore": maxScoreBytes,
		scorerName + ".max":      maxBytes,
		scorerName + ".mean":     meanBytes,
		scorerName + ".var":      varBytes,
	}
	for name, data := range files {
		tmp := filepath.Join(dir, name+".tmp")
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("quantize: writing %s: %w", name, err)
		}
		if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("quantize: publishing %s: %w", name, err)
		}
	}

	o.logger.Info("wrote quantized score layer",
		slog.String("scorer", scorerName),
		slog.Int("bit_width", bitWidth),
		slog.Int("terms", termCount),
		slog.Float64("global_max", globalMax))
	return nil
}

// encodeScoreBlocks block-encodes a plain (non-delta) payload list, the
// same layout pkg/postings.PayloadList reads: a var-byte
// {byte_size, block_size, num_blocks} header, delta-encoded leader
// offsets, then the blocks themselves, each plain var-byte encoded.
func encodeScoreBlocks(values []uint64, blockSize uint64) []byte {
	n := len(values)
	numBlocks := 0
	if n > 0 {
		numBlocks = (n + int(blockSize) - 1) / int(blockSize)
	}

	var blocks [][]byte
	for bi := 0; bi < numBlocks; bi++ {
		start := bi * int(blockSize)
		end := start + int(blockSize)
		if end > n {
			end = n
		}
		blocks = append(blocks, vbyte.EncodePlain(values[start:end]))
	}
	leaderOffsets := leaderOffsetsOf(blocks)

	var rest []byte
	rest = vbyte.AppendUint64(rest, blockSize)
	rest = vbyte.AppendUint64(rest, uint64(numBlocks))
	rest = append(rest, vbyte.EncodeDelta(0, leaderOffsets)...)
	for _, blk := range blocks {
		rest = append(rest, blk...)
	}
	return withByteSizePrefix(rest)
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
