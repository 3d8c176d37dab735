// Package score implements the two on-the-fly relevance scorers (BM25
// and Dirichlet-smoothed query likelihood), the offline quantizer that
// maps a scorer's floating output onto a fixed bit-width integer layer,
// and the per-term score-statistics computation those layers are
// checked against.
package score

import (
	"fmt"
	"math"

	"github.com/wizenheimer/irkit/pkg/ids"
)

// CollectionStats is the subset of index-wide statistics a scorer needs.
// Callers (pkg/index's View) build one of these from the open index and
// pass it to the scorer constructors; scorers never reach back into the
// index themselves.
type CollectionStats struct {
	DocumentCount     int
	AvgDocumentLength float64
	TotalOccurrences  uint64
}

// TermStats is the subset of per-term statistics a scorer needs.
type TermStats struct {
	DocumentFrequency     ids.Frequency
	CollectionOccurrences ids.Frequency
}

// Scorer computes a relevance score for one (document, term-frequency)
// posting, given the document's length. It closes over term and
// collection statistics fixed at construction time, per §9's rule that
// scorer parameters travel with the scorer object rather than living as
// globals.
type Scorer func(docLen int, tf ids.Frequency) ids.Score

// BM25Params holds the two BM25 tuning knobs.
type BM25Params struct {
	K1 float64
	B  float64
}

// DefaultBM25Params returns k1=1.2, b=0.75, the values named in the
// specification and in wide practical use.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.2, B: 0.75}
}

// BM25 builds a scorer for one term under the given collection and term
// statistics.
func BM25(coll CollectionStats, term TermStats, p BM25Params) Scorer {
	df := float64(term.DocumentFrequency)
	n := float64(coll.DocumentCount)
	idf := math.Log((n - df + 0.5) / (df + 0.5))
	avdl := coll.AvgDocumentLength

	return func(docLen int, tf ids.Frequency) ids.Score {
		f := float64(tf)
		denom := f + p.K1*(1-p.B+p.B*float64(docLen)/avdl)
		return ids.Score(idf * f * (p.K1 + 1) / denom)
	}
}

// QLParams holds the Dirichlet smoothing parameter.
type QLParams struct {
	Mu float64
}

// DefaultQLParams returns mu=2500, the specification's default.
func DefaultQLParams() QLParams {
	return QLParams{Mu: 2500}
}

// QueryLikelihood builds a Dirichlet-smoothed query-likelihood scorer
// for one term.
func QueryLikelihood(coll CollectionStats, term TermStats, p QLParams) Scorer {
	pTC := float64(term.CollectionOccurrences) / float64(coll.TotalOccurrences)
	mu := p.Mu

	return func(docLen int, tf ids.Frequency) ids.Score {
		return ids.Score(math.Log((float64(tf) + mu*pTC) / (float64(docLen) + mu)))
	}
}

// ErrInvalidBitWidth reports a quantization bit-width outside the
// accepted set.
type ErrInvalidBitWidth struct {
	B int
}

func (e *ErrInvalidBitWidth) Error() string {
	return fmt.Sprintf("score: invalid quantization bit-width %d, must be one of {8,16,24,32}", e.B)
}

func validBitWidth(b int) bool {
	switch b {
	case 8, 16, 24, 32:
		return true
	}
	return false
}

// Quantizer maps a floating score onto a fixed bit-width integer using
// a single global linear scale, per §4.8: q(s) = floor(s * (2^B-1) /
// global_max).
type Quantizer struct {
	B         int
	GlobalMax float64
	maxVal    uint64
}

// NewQuantizer builds a quantizer for bit-width b, calibrated against
// globalMax (the maximum score observed across every posting of every
// term for the scorer being quantized).
func NewQuantizer(b int, globalMax float64) (*Quantizer, error) {
	if !validBitWidth(b) {
		return nil, &ErrInvalidBitWidth{B: b}
	}
	return &Quantizer{B: b, GlobalMax: globalMax, maxVal: (uint64(1) << uint(b)) - 1}, nil
}

// Quantize maps a floating score into [0, 2^B-1].
func (q *Quantizer) Quantize(s ids.Score) uint64 {
	if q.GlobalMax <= 0 {
		return 0
	}
	v := math.Floor(float64(s) * float64(q.maxVal) / q.GlobalMax)
	if v < 0 {
		return 0
	}
	if v > float64(q.maxVal) {
		return q.maxVal
	}
	return uint64(v)
}

// Dequantize recovers an approximate floating score from a quantized
// value, for the relative-error property in the specification's
// testable-properties list.
func (q *Quantizer) Dequantize(v uint64) ids.Score {
	return ids.Score(float64(v) / float64(q.maxVal) * q.GlobalMax)
}

// Statistics holds the per-term max/mean/variance of a scorer's output
// across its posting list, as written to the <S>.max/.mean/.var
// compact tables.
type Statistics struct {
	Max      float64
	Mean     float64
	Variance float64
}

// ComputeStatistics reduces a term's raw scores to Statistics using
// Welford's single-pass method, which avoids the numerical error a
// naive sum-of-squares variance accumulates over long posting lists.
func ComputeStatistics(scores []float64) Statistics {
	if len(scores) == 0 {
		return Statistics{}
	}
	var mean, m2, max float64
	max = scores[0]
	for i, s := range scores {
		if s > max {
			max = s
		}
		n := float64(i + 1)
		delta := s - mean
		mean += delta / n
		m2 += delta * (s - mean)
	}
	variance := 0.0
	if len(scores) > 1 {
		variance = m2 / float64(len(scores))
	}
	return Statistics{Max: max, Mean: mean, Variance: variance}
}
