// Package threshold estimates top-k score thresholds without running
// a full query: an exact variant that reads the k-th score from an
// engine's sorted results, and
// Taily, a Gamma-distribution estimator built from per-term score
// statistics that also ranks shards for selective search.
package threshold

import (
	"errors"
	"math"

	"github.com/wizenheimer/irkit/pkg/ids"
)

// ErrNoHits is returned by Exact, together with a zero threshold, when
// an engine produced fewer than k hits, to signal that no real
// threshold exists.
var ErrNoHits = errors.New("threshold: fewer than k hits")

// Exact returns the k-th score from an already-sorted descending
// results slice (as produced by any pkg/query engine's TopK.Results),
// or 0 with ErrNoHits if the slice has fewer than k entries.
func Exact(scores []ids.Score, k int) (ids.Score, error) {
	if k <= 0 || len(scores) < k {
		return 0, ErrNoHits
	}
	return scores[k-1], nil
}

// Gamma is a Gamma distribution fitted via method-of-moments, plus the
// Dirac-spike special case for a zero-variance term.
type Gamma struct {
	Shape float64
	Scale float64
	// Spike holds the constant score contribution when the source
	// statistics had zero variance; Shape and Scale are zero in that
	// case and callers must add Spike directly rather than treat it as
	// a distribution parameter.
	Spike    float64
	IsSpike  bool
	Mean     float64
	Variance float64
}

// FitGamma fits shape = mean^2/variance, scale = variance/mean. A
// term whose score is constant across every document it appears in
// has zero variance; rather than divide by zero, it is modeled as a
// Dirac spike that contributes its mean as a constant shift to any
// combined distribution.
func FitGamma(mean, variance float64) Gamma {
	if variance <= 0 {
		return Gamma{Spike: mean, IsSpike: true, Mean: mean, Variance: 0}
	}
	return Gamma{
		Shape:    mean * mean / variance,
		Scale:    variance / mean,
		Mean:     mean,
		Variance: variance,
	}
}

// TermStatistics is the per-term (mean, variance, document_frequency)
// triple Taily reads from a scorer's statistics tables.
type TermStatistics struct {
	Mean              float64
	Variance          float64
	DocumentFrequency ids.Frequency
}

// Combine sums a set of per-term score distributions into a single
// Gamma modeling the per-query (or per-collection) score distribution,
// by summing means and variances — the moment-matching approximation
// for a sum of independent Gammas — and refitting. Dirac spikes
// contribute their mean directly to the combined mean and leave
// variance untouched.
func Combine(terms []TermStatistics) Gamma {
	var mean, variance float64
	for _, t := range terms {
		mean += t.Mean
		variance += t.Variance
	}
	return FitGamma(mean, variance)
}

// EstimateThreshold returns the score s such that the expected number
// of documents scoring at or above s, under g scaled to a collection
// of n documents, equals k. It solves
//
//	n * (1 - P(shape, s/scale)) = k
//
// for s via the inverse regularized incomplete gamma function, where
// P is the regularized lower incomplete gamma function. A Dirac-spike
// distribution has no dispersion to invert, so its threshold is just
// its constant value.
func (g Gamma) EstimateThreshold(n int, k int) ids.Score {
	if g.IsSpike {
		return ids.Score(g.Spike)
	}
	if n <= 0 || k <= 0 {
		return 0
	}
	q := float64(k) / float64(n)
	if q >= 1 {
		return 0
	}
	x := inverseRegularizedUpperIncompleteGamma(g.Shape, q)
	return ids.Score(x * g.Scale)
}

// ShardScore computes the expected number of a shard's documents
// whose score exceeds the global top-k threshold, using the shard's
// own per-term statistics (and hence its own fitted Gamma) evaluated
// at the global threshold. Shards are ranked by descending ShardScore
// to pick a subset for selective search.
func ShardScore(shardGamma Gamma, shardDocCount int, globalThreshold ids.Score) float64 {
	if shardGamma.IsSpike {
		if shardGamma.Spike >= float64(globalThreshold) {
			return float64(shardDocCount)
		}
		return 0
	}
	if shardGamma.Shape <= 0 || shardGamma.Scale <= 0 {
		return 0
	}
	x := float64(globalThreshold) / shardGamma.Scale
	survival := 1 - regularizedLowerIncompleteGamma(shardGamma.Shape, x)
	return float64(shardDocCount) * survival
}

// regularizedLowerIncompleteGamma computes P(a, x), using the series
// expansion for x < a+1 and the continued-fraction expansion for the
// complementary Q(a, x) = 1 - P(a, x) otherwise, following the
// standard numerical recipe for this function.
func regularizedLowerIncompleteGamma(a, x float64) float64 {
	if x < 0 || a <= 0 {
		return math.NaN()
	}
	if x == 0 {
		return 0
	}
	if x < a+1 {
		return gammaSeries(a, x)
	}
	return 1 - gammaContinuedFraction(a, x)
}

func gammaSeries(a, x float64) float64 {
	const maxIter = 200
	const eps = 1e-14

	gln, _ := math.Lgamma(a)
	ap := a
	sum := 1.0 / a
	del := sum
	for n := 0; n < maxIter; n++ {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*eps {
			break
		}
	}
	return sum * math.Exp(-x+a*math.Log(x)-gln)
}

func gammaContinuedFraction(a, x float64) float64 {
	const maxIter = 200
	const eps = 1e-14
	const tiny = 1e-300

	gln, _ := math.Lgamma(a)
	b := x + 1 - a
	c := 1 / tiny
	d := 1 / b
	h := d
	for i := 1; i < maxIter; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = b + an/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < eps {
			break
		}
	}
	return math.Exp(-x+a*math.Log(x)-gln) * h
}

// inverseRegularizedUpperIncompleteGamma solves Q(a, x) = q for x via
// Newton's method, starting from a moment-based guess and falling back
// to bisection if a step would leave the admissible domain.
func inverseRegularizedUpperIncompleteGamma(a, q float64) float64 {
	if q <= 0 {
		return math.Inf(1)
	}
	if q >= 1 {
		return 0
	}

	lo, hi := 0.0, math.Max(1, a)*20
	for regularizedLowerIncompleteGamma(a, hi) < 1-q {
		hi *= 2
		if hi > 1e8 {
			break
		}
	}

	x := a
	for iter := 0; iter < 100; iter++ {
		fx := 1 - regularizedLowerIncompleteGamma(a, x) - q
		if math.Abs(fx) < 1e-10 {
			return x
		}
		if fx > 0 {
			lo = x
		} else {
			hi = x
		}
		// Newton step using the incomplete gamma's derivative
		// dP/dx = x^(a-1) e^-x / Gamma(a); fall back to bisection if it
		// would leave [lo, hi].
		gln, _ := math.Lgamma(a)
		deriv := math.Exp((a-1)*math.Log(x) - x - gln)
		next := x
		if deriv > 0 {
			next = x + fx/deriv
		}
		if next <= lo || next >= hi || math.IsNaN(next) {
			next = (lo + hi) / 2
		}
		x = next
	}
	return x
}
