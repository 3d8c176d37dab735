package score_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/score"
)

func TestBM25KnownValue(t *testing.T) {
	coll := score.CollectionStats{DocumentCount: 100, AvgDocumentLength: 50}
	term := score.TermStats{DocumentFrequency: 10}
	scorer := score.BM25(coll, term, score.DefaultBM25Params())

	s := scorer(50, 3)
	idf := math.Log((100 - 10 + 0.5) / (10 + 0.5))
	expected := idf * 3 * (1.2 + 1) / (3 + 1.2*(1-0.75+0.75*1.0))
	require.InDelta(t, expected, float64(s), 1e-9)
}

func TestBM25ScoreIncreasesWithTermFrequency(t *testing.T) {
	coll := score.CollectionStats{DocumentCount: 1000, AvgDocumentLength: 200}
	term := score.TermStats{DocumentFrequency: 50}
	scorer := score.BM25(coll, term, score.DefaultBM25Params())

	low := scorer(200, 1)
	high := scorer(200, 10)
	require.Greater(t, float64(high), float64(low))
}

func TestQueryLikelihoodKnownValue(t *testing.T) {
	coll := score.CollectionStats{TotalOccurrences: 10000}
	term := score.TermStats{CollectionOccurrences: 200}
	scorer := score.QueryLikelihood(coll, term, score.DefaultQLParams())

	got := scorer(100, 5)
	pTC := 200.0 / 10000.0
	expected := math.Log((5 + 2500*pTC) / (100 + 2500))
	require.InDelta(t, expected, float64(got), 1e-9)
}

func TestQuantizerRejectsInvalidBitWidth(t *testing.T) {
	_, err := score.NewQuantizer(12, 10.0)
	require.Error(t, err)
	var bwErr *score.ErrInvalidBitWidth
	require.ErrorAs(t, err, &bwErr)
}

func TestQuantizerAcceptsValidBitWidths(t *testing.T) {
	for _, b := range []int{8, 16, 24, 32} {
		_, err := score.NewQuantizer(b, 10.0)
		require.NoError(t, err)
	}
}

func TestQuantizeDequantizeRelativeError(t *testing.T) {
	q, err := score.NewQuantizer(8, 10.0)
	require.NoError(t, err)

	s := ids.Score(7.3)
	quantized := q.Quantize(s)
	back := q.Dequantize(quantized)

	relErr := math.Abs(float64(back)-float64(s)) / float64(s)
	require.LessOrEqual(t, relErr, 1.0/255.0+1e-9)
}

func TestQuantizePreservesPerTermArgsort(t *testing.T) {
	q, err := score.NewQuantizer(8, 100.0)
	require.NoError(t, err)
	scores := []ids.Score{5.0, 20.0, 3.0, 99.0, 50.0}
	quantized := make([]uint64, len(scores))
	for i, s := range scores {
		quantized[i] = q.Quantize(s)
	}
	for i := 1; i < len(scores); i++ {
		for j := 0; j < i; j++ {
			if scores[j] < scores[i] {
				require.LessOrEqual(t, quantized[j], quantized[i])
			}
		}
	}
}

func TestComputeStatistics(t *testing.T) {
	scores := []float64{1, 2, 3, 4, 5}
	stats := score.ComputeStatistics(scores)
	require.Equal(t, 5.0, stats.Max)
	require.InDelta(t, 3.0, stats.Mean, 1e-9)
	require.InDelta(t, 2.0, stats.Variance, 1e-9)
}

func TestComputeStatisticsEmpty(t *testing.T) {
	stats := score.ComputeStatistics(nil)
	require.Equal(t, score.Statistics{}, stats)
}

func TestComputeStatisticsSingleValue(t *testing.T) {
	stats := score.ComputeStatistics([]float64{42.0})
	require.Equal(t, 42.0, stats.Max)
	require.Equal(t, 42.0, stats.Mean)
	require.Equal(t, 0.0, stats.Variance)
}
