package cluster

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/query"
	"github.com/wizenheimer/irkit/pkg/threshold"
)

// Term is one term of a cluster-wide query, before it is bound to any
// particular shard's postings.
type Term struct {
	Text   string
	Weight float64
}

func (t Term) weight() float64 {
	if t.Weight == 0 {
		return 1
	}
	return t.Weight
}

// boundTerm is a query term resolved against the cluster's global
// dictionary, before it is bound to any one shard's postings.
type boundTerm struct {
	id     ids.Term
	weight float64
}

// Engine runs one query-processing algorithm over a bound term set and
// returns its per-shard top-k.
type Engine func(ctx context.Context, terms []query.QueryTerm, k int) (*query.Results, error)

// Hit is a cluster-level search result. Unlike query.Result, it is
// identified by title rather than document id, since document ids are
// only meaningful within a single shard.
type Hit struct {
	Rank  int
	Title string
	Score ids.Score
}

// Results is the outcome of a cluster-wide Dispatch.
type Results struct {
	Hits      []Hit
	Cancelled bool
}

// DispatchOptions configures a Dispatch call. The zero value runs DAAT
// with on-the-fly BM25 scoring, broadcasting to every shard.
type DispatchOptions struct {
	Engine Engine
	Tag    index.ScorerTag

	// ScorerName, if non-empty, selects a precomputed quantized-score
	// layer instead of on-the-fly scoring.
	ScorerName string

	// SelectShards, when true, uses Taily to rank shards and only
	// dispatches to the top MaxShards of them instead of broadcasting.
	// Requires ScorerName's mean/variance statistics tables to be
	// present on every shard; Dispatch falls back to a full broadcast
	// otherwise.
	SelectShards bool
	MaxShards    int

	// RescoreGlobally re-derives each returned hit's score from the
	// cluster-wide scorer instead of trusting the shard-local one.
	RescoreGlobally bool

	// Concurrency bounds how many shards are queried in parallel.
	// Defaults to the number of shards chosen (unbounded within the
	// cluster).
	Concurrency int
}

func (o DispatchOptions) engine() Engine {
	if o.Engine != nil {
		return o.Engine
	}
	return query.DAAT
}

var errTermAbsent = fmt.Errorf("cluster: term absent from shard")

// Dispatch resolves terms against the cluster's global dictionary,
// selects which shards to query, runs the configured engine against
// each chosen shard bounded by opts.Concurrency, and merges the
// per-shard top-k lists into one cluster-wide top-k keyed by title.
func (c *Cluster) Dispatch(ctx context.Context, terms []Term, k int, opts DispatchOptions) (*Results, error) {
	var bound []boundTerm
	for _, t := range terms {
		id, ok := c.TermID(t.Text)
		if !ok {
			continue
		}
		bound = append(bound, boundTerm{id: id, weight: t.weight()})
	}
	if len(bound) == 0 {
		return &Results{}, nil
	}

	chosen := c.chooseShards(bound, k, opts)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = len(chosen)
	}

	shardHits := make([][]query.Result, len(chosen))
	shardTitle := make([]func(int) (string, error), len(chosen))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, shardIdx := range chosen {
		i, shardIdx := i, shardIdx
		g.Go(func() error {
			shard := c.shards[shardIdx]
			qterms := make([]query.QueryTerm, 0, len(bound))
			for _, b := range bound {
				qt, err := c.bindTerm(shardIdx, b, opts)
				if err == errTermAbsent {
					continue
				}
				if err != nil {
					return fmt.Errorf("cluster: binding term for shard %d: %w", shardIdx, err)
				}
				qterms = append(qterms, qt)
			}
			if len(qterms) == 0 {
				return nil
			}
			res, err := opts.engine()(gctx, qterms, k)
			if err != nil {
				return fmt.Errorf("cluster: dispatching to shard %d: %w", shardIdx, err)
			}
			if opts.RescoreGlobally {
				if err := c.rescoreGlobally(shardIdx, bound, res, opts); err != nil {
					return fmt.Errorf("cluster: rescoring shard %d: %w", shardIdx, err)
				}
			}
			shardHits[i] = res.Hits
			shardTitle[i] = shard.Titles().KeyAt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := newMergeHeap(k)
	for i, hits := range shardHits {
		if shardTitle[i] == nil {
			continue
		}
		for _, h := range hits {
			title, err := shardTitle[i](int(h.Document))
			if err != nil {
				return nil, err
			}
			merged.push(title, h.Score)
		}
	}

	cancelled := false
	select {
	case <-ctx.Done():
		cancelled = true
	default:
	}

	return &Results{Hits: merged.results(), Cancelled: cancelled}, nil
}

// bindTerm builds the QueryTerm a shard's engine should see for one
// globally-resolved term, using the quantized scorer layer named by
// opts.ScorerName when present, falling back to on-the-fly scoring
// against the cluster-wide scorer otherwise.
func (c *Cluster) bindTerm(shardIdx int, b boundTerm, opts DispatchOptions) (query.QueryTerm, error) {
	shard := c.shards[shardIdx]
	df, err := shard.TermCollectionFrequency(b.id)
	if err != nil {
		return query.QueryTerm{}, err
	}
	if df == 0 {
		return query.QueryTerm{}, errTermAbsent
	}

	if opts.ScorerName != "" {
		view, maxScore, err := shard.ScoredPostings(b.id, opts.ScorerName)
		if err != nil {
			return query.QueryTerm{}, err
		}
		return query.QueryTerm{
			Postings: view,
			Weight:   b.weight,
			MaxScore: ids.Score(maxScore),
			Score:    func(_ ids.Document, payload uint64) ids.Score { return ids.Score(payload) },
		}, nil
	}

	view, err := shard.Postings(b.id)
	if err != nil {
		return query.QueryTerm{}, err
	}
	scorer, err := c.TermScorer(shardIdx, b.id, opts.Tag)
	if err != nil {
		return query.QueryTerm{}, err
	}
	scoreFn := func(doc ids.Document, payload uint64) ids.Score {
		sz, err := shard.DocumentSize(doc)
		if err != nil {
			return 0
		}
		return scorer(sz, ids.Frequency(payload))
	}
	return query.QueryTerm{
		Postings: view,
		Weight:   b.weight,
		MaxScore: estimateMaxScore(shard, b.id, scorer),
		Score:    scoreFn,
	}, nil
}

// estimateMaxScore bounds an on-the-fly scorer's contribution by
// scoring the shortest possible document against the term's total
// in-collection occurrences. It is conservative, not tight, since
// computing the true per-document maximum would require a full scan
// of the posting list's payloads.
func estimateMaxScore(shard *index.View, t ids.Term, scorer func(int, ids.Frequency) ids.Score) ids.Score {
	occ, err := shard.TermOccurrences(t)
	if err != nil {
		return ids.Score(math.Inf(1))
	}
	return scorer(1, occ)
}

// rescoreGlobally replaces each hit's shard-local score with the sum
// of its per-term contributions under the cluster-wide scorer, per
// §4.13 step 3: advance each query term's ordinary posting list to the
// candidate document and recompute from scratch.
func (c *Cluster) rescoreGlobally(shardIdx int, bound []boundTerm, res *query.Results, opts DispatchOptions) error {
	shard := c.shards[shardIdx]
	scorers := make(map[ids.Term]func(int, ids.Frequency) ids.Score, len(bound))
	for _, b := range bound {
		scorer, err := c.TermScorer(shardIdx, b.id, opts.Tag)
		if err != nil {
			return err
		}
		scorers[b.id] = scorer
	}

	for i := range res.Hits {
		doc := res.Hits[i].Document
		sz, err := shard.DocumentSize(doc)
		if err != nil {
			return err
		}
		var sum ids.Score
		for _, b := range bound {
			view, err := shard.Postings(b.id)
			if err != nil {
				return err
			}
			cur := view.Cursor()
			if err := cur.AdvanceTo(doc); err != nil {
				return err
			}
			if cur.End() {
				continue
			}
			d, err := cur.Document()
			if err != nil {
				return err
			}
			if d != doc {
				continue
			}
			freq, err := cur.Payload(0)
			if err != nil {
				return err
			}
			sum += ids.Score(b.weight) * scorers[b.id](sz, ids.Frequency(freq))
		}
		res.Hits[i].Score = sum
	}
	return nil
}

// chooseShards returns the shard indices Dispatch should query: every
// shard, unless opts.SelectShards asks for a Taily-ranked subset and
// every shard carries the statistics Taily needs.
func (c *Cluster) chooseShards(bound []boundTerm, k int, opts DispatchOptions) []int {
	all := make([]int, len(c.shards))
	for i := range all {
		all[i] = i
	}
	if !opts.SelectShards || opts.ScorerName == "" || opts.MaxShards <= 0 || opts.MaxShards >= len(c.shards) {
		return all
	}

	type ranked struct {
		idx   int
		gamma threshold.Gamma
		n     int
	}
	shards := make([]ranked, 0, len(c.shards))
	var globalStats []threshold.TermStatistics
	for idx, shard := range c.shards {
		stats, ok := shardTermStatistics(shard, bound, opts.ScorerName)
		if !ok {
			return all // missing statistics somewhere: fall back to a full broadcast
		}
		globalStats = append(globalStats, stats...)
		shards = append(shards, ranked{idx: idx, gamma: threshold.Combine(stats), n: shard.CollectionSize()})
	}

	globalGamma := threshold.Combine(globalStats)
	globalThreshold := globalGamma.EstimateThreshold(c.CollectionSize(), k)

	sort.Slice(shards, func(i, j int) bool {
		si := threshold.ShardScore(shards[i].gamma, shards[i].n, globalThreshold)
		sj := threshold.ShardScore(shards[j].gamma, shards[j].n, globalThreshold)
		return si > sj
	})

	picked := make([]int, 0, opts.MaxShards)
	for _, s := range shards[:opts.MaxShards] {
		picked = append(picked, s.idx)
	}
	sort.Ints(picked)
	return picked
}

func shardTermStatistics(shard *index.View, bound []boundTerm, scorerName string) ([]threshold.TermStatistics, bool) {
	stats := make([]threshold.TermStatistics, 0, len(bound))
	for _, b := range bound {
		meanTbl, okM := shard.ScoreMean(scorerName)
		varTbl, okV := shard.ScoreVar(scorerName)
		if !okM || !okV {
			return nil, false
		}
		meanRaw, err := meanTbl.Lookup(int(b.id))
		if err != nil {
			return nil, false
		}
		varRaw, err := varTbl.Lookup(int(b.id))
		if err != nil {
			return nil, false
		}
		df, err := shard.TermCollectionFrequency(b.id)
		if err != nil {
			return nil, false
		}
		stats = append(stats, threshold.TermStatistics{
			Mean:              b.weight * math.Float64frombits(meanRaw),
			Variance:          b.weight * b.weight * math.Float64frombits(varRaw),
			DocumentFrequency: df,
		})
	}
	return stats, true
}
