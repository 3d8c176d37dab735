// Package cluster treats a directory of shard indexes as a single
// logical index: it loads one index.View per shard, exposes
// collection-wide statistics built from the cluster's global term
// tables, and dispatches queries across shards with a bounded-parallel
// broadcast.
package cluster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wizenheimer/irkit/pkg/compact"
	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/lexicon"
	"github.com/wizenheimer/irkit/pkg/score"
)

// Cluster is a read-only facade over a sharded index directory.
type Cluster struct {
	dir    string
	props  index.Properties
	shards []*index.View

	terms       *lexicon.Lexicon
	docFreq     *compact.Table
	occurrences *compact.Table
}

// Open loads a cluster rooted at dir. dir's properties.json must
// declare shard_count > 0; each numbered subdirectory 000..shard_count-1
// is opened as a complete index.View.
func Open(dir string) (*Cluster, error) {
	propsBytes, err := os.ReadFile(filepath.Join(dir, "properties.json"))
	if err != nil {
		return nil, fmt.Errorf("cluster: reading properties.json: %w", err)
	}
	var props index.Properties
	if err := json.Unmarshal(propsBytes, &props); err != nil {
		return nil, fmt.Errorf("cluster: parsing properties.json: %w", err)
	}
	if props.ShardCount <= 0 {
		return nil, fmt.Errorf("cluster: %s is not a cluster directory (shard_count=%d)", dir, props.ShardCount)
	}

	shards := make([]*index.View, 0, props.ShardCount)
	for s := 0; s < props.ShardCount; s++ {
		shardDir := filepath.Join(dir, fmt.Sprintf("%03d", s))
		src, err := index.Open(shardDir)
		if err != nil {
			return nil, fmt.Errorf("cluster: opening shard %d: %w", s, err)
		}
		view, err := index.OpenView(src)
		if err != nil {
			return nil, fmt.Errorf("cluster: building view for shard %d: %w", s, err)
		}
		shards = append(shards, view)
	}

	termsBuf, err := os.ReadFile(filepath.Join(dir, "terms.map"))
	if err != nil {
		return nil, fmt.Errorf("cluster: reading terms.map: %w", err)
	}
	terms, err := lexicon.Open(termsBuf)
	if err != nil {
		return nil, fmt.Errorf("cluster: opening terms.map: %w", err)
	}

	docFreqBuf, err := os.ReadFile(filepath.Join(dir, "terms.docfreq"))
	if err != nil {
		return nil, fmt.Errorf("cluster: reading terms.docfreq: %w", err)
	}
	docFreq, err := compact.Open(docFreqBuf)
	if err != nil {
		return nil, fmt.Errorf("cluster: opening terms.docfreq: %w", err)
	}

	occBuf, err := os.ReadFile(filepath.Join(dir, "terms.occurrences"))
	if err != nil {
		return nil, fmt.Errorf("cluster: reading terms.occurrences: %w", err)
	}
	occurrences, err := compact.Open(occBuf)
	if err != nil {
		return nil, fmt.Errorf("cluster: opening terms.occurrences: %w", err)
	}

	return &Cluster{
		dir:         dir,
		props:       props,
		shards:      shards,
		terms:       terms,
		docFreq:     docFreq,
		occurrences: occurrences,
	}, nil
}

// Shards returns the cluster's shard views, in shard-id order.
func (c *Cluster) Shards() []*index.View { return c.shards }

// ShardCount returns the number of shards in the cluster.
func (c *Cluster) ShardCount() int { return len(c.shards) }

// CollectionSize is the sum of every shard's document count.
func (c *Cluster) CollectionSize() int { return c.props.DocumentCount }

// AvgDocumentSize is the cluster-wide average document length, as
// recorded in the cluster's own properties.json at partition time.
func (c *Cluster) AvgDocumentSize() float64 { return c.props.AvgDocumentSize }

// TermID looks up a term string against the cluster's global term
// dictionary.
func (c *Cluster) TermID(term string) (ids.Term, bool) {
	id, ok := c.terms.IndexAt(term)
	if !ok {
		return ids.NoTerm, false
	}
	return ids.Term(id), true
}

// TermCollectionFrequency returns a term's global document frequency,
// summed across every shard.
func (c *Cluster) TermCollectionFrequency(t ids.Term) (ids.Frequency, error) {
	val, err := c.docFreq.Lookup(int(t))
	if err != nil {
		return 0, err
	}
	return ids.Frequency(val), nil
}

// TermOccurrences returns a term's global occurrence count, summed
// across every shard.
func (c *Cluster) TermOccurrences(t ids.Term) (ids.Frequency, error) {
	val, err := c.occurrences.Lookup(int(t))
	if err != nil {
		return 0, err
	}
	return ids.Frequency(val), nil
}

// TermScorer builds a scorer for a term using cluster-wide collection
// statistics rather than a single shard's own — this is what makes
// scores comparable across shards, since every shard runs the same
// idf-like weighting. The scorer closure still takes a per-document
// length at call time, which callers supply from the shard they are
// actually scoring against, so document lengths stay per-shard even
// though the term statistics are global. shardIdx is accepted for
// symmetry with the shard-scoped callers in Dispatch; it is only
// range-checked and does not otherwise affect the scorer.
func (c *Cluster) TermScorer(shardIdx int, t ids.Term, tag index.ScorerTag) (score.Scorer, error) {
	if shardIdx < 0 || shardIdx >= len(c.shards) {
		return nil, fmt.Errorf("cluster: shard index %d out of range [0,%d)", shardIdx, len(c.shards))
	}
	df, err := c.TermCollectionFrequency(t)
	if err != nil {
		return nil, err
	}
	occ, err := c.TermOccurrences(t)
	if err != nil {
		return nil, err
	}
	coll := score.CollectionStats{
		DocumentCount:     c.CollectionSize(),
		AvgDocumentLength: c.AvgDocumentSize(),
		TotalOccurrences:  c.props.OccurrencesCount,
	}
	term := score.TermStats{DocumentFrequency: df, CollectionOccurrences: occ}

	switch tag {
	case index.ScorerBM25:
		return score.BM25(coll, term, score.DefaultBM25Params()), nil
	case index.ScorerQueryLikelihood:
		return score.QueryLikelihood(coll, term, score.DefaultQLParams()), nil
	default:
		return nil, fmt.Errorf("cluster: unknown scorer tag %d", tag)
	}
}
