package index

import (
	"fmt"

	"github.com/wizenheimer/irkit/pkg/compact"
	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/lexicon"
	"github.com/wizenheimer/irkit/pkg/postings"
	"github.com/wizenheimer/irkit/pkg/score"
)

// View is the read-only, query-time facade over a Source: term and
// document lookups, posting-list construction, and on-the-fly scorers.
// A View holds no mutable state of its own beyond what it decodes
// lazily from the Source it borrows from, so it is safe to share across
// goroutines.
type View struct {
	src *Source

	terms  *lexicon.Lexicon
	titles *lexicon.Lexicon

	docFreq     *compact.Table
	occurrences *compact.Table
	docSizes    *compact.Table
	docIDOff    *compact.Table
	docCountOff *compact.Table

	docIDBytes    []byte
	docCountBytes []byte

	scorerOffsets  map[string]*compact.Table
	scorerMaxScore map[string]*compact.Table
	scorerBytes    map[string][]byte
	scorerStats    map[string]scorerStatTables
}

type scorerStatTables struct {
	max, mean, variance *compact.Table
}

// OpenView builds a View over src, checking the invariants in §4.6:
// offset table sizes equal term_count, and properties.document_count
// equals both the title lexicon size and the document-sizes table
// size.
func OpenView(src *Source) (*View, error) {
	v := &View{
		src:            src,
		scorerOffsets:  make(map[string]*compact.Table),
		scorerMaxScore: make(map[string]*compact.Table),
		scorerBytes:    make(map[string][]byte),
		scorerStats:    make(map[string]scorerStatTables),
	}

	var err error
	if v.terms, err = lexicon.Open(mustFile(src, "terms.map")); err != nil {
		return nil, fmt.Errorf("index: opening terms.map: %w", err)
	}
	if v.titles, err = lexicon.Open(mustFile(src, "titles.map")); err != nil {
		return nil, fmt.Errorf("index: opening titles.map: %w", err)
	}
	if v.docFreq, err = compact.Open(mustFile(src, "terms.docfreq")); err != nil {
		return nil, fmt.Errorf("index: opening terms.docfreq: %w", err)
	}
	if v.occurrences, err = compact.Open(mustFile(src, "terms.occurrences")); err != nil {
		return nil, fmt.Errorf("index: opening terms.occurrences: %w", err)
	}
	if v.docSizes, err = compact.Open(mustFile(src, "doc.sizes")); err != nil {
		return nil, fmt.Errorf("index: opening doc.sizes: %w", err)
	}
	if v.docIDOff, err = compact.Open(mustFile(src, "doc.idoff")); err != nil {
		return nil, fmt.Errorf("index: opening doc.idoff: %w", err)
	}
	if v.docCountOff, err = compact.Open(mustFile(src, "doc.countoff")); err != nil {
		return nil, fmt.Errorf("index: opening doc.countoff: %w", err)
	}
	v.docIDBytes = mustFile(src, "doc.id")
	v.docCountBytes = mustFile(src, "doc.count")

	termCount := v.terms.Len()
	if v.docFreq.Len() != termCount || v.occurrences.Len() != termCount ||
		v.docIDOff.Len() != termCount || v.docCountOff.Len() != termCount {
		return nil, fmt.Errorf("index: offset/statistics table size disagrees with term_count %d", termCount)
	}
	if v.titles.Len() != src.Properties.DocumentCount {
		return nil, fmt.Errorf("index: title lexicon size %d disagrees with properties.document_count %d", v.titles.Len(), src.Properties.DocumentCount)
	}
	if v.docSizes.Len() != src.Properties.DocumentCount {
		return nil, fmt.Errorf("index: doc.sizes size %d disagrees with properties.document_count %d", v.docSizes.Len(), src.Properties.DocumentCount)
	}

	for _, scorer := range src.Scorers {
		offTbl, err := compact.Open(mustFile(src, scorer+".offsets"))
		if err != nil {
			return nil, fmt.Errorf("index: opening %s.offsets: %w", scorer, err)
		}
		if offTbl.Len() != termCount {
			return nil, fmt.Errorf("index: %s.offsets size %d disagrees with term_count %d", scorer, offTbl.Len(), termCount)
		}
		maxTbl, err := compact.Open(mustFile(src, scorer+".maxscore"))
		if err != nil {
			return nil, fmt.Errorf("index: opening %s.maxscore: %w", scorer, err)
		}
		v.scorerOffsets[scorer] = offTbl
		v.scorerMaxScore[scorer] = maxTbl
		v.scorerBytes[scorer] = mustFile(src, scorer+".scores")

		var stats scorerStatTables
		if b, ok := src.File(scorer + ".max"); ok {
			if stats.max, err = compact.Open(b); err != nil {
				return nil, fmt.Errorf("index: opening %s.max: %w", scorer, err)
			}
		}
		if b, ok := src.File(scorer + ".mean"); ok {
			if stats.mean, err = compact.Open(b); err != nil {
				return nil, fmt.Errorf("index: opening %s.mean: %w", scorer, err)
			}
		}
		if b, ok := src.File(scorer + ".var"); ok {
			if stats.variance, err = compact.Open(b); err != nil {
				return nil, fmt.Errorf("index: opening %s.var: %w", scorer, err)
			}
		}
		v.scorerStats[scorer] = stats
	}

	return v, nil
}

// Source exposes the underlying Source a View was opened over, for
// callers (the partitioner, the reorderer) that need raw file access
// alongside the View's decoded structures.
func (v *View) Source() *Source { return v.src }

// ScorerNames returns the names of the quantized-score layers present
// in this view's index.
func (v *View) ScorerNames() []string { return v.src.Scorers }

func mustFile(src *Source, name string) []byte {
	b, _ := src.File(name)
	return b
}

// TermCount returns the number of distinct terms in the index.
func (v *View) TermCount() int { return v.terms.Len() }

// CollectionSize returns the number of documents in the index.
func (v *View) CollectionSize() int { return v.src.Properties.DocumentCount }

// AvgDocumentSize returns the average document length in tokens.
func (v *View) AvgDocumentSize() float64 { return v.src.Properties.AvgDocumentSize }

// TermID looks up a term string, returning (id, true) if present.
func (v *View) TermID(term string) (ids.Term, bool) {
	id, ok := v.terms.IndexAt(term)
	if !ok {
		return ids.NoTerm, false
	}
	return ids.Term(id), true
}

// Term returns the string for a term id.
func (v *View) Term(t ids.Term) (string, error) {
	return v.terms.KeyAt(int(t))
}

// TermCollectionFrequency returns the document frequency of a term.
func (v *View) TermCollectionFrequency(t ids.Term) (ids.Frequency, error) {
	val, err := v.docFreq.Lookup(int(t))
	if err != nil {
		return 0, err
	}
	return ids.Frequency(val), nil
}

// TermOccurrences returns the total in-collection occurrence count of a
// term, summed over every document it appears in.
func (v *View) TermOccurrences(t ids.Term) (ids.Frequency, error) {
	val, err := v.occurrences.Lookup(int(t))
	if err != nil {
		return 0, err
	}
	return ids.Frequency(val), nil
}

// DocumentSize returns a document's length in tokens.
func (v *View) DocumentSize(d ids.Document) (int, error) {
	val, err := v.docSizes.Lookup(int(d))
	if err != nil {
		return 0, err
	}
	return int(val), nil
}

// Titles returns the document-title lexicon.
func (v *View) Titles() *lexicon.Lexicon { return v.titles }

// Terms returns the term lexicon.
func (v *View) Terms() *lexicon.Lexicon { return v.terms }

// byteRange slices [offsets.Lookup(i), end) out of data, where end is
// the next term's starting offset, or len(data) for the last term —
// the convention every offset table in this index follows.
func byteRange(offsets *compact.Table, data []byte, i int) ([]byte, error) {
	start, err := offsets.Lookup(i)
	if err != nil {
		return nil, err
	}
	end := uint64(len(data))
	if i+1 < offsets.Len() {
		end, err = offsets.Lookup(i + 1)
		if err != nil {
			return nil, err
		}
	}
	if end < start || int(end) > len(data) {
		return nil, fmt.Errorf("index: byte range [%d,%d) invalid for buffer of length %d", start, end, len(data))
	}
	return data[start:end], nil
}

// Documents returns the document-id list for a term.
func (v *View) Documents(t ids.Term) (*postings.DocList, error) {
	df, err := v.TermCollectionFrequency(t)
	if err != nil {
		return nil, err
	}
	buf, err := byteRange(v.docIDOff, v.docIDBytes, int(t))
	if err != nil {
		return nil, err
	}
	return postings.OpenDocList(buf, int(df))
}

// Frequencies returns the raw term-frequency payload list for a term.
func (v *View) Frequencies(t ids.Term) (*postings.PayloadList, error) {
	df, err := v.TermCollectionFrequency(t)
	if err != nil {
		return nil, err
	}
	buf, err := byteRange(v.docCountOff, v.docCountBytes, int(t))
	if err != nil {
		return nil, err
	}
	return postings.OpenPayloadList(buf, int(df))
}

// Postings returns the zipped (document, frequency) posting view for a
// term.
func (v *View) Postings(t ids.Term) (*postings.View, error) {
	docs, err := v.Documents(t)
	if err != nil {
		return nil, err
	}
	freqs, err := v.Frequencies(t)
	if err != nil {
		return nil, err
	}
	return postings.NewView(docs, freqs)
}

// ScoredPostings returns the zipped (document, quantized-score) posting
// view for a term under a precomputed scorer layer, plus that term's
// maximum quantized score.
func (v *View) ScoredPostings(t ids.Term, scorerName string) (*postings.View, uint64, error) {
	offsets, ok := v.scorerOffsets[scorerName]
	if !ok {
		return nil, 0, fmt.Errorf("index: unknown scorer %q", scorerName)
	}
	df, err := v.TermCollectionFrequency(t)
	if err != nil {
		return nil, 0, err
	}
	docs, err := v.Documents(t)
	if err != nil {
		return nil, 0, err
	}
	buf, err := byteRange(offsets, v.scorerBytes[scorerName], int(t))
	if err != nil {
		return nil, 0, err
	}
	scores, err := postings.OpenPayloadList(buf, int(df))
	if err != nil {
		return nil, 0, err
	}
	view, err := postings.NewView(docs, scores)
	if err != nil {
		return nil, 0, err
	}
	maxScore, err := v.scorerMaxScore[scorerName].Lookup(int(t))
	if err != nil {
		return nil, 0, err
	}
	return view, maxScore, nil
}

// ScoreMean, ScoreVar, and ScoreMax return the per-term statistics
// tables recorded for a scorer, if present.
func (v *View) ScoreMean(scorerName string) (*compact.Table, bool) {
	s, ok := v.scorerStats[scorerName]
	return s.mean, ok && s.mean != nil
}

func (v *View) ScoreVar(scorerName string) (*compact.Table, bool) {
	s, ok := v.scorerStats[scorerName]
	return s.variance, ok && s.variance != nil
}

func (v *View) ScoreMax(scorerName string) (*compact.Table, bool) {
	s, ok := v.scorerStats[scorerName]
	return s.max, ok && s.max != nil
}

// ScorerTag names which family of on-the-fly scorer TermScorer builds.
type ScorerTag int

const (
	ScorerBM25 ScorerTag = iota
	ScorerQueryLikelihood
)

// TermScorer builds an on-the-fly scorer closure for one term under the
// requested scorer family, using this view's collection statistics and
// default scorer parameters.
func (v *View) TermScorer(t ids.Term, tag ScorerTag) (score.Scorer, error) {
	df, err := v.TermCollectionFrequency(t)
	if err != nil {
		return nil, err
	}
	occ, err := v.TermOccurrences(t)
	if err != nil {
		return nil, err
	}
	coll := score.CollectionStats{
		DocumentCount:     v.CollectionSize(),
		AvgDocumentLength: v.AvgDocumentSize(),
		TotalOccurrences:  v.src.Properties.OccurrencesCount,
	}
	term := score.TermStats{DocumentFrequency: df, CollectionOccurrences: occ}

	switch tag {
	case ScorerBM25:
		return score.BM25(coll, term, score.DefaultBM25Params()), nil
	case ScorerQueryLikelihood:
		return score.QueryLikelihood(coll, term, score.DefaultQLParams()), nil
	default:
		return nil, fmt.Errorf("index: unknown scorer tag %d", tag)
	}
}
