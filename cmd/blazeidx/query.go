package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/query"
)

type queryEngine func(ctx context.Context, terms []query.QueryTerm, k int) (*query.Results, error)

// resolveEngine looks up a named query engine. TAAT needs the
// collection size to size its dense accumulator, so it is bound here
// rather than in a package-level table.
func resolveEngine(name string, collectionSize int) (queryEngine, bool) {
	switch name {
	case "daat":
		return query.DAAT, true
	case "wand":
		return query.WAND, true
	case "maxscore":
		return query.MaxScore, true
	case "taat":
		return func(ctx context.Context, terms []query.QueryTerm, k int) (*query.Results, error) {
			return query.TAAT(ctx, terms, k, collectionSize)
		}, true
	default:
		return nil, false
	}
}

func queryCmd() *cobra.Command {
	var k int
	var engineName string

	c := &cobra.Command{
		Use:   "query <index-dir> <term...>",
		Short: "Run a top-k query against an index",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), args[0], args[1:], k, engineName)
		},
	}
	c.Flags().IntVar(&k, "k", 10, "Number of results to return")
	c.Flags().StringVar(&engineName, "engine", "daat", "Query engine: daat, wand, maxscore, taat")
	return c
}

func runQuery(ctx context.Context, indexDir string, terms []string, k int, engineName string) error {
	src, err := index.Open(indexDir)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	view, err := index.OpenView(src)
	if err != nil {
		return fmt.Errorf("opening index view: %w", err)
	}

	var qterms []query.QueryTerm
	for _, text := range terms {
		t, ok := view.TermID(text)
		if !ok {
			continue
		}
		postings, err := view.Postings(t)
		if err != nil {
			return err
		}
		scorer, err := view.TermScorer(t, index.ScorerBM25)
		if err != nil {
			return err
		}
		qterms = append(qterms, query.QueryTerm{
			Postings: postings,
			Weight:   1,
			MaxScore: ids.Score(1e9),
			Score: func(doc ids.Document, payload uint64) ids.Score {
				sz, err := view.DocumentSize(doc)
				if err != nil {
					return 0
				}
				return scorer(sz, ids.Frequency(payload))
			},
		})
	}
	if len(qterms) == 0 {
		fmt.Println("no query terms matched the index")
		return nil
	}

	engine, ok := resolveEngine(engineName, view.CollectionSize())
	if !ok {
		return fmt.Errorf("unknown engine %q", engineName)
	}
	res, err := engine(ctx, qterms, k)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	for _, hit := range res.Hits {
		title, err := view.Titles().KeyAt(int(hit.Document))
		if err != nil {
			return err
		}
		fmt.Printf("%d.\t%.4f\t%s\n", hit.Rank, float64(hit.Score), title)
	}
	return nil
}
