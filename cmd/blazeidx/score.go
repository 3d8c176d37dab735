package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/quantize"
)

func scoreCmd() *cobra.Command {
	var scorerName string
	var scorerFamily string
	var bitWidth int

	c := &cobra.Command{
		Use:   "score <index-dir>",
		Short: "Write a quantized scored-postings layer for an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(args[0], scorerName, scorerFamily, bitWidth)
		},
	}
	c.Flags().StringVar(&scorerName, "name", "bm25", "Name the scorer layer is written under")
	c.Flags().StringVar(&scorerFamily, "family", "bm25", "Scorer family to compute: bm25 or ql")
	c.Flags().IntVar(&bitWidth, "bits", 8, "Quantization bit width: 8, 16, 24, or 32")
	return c
}

func runScore(indexDir, scorerName, scorerFamily string, bitWidth int) error {
	src, err := index.Open(indexDir)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	view, err := index.OpenView(src)
	if err != nil {
		return fmt.Errorf("opening index view: %w", err)
	}

	var tag index.ScorerTag
	switch scorerFamily {
	case "bm25":
		tag = index.ScorerBM25
	case "ql":
		tag = index.ScorerQueryLikelihood
	default:
		return fmt.Errorf("unknown scorer family %q, want bm25 or ql", scorerFamily)
	}

	if err := quantize.Write(view, scorerName, tag, bitWidth, indexDir); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	fmt.Printf("wrote %s scorer layer (%s, %d-bit) for %s\n", scorerName, scorerFamily, bitWidth, indexDir)
	return nil
}
