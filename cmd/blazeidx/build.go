package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wizenheimer/irkit/pkg/analyze"
	"github.com/wizenheimer/irkit/pkg/index"
)

func buildCmd() *cobra.Command {
	var blockSize, keysPerBlock int

	c := &cobra.Command{
		Use:   "build <index-dir> <doc.txt...>",
		Short: "Build an index from plain-text documents",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(args[0], args[1:], blockSize, keysPerBlock)
		},
	}
	c.Flags().IntVar(&blockSize, "block-size", 128, "Posting-list block size")
	c.Flags().IntVar(&keysPerBlock, "keys-per-block", 16, "Lexicon front-coding block size")
	return c
}

func runBuild(indexDir string, docPaths []string, blockSize, keysPerBlock int) error {
	b := index.NewBuilder(index.WithBlockSize(blockSize), index.WithKeysPerBlock(keysPerBlock))

	for _, path := range docPaths {
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		title := filepath.Base(path)
		b.AddDocument(title)
		for _, tok := range analyze.Analyze(string(text)) {
			if err := b.AddTerm(tok); err != nil {
				return fmt.Errorf("indexing %s: %w", path, err)
			}
		}
	}

	if err := b.Finish(indexDir); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	fmt.Printf("built index at %s from %d documents\n", indexDir, len(docPaths))
	return nil
}
