package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/reorder"
)

func reorderCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "reorder <index-dir> <out-dir> <titles-file>",
		Short: "Rewrite an index under a new document order",
		Long: `Rewrite an index under a new document order, given as a text file
listing one document title per line in the desired order. Titles absent
from the index are ignored; documents absent from the file are dropped.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReorder(args[0], args[1], args[2])
		},
	}
	return c
}

func runReorder(indexDir, outDir, titlesPath string) error {
	src, err := index.Open(indexDir)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	view, err := index.OpenView(src)
	if err != nil {
		return fmt.Errorf("opening index view: %w", err)
	}

	titles, err := readLines(titlesPath)
	if err != nil {
		return fmt.Errorf("reading titles file: %w", err)
	}

	if err := reorder.Reorder(view, titles, outDir); err != nil {
		return fmt.Errorf("reordering: %w", err)
	}
	fmt.Printf("reordered %s into %s (%d documents requested)\n", indexDir, outDir, len(titles))
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
