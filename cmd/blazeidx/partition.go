package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wizenheimer/irkit/pkg/index"
	"github.com/wizenheimer/irkit/pkg/partition"
)

func partitionCmd() *cobra.Command {
	var shards int
	var assignmentPath string

	c := &cobra.Command{
		Use:   "partition <index-dir> <cluster-dir>",
		Short: "Split an index into shards",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPartition(args[0], args[1], shards, assignmentPath)
		},
	}
	c.Flags().IntVar(&shards, "shards", 2, "Number of shards")
	c.Flags().StringVar(&assignmentPath, "assignment", "", "File with one shard id per document (default: round-robin)")
	return c
}

func runPartition(indexDir, clusterDir string, shards int, assignmentPath string) error {
	src, err := index.Open(indexDir)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	view, err := index.OpenView(src)
	if err != nil {
		return fmt.Errorf("opening index view: %w", err)
	}

	shardOf, err := loadOrBuildAssignment(assignmentPath, view.CollectionSize(), shards)
	if err != nil {
		return err
	}

	if err := partition.Partition(view, shardOf, shards, clusterDir); err != nil {
		return fmt.Errorf("partitioning: %w", err)
	}
	fmt.Printf("partitioned %s into %d shards at %s\n", indexDir, shards, clusterDir)
	return nil
}

// loadOrBuildAssignment reads a shard assignment file (one shard id per
// line, one line per document) if given, otherwise assigns documents
// to shards round-robin by document id.
func loadOrBuildAssignment(path string, documentCount, shards int) (partition.Assignment, error) {
	if path == "" {
		shardOf := make(partition.Assignment, documentCount)
		for d := range shardOf {
			shardOf[d] = d % shards
		}
		return shardOf, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening assignment file: %w", err)
	}
	defer f.Close()

	var shardOf partition.Assignment
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		v, err := strconv.Atoi(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("parsing assignment line %d: %w", len(shardOf)+1, err)
		}
		shardOf = append(shardOf, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return shardOf, nil
}
