package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wizenheimer/irkit/pkg/cluster"
	"github.com/wizenheimer/irkit/pkg/index"
)

func statsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "stats <index-dir>",
		Short: "Print index or cluster properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args[0])
		},
	}
	return c
}

func runStats(dir string) error {
	src, err := index.Open(dir)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dir, err)
	}

	if src.Properties.ShardCount > 0 {
		return printClusterStats(dir)
	}

	view, err := index.OpenView(src)
	if err != nil {
		return fmt.Errorf("opening index view: %w", err)
	}
	printIndexStats("", view)
	return nil
}

func printIndexStats(prefix string, view *index.View) {
	fmt.Printf("%sdocuments:         %d\n", prefix, view.CollectionSize())
	fmt.Printf("%sterms:             %d\n", prefix, view.TermCount())
	fmt.Printf("%savg document size: %.2f\n", prefix, view.AvgDocumentSize())
}

func printClusterStats(dir string) error {
	c, err := cluster.Open(dir)
	if err != nil {
		return fmt.Errorf("opening cluster: %w", err)
	}
	fmt.Printf("cluster:           %s\n", dir)
	fmt.Printf("shards:            %d\n", c.ShardCount())
	fmt.Printf("documents:         %d\n", c.CollectionSize())
	fmt.Printf("avg document size: %.2f\n", c.AvgDocumentSize())
	for i, shard := range c.Shards() {
		fmt.Printf("shard %03d:\n", i)
		printIndexStats("  ", shard)
	}
	return nil
}
