// Command blazeidx builds, queries, partitions, and reorders inverted
// indexes produced by this module.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "blazeidx",
		Short: "blazeidx builds and queries block-compressed inverted indexes",
		Long: `blazeidx is a command-line front end over this module's index core.

Usage:
  blazeidx build <index-dir> <doc.txt...>    Build an index from plain-text documents
  blazeidx score <index-dir>                 Write a quantized scored-postings layer
  blazeidx query <index-dir> <term...>       Run a top-k query against an index
  blazeidx partition <index-dir> <out-dir>   Split an index into shards
  blazeidx reorder <index-dir> <out-dir>     Rewrite an index under a new document order
  blazeidx stats <index-dir>                 Print index or cluster properties`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = versionString()
	root.SetVersionTemplate("blazeidx {{.Version}}\n")

	root.AddCommand(buildCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(partitionCmd())
	root.AddCommand(reorderCmd())
	root.AddCommand(statsCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "blazeidx: "+err.Error())
		os.Exit(1)
	}
}

func versionString() string {
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			return bi.Main.Version
		}
	}
	return "dev"
}
