package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/semindex/internal/indexer"
)

var (
	flagForce   bool
	flagTimeout time.Duration
)

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a source tree, re-embedding only changed files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if flagTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, flagTimeout)
			defer cancel()
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Indexing %s...\n", args[0])
		summary, err := a.indexer.SyncWithOptions(ctx, args[0], indexer.SyncOptions{Force: flagForce})
		if summary != nil {
			printSummary(cmd, summary)
		}
		return err
	},
}

func printSummary(cmd *cobra.Command, s *indexer.SyncSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nDone in %s", s.Duration.Round(time.Millisecond))
	if s.Partial {
		fmt.Fprint(out, " (partial: deadline reached, run again to continue)")
	}
	fmt.Fprintln(out)
	if s.FullReindex {
		fmt.Fprintln(out, "  Full reindex")
	}
	fmt.Fprintf(out, "  Files:   %d added, %d modified, %d deleted, %d unchanged, %d failed\n",
		s.Added, s.Modified, s.Deleted, s.Unchanged, s.FilesFailed)
	fmt.Fprintf(out, "  Chunks:  %d stored, %d failed\n", s.ChunksProduced, s.ChunksFailed)
	for _, e := range s.Errors {
		fmt.Fprintf(out, "  ! %s\n", e)
	}
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "drop the existing index and embed every file again")
	indexCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "stop after this long, keeping files committed so far")
	rootCmd.AddCommand(indexCmd)
}
