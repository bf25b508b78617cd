package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/semindex/internal/searcher"
)

var (
	flagTopK       int
	flagThreshold  float64
	flagHybrid     bool
	flagExtensions []string
	flagNoContent  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <path> <query>",
	Short: "Search an indexed source tree",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		req := searcher.SearchRequest{
			Root:           args[0],
			Query:          strings.Join(args[1:], " "),
			TopK:           a.cfg.Search.TopK,
			ScoreThreshold: a.cfg.Search.ScoreThreshold,
			Extensions:     flagExtensions,
		}
		if cmd.Flags().Changed("top-k") {
			req.TopK = flagTopK
		}
		if cmd.Flags().Changed("threshold") {
			req.ScoreThreshold = flagThreshold
		}
		hybrid := a.cfg.Search.Hybrid
		if cmd.Flags().Changed("hybrid") {
			hybrid = flagHybrid
		}

		search := a.searcher.Search
		if hybrid {
			search = a.searcher.HybridSearch
		}
		resp, err := search(ctx, req)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if resp.Fallback {
			fmt.Fprintln(out, "(no full-text index: semantic results only)")
		}
		if len(resp.Results) == 0 {
			fmt.Fprintln(out, "No results.")
			return nil
		}
		for _, r := range resp.Results {
			fmt.Fprintf(out, "%2d. %s:%d-%d  score %.3f\n", r.Rank, r.RelativePath, r.StartLine, r.EndLine, r.Score)
			if !flagNoContent {
				fmt.Fprintln(out, indent(r.Content, "      "))
			}
		}
		return nil
	},
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func init() {
	searchCmd.Flags().IntVar(&flagTopK, "top-k", searcher.DefaultTopK, "number of results (1-100)")
	searchCmd.Flags().Float64Var(&flagThreshold, "threshold", 0, "drop results scoring below this (0-1)")
	searchCmd.Flags().BoolVar(&flagHybrid, "hybrid", true, "combine semantic and full-text ranking")
	searchCmd.Flags().StringSliceVar(&flagExtensions, "ext", nil, "only files with these extensions (e.g. --ext .go,.py)")
	searchCmd.Flags().BoolVar(&flagNoContent, "no-content", false, "print locations only")
	rootCmd.AddCommand(searchCmd)
}
