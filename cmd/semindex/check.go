package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/pkg/types"
)

// checkCollection is created and dropped by the check command
const checkCollection = "semindex_check"

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the embedding provider and vector store end to end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		out := cmd.OutOrStdout()

		sample := types.NewCodeChunk("check/add.go", "// Add adds two numbers\nfunc Add(a, b int) int {\n\treturn a + b\n}\n", 1, 4, "go")

		start := time.Now()
		vector, err := a.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: sample.Content})
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		fmt.Fprintf(out, "Embedder:   %s/%s, %d dimensions (%s)\n",
			a.embedder.Provider(), a.embedder.Model(), len(vector.Vector), time.Since(start).Round(time.Millisecond))
		if len(vector.Vector) != a.embedder.Dimension() {
			return fmt.Errorf("embedder returned %d dimensions, expected %d", len(vector.Vector), a.embedder.Dimension())
		}

		caps, err := a.store.CreateHybridCollection(ctx, checkCollection, len(vector.Vector))
		if err != nil {
			return fmt.Errorf("create collection failed: %w", err)
		}
		defer func() { _ = a.store.DropCollection(ctx, checkCollection) }()

		if err := a.store.Insert(ctx, checkCollection, []vectorstore.Document{{Chunk: sample, Vector: vector.Vector}}); err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}
		resp, err := a.store.HybridSearch(ctx, checkCollection, vectorstore.HybridRequest{Vector: vector.Vector, Text: "add numbers"}, 1, nil)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(resp.Results) != 1 || resp.Results[0].ChunkID != sample.ID {
			return fmt.Errorf("stored chunk was not found by search")
		}

		fmt.Fprintf(out, "Store:      %s, full-text %v, native fusion %v, filtered delete %v\n",
			a.store.Backend().Name(), caps.FullText, caps.NativeFusion, caps.FilteredDelete)
		fmt.Fprintf(out, "Round trip: ok (score %.3f)\n", resp.Results[0].Score)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
