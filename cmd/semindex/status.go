package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <path>",
	Short: "Show what is indexed for a source tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		st, err := a.indexer.Status(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Root:        %s\n", st.Root)
		if !st.Indexed {
			fmt.Fprintln(out, "Not indexed. Run: semindex index", st.Root)
			return nil
		}
		fmt.Fprintf(out, "Collection:  %s (%s)\n", st.Collection, a.store.Backend().Name())
		fmt.Fprintf(out, "Files:       %d\n", st.Files)
		fmt.Fprintf(out, "Chunks:      %d\n", st.Chunks)
		fmt.Fprintf(out, "Embeddings:  %s/%s, %d dimensions\n", st.Provider, st.Model, st.Dimension)
		fmt.Fprintf(out, "Updated:     %s\n", st.UpdatedAt.Local().Format(time.DateTime))
		fmt.Fprintf(out, "Full-text:   %v (native fusion: %v)\n", st.Capabilities.FullText, st.Capabilities.NativeFusion)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <path>",
	Short: "Delete the index of a source tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if err := a.indexer.ClearIndex(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Index cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, clearCmd)
}
