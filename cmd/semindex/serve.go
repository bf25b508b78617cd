package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/mcp"
	"github.com/dshills/semindex/internal/vectorstore/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP tool server on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		a.logger.Info("MCP server starting",
			zap.String("version", version),
			zap.String("backend", a.store.Backend().Name()),
			zap.String("sqlite_build", sqlite.BuildMode),
			zap.String("embedder", a.embedder.Provider()+"/"+a.embedder.Model()))

		server := mcp.NewServer(a.indexer, a.searcher, mcp.SearchDefaults{
			TopK:           a.cfg.Search.TopK,
			ScoreThreshold: a.cfg.Search.ScoreThreshold,
			Hybrid:         a.cfg.Search.Hybrid,
		}, a.logger)
		err = server.Serve(ctx)
		a.logger.Info("MCP server stopped")
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
