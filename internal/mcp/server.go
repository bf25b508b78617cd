package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/internal/searcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "semindex"
	// ServerVersion is the current server version
	ServerVersion = "0.3.0"
)

// SearchDefaults apply when a search_code call leaves a parameter out
type SearchDefaults struct {
	TopK           int
	ScoreThreshold float64
	Hybrid         bool
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	defaults SearchDefaults
	logger   *zap.Logger
}

// NewServer creates a new MCP server instance over an indexer and a
// searcher built by the caller.
func NewServer(idx *indexer.Indexer, srch *searcher.Searcher, defaults SearchDefaults, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.TopK <= 0 {
		defaults.TopK = searcher.DefaultTopK
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		indexer:  idx,
		searcher: srch,
		defaults: defaults,
		logger:   logger,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP server on stdio until the client disconnects
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(clearIndexTool(), s.handleClearIndex)
}
