package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/internal/searcher"
	"github.com/dshills/semindex/internal/vectorstore"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Project not indexed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeStoreUnavailable   = -32005 // Vector store cannot be reached
)

// maxReportedErrors caps per-file errors echoed back to the client
const maxReportedErrors = 5

// handleIndexCodebase handles the index_codebase tool invocation
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, path, err := pathArgs(request)
	if err != nil {
		return nil, err
	}

	opts := indexer.SyncOptions{Force: getBoolDefault(args, "force_reindex", false)}
	summary, err := s.indexer.SyncWithOptions(ctx, path, opts)
	if err != nil {
		s.logger.Warn("index_codebase failed", zap.String("path", path), zap.Error(err))
		return nil, classify("indexing failed", err)
	}

	response := map[string]interface{}{
		"indexed":         true,
		"path":            summary.Root,
		"added":           summary.Added,
		"modified":        summary.Modified,
		"deleted":         summary.Deleted,
		"unchanged":       summary.Unchanged,
		"chunks_produced": summary.ChunksProduced,
		"chunks_failed":   summary.ChunksFailed,
		"files_failed":    summary.FilesFailed,
		"partial":         summary.Partial,
		"full_reindex":    summary.FullReindex,
		"duration_ms":     summary.Duration.Milliseconds(),
	}
	if n := len(summary.Errors); n > 0 {
		if n > maxReportedErrors {
			response["errors"] = summary.Errors[:maxReportedErrors]
			response["error_count"] = n
		} else {
			response["errors"] = summary.Errors
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, path, err := pathArgs(request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", s.defaults.TopK)
	if limit < 1 || limit > searcher.MaxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	minScore := getFloatDefault(args, "min_score", s.defaults.ScoreThreshold)
	if minScore < 0 || minScore > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "min_score must be between 0 and 1", map[string]interface{}{
			"param": "min_score",
			"value": minScore,
		})
	}

	req := searcher.SearchRequest{
		Root:           path,
		Query:          query,
		TopK:           limit,
		ScoreThreshold: minScore,
		Extensions:     getStringSlice(args, "extensions"),
	}
	search := s.searcher.Search
	if getBoolDefault(args, "hybrid", s.defaults.Hybrid) {
		search = s.searcher.HybridSearch
	}
	resp, err := search(ctx, req)
	if err != nil {
		return nil, classify("search failed", err)
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"rank":       r.Rank,
			"score":      r.Score,
			"path":       r.RelativePath,
			"start_line": r.StartLine,
			"end_line":   r.EndLine,
			"language":   r.Language,
			"content":    r.Content,
		})
	}

	response := map[string]interface{}{
		"query":       query,
		"results":     results,
		"total":       resp.TotalResults,
		"hybrid":      resp.Hybrid,
		"fallback":    resp.Fallback,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, path, err := pathArgs(request)
	if err != nil {
		return nil, err
	}

	st, err := s.indexer.Status(ctx, path)
	if err != nil {
		return nil, classify("failed to get status", err)
	}
	if !st.Indexed {
		response := map[string]interface{}{
			"indexed": false,
			"path":    st.Root,
			"message": "Project not indexed. Use index_codebase tool to index this project.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	response := map[string]interface{}{
		"indexed": true,
		"path":    st.Root,
		"index": map[string]interface{}{
			"collection":      st.Collection,
			"last_indexed_at": st.UpdatedAt.Format(time.RFC3339),
			"provider":        st.Provider,
			"model":           st.Model,
			"dimension":       st.Dimension,
		},
		"statistics": map[string]interface{}{
			"files_count":  st.Files,
			"chunks_count": st.Chunks,
		},
		"capabilities": map[string]interface{}{
			"full_text":       st.Capabilities.FullText,
			"native_fusion":   st.Capabilities.NativeFusion,
			"filtered_delete": st.Capabilities.FilteredDelete,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleClearIndex handles the clear_index tool invocation
func (s *Server) handleClearIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, path, err := pathArgs(request)
	if err != nil {
		return nil, err
	}
	if err := s.indexer.ClearIndex(ctx, path); err != nil {
		return nil, classify("failed to clear index", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cleared": true,
		"path":    path,
	})), nil
}

// Helper functions

// pathArgs extracts the arguments and the validated path parameter
func pathArgs(request mcp.CallToolRequest) (map[string]interface{}, string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return args, path, nil
}

// classify maps domain errors to MCP error codes
func classify(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, indexer.ErrSyncInProgress):
		code = ErrorCodeIndexingInProgress
	case errors.Is(err, searcher.ErrNotIndexed):
		code = ErrorCodeNotIndexed
	case errors.Is(err, searcher.ErrEmptyQuery):
		code = ErrorCodeEmptyQuery
	case errors.Is(err, searcher.ErrInvalidThreshold):
		code = ErrorCodeInvalidParams
	case errors.Is(err, vectorstore.ErrVectorStoreUnavailable):
		code = ErrorCodeStoreUnavailable
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path exists and is accessible
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringSlice extracts an array of strings, skipping other element types
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
