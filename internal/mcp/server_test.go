package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/semindex/internal/chunker"
	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/internal/manifest"
	"github.com/dshills/semindex/internal/parser"
	"github.com/dshills/semindex/internal/searcher"
	"github.com/dshills/semindex/internal/vectorstore"
	"github.com/dshills/semindex/internal/vectorstore/memory"
)

func newTestServer(t *testing.T) (*Server, *indexer.Indexer) {
	t.Helper()
	p, err := embedder.NewLocalProvider(embedder.Config{Dimension: 128})
	require.NoError(t, err)
	coord := embedder.NewCoordinator(p, embedder.DefaultCoordinatorConfig(), nil)
	store := vectorstore.NewAdapter(memory.New(), nil)
	manifests, err := manifest.NewFileStore(t.TempDir())
	require.NoError(t, err)

	idx := indexer.New(chunker.New(parser.New(), chunker.DefaultOptions(), nil), coord, store, manifests, indexer.Config{}, nil)
	srch := searcher.New(coord, store, searcher.Config{}, nil)
	idx.OnIndexChanged(srch.InvalidateRoot)
	return NewServer(idx, srch, SearchDefaults{Hybrid: true}, nil), idx
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"retry.go": "package demo\n\n// retry calls fn with exponential backoff\nfunc retry(fn func() error) error {\n\treturn fn()\n}\n",
		"README.md": "# Demo\n\nA small project used for search tests.\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	return root
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func TestTools_IndexSearchStatusClear(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	root := newProject(t)

	res, err := s.handleGetStatus(ctx, call(map[string]interface{}{"path": root}))
	require.NoError(t, err)
	assert.Equal(t, false, decode(t, res)["indexed"])

	_, err = s.handleSearchCode(ctx, call(map[string]interface{}{"path": root, "query": "backoff"}))
	requireCode(t, err, ErrorCodeNotIndexed)

	res, err = s.handleIndexCodebase(ctx, call(map[string]interface{}{"path": root}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, float64(2), out["added"])
	assert.Equal(t, false, out["partial"])

	res, err = s.handleSearchCode(ctx, call(map[string]interface{}{
		"path":       root,
		"query":      "retry exponential backoff",
		"limit":      float64(5),
		"extensions": []interface{}{".go"},
	}))
	require.NoError(t, err)
	out = decode(t, res)
	assert.Equal(t, true, out["hybrid"])
	assert.Equal(t, true, out["fallback"], "memory backend has no full-text index")
	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "retry.go", first["path"])
	assert.Equal(t, float64(1), first["rank"])

	res, err = s.handleGetStatus(ctx, call(map[string]interface{}{"path": root}))
	require.NoError(t, err)
	out = decode(t, res)
	assert.Equal(t, true, out["indexed"])
	stats := out["statistics"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["files_count"])

	res, err = s.handleIndexCodebase(ctx, call(map[string]interface{}{"path": root, "force_reindex": true}))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, res)["full_reindex"])

	res, err = s.handleClearIndex(ctx, call(map[string]interface{}{"path": root}))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, res)["cleared"])

	_, err = s.handleSearchCode(ctx, call(map[string]interface{}{"path": root, "query": "backoff"}))
	requireCode(t, err, ErrorCodeNotIndexed)
}

func TestTools_InvalidParams(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	root := newProject(t)

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing path", map[string]interface{}{"query": "q"}, ErrorCodeInvalidParams},
		{"relative path", map[string]interface{}{"path": "relative/dir", "query": "q"}, ErrorCodeInvalidParams},
		{"missing dir", map[string]interface{}{"path": filepath.Join(root, "nope"), "query": "q"}, ErrorCodeInvalidParams},
		{"file not dir", map[string]interface{}{"path": filepath.Join(root, "retry.go"), "query": "q"}, ErrorCodeInvalidParams},
		{"empty query", map[string]interface{}{"path": root, "query": ""}, ErrorCodeEmptyQuery},
		{"limit too large", map[string]interface{}{"path": root, "query": "q", "limit": float64(500)}, ErrorCodeInvalidParams},
		{"min_score out of range", map[string]interface{}{"path": root, "query": "q", "min_score": 2.0}, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleSearchCode(ctx, call(tt.args))
			requireCode(t, err, tt.code)
		})
	}

	var req mcp.CallToolRequest
	req.Params.Arguments = "not an object"
	_, err := s.handleIndexCodebase(ctx, req)
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestClassify(t *testing.T) {
	requireCode(t, classify("x", indexer.ErrSyncInProgress), ErrorCodeIndexingInProgress)
	requireCode(t, classify("x", vectorstore.ErrVectorStoreUnavailable), ErrorCodeStoreUnavailable)
	requireCode(t, classify("x", os.ErrPermission), ErrorCodeInternalError)
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{
		"b":    true,
		"i":    float64(7),
		"f":    0.25,
		"list": []interface{}{".go", 3, ".py"},
	}
	assert.True(t, getBoolDefault(args, "b", false))
	assert.True(t, getBoolDefault(args, "missing", true))
	assert.Equal(t, 7, getIntDefault(args, "i", 1))
	assert.Equal(t, 0.25, getFloatDefault(args, "f", 0))
	assert.Equal(t, 0.5, getFloatDefault(args, "missing", 0.5))
	assert.Equal(t, []string{".go", ".py"}, getStringSlice(args, "list"))
	assert.Nil(t, getStringSlice(args, "missing"))
}
