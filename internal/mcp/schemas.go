package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolIndex  = "index_codebase"
	ToolSearch = "search_code"
	ToolStatus = "get_status"
	ToolClear  = "clear_index"
)

func pathProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// indexCodebaseTool returns the tool definition for index_codebase
func indexCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolIndex,
		Description: "Index or incrementally re-sync a source tree so it can be searched. Only changed files are re-embedded.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Absolute path to the project root"),
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, drop the existing index and embed every file again",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSearch,
		Description: "Search an indexed source tree with a natural language or keyword query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Absolute path to an indexed project"),
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Drop results scoring below this value (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"hybrid": map[string]interface{}{
					"type":        "boolean",
					"description": "Combine semantic and full-text ranking. Falls back to semantic only when the index has no full-text support.",
					"default":     true,
				},
				"extensions": map[string]interface{}{
					"type":        "array",
					"description": "Only return chunks from files with these extensions (e.g. .go, .py)",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"path", "query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolStatus,
		Description: "Report whether a project is indexed, with file and chunk counts",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Absolute path to the project root"),
			},
			Required: []string{"path"},
		},
	}
}

// clearIndexTool returns the tool definition for clear_index
func clearIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolClear,
		Description: "Delete the index of a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Absolute path to the project root"),
			},
			Required: []string{"path"},
		},
	}
}
