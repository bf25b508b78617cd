// Package mcp implements the Model Context Protocol (MCP) server for semindex.
//
// The MCP server exposes four tools to AI coding assistants:
//   - index_codebase: Index or incrementally re-sync a source tree
//   - search_code: Search an indexed tree with natural language queries
//   - get_status: Check whether a tree is indexed, with counts
//   - clear_index: Delete the index of a tree
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started by the serve command and reads requests from stdin.
// Logs go to stderr so stdout carries protocol messages only.
//
//	semindex serve
//
// # Tool: index_codebase
//
//	Request:
//	{
//	  "name": "index_codebase",
//	  "arguments": {"path": "/path/to/project", "force_reindex": false}
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "added": 3, "modified": 1, "deleted": 0, "unchanged": 241,
//	  "chunks_produced": 17, "chunks_failed": 0, "files_failed": 0,
//	  "partial": false,
//	  "duration_ms": 1840
//	}
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "query": "retry with exponential backoff",
//	    "limit": 5,
//	    "min_score": 0.3,
//	    "hybrid": true,
//	    "extensions": [".go"]
//	  }
//	}
//
// Results carry a score in [0, 1], a 1-based rank, the relative path and the
// line range. "fallback": true means the index has no full-text support and
// the hybrid request was answered by semantic search alone.
//
// # Error Handling
//
// Errors are returned as JSON-RPC errors with these codes:
//
//	-32602  Invalid parameters (missing path, relative path, bad limit)
//	-32603  Internal error
//	-32002  Indexing already in progress for this path
//	-32003  Project not indexed
//	-32004  Empty query
//	-32005  Vector store unavailable
package mcp
