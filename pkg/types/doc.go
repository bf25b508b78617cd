// Package types provides shared type definitions for semindex.
//
// # Core Types
//
// CodeChunk is the unit of retrieval. Its ID is content-addressed: the same
// path, line range and content always produce the same ID, so re-indexing
// unchanged content is idempotent.
//
//	chunk := types.NewCodeChunk("internal/foo/bar.go", body, 10, 42, "go")
//	fmt.Println(chunk.ID) // chunk_3f1c...
//
// FileFingerprint records the content hash and size of an indexed file.
//
// SearchResult carries a chunk reference together with a score normalized to
// the [0, 1] range and a 1-based rank:
//
//	result := types.SearchResult{
//	    ChunkID:      chunk.ID,
//	    Rank:         1,
//	    Score:        0.92,
//	    RelativePath: chunk.RelativePath,
//	    Content:      chunk.Content,
//	}
package types
