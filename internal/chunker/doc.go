// Package chunker divides source files into bounded chunks for embedding and search.
//
// Splitter walks the syntax tree produced by the parser package and packs
// whole-line pieces into chunks at node boundaries. FallbackSplitter cuts
// plain text into sliding windows and is used for languages without a
// grammar and for nodes that cannot be broken up any further.
//
// # Basic Usage
//
//	s := chunker.New(parser.New(), chunker.DefaultOptions(), logger)
//	chunks, err := s.Split(ctx, "internal/app/app.go", "go", content)
//	if err != nil {
//	    return err
//	}
//
//	for _, c := range chunks {
//	    fmt.Printf("%s lines %d-%d\n", c.ID, c.StartLine, c.EndLine)
//	}
//
// # Chunk Sizing
//
// Sizes are measured in bytes:
//   - ChunkSize bounds the chunk body
//   - ChunkOverlap bounds the prefix copied from the previous chunk
//   - MinChunkChars drops chunks with less visible content
//
// A node larger than ChunkSize is split at the next grammar level (a function
// into its statements, a markdown section into its blocks). When no level is
// left, that span alone is cut into windows, on line breaks when possible.
//
// # Determinism
//
// Chunk IDs are derived from path, line range and content, so splitting the
// same content twice gives identical chunks.
package chunker
