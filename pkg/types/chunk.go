package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Metadata keys set by the splitters
const (
	MetaSplitter = "splitter"  // "ast" or "fallback"
	MetaNodeType = "node_type" // grammar node type of the first unit in the chunk
)

// CodeChunk is a bounded, line-addressable span of one file's text that is
// embedded and stored as a single retrievable unit.
type CodeChunk struct {
	// Identification
	ID           string
	RelativePath string // slash-separated, relative to the indexed root

	// Content
	Content string

	// Location (1-based, inclusive)
	StartLine int
	EndLine   int

	// Metadata
	Language      string
	FileExtension string
	Metadata      map[string]string
}

// NewCodeChunk builds a chunk and assigns its content-addressed ID.
func NewCodeChunk(relPath, content string, startLine, endLine int, language string) CodeChunk {
	c := CodeChunk{
		RelativePath:  relPath,
		Content:       content,
		StartLine:     startLine,
		EndLine:       endLine,
		Language:      language,
		FileExtension: extensionOf(relPath),
	}
	c.ID = c.ComputeID()
	return c
}

// ContentHash returns the hex SHA-256 of the chunk content
func (c *CodeChunk) ContentHash() string {
	return HashString(c.Content)
}

// ComputeID derives the chunk ID from path, line range and content hash.
// Identical input always yields the identical ID.
func (c *CodeChunk) ComputeID() string {
	key := fmt.Sprintf("%s:%d:%d:%s", c.RelativePath, c.StartLine, c.EndLine, c.ContentHash())
	sum := sha256.Sum256([]byte(key))
	return "chunk_" + hex.EncodeToString(sum[:])[:32]
}

// Validate performs validation of the chunk
func (c *CodeChunk) Validate() error {
	if c.ID == "" {
		return ErrInvalidChunkID
	}
	if c.RelativePath == "" {
		return ErrMissingPath
	}
	if strings.TrimSpace(c.Content) == "" {
		return ErrEmptyContent
	}
	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	return nil
}

// HashString returns the hex SHA-256 of s
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func extensionOf(relPath string) string {
	base := relPath
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[i:]
	}
	return ""
}
