package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeChunk(t *testing.T) {
	c := NewCodeChunk("pkg/foo/bar.go", "func Bar() {}", 3, 3, "go")

	assert.Equal(t, ".go", c.FileExtension)
	assert.Equal(t, "go", c.Language)
	assert.Len(t, c.ID, len("chunk_")+32)
	require.NoError(t, c.Validate())
}

func TestComputeID_Deterministic(t *testing.T) {
	a := NewCodeChunk("a.py", "print(1)", 1, 1, "python")
	b := NewCodeChunk("a.py", "print(1)", 1, 1, "python")
	assert.Equal(t, a.ID, b.ID)

	tests := []struct {
		name  string
		chunk CodeChunk
	}{
		{"different path", NewCodeChunk("b.py", "print(1)", 1, 1, "python")},
		{"different start", NewCodeChunk("a.py", "print(1)", 2, 2, "python")},
		{"different content", NewCodeChunk("a.py", "print(2)", 1, 1, "python")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, a.ID, tt.chunk.ID)
		})
	}
}

func TestCodeChunk_Validate(t *testing.T) {
	tests := []struct {
		name    string
		chunk   CodeChunk
		wantErr error
	}{
		{"missing id", CodeChunk{RelativePath: "a", Content: "x", StartLine: 1, EndLine: 1}, ErrInvalidChunkID},
		{"missing path", CodeChunk{ID: "c", Content: "x", StartLine: 1, EndLine: 1}, ErrMissingPath},
		{"blank content", CodeChunk{ID: "c", RelativePath: "a", Content: " \n", StartLine: 1, EndLine: 1}, ErrEmptyContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.chunk.Validate(), tt.wantErr)
		})
	}

	bad := CodeChunk{ID: "c", RelativePath: "a", Content: "x", StartLine: 5, EndLine: 2}
	assert.Error(t, bad.Validate())
}

func TestExtensionOf(t *testing.T) {
	assert.Equal(t, ".ts", extensionOf("src/app/main.ts"))
	assert.Equal(t, "", extensionOf("Makefile"))
	assert.Equal(t, "", extensionOf("dir.d/.hidden"))
}

func TestSearchResult_Validate(t *testing.T) {
	ok := SearchResult{ChunkID: "c", Rank: 1, Score: 0.5, RelativePath: "a.go", Content: "x"}
	require.NoError(t, ok.Validate())

	r := ok
	r.Score = 1.5
	assert.ErrorIs(t, r.Validate(), ErrInvalidRelevanceScore)

	r = ok
	r.Rank = 0
	assert.ErrorIs(t, r.Validate(), ErrInvalidRank)
}

func TestFileFingerprint_Matches(t *testing.T) {
	a := FileFingerprint{RelativePath: "a", ContentHash: "h", Size: 1}
	assert.True(t, a.Matches(FileFingerprint{RelativePath: "b", ContentHash: "h", Size: 1}))
	assert.False(t, a.Matches(FileFingerprint{ContentHash: "h", Size: 2}))
}
