package types

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	// Identification
	ChunkID string
	Rank    int // Position in result set (1-based)

	// Scoring
	Score float64 // Normalized to [0,1], higher is more relevant

	// Chunk reference
	RelativePath string
	StartLine    int
	EndLine      int
	Content      string
	Language     string
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == "" {
		return ErrInvalidChunkID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.Score < 0 || sr.Score > 1 {
		return ErrInvalidRelevanceScore
	}

	if sr.RelativePath == "" {
		return ErrMissingPath
	}

	if sr.Content == "" {
		return ErrEmptyContent
	}

	return nil
}
