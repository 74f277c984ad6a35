package types

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	Rank int // Position in result set (1-based)

	// Scoring
	RelevanceScore float64 // Cosine similarity mapped to [0, 1]

	Record *IndexRecord
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.RelevanceScore < 0 || sr.RelevanceScore > 1 {
		return ErrInvalidRelevanceScore
	}

	if sr.Record == nil {
		return ErrMissingRecord
	}

	if sr.Record.Text == "" {
		return ErrEmptyContent
	}

	return nil
}
