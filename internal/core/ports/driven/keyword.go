package driven

import (
	"context"
)

// KeywordIndex provides full-text search over chunk text.
// Backed by SQLite FTS5 with BM25 ranking.
type KeywordIndex interface {
	// SearchChunks performs a keyword search and returns matching chunk IDs
	// with scores normalised to [0,1], best first.
	SearchChunks(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// SearchHit represents a keyword search result.
type SearchHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the normalised relevance score (1 is the best hit).
	Score float64
}
