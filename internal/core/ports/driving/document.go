package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// DocumentService indexes local files and searches their chunks.
type DocumentService interface {
	// IndexPaths indexes every supported file under paths, skipping files
	// whose fingerprint, size and modification time are unchanged.
	// Cancellation is checked between files; the partial report is
	// returned with ctx.Err().
	IndexPaths(ctx context.Context, paths []string, recursive bool) (*domain.IndexReport, error)

	// Search fuses vector and keyword results into the top k chunks.
	// Either query or queryText may be empty.
	Search(ctx context.Context, query []float32, queryText string, k int) ([]domain.DocumentSearchResult, error)

	// RemovePaths deletes the documents at or under paths.
	RemovePaths(ctx context.Context, paths []string) (int, error)

	// List returns every indexed document ordered by path.
	List(ctx context.Context) ([]domain.RagDocument, error)

	// Clear deletes every document and chunk and rebuilds the document index.
	Clear(ctx context.Context) (*domain.ClearReport, error)
}
