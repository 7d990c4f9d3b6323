package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// RagStore persists documents and chunks.
// Backed by SQLite; chunk rows feed the KeywordIndex.
type RagStore interface {
	// GetDocumentByPath retrieves a document by its path.
	// Returns domain.ErrNotFound when the path has never been indexed.
	GetDocumentByPath(ctx context.Context, path string) (*domain.RagDocument, error)

	// ReplaceDocument deletes any document at doc.Path (cascading its chunks)
	// and writes doc and chunks in one transaction.
	ReplaceDocument(ctx context.Context, doc *domain.RagDocument, chunks []domain.RagChunk) error

	// DeleteDocument removes the document at path and its chunks.
	// Returns the removed chunk IDs, or domain.ErrNotFound.
	DeleteDocument(ctx context.Context, path string) ([]string, error)

	// ListDocuments returns all documents ordered by path.
	ListDocuments(ctx context.Context) ([]domain.RagDocument, error)

	// ChunkIDs returns the chunk IDs of the document at path.
	ChunkIDs(ctx context.Context, path string) ([]string, error)

	// GetChunks returns the requested chunks joined with their documents.
	// Missing IDs are absent from the map.
	GetChunks(ctx context.Context, ids []string) (map[string]domain.LocatedChunk, error)

	// ClearDocuments deletes every document and chunk.
	// Returns the number of documents and chunks removed.
	ClearDocuments(ctx context.Context) (docs, chunks int64, err error)
}
