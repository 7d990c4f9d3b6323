package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// MemoryService manages user-curated long-term memories.
type MemoryService interface {
	// Save creates a memory and indexes each supplied embedding.
	Save(ctx context.Context, content, memoryType string, embeddings domain.EmbeddingSet) (*domain.LongTermMemory, error)

	// Update replaces a memory's content, type and embeddings in place.
	// Returns domain.ErrNotFound for an unknown ID.
	Update(ctx context.Context, id, content, memoryType string,
		embeddings domain.EmbeddingSet) (*domain.LongTermMemory, error)

	// Get retrieves a memory by ID.
	Get(ctx context.Context, id string) (*domain.LongTermMemory, error)

	// List returns memories filtered by type, ranked by similarity when
	// opts.Query is set and newest first otherwise.
	List(ctx context.Context, opts domain.MemoryListOptions) ([]domain.MemoryResult, error)

	// Delete removes a memory. Its index slots are soft-deleted.
	Delete(ctx context.Context, id string) error

	// Clear deletes every memory.
	Clear(ctx context.Context) (*domain.ClearReport, error)
}
