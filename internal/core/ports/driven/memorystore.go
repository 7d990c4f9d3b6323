package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// MemoryStore persists long-term memories.
type MemoryStore interface {
	// SaveMemory inserts or replaces a memory.
	SaveMemory(ctx context.Context, memory *domain.LongTermMemory) error

	// GetMemory retrieves a memory with its committed slots.
	GetMemory(ctx context.Context, id string) (*domain.LongTermMemory, error)

	// GetMemories retrieves memories by ID. Missing IDs are absent from the map.
	GetMemories(ctx context.Context, ids []string) (map[string]domain.LongTermMemory, error)

	// ListMemories returns memories newest first, filtered by exact type
	// when memoryType is non-empty (limit <= 0 returns all).
	ListMemories(ctx context.Context, memoryType string, limit int) ([]domain.LongTermMemory, error)

	// DeleteMemory removes a memory, or returns domain.ErrNotFound.
	DeleteMemory(ctx context.Context, id string) error

	// ClearMemories deletes every memory and memory slot mapping.
	ClearMemories(ctx context.Context) (int64, error)
}
