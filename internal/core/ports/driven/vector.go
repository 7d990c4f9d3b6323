package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// VectorIndex provides approximate nearest-neighbour search for one
// provider's vectors. Slot numbers are private to the index: callers
// receive them from Insert and never choose them, except when replaying
// known slots through Rebuild.
//
// Backed by HNSW with cosine distance.
type VectorIndex interface {
	// Name returns the logical index name.
	Name() domain.IndexName

	// Dimension returns the fixed vector length.
	Dimension() int

	// Capacity returns the maximum number of physical slots.
	Capacity() int

	// Len returns the number of physical slots, including removed ones.
	Len() int

	// Insert adds a vector and returns its slot.
	// Returns domain.ErrCapacityExceeded when the index is full.
	Insert(ctx context.Context, vector []float32) (int, error)

	// Search returns up to k live slots ordered by ascending distance,
	// ties broken by ascending slot.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Remove logically deletes a slot. It stays allocated until Rebuild.
	Remove(ctx context.Context, slot int) error

	// Persist writes the index to its file.
	Persist() error

	// Load replaces the in-memory index with the persisted one.
	// Returns false when the file is missing, truncated or incompatible.
	Load() (bool, error)

	// Rebuild replaces the index with exactly the given vectors at their slots.
	// Searches keep using the previous index until the new one is swapped in.
	Rebuild(ctx context.Context, vectors []domain.SlotVector) error

	// Close releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// Slot is the matched index position.
	Slot int

	// Distance is the cosine distance (0 is identical).
	Distance float64
}
