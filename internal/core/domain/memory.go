package domain

import "time"

// LongTermMemory is a user-curated fact. Unlike thoughts, memories may be
// updated in place and deleted.
type LongTermMemory struct {
	// ID is the unique identifier for the memory.
	ID string

	// Content is the remembered fact.
	Content string

	// MemoryType is a free-form tag (e.g. "personal", "preference").
	MemoryType string

	// CreatedAt is when the memory was first saved (UTC).
	CreatedAt time.Time

	// UpdatedAt is when the memory was last replaced (UTC).
	UpdatedAt time.Time

	// Embeddings holds the per-provider vectors.
	Embeddings EmbeddingSet

	// Slots records the vector index position per provider.
	Slots map[Provider]int
}

// MemoryListOptions configures a memory listing.
type MemoryListOptions struct {
	// Limit is the maximum number of results (0 means no limit).
	Limit int

	// MemoryType filters by exact tag match. Empty means all types.
	MemoryType string

	// Query ranks results by similarity when set.
	Query []float32
}

// MemoryResult is a listed memory with its ranking information.
type MemoryResult struct {
	// Memory is the listed memory.
	Memory LongTermMemory

	// Ranked is true when Distance came from a similarity search.
	Ranked bool

	// Distance is the cosine distance to the query when Ranked.
	Distance float64
}
