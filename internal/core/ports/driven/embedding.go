package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// EmbeddingService generates vector embeddings from text.
// This is an optional service - when nil, the provider's vectors are absent.
//
// Note: This is separate from VectorIndex which stores and searches vectors.
// EmbeddingService generates vectors; VectorIndex stores them.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small) as the remote provider
//   - Ollama (nomic-embed-text, all-minilm) as the local provider
type EmbeddingService interface {
	// Provider returns which provider slot this service fills.
	Provider() domain.Provider

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	// This is more efficient than calling Embed in a loop for large batches.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 384, 768, 1536).
	// This is determined by the model and must match the provider configuration.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
