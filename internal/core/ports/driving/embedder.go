package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// Embedder turns text into vectors with the configured providers.
// Outer surfaces use it to build the embeddings the stores accept.
type Embedder interface {
	// EmbedAll embeds text with every configured provider. Providers that
	// fail are reported in the map and left out of the set.
	EmbedAll(ctx context.Context, text string) (domain.EmbeddingSet, map[domain.Provider]error)

	// EmbedQuery embeds text with preferred, falling back to the other
	// configured providers. Returns the provider that produced the vector.
	EmbedQuery(ctx context.Context, text string, preferred domain.Provider) ([]float32, domain.Provider, error)

	// Providers lists the configured providers.
	Providers() []domain.Provider
}
