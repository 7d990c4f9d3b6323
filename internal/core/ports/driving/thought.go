package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// ThoughtService manages short-term conversational memory.
type ThoughtService interface {
	// Append writes a message and indexes each supplied embedding.
	// The row is kept even when some providers fail; failures are listed
	// in the result. An error is returned alongside the result only when
	// an index is full (domain.ErrCapacityExceeded).
	Append(ctx context.Context, conversationID string, role domain.Role, text string,
		embeddings domain.EmbeddingSet) (*domain.AppendResult, error)

	// Search returns up to k thoughts nearest to query. The provider is
	// chosen by the query's length; hint narrows an ambiguous match.
	Search(ctx context.Context, query []float32, k int, hint domain.Provider) ([]domain.ThoughtHit, error)

	// Get retrieves a thought by ID.
	Get(ctx context.Context, id string) (*domain.Thought, error)

	// ListConversation returns the newest limit messages in chronological order.
	ListConversation(ctx context.Context, conversationID string, limit int) ([]domain.Thought, error)

	// SummarizationWindow returns the oldest count un-summarised messages.
	SummarizationWindow(ctx context.Context, conversationID string, count int) ([]domain.Thought, error)

	// RecordSummary appends a summary covering the next coveredCount messages.
	RecordSummary(ctx context.Context, conversationID, summaryText string,
		coveredCount int) (*domain.ConversationSummary, error)

	// LatestSummary returns the newest summary, or domain.ErrNotFound.
	LatestSummary(ctx context.Context, conversationID string) (*domain.ConversationSummary, error)

	// ClearAll deletes every thought and summary and rebuilds the provider indices.
	ClearAll(ctx context.Context) (*domain.ClearReport, error)
}
