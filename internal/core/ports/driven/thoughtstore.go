package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// ThoughtStore persists conversational messages and summaries.
type ThoughtStore interface {
	// SaveThought inserts a thought and assigns its Seq.
	SaveThought(ctx context.Context, thought *domain.Thought) error

	// GetThought retrieves a thought with its committed slots.
	GetThought(ctx context.Context, id string) (*domain.Thought, error)

	// GetThoughts retrieves thoughts by ID. Missing IDs are absent from the map.
	GetThoughts(ctx context.Context, ids []string) (map[string]domain.Thought, error)

	// ListConversation returns the newest limit messages of a conversation
	// in chronological order (limit <= 0 returns all).
	ListConversation(ctx context.Context, conversationID string, limit int) ([]domain.Thought, error)

	// UnsummarizedThoughts returns up to limit messages after the latest
	// summary boundary, oldest first.
	UnsummarizedThoughts(ctx context.Context, conversationID string, limit int) ([]domain.Thought, error)

	// LatestSummary returns the newest summary, or domain.ErrNotFound.
	LatestSummary(ctx context.Context, conversationID string) (*domain.ConversationSummary, error)

	// SaveSummary appends a summary.
	SaveSummary(ctx context.Context, summary *domain.ConversationSummary) error

	// ClearThoughts deletes every thought, summary and thought slot mapping.
	ClearThoughts(ctx context.Context) (thoughts, summaries int64, err error)
}
