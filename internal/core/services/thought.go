package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure ThoughtService implements the interface.
var _ driving.ThoughtService = (*ThoughtService)(nil)

// ThoughtService manages short-term conversational memory.
type ThoughtService struct {
	store   driven.ThoughtStore
	indices *IndexSet
	dims    domain.ProviderDimensions
	now     func() time.Time

	// summaryMu keeps the summarisation cursor monotone.
	summaryMu sync.Mutex
}

// NewThoughtService creates a new thought service.
func NewThoughtService(store driven.ThoughtStore, indices *IndexSet, dims domain.ProviderDimensions) *ThoughtService {
	return &ThoughtService{
		store:   store,
		indices: indices,
		dims:    dims,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append writes a message, then commits each valid embedding to its
// provider's index. Index failures never roll back the row.
func (s *ThoughtService) Append(
	ctx context.Context, conversationID string, role domain.Role, text string, embeddings domain.EmbeddingSet,
) (*domain.AppendResult, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, fmt.Errorf("conversation id is required: %w", domain.ErrInvalidInput)
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("role %q: %w", role, domain.ErrInvalidInput)
	}

	valid, rejected := embeddings.Split(s.dims)
	thought := domain.Thought{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Text:           text,
		CreatedAt:      s.now(),
		Embeddings:     valid,
		Slots:          make(map[domain.Provider]int),
	}
	if err := s.store.SaveThought(ctx, &thought); err != nil {
		return nil, fmt.Errorf("save thought: %w", err)
	}

	result := &domain.AppendResult{Thought: thought, Failed: rejected}
	var capacityErrs []error
	for _, p := range valid.Providers() {
		vec, _ := valid.Get(p)
		slot, err := s.indices.Commit(ctx, domain.IndexForProvider(p), domain.OwnerThought, thought.ID, vec)
		if err != nil {
			logger.Warn("Thought %s not indexed for %s: %v", thought.ID, p, err)
			if result.Failed == nil {
				result.Failed = make(map[domain.Provider]error)
			}
			result.Failed[p] = err
			if errors.Is(err, domain.ErrCapacityExceeded) {
				capacityErrs = append(capacityErrs, fmt.Errorf("%s index: %w", p, err))
			}
			continue
		}
		result.Thought.Slots[p] = slot
		result.Indexed = append(result.Indexed, p)
	}

	for p, err := range rejected {
		logger.Warn("Thought %s: dropped %s embedding: %v", thought.ID, p, err)
	}
	logger.Debug("Appended thought %s to %s (indexed: %v)", thought.ID, conversationID, result.Indexed)
	return result, errors.Join(capacityErrs...)
}

// Search returns up to k thoughts nearest to query. When the query length
// matches several providers and hint does not narrow it, every matching
// index is searched and the closest entry per thought wins.
func (s *ThoughtService) Search(
	ctx context.Context, query []float32, k int, hint domain.Provider,
) ([]domain.ThoughtHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", domain.ErrInvalidInput)
	}
	providers, err := queryProviders(s.dims, query, hint)
	if err != nil {
		return nil, err
	}
	logger.Debug("Thought search: k=%d providers=%v", k, providers)

	hits, err := s.indices.searchProviders(ctx, providers, domain.OwnerThought, query, k, nil)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ownerID
	}
	thoughts, err := s.store.GetThoughts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load thoughts: %w", err)
	}

	results := make([]domain.ThoughtHit, 0, len(hits))
	for _, h := range hits {
		t, ok := thoughts[h.ownerID]
		if !ok {
			continue
		}
		results = append(results, domain.ThoughtHit{Thought: t, Provider: h.provider, Distance: h.distance})
	}
	return results, nil
}

// Get retrieves a thought by ID.
func (s *ThoughtService) Get(ctx context.Context, id string) (*domain.Thought, error) {
	return s.store.GetThought(ctx, id)
}

// ListConversation returns the newest limit messages in chronological order.
func (s *ThoughtService) ListConversation(ctx context.Context, conversationID string, limit int) ([]domain.Thought, error) {
	return s.store.ListConversation(ctx, conversationID, limit)
}

// SummarizationWindow returns the oldest count messages after the latest
// summary boundary, in chronological order.
func (s *ThoughtService) SummarizationWindow(ctx context.Context, conversationID string, count int) ([]domain.Thought, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive: %w", domain.ErrInvalidInput)
	}
	return s.store.UnsummarizedThoughts(ctx, conversationID, count)
}

// RecordSummary appends a summary that moves the cursor past the next
// coveredCount un-summarised messages. A count beyond the window covers
// what exists.
func (s *ThoughtService) RecordSummary(
	ctx context.Context, conversationID, summaryText string, coveredCount int,
) (*domain.ConversationSummary, error) {
	if coveredCount <= 0 {
		return nil, fmt.Errorf("covered count must be positive: %w", domain.ErrInvalidInput)
	}

	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()

	window, err := s.store.UnsummarizedThoughts(ctx, conversationID, coveredCount)
	if err != nil {
		return nil, fmt.Errorf("load window: %w", err)
	}
	if len(window) == 0 {
		return nil, fmt.Errorf("conversation %s has no un-summarised messages: %w", conversationID, domain.ErrInvalidInput)
	}

	summary := &domain.ConversationSummary{
		ID:                  uuid.New().String(),
		ConversationID:      conversationID,
		SummaryText:         summaryText,
		CoveredMessageCount: len(window),
		CoveredThroughSeq:   window[len(window)-1].Seq,
		CreatedAt:           s.now(),
	}
	if err := s.store.SaveSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	logger.Debug("Summary %s covers %d messages of %s", summary.ID, summary.CoveredMessageCount, conversationID)
	return summary, nil
}

// LatestSummary returns the newest summary, or domain.ErrNotFound.
func (s *ThoughtService) LatestSummary(ctx context.Context, conversationID string) (*domain.ConversationSummary, error) {
	return s.store.LatestSummary(ctx, conversationID)
}

// ClearAll deletes every thought and summary, then rebuilds both provider
// indices from the vectors that remain. Memories share those indices and
// stay searchable.
func (s *ThoughtService) ClearAll(ctx context.Context) (*domain.ClearReport, error) {
	thoughts, summaries, err := s.store.ClearThoughts(ctx)
	if err != nil {
		return nil, fmt.Errorf("clear thoughts: %w", err)
	}

	report := s.indices.RebuildAll(ctx, domain.IndexRemote, domain.IndexLocal)
	report.Rows["thoughts"] = thoughts
	report.Rows["conversation_summaries"] = summaries
	logger.Info("Cleared %d thoughts and %d summaries", thoughts, summaries)
	return report, nil
}
