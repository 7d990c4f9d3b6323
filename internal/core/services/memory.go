package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure MemoryService implements the interface.
var _ driving.MemoryService = (*MemoryService)(nil)

// MemoryService manages user-curated long-term memories.
type MemoryService struct {
	store   driven.MemoryStore
	indices *IndexSet
	dims    domain.ProviderDimensions
	now     func() time.Time
}

// NewMemoryService creates a new memory service.
func NewMemoryService(store driven.MemoryStore, indices *IndexSet, dims domain.ProviderDimensions) *MemoryService {
	return &MemoryService{
		store:   store,
		indices: indices,
		dims:    dims,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Save creates a memory and indexes each valid embedding.
func (s *MemoryService) Save(
	ctx context.Context, content, memoryType string, embeddings domain.EmbeddingSet,
) (*domain.LongTermMemory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("memory content is required: %w", domain.ErrInvalidInput)
	}

	now := s.now()
	memory := &domain.LongTermMemory{
		ID:         uuid.New().String(),
		Content:    content,
		MemoryType: memoryType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.write(ctx, memory, embeddings); err != nil {
		return memory, err
	}
	logger.Debug("Saved memory %s (type %q)", memory.ID, memoryType)
	return memory, nil
}

// Update replaces a memory in place. The old slots are soft-deleted and
// the new embeddings are committed under fresh slots.
func (s *MemoryService) Update(
	ctx context.Context, id, content, memoryType string, embeddings domain.EmbeddingSet,
) (*domain.LongTermMemory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("memory content is required: %w", domain.ErrInvalidInput)
	}

	memory, err := s.store.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	memory.Content = content
	memory.MemoryType = memoryType
	memory.UpdatedAt = s.now()

	if err := s.write(ctx, memory, embeddings); err != nil {
		return memory, err
	}
	logger.Debug("Updated memory %s", id)
	return memory, nil
}

// write saves memory with the valid subset of embeddings, orphans any
// slots it held before and commits the new vectors. Only a full index is
// reported as an error once the row is written.
func (s *MemoryService) write(ctx context.Context, memory *domain.LongTermMemory, embeddings domain.EmbeddingSet) error {
	valid, rejected := embeddings.Split(s.dims)
	for p, err := range rejected {
		logger.Warn("Memory %s: dropped %s embedding: %v", memory.ID, p, err)
	}
	memory.Embeddings = valid
	memory.Slots = make(map[domain.Provider]int)

	if err := s.store.SaveMemory(ctx, memory); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	if _, err := s.indices.Orphan(ctx, domain.OwnerMemory, []string{memory.ID}); err != nil {
		logger.Warn("Memory %s: old slots not orphaned: %v", memory.ID, err)
	}

	var capacityErrs []error
	for _, p := range valid.Providers() {
		vec, _ := valid.Get(p)
		slot, err := s.indices.Commit(ctx, domain.IndexForProvider(p), domain.OwnerMemory, memory.ID, vec)
		if err != nil {
			logger.Warn("Memory %s not indexed for %s: %v", memory.ID, p, err)
			if errors.Is(err, domain.ErrCapacityExceeded) {
				capacityErrs = append(capacityErrs, fmt.Errorf("%s index: %w", p, err))
			}
			continue
		}
		memory.Slots[p] = slot
	}
	return errors.Join(capacityErrs...)
}

// Get retrieves a memory by ID.
func (s *MemoryService) Get(ctx context.Context, id string) (*domain.LongTermMemory, error) {
	return s.store.GetMemory(ctx, id)
}

// List applies the type filter first. With a query, memories are ranked
// by similarity and those without a comparable vector follow newest
// first; without one, all are returned newest first.
func (s *MemoryService) List(ctx context.Context, opts domain.MemoryListOptions) ([]domain.MemoryResult, error) {
	if len(opts.Query) == 0 {
		memories, err := s.store.ListMemories(ctx, opts.MemoryType, opts.Limit)
		if err != nil {
			return nil, err
		}
		results := make([]domain.MemoryResult, len(memories))
		for i, m := range memories {
			results[i] = domain.MemoryResult{Memory: m}
		}
		return results, nil
	}

	providers, err := queryProviders(s.dims, opts.Query, "")
	if err != nil {
		return nil, err
	}

	candidates, err := s.store.ListMemories(ctx, opts.MemoryType, 0)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	byID := make(map[string]domain.LongTermMemory, len(candidates))
	for _, m := range candidates {
		byID[m.ID] = m
	}

	k := len(candidates)
	if opts.Limit > 0 && opts.Limit < k {
		k = opts.Limit
	}
	accept := func(id string) bool {
		_, ok := byID[id]
		return ok
	}
	hits, err := s.indices.searchProviders(ctx, providers, domain.OwnerMemory, opts.Query, k, accept)
	if err != nil {
		return nil, err
	}

	results := make([]domain.MemoryResult, 0, k)
	ranked := make(map[string]bool, len(hits))
	for _, h := range hits {
		ranked[h.ownerID] = true
		results = append(results, domain.MemoryResult{Memory: byID[h.ownerID], Ranked: true, Distance: h.distance})
	}
	for _, m := range candidates {
		if len(results) >= k {
			break
		}
		if !ranked[m.ID] {
			results = append(results, domain.MemoryResult{Memory: m})
		}
	}
	return results, nil
}

// Delete removes a memory. Its slots stay allocated in the index,
// orphaned, until the next rebuild.
func (s *MemoryService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteMemory(ctx, id); err != nil {
		return err
	}
	n, err := s.indices.Orphan(ctx, domain.OwnerMemory, []string{id})
	if err != nil {
		logger.Warn("Memory %s deleted but slots not orphaned: %v", id, err)
		return nil
	}
	logger.Debug("Deleted memory %s (%d slots orphaned)", id, n)
	return nil
}

// Clear deletes every memory and rebuilds the shared provider indices
// from the surviving thought vectors.
func (s *MemoryService) Clear(ctx context.Context) (*domain.ClearReport, error) {
	n, err := s.store.ClearMemories(ctx)
	if err != nil {
		return nil, fmt.Errorf("clear memories: %w", err)
	}

	report := s.indices.RebuildAll(ctx, domain.IndexRemote, domain.IndexLocal)
	report.Rows["long_term_memories"] = n
	logger.Info("Cleared %d memories", n)
	return report, nil
}
