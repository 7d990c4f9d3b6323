// Package cache wraps an embedding service with a bounded in-memory
// vector cache keyed by model and text.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultMaxBytes bounds the vectors held per provider.
const DefaultMaxBytes = 32 << 20

// Config holds cache sizing.
type Config struct {
	// MaxBytes is the total vector payload kept. Defaults to DefaultMaxBytes.
	MaxBytes int64
}

// EmbeddingService serves repeated texts from cache and delegates the rest.
type EmbeddingService struct {
	next  driven.EmbeddingService
	cache *ristretto.Cache
}

// New wraps next with a cache.
func New(next driven.EmbeddingService, cfg Config) (*EmbeddingService, error) {
	if next == nil {
		return nil, fmt.Errorf("nil embedding service: %w", domain.ErrInvalidInput)
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}

	// Ten counters per expected entry, sized for 768-dim vectors.
	entries := cfg.MaxBytes / (768 * 4)
	if entries < 100 {
		entries = 100
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: entries * 10,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &EmbeddingService{next: next, cache: c}, nil
}

// Provider returns the wrapped service's provider.
func (s *EmbeddingService) Provider() domain.Provider { return s.next.Provider() }

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int { return s.next.Dimensions() }

// ModelName returns the wrapped service's model.
func (s *EmbeddingService) ModelName() string { return s.next.ModelName() }

// Ping checks the wrapped service.
func (s *EmbeddingService) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

// Embed returns the cached vector for text or embeds and caches it.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := s.get(text); ok {
		return vec, nil
	}
	vec, err := s.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.put(text, vec)
	return vec, nil
}

// EmbedBatch embeds only the texts that are not cached.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingAt []int
	for i, text := range texts {
		if vec, ok := s.get(text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingAt = append(missingAt, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := s.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, vec := range vecs {
		out[missingAt[j]] = vec
		s.put(missing[j], vec)
	}
	return out, nil
}

// Close drops the cache and closes the wrapped service.
func (s *EmbeddingService) Close() error {
	s.cache.Close()
	return s.next.Close()
}

func (s *EmbeddingService) key(text string) string {
	return s.next.ModelName() + "\x00" + text
}

func (s *EmbeddingService) get(text string) ([]float32, bool) {
	v, ok := s.cache.Get(s.key(text))
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), vec...), true
}

func (s *EmbeddingService) put(text string, vec []float32) {
	stored := append([]float32(nil), vec...)
	s.cache.Set(s.key(text), stored, int64(len(stored)*4))
	s.cache.Wait()
}
