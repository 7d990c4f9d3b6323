package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure Embedders implements the interface.
var _ driving.Embedder = (*Embedders)(nil)

// Embedders fans text out to the configured embedding services and checks
// every vector against the provider dimensions.
type Embedders struct {
	services map[domain.Provider]driven.EmbeddingService
	dims     domain.ProviderDimensions
}

// NewEmbedders creates an embedder over the given services. Nil services
// are ignored; a later service for the same provider wins.
func NewEmbedders(dims domain.ProviderDimensions, services ...driven.EmbeddingService) *Embedders {
	e := &Embedders{
		services: make(map[domain.Provider]driven.EmbeddingService, len(services)),
		dims:     dims,
	}
	for _, svc := range services {
		if svc != nil {
			e.services[svc.Provider()] = svc
		}
	}
	return e
}

// Get returns the service for p.
func (e *Embedders) Get(p domain.Provider) (driven.EmbeddingService, bool) {
	svc, ok := e.services[p]
	return svc, ok
}

// Providers lists the configured providers in search order.
func (e *Embedders) Providers() []domain.Provider {
	var out []domain.Provider
	for _, p := range domain.AllProviders {
		if _, ok := e.services[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// EmbedAll embeds text with every configured provider.
func (e *Embedders) EmbedAll(ctx context.Context, text string) (domain.EmbeddingSet, map[domain.Provider]error) {
	set := make(domain.EmbeddingSet)
	var failed map[domain.Provider]error
	for _, p := range e.Providers() {
		vec, err := e.embed(ctx, p, text)
		if err != nil {
			logger.Warn("Embedding with %s failed: %v", p, err)
			if failed == nil {
				failed = make(map[domain.Provider]error)
			}
			failed[p] = err
			continue
		}
		set[p] = vec
	}
	return set, failed
}

// EmbedQuery embeds text with preferred first, then any other provider.
func (e *Embedders) EmbedQuery(ctx context.Context, text string, preferred domain.Provider) ([]float32, domain.Provider, error) {
	order := make([]domain.Provider, 0, len(e.services))
	if _, ok := e.services[preferred]; ok {
		order = append(order, preferred)
	}
	for _, p := range e.Providers() {
		if p != preferred {
			order = append(order, p)
		}
	}
	if len(order) == 0 {
		return nil, "", fmt.Errorf("no embedding provider configured: %w", domain.ErrEmbeddingUnavailable)
	}

	var errs []error
	for _, p := range order {
		vec, err := e.embed(ctx, p, text)
		if err == nil {
			return vec, p, nil
		}
		logger.Debug("Query embedding with %s failed: %v", p, err)
		errs = append(errs, fmt.Errorf("%s: %w", p, err))
	}
	return nil, "", errors.Join(errs...)
}

func (e *Embedders) embed(ctx context.Context, p domain.Provider, text string) ([]float32, error) {
	vec, err := e.services[p].Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if err := e.dims.Check(p, vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// Close closes every service.
func (e *Embedders) Close() error {
	var errs []error
	for _, p := range e.Providers() {
		if err := e.services[p].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
