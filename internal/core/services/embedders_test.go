package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func TestEmbedders_EmbedAllReportsFailures(t *testing.T) {
	e := NewEmbedders(testDims,
		&keywordEmbedder{},
		&keywordEmbedder{provider: domain.ProviderRemote, err: errBoom},
	)

	set, failed := e.EmbedAll(context.Background(), "hiking")

	assert.Equal(t, []domain.Provider{domain.ProviderLocal}, set.Providers())
	require.Contains(t, failed, domain.ProviderRemote)
	assert.True(t, errors.Is(failed[domain.ProviderRemote], domain.ErrEmbeddingUnavailable))
	assert.True(t, errors.Is(failed[domain.ProviderRemote], errBoom))
}

func TestEmbedders_DimensionMismatchIsAFailure(t *testing.T) {
	// keywordEmbedder emits three values; remote expects four.
	e := NewEmbedders(testDims, &keywordEmbedder{provider: domain.ProviderRemote})

	set, failed := e.EmbedAll(context.Background(), "hiking")

	assert.Empty(t, set.Providers())
	assert.True(t, errors.Is(failed[domain.ProviderRemote], domain.ErrUnknownEmbeddingDimension))
}

func TestEmbedders_EmbedQueryFallsBack(t *testing.T) {
	e := NewEmbedders(testDims,
		&keywordEmbedder{},
		&keywordEmbedder{provider: domain.ProviderRemote, err: errBoom},
	)

	vec, p, err := e.EmbedQuery(context.Background(), "hiking", domain.ProviderRemote)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderLocal, p)
	assert.Equal(t, topicVector("hiking"), vec)
}

func TestEmbedders_NoProviders(t *testing.T) {
	e := NewEmbedders(testDims, nil)

	assert.Empty(t, e.Providers())
	_, _, err := e.EmbedQuery(context.Background(), "x", domain.ProviderLocal)
	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))

	set, failed := e.EmbedAll(context.Background(), "x")
	assert.Empty(t, set)
	assert.Empty(t, failed)
}
