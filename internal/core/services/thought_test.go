package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func TestThoughtService_SearchReturnsAppendedThought(t *testing.T) {
	f := newFixture(t)
	svc := f.thoughts()
	ctx := context.Background()

	a, err := svc.Append(ctx, "c1", domain.RoleUser, "I like hiking", local(1, 0, 0))
	require.NoError(t, err)
	_, err = svc.Append(ctx, "c1", domain.RoleAssistant, "Noted.", local(0, 1, 0))
	require.NoError(t, err)

	assert.Equal(t, []domain.Provider{domain.ProviderLocal}, a.Indexed)
	assert.Empty(t, a.Failed)
	assert.Contains(t, a.Thought.Slots, domain.ProviderLocal)

	hits, err := svc.Search(ctx, []float32{1, 0, 0}, 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "I like hiking", hits[0].Thought.Text)
	assert.Equal(t, domain.ProviderLocal, hits[0].Provider)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)

	f.requireConsistent(t, domain.IndexLocal)
}

func TestThoughtService_SearchOrdersAllWhenKExceedsCount(t *testing.T) {
	f := newFixture(t)
	svc := f.thoughts()
	ctx := context.Background()

	for i, v := range [][]float32{{1, 0, 0}, {0.8, 0.2, 0}, {0, 0, 1}} {
		_, err := svc.Append(ctx, "c1", domain.RoleUser, fmt.Sprintf("m%d", i), local(v...))
		require.NoError(t, err)
	}

	hits, err := svc.Search(ctx, []float32{1, 0, 0}, 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "m0", hits[0].Thought.Text)
	assert.Equal(t, "m1", hits[1].Thought.Text)
	assert.Equal(t, "m2", hits[2].Thought.Text)
}

func TestThoughtService_AppendValidation(t *testing.T) {
	svc := newFixture(t).thoughts()
	ctx := context.Background()

	_, err := svc.Append(ctx, " ", domain.RoleUser, "x", nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = svc.Append(ctx, "c1", domain.Role("bot"), "x", nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestThoughtService_AppendRejectsUnknownDimension(t *testing.T) {
	f := newFixture(t)
	svc := f.thoughts()
	ctx := context.Background()

	res, err := svc.Append(ctx, "c1", domain.RoleUser, "odd vector", local(1, 2))
	require.NoError(t, err)

	assert.Empty(t, res.Indexed)
	require.Contains(t, res.Failed, domain.ProviderLocal)
	assert.True(t, errors.Is(res.Failed[domain.ProviderLocal], domain.ErrUnknownEmbeddingDimension))

	got, err := svc.Get(ctx, res.Thought.ID)
	require.NoError(t, err)
	assert.Equal(t, "odd vector", got.Text)
	assert.Empty(t, got.Slots)
}

func TestThoughtService_PartialProviderFailureKeepsRow(t *testing.T) {
	remote := &stubIndex{name: domain.IndexRemote, dim: 4, insertErr: domain.ErrEmbeddingUnavailable}
	f := newFixture(t, withIndex(remote))
	svc := f.thoughts()
	ctx := context.Background()

	res, err := svc.Append(ctx, "c1", domain.RoleUser, "both", domain.EmbeddingSet{
		domain.ProviderRemote: {1, 0, 0, 0},
		domain.ProviderLocal:  {0, 1, 0},
	})
	require.NoError(t, err, "only a full index surfaces as an error")

	assert.Equal(t, []domain.Provider{domain.ProviderLocal}, res.Indexed)
	assert.True(t, errors.Is(res.Failed[domain.ProviderRemote], domain.ErrEmbeddingUnavailable))

	got, err := svc.Get(ctx, res.Thought.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Slots, domain.ProviderLocal)
	assert.NotContains(t, got.Slots, domain.ProviderRemote)
}

func TestThoughtService_CapacityExceededSurfaces(t *testing.T) {
	f := newFixture(t, withCapacity(domain.IndexLocal, 1))
	svc := f.thoughts()
	ctx := context.Background()

	_, err := svc.Append(ctx, "c1", domain.RoleUser, "first", local(1, 0, 0))
	require.NoError(t, err)

	res, err := svc.Append(ctx, "c1", domain.RoleUser, "second", local(0, 1, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCapacityExceeded))
	require.NotNil(t, res)
	assert.Empty(t, res.Indexed)

	got, err := svc.Get(ctx, res.Thought.ID)
	require.NoError(t, err, "the row is written even when the index is full")
	assert.Equal(t, "second", got.Text)
	f.requireConsistent(t, domain.IndexLocal)
}

func TestThoughtService_SearchErrors(t *testing.T) {
	svc := newFixture(t).thoughts()
	ctx := context.Background()

	_, err := svc.Search(ctx, []float32{1, 2}, 3, "")
	assert.True(t, errors.Is(err, domain.ErrUnknownEmbeddingDimension))

	_, err = svc.Search(ctx, []float32{1, 0, 0}, 0, "")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	hits, err := svc.Search(ctx, []float32{1, 0, 0}, 3, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestThoughtService_CrossProviderSearch(t *testing.T) {
	same := domain.ProviderDimensions{domain.ProviderRemote: 3, domain.ProviderLocal: 3}
	f := newFixture(t, withDims(same))
	svc := f.thoughts()
	ctx := context.Background()

	a, err := svc.Append(ctx, "c1", domain.RoleUser, "remote only",
		domain.EmbeddingSet{domain.ProviderRemote: {1, 0, 0}})
	require.NoError(t, err)
	b, err := svc.Append(ctx, "c1", domain.RoleUser, "local only", local(0.9, 0.1, 0))
	require.NoError(t, err)
	c, err := svc.Append(ctx, "c1", domain.RoleUser, "both", domain.EmbeddingSet{
		domain.ProviderRemote: {0, 0, 1},
		domain.ProviderLocal:  {0, 1, 0},
	})
	require.NoError(t, err)

	hits, err := svc.Search(ctx, []float32{1, 0, 0}, 3, "")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, a.Thought.ID, hits[0].Thought.ID)
	assert.Equal(t, domain.ProviderRemote, hits[0].Provider)
	assert.Equal(t, b.Thought.ID, hits[1].Thought.ID)
	assert.Equal(t, domain.ProviderLocal, hits[1].Provider)

	// A thought present in both indices appears once, from the closer entry.
	hits, err = svc.Search(ctx, []float32{0, 0, 1}, 3, "")
	require.NoError(t, err)
	count := 0
	for _, h := range hits {
		if h.Thought.ID == c.Thought.ID {
			count++
			assert.Equal(t, domain.ProviderRemote, h.Provider)
			assert.InDelta(t, 0, h.Distance, 1e-6)
		}
	}
	assert.Equal(t, 1, count)

	// The hint narrows an ambiguous dimension to one provider.
	hits, err = svc.Search(ctx, []float32{1, 0, 0}, 3, domain.ProviderLocal)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, domain.ProviderLocal, h.Provider)
		assert.NotEqual(t, a.Thought.ID, h.Thought.ID)
	}
}

func TestThoughtService_SearchSkipsMemoriesInSharedIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.memories().Save(ctx, "closest but a memory", "fact", local(1, 0, 0))
	require.NoError(t, err)
	th, err := f.thoughts().Append(ctx, "c1", domain.RoleUser, "a thought", local(0.5, 0.5, 0))
	require.NoError(t, err)

	hits, err := f.thoughts().Search(ctx, []float32{1, 0, 0}, 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, th.Thought.ID, hits[0].Thought.ID)
}

func TestThoughtService_SummarizationCursor(t *testing.T) {
	f := newFixture(t)
	svc := f.thoughts()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Append(ctx, "c1", domain.RoleUser, fmt.Sprintf("m%d", i), nil)
		require.NoError(t, err)
	}
	_, err := svc.Append(ctx, "c2", domain.RoleUser, "other", nil)
	require.NoError(t, err)

	window, err := svc.SummarizationWindow(ctx, "c1", 3)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, []string{"m0", "m1", "m2"}, texts(window))

	sum, err := svc.RecordSummary(ctx, "c1", "first three", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.CoveredMessageCount)
	assert.Equal(t, window[2].Seq, sum.CoveredThroughSeq)

	window, err = svc.SummarizationWindow(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m4"}, texts(window))

	// A count beyond the window covers what exists.
	sum, err = svc.RecordSummary(ctx, "c1", "the rest", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.CoveredMessageCount)

	window, err = svc.SummarizationWindow(ctx, "c1", 10)
	require.NoError(t, err)
	assert.Empty(t, window)

	_, err = svc.RecordSummary(ctx, "c1", "nothing left", 1)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	latest, err := svc.LatestSummary(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "the rest", latest.SummaryText)

	window, err = svc.SummarizationWindow(ctx, "c2", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, texts(window))

	_, err = svc.LatestSummary(ctx, "c2")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestThoughtService_SummaryArgumentValidation(t *testing.T) {
	svc := newFixture(t).thoughts()
	ctx := context.Background()

	_, err := svc.SummarizationWindow(ctx, "c1", 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = svc.RecordSummary(ctx, "c1", "s", 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestThoughtService_ListConversationChronological(t *testing.T) {
	f := newFixture(t)
	svc := f.thoughts()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 4; i++ {
		_, err := svc.Append(ctx, "c1", domain.RoleUser, fmt.Sprintf("m%d", i), nil)
		require.NoError(t, err)
	}

	list, err := svc.ListConversation(ctx, "c1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, texts(list))
	assert.True(t, list[0].CreatedAt.Before(list[1].CreatedAt))
}

func TestThoughtService_ClearAllIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	thoughts, memories := f.thoughts(), f.memories()

	_, err := thoughts.Append(ctx, "c1", domain.RoleUser, "forget me", local(1, 0, 0))
	require.NoError(t, err)
	_, err = thoughts.RecordSummary(ctx, "c1", "summary", 1)
	require.NoError(t, err)
	mem, err := memories.Save(ctx, "keep me", "fact", local(0, 1, 0))
	require.NoError(t, err)
	require.NoError(t, f.store.RagStore().ReplaceDocument(ctx, &domain.RagDocument{
		ID: "doc1", Path: "/tmp/doc.txt", Fingerprint: "f", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}, nil))

	report, err := thoughts.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Rows["thoughts"])
	assert.Equal(t, int64(1), report.Rows["conversation_summaries"])
	assert.ElementsMatch(t, []domain.IndexName{domain.IndexRemote, domain.IndexLocal}, report.Rebuilt)
	assert.Empty(t, report.Errors)

	hits, err := thoughts.Search(ctx, []float32{1, 0, 0}, 5, "")
	require.NoError(t, err)
	assert.Empty(t, hits)

	got, err := memories.Get(ctx, mem.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep me", got.Content)

	ranked, err := memories.List(ctx, domain.MemoryListOptions{Query: []float32{0, 1, 0}})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.True(t, ranked[0].Ranked)

	docs, err := f.store.RagStore().ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	f.requireConsistent(t, domain.IndexLocal)
	idx, _ := f.indices.Get(domain.IndexLocal)
	assert.Equal(t, 1, idx.Len())
}

func texts(thoughts []domain.Thought) []string {
	out := make([]string, len(thoughts))
	for i, t := range thoughts {
		out[i] = t.Text
	}
	return out
}
