package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func TestThoughtStore_SaveAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	set := domain.EmbeddingSet{
		domain.ProviderRemote: {1, 2, 3},
		domain.ProviderLocal:  {4, 5},
	}
	first := createTestThought(t, store, "conv", "hello", set)
	second := createTestThought(t, store, "conv", "world", nil)
	assert.Greater(t, second.Seq, first.Seq)

	require.NoError(t, store.SlotStore().RecordSlot(ctx, domain.SlotRef{
		Index: domain.IndexRemote, Slot: 7, OwnerKind: domain.OwnerThought, OwnerID: first.ID,
	}))

	got, err := store.ThoughtStore().GetThought(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, domain.RoleUser, got.Role)
	assert.Equal(t, []float32{1, 2, 3}, got.Embeddings[domain.ProviderRemote])
	assert.Equal(t, []float32{4, 5}, got.Embeddings[domain.ProviderLocal])
	assert.Equal(t, map[domain.Provider]int{domain.ProviderRemote: 7}, got.Slots)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	_, err = store.ThoughtStore().GetThought(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestThoughtStore_SaveValidation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.ThoughtStore().SaveThought(context.Background(), &domain.Thought{ID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = store.ThoughtStore().SaveThought(context.Background(), &domain.Thought{
		ID: "x", ConversationID: "c", Role: "narrator", Text: "t",
	})
	assert.Error(t, err, "role is constrained by the schema")
}

func TestThoughtStore_GetThoughts(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	a := createTestThought(t, store, "conv", "a", nil)
	b := createTestThought(t, store, "other", "b", nil)

	got, err := store.ThoughtStore().GetThoughts(context.Background(), []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "b", got[b.ID].Text)
}

func TestThoughtStore_ListConversation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four"} {
		createTestThought(t, store, "conv", text, nil)
	}
	createTestThought(t, store, "other", "noise", nil)

	all, err := store.ThoughtStore().ListConversation(ctx, "conv", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three", "four"}, texts(all))

	last, err := store.ThoughtStore().ListConversation(ctx, "conv", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "four"}, texts(last))
}

func TestThoughtStore_SummaryBoundary(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ts := store.ThoughtStore()

	var thoughts []*domain.Thought
	for _, text := range []string{"m1", "m2", "m3", "m4", "m5"} {
		thoughts = append(thoughts, createTestThought(t, store, "conv", text, nil))
	}

	window, err := ts.UnsummarizedThoughts(ctx, "conv", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, texts(window))

	_, err = ts.LatestSummary(ctx, "conv")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, ts.SaveSummary(ctx, &domain.ConversationSummary{
		ID:                  uuid.NewString(),
		ConversationID:      "conv",
		SummaryText:         "first two",
		CoveredMessageCount: 2,
		CoveredThroughSeq:   thoughts[1].Seq,
		CreatedAt:           time.Now().UTC(),
	}))

	window, err = ts.UnsummarizedThoughts(ctx, "conv", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m4", "m5"}, texts(window))

	latest, err := ts.LatestSummary(ctx, "conv")
	require.NoError(t, err)
	assert.Equal(t, "first two", latest.SummaryText)
	assert.Equal(t, thoughts[1].Seq, latest.CoveredThroughSeq)

	other, err := ts.UnsummarizedThoughts(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestThoughtStore_ClearThoughts(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	th := createTestThought(t, store, "conv", "a", domain.EmbeddingSet{domain.ProviderRemote: {1, 0}})
	createTestThought(t, store, "conv", "b", nil)
	require.NoError(t, store.ThoughtStore().SaveSummary(ctx, &domain.ConversationSummary{
		ID: "s1", ConversationID: "conv", SummaryText: "s", CoveredMessageCount: 1,
		CoveredThroughSeq: th.Seq, CreatedAt: time.Now(),
	}))
	require.NoError(t, store.SlotStore().RecordSlot(ctx, domain.SlotRef{
		Index: domain.IndexRemote, Slot: 0, OwnerKind: domain.OwnerThought, OwnerID: th.ID,
	}))
	require.NoError(t, store.SlotStore().RecordSlot(ctx, domain.SlotRef{
		Index: domain.IndexRemote, Slot: 1, OwnerKind: domain.OwnerMemory, OwnerID: "mem",
	}))

	thoughts, summaries, err := store.ThoughtStore().ClearThoughts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), thoughts)
	assert.Equal(t, int64(1), summaries)

	count, err := store.SlotStore().CountSlots(ctx, domain.IndexRemote)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "memory mappings survive")

	next := createTestThought(t, store, "conv", "c", nil)
	assert.Greater(t, next.Seq, th.Seq, "sequence never rewinds")
}

func texts(thoughts []domain.Thought) []string {
	out := make([]string, len(thoughts))
	for i, t := range thoughts {
		out[i] = t.Text
	}
	return out
}
