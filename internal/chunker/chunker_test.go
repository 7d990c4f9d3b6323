package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestNew(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultChunkTokens, c.chunkSize)
	assert.Equal(t, DefaultChunkOverlap, c.overlap)

	c = New(WithChunkSize(0), WithOverlap(-1))
	assert.Equal(t, DefaultChunkTokens, c.chunkSize)
	assert.Equal(t, DefaultChunkOverlap, c.overlap)

	c = New(WithChunkSize(10), WithOverlap(20))
	assert.Equal(t, 2, c.overlap)
}

func TestChunk_Empty(t *testing.T) {
	assert.Nil(t, New().Chunk(nil))
	assert.Nil(t, New().Chunk(&domain.ExtractedText{Text: "  \n\t "}))
}

func TestChunk_WindowsAndOverlap(t *testing.T) {
	c := New(WithChunkSize(4), WithOverlap(1))
	chunks := c.Chunk(&domain.ExtractedText{Text: words(10)})

	require.Len(t, chunks, 3)
	assert.Equal(t, "w0 w1 w2 w3", chunks[0].Text)
	assert.Equal(t, "w3 w4 w5 w6", chunks[1].Text)
	assert.Equal(t, "w6 w7 w8 w9", chunks[2].Text)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, 4, ch.TokenCount)
		assert.NotEmpty(t, ch.ID)
	}
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
}

func TestChunk_ShortTail(t *testing.T) {
	c := New(WithChunkSize(4), WithOverlap(0))
	chunks := c.Chunk(&domain.ExtractedText{Text: words(6)})

	require.Len(t, chunks, 2)
	assert.Equal(t, "w4 w5", chunks[1].Text)
	assert.Equal(t, 2, chunks[1].TokenCount)
}

func TestChunk_PreservesInnerWhitespace(t *testing.T) {
	c := New(WithChunkSize(3), WithOverlap(0))
	chunks := c.Chunk(&domain.ExtractedText{Text: "  alpha\nbeta\t gamma  "})

	require.Len(t, chunks, 1)
	assert.Equal(t, "alpha\nbeta\t gamma", chunks[0].Text)
}

func TestChunk_PageAndSectionFromMarkers(t *testing.T) {
	text := "Intro a b\nBoots c d\nPacks e f"
	boots := strings.Index(text, "Boots")
	packs := strings.Index(text, "Packs")
	extracted := &domain.ExtractedText{
		Text: text,
		Markers: []domain.TextMarker{
			{Offset: 0, Page: 1},
			{Offset: boots, Section: "Boots"},
			{Offset: packs, Page: 2},
			{Offset: packs, Section: "Packs"},
		},
	}

	chunks := New(WithChunkSize(3), WithOverlap(0)).Chunk(extracted)
	require.Len(t, chunks, 3)

	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, "", chunks[0].Section)
	assert.Equal(t, 1, chunks[1].Page)
	assert.Equal(t, "Boots", chunks[1].Section)
	assert.Equal(t, 2, chunks[2].Page)
	assert.Equal(t, "Packs", chunks[2].Section)
}

func TestChunk_MarkerInsideChunkAppliesToNext(t *testing.T) {
	text := "a b c d e f"
	extracted := &domain.ExtractedText{
		Text:    text,
		Markers: []domain.TextMarker{{Offset: strings.Index(text, "b"), Section: "S"}},
	}
	chunks := New(WithChunkSize(3), WithOverlap(0)).Chunk(extracted)
	require.Len(t, chunks, 2)
	assert.Empty(t, chunks[0].Section)
	assert.Equal(t, "S", chunks[1].Section)
}

func TestTokenize(t *testing.T) {
	spans := tokenize("héllo  wörld\n")
	require.Len(t, spans, 2)
	assert.Equal(t, span{0, 6}, spans[0])
	assert.Equal(t, span{8, 14}, spans[1])
}
