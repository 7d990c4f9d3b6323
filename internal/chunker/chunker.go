// Package chunker splits extracted text into fixed-size token windows.
package chunker

import (
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure Chunker implements the interface.
var _ driven.Chunker = (*Chunker)(nil)

// DefaultChunkTokens is the default number of tokens per chunk.
const DefaultChunkTokens = domain.DefaultChunkTokens

// DefaultChunkOverlap is the default number of overlapping tokens.
const DefaultChunkOverlap = domain.DefaultChunkOverlap

// Chunker splits text on whitespace into windows of chunkSize tokens,
// consecutive windows sharing overlap tokens.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in tokens.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in tokens.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a new chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkTokens,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Ensure overlap doesn't exceed chunk size
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// span is a token's byte range in the source text.
type span struct {
	start, end int
}

// Chunk splits text into chunks. Each chunk keeps the source text between
// its first and last token and takes its page and section from the
// markers at or before its first token.
func (c *Chunker) Chunk(text *domain.ExtractedText) []domain.RagChunk {
	if text == nil {
		return nil
	}
	tokens := tokenize(text.Text)
	if len(tokens) == 0 {
		return nil
	}

	step := c.chunkSize - c.overlap
	chunks := make([]domain.RagChunk, 0, len(tokens)/step+1)

	var (
		page, marker int
		section      string
	)
	for start := 0; start < len(tokens); start += step {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}

		first := tokens[start].start
		for marker < len(text.Markers) && text.Markers[marker].Offset <= first {
			m := text.Markers[marker]
			if m.Page > 0 {
				page = m.Page
			}
			if m.Section != "" {
				section = m.Section
			}
			marker++
		}

		chunks = append(chunks, domain.RagChunk{
			ID:         uuid.New().String(),
			ChunkIndex: len(chunks),
			Text:       text.Text[first:tokens[end-1].end],
			TokenCount: end - start,
			Page:       page,
			Section:    section,
		})

		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// tokenize returns the byte spans of whitespace-separated tokens.
func tokenize(s string) []span {
	var (
		spans []span
		start = -1
	)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
		i += size
	}
	if start >= 0 {
		spans = append(spans, span{start, len(s)})
	}
	return spans
}
