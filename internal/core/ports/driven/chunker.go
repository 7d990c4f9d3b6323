package driven

import "github.com/custodia-labs/recall/internal/core/domain"

// Chunker splits extracted text into fixed-size token windows.
// Returned chunks carry ChunkIndex, Text, TokenCount, Page and Section;
// the caller assigns DocumentID and embeddings.
type Chunker interface {
	Chunk(text *domain.ExtractedText) []domain.RagChunk
}
