package domain

import "time"

// RagDocument represents one indexed source file.
// Documents are replaced, never patched, when the file changes.
type RagDocument struct {
	// ID is the unique identifier for the document.
	ID string

	// Path is the absolute file path and the document's unique key.
	Path string

	// Fingerprint is the SHA-256 of the file bytes.
	Fingerprint string

	// ModifiedTime is the file's modification time at indexing.
	ModifiedTime time.Time

	// SizeBytes is the file size at indexing.
	SizeBytes int64

	// Title is the extracted or derived human-readable title.
	Title string

	// CreatedAt is when the document row was written (UTC).
	CreatedAt time.Time

	// UpdatedAt is when the document row was last written (UTC).
	UpdatedAt time.Time
}

// Unchanged reports whether the stat matches this document exactly.
func (d *RagDocument) Unchanged(stat FileStat) bool {
	return d.Fingerprint == stat.Fingerprint &&
		d.SizeBytes == stat.SizeBytes &&
		d.ModifiedTime.Equal(stat.ModifiedTime)
}

// RagChunk is a searchable unit of a document. Chunk embeddings come
// from the local provider only.
type RagChunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the owning document.
	DocumentID string

	// ChunkIndex is the ordinal position within the document.
	ChunkIndex int

	// Text is the chunk content.
	Text string

	// Embedding is the local-provider vector, nil when unavailable.
	Embedding []float32

	// TokenCount is the number of tokens in Text.
	TokenCount int

	// Page is the 1-based page the chunk starts on (0 when unknown).
	Page int

	// Section is the heading the chunk falls under (empty when unknown).
	Section string

	// CreatedAt is when the chunk was written (UTC).
	CreatedAt time.Time
}

// LocatedChunk is a chunk joined with its owning document's location.
type LocatedChunk struct {
	Chunk RagChunk
	Path  string
	Title string
}

// FileStat captures the change-detection attributes of a file.
type FileStat struct {
	Path         string
	Fingerprint  string
	ModifiedTime time.Time
	SizeBytes    int64
}

// DocumentState is a document's position in the indexing lifecycle.
type DocumentState string

// Document lifecycle states.
const (
	DocumentUnseen     DocumentState = "unseen"
	DocumentIndexed    DocumentState = "indexed"
	DocumentReindexing DocumentState = "reindexing"
	DocumentDeleted    DocumentState = "deleted"
)

// TextMarker records the page or section in effect from Offset onward.
type TextMarker struct {
	// Offset is the byte offset into ExtractedText.Text.
	Offset int

	// Page is the 1-based page number (0 leaves the page unchanged).
	Page int

	// Section is the heading text (empty leaves the section unchanged).
	Section string
}

// ExtractedText is plain text produced by a text extractor.
type ExtractedText struct {
	// Title is the document title when the format carries one.
	Title string

	// Text is the plain text content.
	Text string

	// Markers are page/section boundaries sorted by offset.
	Markers []TextMarker
}

// IndexReport summarises a bulk indexing run.
type IndexReport struct {
	// Indexed counts files (re)indexed.
	Indexed int

	// Skipped counts unchanged or unsupported files.
	Skipped int

	// Failed counts files that could not be indexed.
	Failed int

	// Chunks counts chunks written.
	Chunks int

	// Unembedded counts chunks stored without a vector.
	Unembedded int

	// Errors maps file paths to the failure reason.
	Errors map[string]string

	// SkipReasons maps unsupported file paths to the reason.
	SkipReasons map[string]string
}

// AddError records a per-file failure.
func (r *IndexReport) AddError(path string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[path] = err.Error()
}

// AddSkip records a file skipped for a reason other than being unchanged.
func (r *IndexReport) AddSkip(path, reason string) {
	if r.SkipReasons == nil {
		r.SkipReasons = make(map[string]string)
	}
	r.Skipped++
	r.SkipReasons[path] = reason
}

// DocumentSearchResult is a fused search hit annotated with its document.
type DocumentSearchResult struct {
	// Chunk is the matched chunk.
	Chunk RagChunk

	// Path is the owning document's path.
	Path string

	// Title is the owning document's title.
	Title string

	// Score is the fused relevance score (higher is better).
	Score float64

	// VectorScore is the cosine similarity contribution before weighting.
	VectorScore float64

	// KeywordScore is the normalised keyword contribution before weighting.
	KeywordScore float64
}
