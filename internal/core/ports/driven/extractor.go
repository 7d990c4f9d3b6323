package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// TextExtractor converts a file's bytes into plain text with optional
// page/section markers. Each extractor handles specific file extensions.
type TextExtractor interface {
	// Extensions returns the lower-case file extensions handled (e.g. ".md").
	Extensions() []string

	// Extract converts raw file content to text.
	Extract(ctx context.Context, path string, content []byte) (*domain.ExtractedText, error)
}

// ExtractorRegistry selects a TextExtractor by file path.
type ExtractorRegistry interface {
	// For returns the extractor for path, or false if none handles it.
	For(path string) (TextExtractor, bool)
}
