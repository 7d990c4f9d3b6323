// Package plaintext extracts text from plain-text and source files.
// Form feed characters are treated as page breaks.
package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles plain-text files.
type Extractor struct{}

// New creates a new plain-text extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{
		".txt", ".text", ".log", ".csv", ".tsv",
		".json", ".yaml", ".yml", ".toml", ".ini", ".xml",
		".go", ".py", ".js", ".ts", ".jsx", ".tsx", ".rs", ".java",
		".c", ".h", ".cpp", ".rb", ".sh", ".sql", ".css",
		".rst", ".org", ".tex",
	}
}

// Extract returns the file content as text. Binary or non-UTF-8 content
// is rejected with domain.ErrUnsupportedType.
func (e *Extractor) Extract(_ context.Context, path string, content []byte) (*domain.ExtractedText, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if bytes.IndexByte(content, 0) >= 0 || !utf8.Valid(content) {
		return nil, fmt.Errorf("%s looks binary: %w", filepath.Base(path), domain.ErrUnsupportedType)
	}

	out := &domain.ExtractedText{Title: TitleFromPath(path)}
	text := string(content)

	pages := strings.Split(text, "\f")
	if len(pages) == 1 {
		out.Text = text
		return out, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	for i, page := range pages {
		if i > 0 {
			b.WriteByte('\n')
		}
		out.Markers = append(out.Markers, domain.TextMarker{Offset: b.Len(), Page: i + 1})
		b.WriteString(page)
	}
	out.Text = b.String()
	return out, nil
}

// TitleFromPath derives a human-readable title from a file name.
func TitleFromPath(path string) string {
	filename := filepath.Base(path)
	if ext := filepath.Ext(filename); ext != "" && ext != filename {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}
