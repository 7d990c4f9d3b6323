// Package extractors maps file extensions to text extractors.
package extractors

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/extractors/docx"
	"github.com/custodia-labs/recall/internal/extractors/eml"
	"github.com/custodia-labs/recall/internal/extractors/html"
	"github.com/custodia-labs/recall/internal/extractors/markdown"
	"github.com/custodia-labs/recall/internal/extractors/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry selects an extractor by file extension.
// It is read-only after construction and safe for concurrent use.
type Registry struct {
	byExt map[string]driven.TextExtractor
}

// NewRegistry creates a registry from the given extractors.
// A later extractor wins when two claim the same extension.
func NewRegistry(extractors ...driven.TextExtractor) *Registry {
	r := &Registry{byExt: make(map[string]driven.TextExtractor)}
	for _, e := range extractors {
		for _, ext := range e.Extensions() {
			r.byExt[strings.ToLower(ext)] = e
		}
	}
	return r
}

// Default returns a registry with every built-in extractor.
func Default() *Registry {
	return NewRegistry(plaintext.New(), markdown.New(), html.New(), docx.New(), eml.New())
}

// For returns the extractor for path, or false if none handles it.
func (r *Registry) For(path string) (driven.TextExtractor, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, false
	}
	e, ok := r.byExt[ext]
	return e, ok
}

// Extensions returns all handled extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
