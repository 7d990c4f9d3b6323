package extractors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/extractors/docx"
	"github.com/custodia-labs/recall/internal/extractors/html"
	"github.com/custodia-labs/recall/internal/extractors/markdown"
	"github.com/custodia-labs/recall/internal/extractors/plaintext"
)

type fakeExtractor struct{ exts []string }

func (f *fakeExtractor) Extensions() []string { return f.exts }

func (f *fakeExtractor) Extract(context.Context, string, []byte) (*domain.ExtractedText, error) {
	return &domain.ExtractedText{Text: "fake"}, nil
}

func TestDefault_SelectsByExtension(t *testing.T) {
	r := Default()

	tests := []struct {
		path string
		want any
	}{
		{"/a/notes.md", &markdown.Extractor{}},
		{"/a/NOTES.MD", &markdown.Extractor{}},
		{"/a/page.html", &html.Extractor{}},
		{"/a/report.docx", &docx.Extractor{}},
		{"/a/main.go", &plaintext.Extractor{}},
		{"/a/readme.txt", &plaintext.Extractor{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e, ok := r.For(tt.path)
			require.True(t, ok)
			assert.IsType(t, tt.want, e)
		})
	}
}

func TestDefault_Unsupported(t *testing.T) {
	r := Default()
	for _, p := range []string{"/a/photo.png", "/a/Makefile", "/a/archive.zip"} {
		_, ok := r.For(p)
		assert.False(t, ok, p)
	}
}

func TestNewRegistry_LaterWins(t *testing.T) {
	fake := &fakeExtractor{exts: []string{".md"}}
	r := NewRegistry(markdown.New(), fake)

	e, ok := r.For("x.md")
	require.True(t, ok)
	assert.Same(t, fake, e)
	assert.Contains(t, r.Extensions(), ".markdown")
}

func TestExtensions_Sorted(t *testing.T) {
	exts := Default().Extensions()
	assert.IsIncreasing(t, exts)
	assert.Contains(t, exts, ".docx")
	assert.Contains(t, exts, ".eml")
}
