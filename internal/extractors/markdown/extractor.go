// Package markdown extracts text from Markdown files. Headings become
// section markers; fenced code blocks and front matter are dropped.
package markdown

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/extractors/plaintext"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles Markdown documents.
type Extractor struct{}

// New creates a new Markdown extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// Pre-compiled patterns for inline formatting.
var (
	heading      = regexp.MustCompile(`^\s{0,3}(#{1,6})\s+(.*?)\s*#*\s*$`)
	images       = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	blockquote   = regexp.MustCompile(`^\s*>\s?`)
	horizontal   = regexp.MustCompile(`^\s*([-*_]\s*){3,}$`)
	listMarker   = regexp.MustCompile(`^\s*[-*+]\s+`)
	numberedList = regexp.MustCompile(`^\s*\d+[.)]\s+`)
	emphasis     = strings.NewReplacer("**", "", "__", "", "*", "")
)

// Extract converts Markdown to plain text with a section marker per heading.
func (e *Extractor) Extract(_ context.Context, path string, content []byte) (*domain.ExtractedText, error) {
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%s is not UTF-8: %w", filepath.Base(path), domain.ErrUnsupportedType)
	}

	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	lines = skipFrontMatter(lines)

	out := &domain.ExtractedText{}
	var (
		b        strings.Builder
		inFence  bool
		lastLine = true // suppresses leading and repeated blank lines
	)

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		if m := heading.FindStringSubmatch(line); m != nil {
			title := stripInline(m[2])
			if title == "" {
				continue
			}
			if out.Title == "" && len(m[1]) == 1 {
				out.Title = title
			}
			out.Markers = append(out.Markers, domain.TextMarker{Offset: b.Len(), Section: title})
			b.WriteString(title)
			b.WriteByte('\n')
			lastLine = false
			continue
		}

		if horizontal.MatchString(line) {
			continue
		}

		text := stripInline(line)
		if text == "" {
			if !lastLine {
				b.WriteByte('\n')
				lastLine = true
			}
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
		lastLine = false
	}

	out.Text = strings.TrimRight(b.String(), "\n")
	if out.Title == "" {
		out.Title = plaintext.TitleFromPath(path)
	}
	return out, nil
}

// stripInline removes Markdown formatting from one line.
func stripInline(line string) string {
	line = blockquote.ReplaceAllString(line, "")
	line = listMarker.ReplaceAllString(line, "")
	line = numberedList.ReplaceAllString(line, "")
	line = images.ReplaceAllString(line, "")
	line = links.ReplaceAllString(line, "$1")
	line = inlineCode.ReplaceAllString(line, "$1")
	line = emphasis.Replace(line)
	return strings.TrimSpace(line)
}

// skipFrontMatter drops a leading YAML front matter block.
func skipFrontMatter(lines []string) []string {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return lines
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return lines[i+1:]
		}
	}
	return lines
}
