// Package html extracts readable text from HTML documents. Script, style
// and head content is dropped and each h1-h6 heading opens a section.
package html

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/extractors/plaintext"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles HTML documents.
type Extractor struct{}

// New creates a new HTML extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".html", ".htm", ".xhtml"}
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	titleTag          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	headingTag        = regexp.MustCompile(`(?is)<h([1-6])[^>]*>(.*?)</h[1-6]\s*>`)
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag            = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|br|hr|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	brTags            = regexp.MustCompile(`(?i)<br\s*/?>`)
	hrTags            = regexp.MustCompile(`(?i)<hr\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t]+`)
)

// Extract converts HTML to text with a section marker per heading.
func (e *Extractor) Extract(_ context.Context, path string, content []byte) (*domain.ExtractedText, error) {
	raw := string(content)
	out := &domain.ExtractedText{Title: extractTitle(raw)}

	raw = dropInvisible(raw)

	var b strings.Builder
	appendBlock := func(text string) {
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text)
	}

	rest := raw
	for {
		loc := headingTag.FindStringSubmatchIndex(rest)
		if loc == nil {
			appendBlock(stripHTML(rest))
			break
		}
		appendBlock(stripHTML(rest[:loc[0]]))

		heading := collapseLine(stripHTML(rest[loc[4]:loc[5]]))
		if heading != "" {
			if out.Title == "" && rest[loc[2]:loc[3]] == "1" {
				out.Title = heading
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			out.Markers = append(out.Markers, domain.TextMarker{Offset: b.Len(), Section: heading})
			b.WriteString(heading)
		}
		rest = rest[loc[1]:]
	}

	out.Text = b.String()
	if out.Title == "" {
		out.Title = plaintext.TitleFromPath(path)
	}
	return out, nil
}

// extractTitle returns the decoded <title> text, or empty.
func extractTitle(content string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) < 2 {
		return ""
	}
	return collapseLine(html.UnescapeString(allTags.ReplaceAllString(matches[1], "")))
}

// dropInvisible removes elements that never render as text.
func dropInvisible(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = svgTag.ReplaceAllString(content, "")
	return htmlComments.ReplaceAllString(content, "")
}

// stripHTML removes tags from a fragment and returns its non-empty lines.
func stripHTML(content string) string {
	content = openBlockElements.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n")
	content = brTags.ReplaceAllString(content, "\n")
	content = hrTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	result := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}

// collapseLine joins a multi-line fragment into one line.
func collapseLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
