// Package docx extracts text from Word (DOCX) documents. Paragraphs
// styled as headings open sections and explicit page breaks start pages.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/extractors/plaintext"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

const (
	documentPart = "word/document.xml"
	corePart     = "docProps/core.xml"
)

// Extractor handles DOCX documents.
type Extractor struct{}

// New creates a new DOCX extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".docx"}
}

// Extract reads word/document.xml and docProps/core.xml from the archive.
func (e *Extractor) Extract(_ context.Context, path string, content []byte) (*domain.ExtractedText, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", domain.ErrInvalidInput)
	}

	body, err := readPart(reader, documentPart)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("docx has no %s: %w", documentPart, domain.ErrInvalidInput)
	}

	out, err := parseDocument(body)
	if err != nil {
		return nil, err
	}

	if core, err := readPart(reader, corePart); err == nil && core != nil {
		out.Title = parseTitle(core)
	}
	if out.Title == "" {
		out.Title = plaintext.TitleFromPath(path)
	}
	return out, nil
}

// readPart returns the named archive member, or nil when absent.
func readPart(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, domain.ErrInvalidInput)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, domain.ErrInvalidInput)
		}
		return data, nil
	}
	return nil, nil
}

// docBuilder accumulates text and markers while walking document.xml.
type docBuilder struct {
	buf     strings.Builder
	markers []domain.TextMarker

	// paragraph state
	started    bool
	heading    bool
	headingAt  int
	paragraph  strings.Builder
	pageBreaks int
	pending    bool
}

// write appends paragraph text, opening the paragraph on first use.
func (d *docBuilder) write(s string) {
	if s == "" {
		return
	}
	if !d.started {
		if d.buf.Len() > 0 {
			d.buf.WriteByte('\n')
		}
		d.started = true
		if d.heading {
			d.headingAt = len(d.markers)
			d.markers = append(d.markers, domain.TextMarker{Offset: d.buf.Len()})
		}
	}
	if d.pending {
		d.pageBreaks++
		d.markers = append(d.markers, domain.TextMarker{Offset: d.buf.Len(), Page: d.pageBreaks + 1})
		d.pending = false
	}
	d.buf.WriteString(s)
	if d.heading {
		d.paragraph.WriteString(s)
	}
}

// endParagraph closes the current paragraph and names its section.
func (d *docBuilder) endParagraph() {
	if d.started && d.heading {
		name := strings.Join(strings.Fields(d.paragraph.String()), " ")
		if name == "" {
			d.markers = append(d.markers[:d.headingAt], d.markers[d.headingAt+1:]...)
		} else {
			d.markers[d.headingAt].Section = name
		}
	}
	d.started = false
	d.heading = false
	d.paragraph.Reset()
}

func (d *docBuilder) result() *domain.ExtractedText {
	out := &domain.ExtractedText{Text: d.buf.String(), Markers: d.markers}
	if d.pageBreaks > 0 {
		out.Markers = append([]domain.TextMarker{{Offset: 0, Page: 1}}, out.Markers...)
	}
	return out
}

// parseDocument walks document.xml token by token so page breaks keep
// their position relative to the surrounding text.
func parseDocument(content []byte) (*domain.ExtractedText, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	var (
		d      docBuilder
		inText bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", documentPart, domain.ErrInvalidInput)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				d.endParagraph()
			case "pStyle":
				d.heading = isHeadingStyle(attr(t, "val"))
			case "t":
				inText = true
			case "tab":
				if d.started {
					d.write(" ")
				}
			case "br":
				if attr(t, "type") == "page" {
					d.pending = true
				} else if d.started {
					d.write("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				d.endParagraph()
			}
		case xml.CharData:
			if inText {
				d.write(string(t))
			}
		}
	}
	return d.result(), nil
}

// isHeadingStyle matches Word's built-in heading styles ("Heading1",
// "heading 2") and the document title style.
func isHeadingStyle(style string) bool {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.HasPrefix(s, "heading") || s == "title"
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// coreXML represents the structure of docProps/core.xml.
type coreXML struct {
	Title string `xml:"title"`
}

func parseTitle(content []byte) string {
	var core coreXML
	if err := xml.Unmarshal(content, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}
