// Package eml extracts text from RFC 5322 email files.
package eml

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/extractors/html"
	"github.com/custodia-labs/recall/internal/extractors/plaintext"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles .eml files. The subject becomes the title and a
// section; HTML-only bodies go through the HTML extractor.
type Extractor struct {
	html *html.Extractor
}

// New creates a new email extractor.
func New() *Extractor {
	return &Extractor{html: html.New()}
}

// Extensions returns the file extensions this extractor handles.
func (e *Extractor) Extensions() []string {
	return []string{".eml"}
}

// Extract parses the message and returns its headers and body as text.
func (e *Extractor) Extract(ctx context.Context, path string, content []byte) (*domain.ExtractedText, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), domain.ErrInvalidInput)
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	body, err := e.extractBody(ctx, path, msg.Header.Get("Content-Type"), msg.Body)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, h := range []string{"From", "To", "Date"} {
		if v := decodeHeader(msg.Header.Get(h)); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", h, v)
		}
	}
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", subject)
	}
	b.WriteString("\n")

	out := &domain.ExtractedText{Title: subject}
	if out.Title == "" {
		out.Title = plaintext.TitleFromPath(path)
	}
	if subject != "" {
		out.Markers = []domain.TextMarker{{Offset: 0, Section: subject}}
	}
	b.WriteString(strings.TrimSpace(body))
	out.Text = strings.TrimSpace(b.String())
	return out, nil
}

// decodeHeader decodes RFC 2047 encoded headers.
func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

func (e *Extractor) extractBody(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		body, readErr := io.ReadAll(r)
		if readErr != nil {
			return "", fmt.Errorf("read body: %w", readErr)
		}
		return string(body), nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return e.extractMultipart(ctx, path, r, params["boundary"])
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if mediaType == "text/html" {
		return e.htmlText(ctx, path, body), nil
	}
	return string(body), nil
}

// extractMultipart prefers text/plain parts over HTML ones.
func (e *Extractor) extractMultipart(ctx context.Context, path string, r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", nil
	}

	mr := multipart.NewReader(r, boundary)
	var textParts, htmlParts []string

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		mediaType, params, parseErr := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if parseErr != nil {
			mediaType = "application/octet-stream"
		}

		content, readErr := io.ReadAll(part)
		part.Close()
		if readErr != nil {
			continue
		}

		switch {
		case mediaType == "text/plain":
			textParts = append(textParts, string(content))
		case mediaType == "text/html":
			htmlParts = append(htmlParts, e.htmlText(ctx, path, content))
		case strings.HasPrefix(mediaType, "multipart/"):
			nested, nestedErr := e.extractMultipart(ctx, path, bytes.NewReader(content), params["boundary"])
			if nestedErr == nil && nested != "" {
				textParts = append(textParts, nested)
			}
		}
	}

	if len(textParts) > 0 {
		return strings.Join(textParts, "\n"), nil
	}
	return strings.Join(htmlParts, "\n"), nil
}

func (e *Extractor) htmlText(ctx context.Context, path string, content []byte) string {
	out, err := e.html.Extract(ctx, path, content)
	if err != nil {
		return ""
	}
	return out.Text
}
