// Package mcp provides an MCP (Model Context Protocol) server adapter for recall.
// It lets AI assistants append and search conversational memory, curate
// long-term memories and query indexed documents.
package mcp

import "errors"

// Errors returned when a required port is missing.
var (
	ErrMissingThoughtService  = errors.New("mcp: thought service is required")
	ErrMissingMemoryService   = errors.New("mcp: memory service is required")
	ErrMissingDocumentService = errors.New("mcp: document service is required")
	ErrMissingEmbedder        = errors.New("mcp: embedder is required")
)
