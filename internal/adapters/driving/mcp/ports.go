package mcp

import (
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Thoughts manages short-term conversational memory.
	Thoughts driving.ThoughtService

	// Memories manages long-term memories.
	Memories driving.MemoryService

	// Documents manages the document index.
	Documents driving.DocumentService

	// Embedder turns tool text into vectors.
	Embedder driving.Embedder
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	switch {
	case p.Thoughts == nil:
		return ErrMissingThoughtService
	case p.Memories == nil:
		return ErrMissingMemoryService
	case p.Documents == nil:
		return ErrMissingDocumentService
	case p.Embedder == nil:
		return ErrMissingEmbedder
	}
	return nil
}
