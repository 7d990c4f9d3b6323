package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/recall/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for recall resources.
	uriScheme = "recall://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "memories",
		Name:        "memories",
		Description: "All long-term memories, newest first",
		MIMEType:    "application/json",
	}, s.handleMemoriesResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "documents",
		Name:        "documents",
		Description: "All indexed documents",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "conversations/{conversationId}",
		Name:        "conversation",
		Description: "Messages and latest summary of a conversation",
		MIMEType:    "application/json",
	}, s.handleConversationResource)
}

// handleMemoriesResource returns every long-term memory.
func (s *Server) handleMemoriesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	results, err := s.ports.Memories.List(ctx, domain.MemoryListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}

	infos := make([]MemoryOutput, len(results))
	for i := range results {
		infos[i] = memoryOutput(results[i])
	}
	return jsonResource(req.Params.URI, infos)
}

// handleDocumentsResource returns every indexed document.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docs, err := s.ports.Documents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	type docInfo struct {
		ID        string `json:"id"`
		Path      string `json:"path"`
		Title     string `json:"title"`
		SizeBytes int64  `json:"size_bytes"`
		UpdatedAt string `json:"updated_at"`
	}

	infos := make([]docInfo, len(docs))
	for i := range docs {
		infos[i] = docInfo{
			ID:        docs[i].ID,
			Path:      docs[i].Path,
			Title:     docs[i].Title,
			SizeBytes: docs[i].SizeBytes,
			UpdatedAt: docs[i].UpdatedAt.Format(time.RFC3339),
		}
	}
	return jsonResource(req.Params.URI, infos)
}

// handleConversationResource returns one conversation's messages.
func (s *Server) handleConversationResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// recall://conversations/{conversationId}
	conversationID := extractConversationID(req.Params.URI)
	if conversationID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	thoughts, err := s.ports.Thoughts.ListConversation(ctx, conversationID, 0)
	if err != nil {
		return nil, fmt.Errorf("listing conversation: %w", err)
	}
	if len(thoughts) == 0 {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	type message struct {
		ID        string `json:"id"`
		Seq       int64  `json:"seq"`
		Role      string `json:"role"`
		Text      string `json:"text"`
		CreatedAt string `json:"created_at"`
	}
	type conversation struct {
		ID       string    `json:"id"`
		Summary  string    `json:"summary,omitempty"`
		Messages []message `json:"messages"`
	}

	out := conversation{ID: conversationID, Messages: make([]message, len(thoughts))}
	for i := range thoughts {
		out.Messages[i] = message{
			ID:        thoughts[i].ID,
			Seq:       thoughts[i].Seq,
			Role:      string(thoughts[i].Role),
			Text:      thoughts[i].Text,
			CreatedAt: thoughts[i].CreatedAt.Format(time.RFC3339),
		}
	}

	summary, err := s.ports.Thoughts.LatestSummary(ctx, conversationID)
	switch {
	case err == nil:
		out.Summary = summary.SummaryText
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("loading summary: %w", err)
	}

	return jsonResource(req.Params.URI, out)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractConversationID extracts the ID from a URI like recall://conversations/{conversationId}.
func extractConversationID(uri string) string {
	const prefix = uriScheme + "conversations/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
