package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/logger"
)

// defaultLimit is used when a tool call omits its limit.
const defaultLimit = 10

// AppendThoughtInput is the input schema for the append_thought tool.
type AppendThoughtInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"the conversation the message belongs to"`
	Role           string `json:"role" jsonschema:"message author: user, assistant or system"`
	Text           string `json:"text" jsonschema:"the message text"`
}

// AppendThoughtOutput is the output schema for the append_thought tool.
type AppendThoughtOutput struct {
	ID      string            `json:"id"`
	Seq     int64             `json:"seq"`
	Indexed []string          `json:"indexed"`
	Failed  map[string]string `json:"failed,omitempty"`
	Warning string            `json:"warning,omitempty"`
}

// SearchThoughtsInput is the input schema for the search_thoughts tool.
type SearchThoughtsInput struct {
	Query    string `json:"query" jsonschema:"text to search conversational memory for"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Provider string `json:"provider,omitempty" jsonschema:"preferred embedding provider: remote or local"`
}

// ThoughtOutput is one thought search hit.
type ThoughtOutput struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	Role           string  `json:"role"`
	Text           string  `json:"text"`
	CreatedAt      string  `json:"created_at"`
	Provider       string  `json:"provider"`
	Distance       float64 `json:"distance"`
}

// SearchThoughtsOutput is the output schema for the search_thoughts tool.
type SearchThoughtsOutput struct {
	Results []ThoughtOutput `json:"results"`
	Count   int             `json:"count"`
}

// SaveMemoryInput is the input schema for the save_memory tool.
type SaveMemoryInput struct {
	Content string `json:"content" jsonschema:"the fact or preference to remember"`
	Type    string `json:"type,omitempty" jsonschema:"optional memory category"`
}

// MemoryOutput is one long-term memory.
type MemoryOutput struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Type      string   `json:"type,omitempty"`
	UpdatedAt string   `json:"updated_at"`
	Ranked    bool     `json:"ranked,omitempty"`
	Distance  float64  `json:"distance,omitempty"`
	Indexed   []string `json:"indexed,omitempty"`
}

// ListMemoriesInput is the input schema for the list_memories tool.
type ListMemoriesInput struct {
	Query string `json:"query,omitempty" jsonschema:"optional text to rank memories by"`
	Type  string `json:"type,omitempty" jsonschema:"only return memories of this type"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// ListMemoriesOutput is the output schema for the list_memories tool.
type ListMemoriesOutput struct {
	Memories []MemoryOutput `json:"memories"`
	Count    int            `json:"count"`
}

// DeleteMemoryInput is the input schema for the delete_memory tool.
type DeleteMemoryInput struct {
	ID string `json:"id" jsonschema:"the memory to delete"`
}

// DeleteMemoryOutput is the output schema for the delete_memory tool.
type DeleteMemoryOutput struct {
	Deleted bool `json:"deleted"`
}

// IndexDocumentsInput is the input schema for the index_documents tool.
type IndexDocumentsInput struct {
	Paths     []string `json:"paths" jsonschema:"files or directories to index"`
	Recursive bool     `json:"recursive,omitempty" jsonschema:"descend into subdirectories"`
}

// IndexDocumentsOutput is the output schema for the index_documents tool.
type IndexDocumentsOutput struct {
	Indexed    int               `json:"indexed"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Chunks     int               `json:"chunks"`
	Unembedded int               `json:"unembedded"`
	Errors     map[string]string `json:"errors,omitempty"`
	Warning    string            `json:"warning,omitempty"`
}

// SearchDocumentsInput is the input schema for the search_documents tool.
type SearchDocumentsInput struct {
	Query string `json:"query" jsonschema:"text to search indexed documents for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// DocumentResultOutput is one document search hit.
type DocumentResultOutput struct {
	Path    string  `json:"path"`
	Title   string  `json:"title"`
	Page    int     `json:"page,omitempty"`
	Section string  `json:"section,omitempty"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// SearchDocumentsOutput is the output schema for the search_documents tool.
type SearchDocumentsOutput struct {
	Results []DocumentResultOutput `json:"results"`
	Count   int                    `json:"count"`
}

// RemoveDocumentsInput is the input schema for the remove_documents tool.
type RemoveDocumentsInput struct {
	Paths []string `json:"paths" jsonschema:"files or directories to drop from the index"`
}

// RemoveDocumentsOutput is the output schema for the remove_documents tool.
type RemoveDocumentsOutput struct {
	Removed int `json:"removed"`
}

// ClearInput is the empty input of the clear tools.
type ClearInput struct{}

// ClearOutput is the output schema for the clear tools.
type ClearOutput struct {
	Rows    map[string]int64  `json:"rows"`
	Rebuilt []string          `json:"rebuilt"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "append_thought",
		Description: "Append a message to a conversation's short-term memory",
	}, s.handleAppendThought)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_thoughts",
		Description: "Semantic search across conversational memory",
	}, s.handleSearchThoughts)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "save_memory",
		Description: "Save a long-term memory",
	}, s.handleSaveMemory)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_memories",
		Description: "List long-term memories, ranked by similarity when a query is given",
	}, s.handleListMemories)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_memory",
		Description: "Delete a long-term memory",
	}, s.handleDeleteMemory)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_documents",
		Description: "Index files for document search; unchanged files are skipped",
	}, s.handleIndexDocuments)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Hybrid keyword and semantic search across indexed documents",
	}, s.handleSearchDocuments)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "remove_documents",
		Description: "Remove files or directories from the document index",
	}, s.handleRemoveDocuments)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "clear_thoughts",
		Description: "Delete every thought and conversation summary",
	}, s.handleClearThoughts)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "clear_memories",
		Description: "Delete every long-term memory",
	}, s.handleClearMemories)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "clear_documents",
		Description: "Delete every indexed document",
	}, s.handleClearDocuments)
}

func (s *Server) handleAppendThought(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AppendThoughtInput,
) (*mcp.CallToolResult, AppendThoughtOutput, error) {
	embeddings, failures := s.ports.Embedder.EmbedAll(ctx, input.Text)

	result, err := s.ports.Thoughts.Append(ctx, input.ConversationID, domain.Role(input.Role), input.Text, embeddings)
	if result == nil {
		return nil, AppendThoughtOutput{}, err
	}

	output := AppendThoughtOutput{
		ID:      result.Thought.ID,
		Seq:     result.Thought.Seq,
		Indexed: providerNames(result.Indexed),
	}
	for p, ferr := range failures {
		output.Failed = setReason(output.Failed, string(p), ferr)
	}
	for p, ferr := range result.Failed {
		output.Failed = setReason(output.Failed, string(p), ferr)
	}
	if err != nil {
		output.Warning = err.Error()
	}
	return nil, output, nil
}

func (s *Server) handleSearchThoughts(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchThoughtsInput,
) (*mcp.CallToolResult, SearchThoughtsOutput, error) {
	vec, provider, err := s.ports.Embedder.EmbedQuery(ctx, input.Query, domain.Provider(input.Provider))
	if err != nil {
		return nil, SearchThoughtsOutput{}, err
	}

	hits, err := s.ports.Thoughts.Search(ctx, vec, limitOrDefault(input.Limit), provider)
	if err != nil {
		return nil, SearchThoughtsOutput{}, err
	}

	output := SearchThoughtsOutput{
		Results: make([]ThoughtOutput, len(hits)),
		Count:   len(hits),
	}
	for i := range hits {
		t := hits[i].Thought
		output.Results[i] = ThoughtOutput{
			ID:             t.ID,
			ConversationID: t.ConversationID,
			Role:           string(t.Role),
			Text:           t.Text,
			CreatedAt:      t.CreatedAt.Format(time.RFC3339),
			Provider:       string(hits[i].Provider),
			Distance:       hits[i].Distance,
		}
	}
	return nil, output, nil
}

func (s *Server) handleSaveMemory(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SaveMemoryInput,
) (*mcp.CallToolResult, MemoryOutput, error) {
	embeddings, failures := s.ports.Embedder.EmbedAll(ctx, input.Content)
	for p, ferr := range failures {
		logger.Warn("MCP save_memory: %s embedding failed: %v", p, ferr)
	}

	m, err := s.ports.Memories.Save(ctx, input.Content, input.Type, embeddings)
	if m == nil {
		return nil, MemoryOutput{}, err
	}
	if err != nil {
		logger.Warn("MCP save_memory: %v", err)
	}

	output := memoryOutput(domain.MemoryResult{Memory: *m})
	output.Indexed = providerNames(sortedSlots(m.Slots))
	return nil, output, nil
}

func (s *Server) handleListMemories(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListMemoriesInput,
) (*mcp.CallToolResult, ListMemoriesOutput, error) {
	opts := domain.MemoryListOptions{
		Limit:      limitOrDefault(input.Limit),
		MemoryType: input.Type,
	}
	if input.Query != "" {
		vec, _, err := s.ports.Embedder.EmbedQuery(ctx, input.Query, "")
		if err != nil {
			return nil, ListMemoriesOutput{}, err
		}
		opts.Query = vec
	}

	results, err := s.ports.Memories.List(ctx, opts)
	if err != nil {
		return nil, ListMemoriesOutput{}, err
	}

	output := ListMemoriesOutput{
		Memories: make([]MemoryOutput, len(results)),
		Count:    len(results),
	}
	for i := range results {
		output.Memories[i] = memoryOutput(results[i])
	}
	return nil, output, nil
}

func (s *Server) handleDeleteMemory(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DeleteMemoryInput,
) (*mcp.CallToolResult, DeleteMemoryOutput, error) {
	if err := s.ports.Memories.Delete(ctx, input.ID); err != nil {
		return nil, DeleteMemoryOutput{}, err
	}
	return nil, DeleteMemoryOutput{Deleted: true}, nil
}

func (s *Server) handleIndexDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IndexDocumentsInput,
) (*mcp.CallToolResult, IndexDocumentsOutput, error) {
	report, err := s.ports.Documents.IndexPaths(ctx, input.Paths, input.Recursive)
	if report == nil {
		return nil, IndexDocumentsOutput{}, err
	}

	output := IndexDocumentsOutput{
		Indexed:    report.Indexed,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		Chunks:     report.Chunks,
		Unembedded: report.Unembedded,
		Errors:     report.Errors,
	}
	if err != nil {
		output.Warning = err.Error()
	}
	return nil, output, nil
}

func (s *Server) handleSearchDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchDocumentsInput,
) (*mcp.CallToolResult, SearchDocumentsOutput, error) {
	vec := s.documentQuery(ctx, input.Query)

	results, err := s.ports.Documents.Search(ctx, vec, input.Query, limitOrDefault(input.Limit))
	if err != nil {
		return nil, SearchDocumentsOutput{}, err
	}

	output := SearchDocumentsOutput{
		Results: make([]DocumentResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = DocumentResultOutput{
			Path:    results[i].Path,
			Title:   results[i].Title,
			Page:    results[i].Chunk.Page,
			Section: results[i].Chunk.Section,
			Text:    results[i].Chunk.Text,
			Score:   results[i].Score,
		}
	}
	return nil, output, nil
}

// documentQuery embeds a document query with the local provider. Documents
// are only embedded locally, so any other outcome falls back to keywords.
func (s *Server) documentQuery(ctx context.Context, text string) []float32 {
	if text == "" {
		return nil
	}
	vec, provider, err := s.ports.Embedder.EmbedQuery(ctx, text, domain.ProviderLocal)
	if err != nil || provider != domain.ProviderLocal {
		logger.Debug("MCP search_documents: keyword only (%v)", err)
		return nil
	}
	return vec
}

func (s *Server) handleRemoveDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RemoveDocumentsInput,
) (*mcp.CallToolResult, RemoveDocumentsOutput, error) {
	n, err := s.ports.Documents.RemovePaths(ctx, input.Paths)
	if err != nil {
		return nil, RemoveDocumentsOutput{}, err
	}
	return nil, RemoveDocumentsOutput{Removed: n}, nil
}

func (s *Server) handleClearThoughts(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ClearInput,
) (*mcp.CallToolResult, ClearOutput, error) {
	return clearOutput(s.ports.Thoughts.ClearAll(ctx))
}

func (s *Server) handleClearMemories(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ClearInput,
) (*mcp.CallToolResult, ClearOutput, error) {
	return clearOutput(s.ports.Memories.Clear(ctx))
}

func (s *Server) handleClearDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ClearInput,
) (*mcp.CallToolResult, ClearOutput, error) {
	return clearOutput(s.ports.Documents.Clear(ctx))
}

func clearOutput(report *domain.ClearReport, err error) (*mcp.CallToolResult, ClearOutput, error) {
	if err != nil {
		return nil, ClearOutput{}, err
	}
	if report == nil {
		return nil, ClearOutput{}, errors.New("clear returned no report")
	}

	output := ClearOutput{
		Rows:    make(map[string]int64, len(report.Rows)),
		Rebuilt: make([]string, len(report.Rebuilt)),
	}
	for table, n := range report.Rows {
		output.Rows[table] = n
	}
	for i, name := range report.Rebuilt {
		output.Rebuilt[i] = string(name)
	}
	for name, reason := range report.Errors {
		if output.Errors == nil {
			output.Errors = make(map[string]string)
		}
		output.Errors[string(name)] = reason
	}
	return nil, output, nil
}

func memoryOutput(r domain.MemoryResult) MemoryOutput {
	return MemoryOutput{
		ID:        r.Memory.ID,
		Content:   r.Memory.Content,
		Type:      r.Memory.MemoryType,
		UpdatedAt: r.Memory.UpdatedAt.Format(time.RFC3339),
		Ranked:    r.Ranked,
		Distance:  r.Distance,
	}
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

func providerNames(providers []domain.Provider) []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}
	return names
}

func sortedSlots(slots map[domain.Provider]int) []domain.Provider {
	providers := make([]domain.Provider, 0, len(slots))
	for p := range slots {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

func setReason(m map[string]string, key string, err error) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m[key] = fmt.Sprint(err)
	return m
}
