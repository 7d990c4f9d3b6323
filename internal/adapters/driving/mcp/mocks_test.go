package mcp

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// mockThoughtService is a mock implementation of driving.ThoughtService.
type mockThoughtService struct {
	appendResult *domain.AppendResult
	hits         []domain.ThoughtHit
	thoughts     []domain.Thought
	summary      *domain.ConversationSummary
	clearReport  *domain.ClearReport
	err          error
	summaryErr   error

	gotEmbeddings domain.EmbeddingSet
	gotRole       domain.Role
	gotQuery      []float32
	gotK          int
	gotHint       domain.Provider
}

func (m *mockThoughtService) Append(
	_ context.Context, _ string, role domain.Role, _ string, embeddings domain.EmbeddingSet,
) (*domain.AppendResult, error) {
	m.gotRole = role
	m.gotEmbeddings = embeddings
	return m.appendResult, m.err
}

func (m *mockThoughtService) Search(
	_ context.Context, query []float32, k int, hint domain.Provider,
) ([]domain.ThoughtHit, error) {
	m.gotQuery, m.gotK, m.gotHint = query, k, hint
	return m.hits, m.err
}

func (m *mockThoughtService) Get(_ context.Context, _ string) (*domain.Thought, error) {
	return nil, domain.ErrNotFound
}

func (m *mockThoughtService) ListConversation(_ context.Context, _ string, _ int) ([]domain.Thought, error) {
	return m.thoughts, m.err
}

func (m *mockThoughtService) SummarizationWindow(_ context.Context, _ string, _ int) ([]domain.Thought, error) {
	return m.thoughts, m.err
}

func (m *mockThoughtService) RecordSummary(_ context.Context, _, _ string, _ int) (*domain.ConversationSummary, error) {
	return m.summary, m.err
}

func (m *mockThoughtService) LatestSummary(_ context.Context, _ string) (*domain.ConversationSummary, error) {
	return m.summary, m.summaryErr
}

func (m *mockThoughtService) ClearAll(_ context.Context) (*domain.ClearReport, error) {
	return m.clearReport, m.err
}

// mockMemoryService is a mock implementation of driving.MemoryService.
type mockMemoryService struct {
	memory      *domain.LongTermMemory
	results     []domain.MemoryResult
	clearReport *domain.ClearReport
	err         error

	gotOpts   domain.MemoryListOptions
	gotType   string
	deletedID string
}

func (m *mockMemoryService) Save(
	_ context.Context, _, memoryType string, _ domain.EmbeddingSet,
) (*domain.LongTermMemory, error) {
	m.gotType = memoryType
	return m.memory, m.err
}

func (m *mockMemoryService) Update(
	_ context.Context, _, _, _ string, _ domain.EmbeddingSet,
) (*domain.LongTermMemory, error) {
	return m.memory, m.err
}

func (m *mockMemoryService) Get(_ context.Context, _ string) (*domain.LongTermMemory, error) {
	return m.memory, m.err
}

func (m *mockMemoryService) List(_ context.Context, opts domain.MemoryListOptions) ([]domain.MemoryResult, error) {
	m.gotOpts = opts
	return m.results, m.err
}

func (m *mockMemoryService) Delete(_ context.Context, id string) error {
	m.deletedID = id
	return m.err
}

func (m *mockMemoryService) Clear(_ context.Context) (*domain.ClearReport, error) {
	return m.clearReport, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	report      *domain.IndexReport
	results     []domain.DocumentSearchResult
	documents   []domain.RagDocument
	removed     int
	clearReport *domain.ClearReport
	err         error

	gotQuery     []float32
	gotQueryText string
	gotPaths     []string
	gotRecursive bool
}

func (m *mockDocumentService) IndexPaths(
	_ context.Context, paths []string, recursive bool,
) (*domain.IndexReport, error) {
	m.gotPaths, m.gotRecursive = paths, recursive
	return m.report, m.err
}

func (m *mockDocumentService) Search(
	_ context.Context, query []float32, queryText string, _ int,
) ([]domain.DocumentSearchResult, error) {
	m.gotQuery, m.gotQueryText = query, queryText
	return m.results, m.err
}

func (m *mockDocumentService) RemovePaths(_ context.Context, paths []string) (int, error) {
	m.gotPaths = paths
	return m.removed, m.err
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.RagDocument, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Clear(_ context.Context) (*domain.ClearReport, error) {
	return m.clearReport, m.err
}

// mockEmbedder is a mock implementation of driving.Embedder.
type mockEmbedder struct {
	set      domain.EmbeddingSet
	failures map[domain.Provider]error
	vec      []float32
	provider domain.Provider
	err      error

	gotPreferred domain.Provider
}

func (m *mockEmbedder) EmbedAll(_ context.Context, _ string) (domain.EmbeddingSet, map[domain.Provider]error) {
	return m.set, m.failures
}

func (m *mockEmbedder) EmbedQuery(
	_ context.Context, _ string, preferred domain.Provider,
) ([]float32, domain.Provider, error) {
	m.gotPreferred = preferred
	return m.vec, m.provider, m.err
}

func (m *mockEmbedder) Providers() []domain.Provider {
	return []domain.Provider{domain.ProviderLocal}
}

// testPorts returns ports backed by fresh mocks.
func testPorts() *Ports {
	return &Ports{
		Thoughts:  &mockThoughtService{},
		Memories:  &mockMemoryService{},
		Documents: &mockDocumentService{},
		Embedder:  &mockEmbedder{vec: []float32{1, 0, 0}, provider: domain.ProviderLocal},
	}
}
