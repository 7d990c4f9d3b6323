package cli

import (
	"bytes"
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/logger"
)

var testTime = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

type mockThoughtService struct {
	appendErr  error
	err        error
	gotRole    domain.Role
	gotHint    domain.Provider
	gotK       int
	gotCovered int
	cleared    bool
}

func (m *mockThoughtService) Append(
	_ context.Context, conversationID string, role domain.Role, text string, embeddings domain.EmbeddingSet,
) (*domain.AppendResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.gotRole = role
	result := &domain.AppendResult{
		Thought: domain.Thought{ID: "thought-1", Seq: 3, ConversationID: conversationID, Role: role, Text: text},
		Failed:  map[domain.Provider]error{},
	}
	for p := range embeddings {
		result.Indexed = append(result.Indexed, p)
	}
	return result, m.appendErr
}

func (m *mockThoughtService) Search(_ context.Context, _ []float32, k int, hint domain.Provider) ([]domain.ThoughtHit, error) {
	m.gotK, m.gotHint = k, hint
	if m.err != nil {
		return nil, m.err
	}
	return []domain.ThoughtHit{{
		Thought:  domain.Thought{ID: "thought-1", ConversationID: "conv-1", Role: domain.RoleUser, Text: "I like green tea"},
		Provider: domain.ProviderLocal,
		Distance: 0.125,
	}}, nil
}

func (m *mockThoughtService) Get(_ context.Context, _ string) (*domain.Thought, error) {
	return nil, domain.ErrNotFound
}

func (m *mockThoughtService) ListConversation(_ context.Context, conversationID string, _ int) ([]domain.Thought, error) {
	if conversationID == "empty" {
		return nil, nil
	}
	return []domain.Thought{
		{ID: "thought-1", Seq: 1, Role: domain.RoleUser, Text: "hello", CreatedAt: testTime},
		{ID: "thought-2", Seq: 2, Role: domain.RoleAssistant, Text: "hi there", CreatedAt: testTime},
	}, m.err
}

func (m *mockThoughtService) SummarizationWindow(ctx context.Context, conversationID string, count int) ([]domain.Thought, error) {
	if count <= 0 {
		return nil, domain.ErrInvalidInput
	}
	return m.ListConversation(ctx, conversationID, count)
}

func (m *mockThoughtService) RecordSummary(
	_ context.Context, conversationID, summaryText string, coveredCount int,
) (*domain.ConversationSummary, error) {
	m.gotCovered = coveredCount
	if coveredCount <= 0 {
		return nil, domain.ErrInvalidInput
	}
	return &domain.ConversationSummary{
		ID: "summary-1", ConversationID: conversationID, SummaryText: summaryText,
		CoveredMessageCount: coveredCount, CoveredThroughSeq: int64(coveredCount),
	}, nil
}

func (m *mockThoughtService) LatestSummary(_ context.Context, _ string) (*domain.ConversationSummary, error) {
	return nil, domain.ErrNotFound
}

func (m *mockThoughtService) ClearAll(_ context.Context) (*domain.ClearReport, error) {
	m.cleared = true
	return &domain.ClearReport{
		Rows:    map[string]int64{"thoughts": 2, "conversation_summaries": 1},
		Rebuilt: []domain.IndexName{domain.IndexRemote, domain.IndexLocal},
	}, m.err
}

type mockMemoryService struct {
	err       error
	gotOpts   domain.MemoryListOptions
	gotType   string
	deletedID string
}

func (m *mockMemoryService) Save(
	_ context.Context, content, memoryType string, embeddings domain.EmbeddingSet,
) (*domain.LongTermMemory, error) {
	m.gotType = memoryType
	if m.err != nil {
		return nil, m.err
	}
	mem := &domain.LongTermMemory{ID: "memory-1", Content: content, MemoryType: memoryType, Slots: map[domain.Provider]int{}}
	for p := range embeddings {
		mem.Slots[p] = 0
	}
	return mem, nil
}

func (m *mockMemoryService) Update(
	ctx context.Context, id, content, memoryType string, embeddings domain.EmbeddingSet,
) (*domain.LongTermMemory, error) {
	if id != "memory-1" {
		return nil, domain.ErrNotFound
	}
	return m.Save(ctx, content, memoryType, embeddings)
}

func (m *mockMemoryService) Get(_ context.Context, _ string) (*domain.LongTermMemory, error) {
	return nil, domain.ErrNotFound
}

func (m *mockMemoryService) List(_ context.Context, opts domain.MemoryListOptions) ([]domain.MemoryResult, error) {
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return []domain.MemoryResult{
		{Memory: domain.LongTermMemory{ID: "memory-1", Content: "Prefers tea", MemoryType: "preference"},
			Ranked: opts.Query != nil, Distance: 0.25},
		{Memory: domain.LongTermMemory{ID: "memory-2", Content: "Lives in Lisbon"}},
	}, nil
}

func (m *mockMemoryService) Delete(_ context.Context, id string) error {
	if id != "memory-1" {
		return domain.ErrNotFound
	}
	m.deletedID = id
	return nil
}

func (m *mockMemoryService) Clear(_ context.Context) (*domain.ClearReport, error) {
	return &domain.ClearReport{Rows: map[string]int64{"long_term_memories": 2}}, m.err
}

type mockDocumentService struct {
	indexErr     error
	err          error
	gotPaths     []string
	gotRecursive bool
	gotQuery     []float32
	gotText      string
	gotK         int
}

func (m *mockDocumentService) IndexPaths(_ context.Context, paths []string, recursive bool) (*domain.IndexReport, error) {
	m.gotPaths, m.gotRecursive = paths, recursive
	report := &domain.IndexReport{Indexed: 2, Skipped: 1, Failed: 1, Chunks: 6, Unembedded: 2}
	report.AddError("/docs/broken.docx", domain.ErrUnsupportedType)
	return report, m.indexErr
}

func (m *mockDocumentService) Search(
	_ context.Context, query []float32, queryText string, k int,
) ([]domain.DocumentSearchResult, error) {
	m.gotQuery, m.gotText, m.gotK = query, queryText, k
	if m.err != nil {
		return nil, m.err
	}
	return []domain.DocumentSearchResult{{
		Chunk: domain.RagChunk{Text: "Green tea is steeped at 80C.", Section: "Brewing", Page: 2},
		Path:  "/docs/tea.md",
		Title: "Tea Guide",
		Score: 0.7,
	}}, nil
}

func (m *mockDocumentService) RemovePaths(_ context.Context, paths []string) (int, error) {
	m.gotPaths = paths
	return len(paths), m.err
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.RagDocument, error) {
	return []domain.RagDocument{
		{ID: "doc-1", Path: "/docs/tea.md", Title: "Tea Guide", SizeBytes: 120, ModifiedTime: testTime},
	}, m.err
}

func (m *mockDocumentService) Clear(_ context.Context) (*domain.ClearReport, error) {
	return &domain.ClearReport{
		Rows:    map[string]int64{"rag_documents": 1, "rag_chunks": 6},
		Rebuilt: []domain.IndexName{domain.IndexRagLocal},
	}, m.err
}

type mockRecoveryService struct {
	statuses []domain.IndexStatus
	rebuilt  []domain.IndexName
	err      error
}

func (m *mockRecoveryService) Startup(_ context.Context) (*domain.StartupReport, error) {
	return &domain.StartupReport{}, nil
}

func (m *mockRecoveryService) CheckConsistency(_ context.Context) ([]domain.IndexStatus, error) {
	if m.statuses != nil {
		return m.statuses, m.err
	}
	return []domain.IndexStatus{
		{Name: domain.IndexRemote, Len: 2, Slots: 2},
		{Name: domain.IndexLocal, Len: 3, Slots: 3},
		{Name: domain.IndexRagLocal, Len: 6, Slots: 6},
	}, m.err
}

func (m *mockRecoveryService) RebuildIndex(_ context.Context, name domain.IndexName) error {
	m.rebuilt = append(m.rebuilt, name)
	return m.err
}

func (m *mockRecoveryService) Shutdown() error { return nil }

type mockSettingsService struct {
	settings domain.AppSettings
	saved    *domain.AppSettings
}

func newMockSettingsService() *mockSettingsService {
	settings := domain.DefaultAppSettings()
	settings.DataDir = "/tmp/recall-data"
	return &mockSettingsService{settings: settings}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.AppSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	m.saved = settings
	m.settings = *settings
	return nil
}

func (m *mockSettingsService) Validate() error {
	return m.settings.Validate()
}

func (m *mockSettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// mockEmbedder embeds everything with the local provider.
type mockEmbedder struct {
	provider     domain.Provider
	err          error
	gotPreferred domain.Provider
}

func (m *mockEmbedder) EmbedAll(_ context.Context, _ string) (domain.EmbeddingSet, map[domain.Provider]error) {
	if m.err != nil {
		return domain.EmbeddingSet{}, map[domain.Provider]error{domain.ProviderLocal: m.err}
	}
	return domain.EmbeddingSet{domain.ProviderLocal: {1, 0, 0}}, nil
}

func (m *mockEmbedder) EmbedQuery(_ context.Context, _ string, preferred domain.Provider) ([]float32, domain.Provider, error) {
	m.gotPreferred = preferred
	if m.err != nil {
		return nil, "", m.err
	}
	p := m.provider
	if p == "" {
		p = domain.ProviderLocal
	}
	return []float32{1, 0, 0}, p, nil
}

func (m *mockEmbedder) Providers() []domain.Provider {
	return []domain.Provider{domain.ProviderLocal}
}

type testServices struct {
	thoughts  *mockThoughtService
	memories  *mockMemoryService
	documents *mockDocumentService
	recovery  *mockRecoveryService
	settings  *mockSettingsService
	embedder  *mockEmbedder
}

// setupTestServices injects mock services and returns a cleanup func.
func setupTestServices() func() {
	_, cleanup := setupMockServices()
	return cleanup
}

// setupMockServices injects mock services and returns them for inspection.
func setupMockServices() (*testServices, func()) {
	ts := &testServices{
		thoughts:  &mockThoughtService{},
		memories:  &mockMemoryService{},
		documents: &mockDocumentService{},
		recovery:  &mockRecoveryService{},
		settings:  newMockSettingsService(),
		embedder:  &mockEmbedder{},
	}
	SetServices(&Services{
		Thoughts:  ts.thoughts,
		Memories:  ts.memories,
		Documents: ts.documents,
		Recovery:  ts.recovery,
		Settings:  ts.settings,
		Embedder:  ts.embedder,
	})
	return ts, func() {
		SetServices(nil)
		resetFlags(rootCmd)
		logger.SetVerbose(false)
	}
}

// resetFlags restores every flag of cmd and its children to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

// execute runs rootCmd with args and returns its output.
func execute(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}
