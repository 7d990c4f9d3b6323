package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/watcher"
)

func TestDocsCmd_HasSubcommands(t *testing.T) {
	commands := docsCmd.Commands()
	commandNames := make([]string, 0, len(commands))
	for _, cmd := range commands {
		commandNames = append(commandNames, cmd.Name())
	}

	assert.ElementsMatch(t, []string{"index", "search", "remove", "list", "clear", "watch"}, commandNames)
}

func TestDocsIndexCmd_RequiresPath(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("docs", "index")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestDocsIndexCmd(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()

	out, err := execute("docs", "index", "-r", "/docs", "/notes")

	require.NoError(t, err)
	assert.Contains(t, out, "Indexed: 2  Skipped: 1  Failed: 1  Chunks: 6")
	assert.Contains(t, out, "2 chunks stored without embeddings")
	assert.Contains(t, out, "Failed /docs/broken.docx: unsupported type")
	assert.Equal(t, []string{"/docs", "/notes"}, ts.documents.gotPaths)
	assert.True(t, ts.documents.gotRecursive)
}

func TestDocsIndexCmd_PartialReportOnCancel(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()
	ts.documents.indexErr = context.Canceled

	out, err := execute("docs", "index", "/docs")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, out, "Indexed: 2")
}

func TestDocsIndexCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("docs", "index", "--json", "/docs")

	require.NoError(t, err)
	assert.Contains(t, out, `"Indexed": 2`)
	assert.Contains(t, out, `"Unembedded": 2`)
}

func TestDocsSearchCmd_Hybrid(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()

	out, err := execute("docs", "search", "-n", "3", "green tea")

	require.NoError(t, err)
	assert.Contains(t, out, "[1] Tea Guide (0.70)")
	assert.Contains(t, out, "Path: /docs/tea.md")
	assert.Contains(t, out, "Section: Brewing")
	assert.Contains(t, out, "Page: 2")
	assert.Equal(t, []float32{1, 0, 0}, ts.documents.gotQuery)
	assert.Equal(t, "green tea", ts.documents.gotText)
	assert.Equal(t, 3, ts.documents.gotK)
	assert.Equal(t, domain.ProviderLocal, ts.embedder.gotPreferred)
}

func TestDocsSearchCmd_KeywordOnlyWithoutLocalEmbedding(t *testing.T) {
	tests := []struct {
		name     string
		embedder *mockEmbedder
	}{
		{"embedding fails", &mockEmbedder{err: domain.ErrEmbeddingUnavailable}},
		{"remote fallback", &mockEmbedder{provider: domain.ProviderRemote}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, cleanup := setupMockServices()
			defer cleanup()
			embedder = tt.embedder

			out, err := execute("docs", "search", "green tea")

			require.NoError(t, err)
			assert.Contains(t, out, "Tea Guide")
			assert.Nil(t, ts.documents.gotQuery)
			assert.Equal(t, "green tea", ts.documents.gotText)
		})
	}
}

func TestDocsSearchCmd_Error(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()
	ts.documents.err = errors.New("fts unavailable")

	_, err := execute("docs", "search", "tea")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search failed")
}

func TestDocsRemoveCmd(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()

	out, err := execute("docs", "remove", "/docs/a.md", "/docs/b.md")

	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 documents")
	assert.Equal(t, []string{"/docs/a.md", "/docs/b.md"}, ts.documents.gotPaths)
}

func TestDocsListCmd(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("docs", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "/docs/tea.md")
	assert.Contains(t, out, "Title: Tea Guide")
	assert.Contains(t, out, "Size: 120 bytes  Modified: 2026-03-04 05:06:07")
	assert.Contains(t, out, "Total: 1 documents")
}

func TestDocsClearCmd(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("docs", "clear")

	require.NoError(t, err)
	assert.Contains(t, out, "Cleared documents.")
	assert.Contains(t, out, "rag_chunks: 6 rows")
	assert.Contains(t, out, "Rebuilt indices: rag_local")
}

func TestDocsWatchCmd_HasFlags(t *testing.T) {
	flag := docsWatchCmd.Flags().Lookup("debounce")
	require.NotNil(t, flag)
	assert.Equal(t, watcher.DefaultDebounce.String(), flag.DefValue)
	assert.NotNil(t, docsWatchCmd.Flags().Lookup("recursive"))
}

func TestDocsWatchCmd_MissingPath(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("docs", "watch", "/nonexistent/recall/watch")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch")
}

func TestDocsCmd_ServiceNotConfigured(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	documentService = nil

	_, err := execute("docs", "list")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "document service not configured")
}
