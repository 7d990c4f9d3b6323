package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func TestThoughtCmd_HasSubcommands(t *testing.T) {
	commands := thoughtCmd.Commands()
	commandNames := make([]string, 0, len(commands))
	for _, cmd := range commands {
		commandNames = append(commandNames, cmd.Name())
	}

	assert.Contains(t, commandNames, "append")
	assert.Contains(t, commandNames, "search")
	assert.Contains(t, commandNames, "list")
	assert.Contains(t, commandNames, "window")
	assert.Contains(t, commandNames, "summarize")
	assert.Contains(t, commandNames, "clear")
}

func TestThoughtAppendCmd_RequiresTwoArgs(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("thought", "append", "conv-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg(s)")
}

func TestThoughtAppendCmd_Appends(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()

	out, err := execute("thought", "append", "--role", "assistant", "conv-1", "Tea is ready")

	require.NoError(t, err)
	assert.Contains(t, out, "Appended thought-1 (seq 3)")
	assert.Contains(t, out, "Indexed: local")
	assert.Equal(t, domain.RoleAssistant, ts.thoughts.gotRole)
}

func TestThoughtAppendCmd_DefaultRoleIsUser(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()

	_, err := execute("thought", "append", "conv-1", "hello")

	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, ts.thoughts.gotRole)
}

func TestThoughtAppendCmd_ReportsEmbeddingFailures(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()
	ts.embedder.err = errors.New("ollama offline")

	out, err := execute("thought", "append", "conv-1", "hello")

	require.NoError(t, err)
	assert.Contains(t, out, "Indexed: none")
	assert.Contains(t, out, "Not indexed (local): ollama offline")
}

func TestThoughtAppendCmd_CapacityErrorAfterOutput(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()
	ts.thoughts.appendErr = fmt.Errorf("local: %w", domain.ErrCapacityExceeded)

	out, err := execute("thought", "append", "conv-1", "hello")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Contains(t, out, "Appended thought-1")
}

func TestThoughtAppendCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("thought", "append", "--json", "conv-1", "hello")

	require.NoError(t, err)
	assert.Contains(t, out, `"id": "thought-1"`)
	assert.Contains(t, out, `"conversation_id": "conv-1"`)
	assert.Contains(t, out, `"indexed": [`)
}

func TestThoughtSearchCmd_ExecutesWithQuery(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()

	out, err := execute("thought", "search", "-n", "5", "--provider", "local", "tea")

	require.NoError(t, err)
	assert.Contains(t, out, "Results:")
	assert.Contains(t, out, "conv-1/user (0.125, local)")
	assert.Contains(t, out, "I like green tea")
	assert.Equal(t, 5, ts.thoughts.gotK)
	assert.Equal(t, domain.ProviderLocal, ts.thoughts.gotHint)
	assert.Equal(t, domain.ProviderLocal, ts.embedder.gotPreferred)
}

func TestThoughtSearchCmd_HasLimitFlag(t *testing.T) {
	flag := thoughtSearchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "limit flag should exist")
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "10", flag.DefValue)
}

func TestThoughtSearchCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("thought", "search", "--json", "tea")

	require.NoError(t, err)
	assert.Contains(t, out, `"provider": "local"`)
	assert.Contains(t, out, `"distance": 0.125`)
}

func TestThoughtSearchCmd_EmbeddingUnavailable(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()
	ts.embedder.err = domain.ErrEmbeddingUnavailable

	_, err := execute("thought", "search", "tea")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestThoughtSearchCmd_ServiceNotConfigured(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	thoughtService = nil

	_, err := execute("thought", "search", "tea")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "thought service not configured")
}

func TestThoughtListCmd(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("thought", "list", "conv-1")

	require.NoError(t, err)
	assert.Contains(t, out, "#1 [2026-03-04 05:06:07] user: hello")
	assert.Contains(t, out, "#2 [2026-03-04 05:06:07] assistant: hi there")
	assert.Contains(t, out, "Total: 2 messages")
}

func TestThoughtListCmd_Empty(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("thought", "list", "empty")

	require.NoError(t, err)
	assert.Contains(t, out, "No messages for conversation: empty")
}

func TestThoughtWindowCmd(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("thought", "window", "--count", "2", "conv-1")

	require.NoError(t, err)
	assert.Contains(t, out, "Total: 2 messages")
}

func TestThoughtWindowCmd_InvalidCount(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("thought", "window", "--count", "0", "conv-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestThoughtSummarizeCmd(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()

	out, err := execute("thought", "summarize", "--covered", "2", "conv-1", "Greetings exchanged")

	require.NoError(t, err)
	assert.Contains(t, out, "Recorded summary summary-1")
	assert.Contains(t, out, "Covered: 2 messages (through seq 2)")
	assert.Equal(t, 2, ts.thoughts.gotCovered)
}

func TestThoughtSummarizeCmd_RequiresCovered(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("thought", "summarize", "conv-1", "Greetings exchanged")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "covered" not set`)
}

func TestThoughtClearCmd(t *testing.T) {
	ts, cleanup := setupMockServices()
	defer cleanup()

	out, err := execute("thought", "clear")

	require.NoError(t, err)
	assert.True(t, ts.thoughts.cleared)
	assert.Contains(t, out, "Cleared thoughts.")
	assert.Contains(t, out, "conversation_summaries: 1 rows")
	assert.Contains(t, out, "thoughts: 2 rows")
	assert.Contains(t, out, "Rebuilt indices: remote, local")
}
