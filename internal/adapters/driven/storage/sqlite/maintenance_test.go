package sqlite

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

func TestIntegrityCheck_Healthy(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	report, err := store.IntegrityCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Empty(t, report.Detail)
}

func TestIntegrityCheck_GarbageFileThenReset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recall.db")
	garbage := make([]byte, 8192)
	for i := range garbage {
		garbage[i] = byte(i * 7)
	}
	require.NoError(t, os.WriteFile(path, garbage, 0600))

	store, err := Open(dir)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	report, err := store.IntegrityCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IntegrityCorrupt, report.Status)
	assert.NotEmpty(t, report.Detail)

	assert.Error(t, store.Salvage(ctx))

	require.NoError(t, store.Reset(ctx))
	report, err = store.IntegrityCheck(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy())
}

func TestSalvage_PreservesRows(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	createTestThought(t, store, "conv", "survivor", nil)
	require.NoError(t, store.Salvage(ctx))

	thoughts, err := store.ThoughtStore().ListConversation(ctx, "conv", 0)
	require.NoError(t, err)
	require.Len(t, thoughts, 1)
	assert.Equal(t, "survivor", thoughts[0].Text)
	assert.NoFileExists(t, store.Path()+".salvage")
}

func TestSalvage_KeepsSlotsAndFlags(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	thought := createTestThought(t, store, "conv", "mapped", nil)
	require.NoError(t, store.SlotStore().RecordSlot(ctx, domain.SlotRef{
		Index: domain.IndexLocal, Slot: 4, OwnerKind: domain.OwnerThought, OwnerID: thought.ID,
	}))
	require.NoError(t, store.Salvage(ctx))

	refs, err := store.SlotStore().ResolveSlots(ctx, domain.IndexLocal, []int{4})
	require.NoError(t, err)
	require.Contains(t, refs, 4)
	assert.Equal(t, thought.ID, refs[4].OwnerID)

	flags, err := store.MigrationFlags(ctx)
	require.NoError(t, err)
	assert.Len(t, flags, len(NamedMigrations()))
	for _, m := range NamedMigrations() {
		applied, err := store.RunMigration(ctx, m)
		require.NoError(t, err)
		assert.False(t, applied, m.Name)
	}
}

// corruptRootPage overwrites the first page of table's b-tree in the file
// behind dir. The store is closed on return.
func corruptRootPage(t *testing.T, store *Store, table string) {
	t.Helper()
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	require.NoError(t, err)
	var pageSize, root int64
	require.NoError(t, store.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize))
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT rootpage FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&root))
	require.Greater(t, root, int64(1))
	path := store.Path()
	require.NoError(t, store.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	require.NoError(t, err)
	_, err = f.WriteAt(bytes.Repeat([]byte{0xAB}, int(pageSize)), (root-1)*pageSize)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestSalvage_DamagedTableKeepsOthers(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		createTestThought(t, store, "conv", fmt.Sprintf("thought %d", i), nil)
	}
	now := time.Now().UTC()
	for i := 0; i < 3000; i++ {
		require.NoError(t, store.MemoryStore().SaveMemory(ctx, &domain.LongTermMemory{
			ID:         fmt.Sprintf("mem-%04d", i),
			Content:    fmt.Sprintf("memory number %d with enough text to spill across pages", i),
			MemoryType: "note",
			CreatedAt:  now,
			UpdatedAt:  now,
		}))
	}
	createTestDocument(t, store, "/docs/walrus.md", "the walrus sleeps", "on the ice")

	corruptRootPage(t, store, "long_term_memories")

	store, err = Open(dir)
	require.NoError(t, err)
	defer store.Close()

	report, err := store.IntegrityCheck(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.IntegrityCorrupt, report.Status)

	require.NoError(t, store.Salvage(ctx))
	assert.NoFileExists(t, store.Path()+".salvage")

	report, err = store.IntegrityCheck(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy(), report.Detail)

	thoughts, err := store.ThoughtStore().ListConversation(ctx, "conv", 0)
	require.NoError(t, err)
	assert.Len(t, thoughts, 20)

	memories, err := store.MemoryStore().ListMemories(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, memories, "the damaged table is recreated empty")

	docs, err := store.RagStore().ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "/docs/walrus.md", docs[0].Path)

	hits, err := store.KeywordIndex().SearchChunks(ctx, "walrus", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSalvage_DamagedChildTable(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	createTestThought(t, store, "conv", "kept", nil)
	texts := make([]string, 400)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d of a long document about penguins and ice floes", i)
	}
	createTestDocument(t, store, "/docs/long.md", texts...)

	corruptRootPage(t, store, "rag_chunks")

	store, err = Open(dir)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Salvage(ctx))

	thoughts, err := store.ThoughtStore().ListConversation(ctx, "conv", 0)
	require.NoError(t, err)
	require.Len(t, thoughts, 1)
	assert.Equal(t, "kept", thoughts[0].Text)

	docs, err := store.RagStore().ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	ids, err := store.RagStore().ChunkIDs(ctx, "/docs/long.md")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNewStore_FailedNamedMigrationStillOpens(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// A column added out of band makes the dual-embedding migration fail.
	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.ApplySchema(ctx))
	_, err = store.db.ExecContext(ctx, "ALTER TABLE thoughts ADD COLUMN embedding_local BLOB")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	flags, err := store.MigrationFlags(ctx)
	require.NoError(t, err)
	byName := make(map[string]domain.MigrationFlag, len(flags))
	for _, f := range flags {
		byName[f.Name] = f
	}
	require.Len(t, byName, len(NamedMigrations()))
	assert.Contains(t, byName[MigrationDualEmbeddingColumns].Error, "duplicate column")
	assert.Empty(t, byName[MigrationBackfillChunkFTS].Error)
	assert.Empty(t, byName[MigrationVectorSlotOwnerIndex].Error)

	createTestThought(t, store, "conv", "still usable", nil)
}

func TestReset_DropsRowsAndFlags(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	createTestThought(t, store, "conv", "doomed", nil)
	require.NoError(t, store.Reset(ctx))

	flags, err := store.MigrationFlags(ctx)
	require.NoError(t, err)
	assert.Empty(t, flags, "named migrations rerun after a reset")

	for _, m := range NamedMigrations() {
		applied, err := store.RunMigration(ctx, m)
		require.NoError(t, err)
		assert.True(t, applied)
	}

	thoughts, err := store.ThoughtStore().ListConversation(ctx, "conv", 0)
	require.NoError(t, err)
	assert.Empty(t, thoughts)
}

func TestRunMigration_OnlyOnce(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	flags, err := store.MigrationFlags(ctx)
	require.NoError(t, err)
	require.Len(t, flags, len(NamedMigrations()))
	for _, f := range flags {
		assert.Empty(t, f.Error, f.Name)
		assert.NotNil(t, f.CompletedAt)
	}

	for _, m := range NamedMigrations() {
		applied, err := store.RunMigration(ctx, m)
		require.NoError(t, err)
		assert.False(t, applied, m.Name)
	}
}

func TestRunMigration_FailureIsFlagged(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	broken := driven.Migration{
		Name: "broken",
		Statements: []string{
			"CREATE TABLE scratch (id INTEGER)",
			"ALTER TABLE no_such_table ADD COLUMN x INTEGER",
		},
	}

	applied, err := store.RunMigration(ctx, broken)
	assert.False(t, applied)
	assert.ErrorIs(t, err, domain.ErrMigrationFailed)

	var tables int
	require.NoError(t, store.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE name = 'scratch'").Scan(&tables))
	assert.Zero(t, tables, "failed migration is rolled back")

	applied, err = store.RunMigration(ctx, broken)
	require.NoError(t, err)
	assert.False(t, applied, "never retried")

	flags, err := store.MigrationFlags(ctx)
	require.NoError(t, err)
	var found bool
	for _, f := range flags {
		if f.Name == "broken" {
			found = true
			assert.Contains(t, f.Error, "no_such_table")
		}
	}
	assert.True(t, found)
}
