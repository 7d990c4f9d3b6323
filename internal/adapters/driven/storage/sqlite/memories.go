package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// ==================== Memory Store ====================

// memoryStore implements driven.MemoryStore.
type memoryStore struct {
	store *Store
}

var _ driven.MemoryStore = (*memoryStore)(nil)

const memoryColumns = `id, content, memory_type, created_at, updated_at, embedding_remote, embedding_local`

// SaveMemory inserts or replaces a memory.
func (s *memoryStore) SaveMemory(ctx context.Context, memory *domain.LongTermMemory) error {
	if memory.ID == "" {
		return fmt.Errorf("memory id is required: %w", domain.ErrInvalidInput)
	}

	remote, _ := memory.Embeddings.Get(domain.ProviderRemote)
	local, _ := memory.Embeddings.Get(domain.ProviderLocal)

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO long_term_memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			memory_type = excluded.memory_type,
			updated_at = excluded.updated_at,
			embedding_remote = excluded.embedding_remote,
			embedding_local = excluded.embedding_local
	`, memory.ID, memory.Content, memory.MemoryType, toNanos(memory.CreatedAt), toNanos(memory.UpdatedAt),
		float32SliceToBytes(remote), float32SliceToBytes(local))
	if err != nil {
		return fmt.Errorf("saving memory: %w", err)
	}
	return nil
}

// GetMemory retrieves a memory with its committed slots.
func (s *memoryStore) GetMemory(ctx context.Context, id string) (*domain.LongTermMemory, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM long_term_memories WHERE id = ?`, id)

	var (
		m                    domain.LongTermMemory
		createdAt, updatedAt int64
		remote, local        []byte
	)
	err := row.Scan(&m.ID, &m.Content, &m.MemoryType, &createdAt, &updatedAt, &remote, &local)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning memory: %w", err)
	}
	m.CreatedAt = fromNanos(createdAt)
	m.UpdatedAt = fromNanos(updatedAt)
	m.Embeddings = embeddingSet(remote, local)

	slots, err := s.store.ownerSlots(ctx, domain.OwnerMemory, id)
	if err != nil {
		return nil, err
	}
	m.Slots = slots
	return &m, nil
}

// GetMemories retrieves memories by ID.
func (s *memoryStore) GetMemories(ctx context.Context, ids []string) (map[string]domain.LongTermMemory, error) {
	out := make(map[string]domain.LongTermMemory, len(ids))
	for _, batch := range batches(ids) {
		rows, err := s.store.db.QueryContext(ctx,
			`SELECT `+memoryColumns+` FROM long_term_memories WHERE id IN (`+placeholders(len(batch))+`)`,
			stringArgs(nil, batch)...)
		if err != nil {
			return nil, fmt.Errorf("querying memories: %w", err)
		}
		memories, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		for _, m := range memories {
			out[m.ID] = m
		}
	}
	return out, nil
}

// ListMemories returns memories newest first.
func (s *memoryStore) ListMemories(ctx context.Context, memoryType string, limit int) ([]domain.LongTermMemory, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM long_term_memories
		WHERE ? = '' OR memory_type = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`, memoryType, memoryType, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	return scanMemoryRows(rows)
}

// DeleteMemory removes a memory row. Slot mappings are orphaned by the caller.
func (s *memoryStore) DeleteMemory(ctx context.Context, id string) error {
	n, err := execCount(ctx, s.store.db, "DELETE FROM long_term_memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting memory: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClearMemories deletes every memory and memory slot mapping.
func (s *memoryStore) ClearMemories(ctx context.Context) (int64, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM vector_slots WHERE owner_kind = ?", string(domain.OwnerMemory)); err != nil {
		return 0, fmt.Errorf("deleting memory slots: %w", err)
	}
	n, err := execCount(ctx, tx, "DELETE FROM long_term_memories")
	if err != nil {
		return 0, fmt.Errorf("deleting memories: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return n, nil
}

// scanMemoryRows scans and closes rows.
func scanMemoryRows(rows *sql.Rows) ([]domain.LongTermMemory, error) {
	defer rows.Close()

	var memories []domain.LongTermMemory //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			m                    domain.LongTermMemory
			createdAt, updatedAt int64
			remote, local        []byte
		)
		if err := rows.Scan(&m.ID, &m.Content, &m.MemoryType, &createdAt, &updatedAt,
			&remote, &local); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		m.CreatedAt = fromNanos(createdAt)
		m.UpdatedAt = fromNanos(updatedAt)
		m.Embeddings = embeddingSet(remote, local)
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memories: %w", err)
	}
	return memories, nil
}
