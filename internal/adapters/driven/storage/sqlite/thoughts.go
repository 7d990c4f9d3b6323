package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// ==================== Thought Store ====================

// thoughtStore implements driven.ThoughtStore.
type thoughtStore struct {
	store *Store
}

var _ driven.ThoughtStore = (*thoughtStore)(nil)

const thoughtColumns = `seq, id, conversation_id, role, text, created_at, embedding_remote, embedding_local`

// SaveThought inserts a thought and assigns its Seq.
func (s *thoughtStore) SaveThought(ctx context.Context, thought *domain.Thought) error {
	if thought.ID == "" || thought.ConversationID == "" {
		return fmt.Errorf("thought id and conversation id are required: %w", domain.ErrInvalidInput)
	}

	remote, _ := thought.Embeddings.Get(domain.ProviderRemote)
	local, _ := thought.Embeddings.Get(domain.ProviderLocal)

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO thoughts (id, conversation_id, role, text, created_at, embedding_remote, embedding_local)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, thought.ID, thought.ConversationID, string(thought.Role), thought.Text,
		toNanos(thought.CreatedAt), float32SliceToBytes(remote), float32SliceToBytes(local))
	if err != nil {
		return fmt.Errorf("saving thought: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading thought sequence: %w", err)
	}
	thought.Seq = seq
	return nil
}

// GetThought retrieves a thought with its committed slots.
func (s *thoughtStore) GetThought(ctx context.Context, id string) (*domain.Thought, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+thoughtColumns+` FROM thoughts WHERE id = ?`, id)

	thought, err := scanThought(row)
	if err != nil {
		return nil, err
	}

	slots, err := s.store.ownerSlots(ctx, domain.OwnerThought, id)
	if err != nil {
		return nil, err
	}
	thought.Slots = slots
	return thought, nil
}

// GetThoughts retrieves thoughts by ID.
func (s *thoughtStore) GetThoughts(ctx context.Context, ids []string) (map[string]domain.Thought, error) {
	out := make(map[string]domain.Thought, len(ids))
	for _, batch := range batches(ids) {
		rows, err := s.store.db.QueryContext(ctx,
			`SELECT `+thoughtColumns+` FROM thoughts WHERE id IN (`+placeholders(len(batch))+`)`,
			stringArgs(nil, batch)...)
		if err != nil {
			return nil, fmt.Errorf("querying thoughts: %w", err)
		}
		thoughts, err := scanThoughtRows(rows)
		if err != nil {
			return nil, err
		}
		for _, t := range thoughts {
			out[t.ID] = t
		}
	}
	return out, nil
}

// ListConversation returns the newest limit messages in chronological order.
func (s *thoughtStore) ListConversation(ctx context.Context, conversationID string, limit int) ([]domain.Thought, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+thoughtColumns+` FROM thoughts
		WHERE conversation_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, conversationID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	thoughts, err := scanThoughtRows(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(thoughts)
	return thoughts, nil
}

// UnsummarizedThoughts returns up to limit messages after the latest
// summary boundary, oldest first.
func (s *thoughtStore) UnsummarizedThoughts(ctx context.Context, conversationID string, limit int) ([]domain.Thought, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+thoughtColumns+` FROM thoughts
		WHERE conversation_id = ?
		  AND seq > (
			SELECT COALESCE(MAX(covered_through_seq), 0)
			FROM conversation_summaries WHERE conversation_id = ?
		  )
		ORDER BY seq ASC
		LIMIT ?
	`, conversationID, conversationID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying unsummarized thoughts: %w", err)
	}
	return scanThoughtRows(rows)
}

// LatestSummary returns the newest summary of a conversation.
func (s *thoughtStore) LatestSummary(ctx context.Context, conversationID string) (*domain.ConversationSummary, error) {
	var (
		summary   domain.ConversationSummary
		createdAt int64
	)
	err := s.store.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, summary_text, covered_count, covered_through_seq, created_at
		FROM conversation_summaries
		WHERE conversation_id = ?
		ORDER BY covered_through_seq DESC, created_at DESC
		LIMIT 1
	`, conversationID).Scan(&summary.ID, &summary.ConversationID, &summary.SummaryText,
		&summary.CoveredMessageCount, &summary.CoveredThroughSeq, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying summary: %w", err)
	}
	summary.CreatedAt = fromNanos(createdAt)
	return &summary, nil
}

// SaveSummary appends a summary.
func (s *thoughtStore) SaveSummary(ctx context.Context, summary *domain.ConversationSummary) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO conversation_summaries
			(id, conversation_id, summary_text, covered_count, covered_through_seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, summary.ID, summary.ConversationID, summary.SummaryText,
		summary.CoveredMessageCount, summary.CoveredThroughSeq, toNanos(summary.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving summary: %w", err)
	}
	return nil
}

// ClearThoughts deletes every thought, summary and thought slot mapping.
func (s *thoughtStore) ClearThoughts(ctx context.Context) (int64, int64, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM vector_slots WHERE owner_kind = ?", string(domain.OwnerThought)); err != nil {
		return 0, 0, fmt.Errorf("deleting thought slots: %w", err)
	}
	thoughts, err := execCount(ctx, tx, "DELETE FROM thoughts")
	if err != nil {
		return 0, 0, fmt.Errorf("deleting thoughts: %w", err)
	}
	summaries, err := execCount(ctx, tx, "DELETE FROM conversation_summaries")
	if err != nil {
		return 0, 0, fmt.Errorf("deleting summaries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing transaction: %w", err)
	}
	return thoughts, summaries, nil
}

// scanThought scans a single thought row.
func scanThought(row *sql.Row) (*domain.Thought, error) {
	var (
		t             domain.Thought
		role          string
		createdAt     int64
		remote, local []byte
	)
	err := row.Scan(&t.Seq, &t.ID, &t.ConversationID, &role, &t.Text, &createdAt, &remote, &local)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning thought: %w", err)
	}
	t.Role = domain.Role(role)
	t.CreatedAt = fromNanos(createdAt)
	t.Embeddings = embeddingSet(remote, local)
	return &t, nil
}

// scanThoughtRows scans and closes rows.
func scanThoughtRows(rows *sql.Rows) ([]domain.Thought, error) {
	defer rows.Close()

	var thoughts []domain.Thought //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			t             domain.Thought
			role          string
			createdAt     int64
			remote, local []byte
		)
		if err := rows.Scan(&t.Seq, &t.ID, &t.ConversationID, &role, &t.Text,
			&createdAt, &remote, &local); err != nil {
			return nil, fmt.Errorf("scanning thought: %w", err)
		}
		t.Role = domain.Role(role)
		t.CreatedAt = fromNanos(createdAt)
		t.Embeddings = embeddingSet(remote, local)
		thoughts = append(thoughts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thoughts: %w", err)
	}
	return thoughts, nil
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execCount runs a statement and returns the affected row count.
func execCount(ctx context.Context, db execer, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
