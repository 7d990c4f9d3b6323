package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// ==================== RAG Store ====================

// ragStore implements driven.RagStore.
type ragStore struct {
	store *Store
}

var _ driven.RagStore = (*ragStore)(nil)

const documentColumns = `id, path, fingerprint, modified_at, size_bytes, title, created_at, updated_at`

// GetDocumentByPath retrieves a document by its path.
func (s *ragStore) GetDocumentByPath(ctx context.Context, path string) (*domain.RagDocument, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM rag_documents WHERE path = ?`, path)

	var (
		doc                            domain.RagDocument
		modifiedAt, createdAt, updated int64
	)
	err := row.Scan(&doc.ID, &doc.Path, &doc.Fingerprint, &modifiedAt, &doc.SizeBytes,
		&doc.Title, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.ModifiedTime = fromNanos(modifiedAt)
	doc.CreatedAt = fromNanos(createdAt)
	doc.UpdatedAt = fromNanos(updated)
	return &doc, nil
}

// ReplaceDocument swaps the document at doc.Path and its chunks in one transaction.
func (s *ragStore) ReplaceDocument(ctx context.Context, doc *domain.RagDocument, chunks []domain.RagChunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := deleteDocumentTx(ctx, tx, doc.Path); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rag_documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Path, doc.Fingerprint, toNanos(doc.ModifiedTime), doc.SizeBytes,
		doc.Title, toNanos(doc.CreatedAt), toNanos(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rag_chunks (id, document_id, chunk_index, text, embedding, token_count, page, section, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, doc.ID, chunk.ChunkIndex, chunk.Text,
			float32SliceToBytes(chunk.Embedding), chunk.TokenCount,
			nullInt(chunk.Page), nullString(chunk.Section), toNanos(chunk.CreatedAt)); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteDocument removes the document at path and its chunks.
func (s *ragStore) DeleteDocument(ctx context.Context, path string) ([]string, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ids, err := deleteDocumentTx(ctx, tx, path)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return ids, nil
}

// deleteDocumentTx deletes the document at path and returns its chunk IDs.
func deleteDocumentTx(ctx context.Context, tx *sql.Tx, path string) ([]string, error) {
	var docID string
	err := tx.QueryRowContext(ctx, "SELECT id FROM rag_documents WHERE path = ?", path).Scan(&docID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up document: %w", err)
	}

	ids, err := queryStrings(ctx, tx,
		"SELECT id FROM rag_chunks WHERE document_id = ? ORDER BY chunk_index", docID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}

	// Chunks first so the FTS delete trigger fires for each row.
	if _, err := tx.ExecContext(ctx, "DELETE FROM rag_chunks WHERE document_id = ?", docID); err != nil {
		return nil, fmt.Errorf("deleting chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM rag_documents WHERE id = ?", docID); err != nil {
		return nil, fmt.Errorf("deleting document: %w", err)
	}
	return ids, nil
}

// ListDocuments returns all documents ordered by path.
func (s *ragStore) ListDocuments(ctx context.Context) ([]domain.RagDocument, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM rag_documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.RagDocument //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			doc                            domain.RagDocument
			modifiedAt, createdAt, updated int64
		)
		if err := rows.Scan(&doc.ID, &doc.Path, &doc.Fingerprint, &modifiedAt, &doc.SizeBytes,
			&doc.Title, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc.ModifiedTime = fromNanos(modifiedAt)
		doc.CreatedAt = fromNanos(createdAt)
		doc.UpdatedAt = fromNanos(updated)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// ChunkIDs returns the chunk IDs of the document at path.
func (s *ragStore) ChunkIDs(ctx context.Context, path string) ([]string, error) {
	ids, err := queryStrings(ctx, s.store.db, `
		SELECT c.id FROM rag_chunks c
		JOIN rag_documents d ON d.id = c.document_id
		WHERE d.path = ?
		ORDER BY c.chunk_index
	`, path)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	return ids, nil
}

// GetChunks returns the requested chunks joined with their documents.
func (s *ragStore) GetChunks(ctx context.Context, ids []string) (map[string]domain.LocatedChunk, error) {
	out := make(map[string]domain.LocatedChunk, len(ids))
	for _, batch := range batches(ids) {
		if err := s.getChunkBatch(ctx, batch, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *ragStore) getChunkBatch(ctx context.Context, ids []string, out map[string]domain.LocatedChunk) error {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.text, c.embedding, c.token_count,
		       c.page, c.section, c.created_at, d.path, d.title
		FROM rag_chunks c
		JOIN rag_documents d ON d.id = c.document_id
		WHERE c.id IN (`+placeholders(len(ids))+`)
	`, stringArgs(nil, ids)...)
	if err != nil {
		return fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			lc        domain.LocatedChunk
			embedding []byte
			page      sql.NullInt64
			section   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&lc.Chunk.ID, &lc.Chunk.DocumentID, &lc.Chunk.ChunkIndex, &lc.Chunk.Text,
			&embedding, &lc.Chunk.TokenCount, &page, &section, &createdAt,
			&lc.Path, &lc.Title); err != nil {
			return fmt.Errorf("scanning chunk: %w", err)
		}
		lc.Chunk.Embedding = bytesToFloat32Slice(embedding)
		lc.Chunk.Page = int(page.Int64)
		lc.Chunk.Section = section.String
		lc.Chunk.CreatedAt = fromNanos(createdAt)
		out[lc.Chunk.ID] = lc
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating chunks: %w", err)
	}
	return nil
}

// ClearDocuments deletes every document, chunk and chunk slot mapping.
func (s *ragStore) ClearDocuments(ctx context.Context) (int64, int64, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM vector_slots WHERE owner_kind = ?", string(domain.OwnerChunk)); err != nil {
		return 0, 0, fmt.Errorf("deleting chunk slots: %w", err)
	}
	chunks, err := execCount(ctx, tx, "DELETE FROM rag_chunks")
	if err != nil {
		return 0, 0, fmt.Errorf("deleting chunks: %w", err)
	}
	docs, err := execCount(ctx, tx, "DELETE FROM rag_documents")
	if err != nil {
		return 0, 0, fmt.Errorf("deleting documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing transaction: %w", err)
	}
	return docs, chunks, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryStrings collects a single string column.
func queryStrings(ctx context.Context, db querier, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
