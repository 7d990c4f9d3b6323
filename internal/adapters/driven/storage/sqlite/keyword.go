package sqlite

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// ==================== Keyword Index ====================

// keywordIndex implements driven.KeywordIndex over the rag_chunks_fts table.
type keywordIndex struct {
	store *Store
}

var _ driven.KeywordIndex = (*keywordIndex)(nil)

// SearchChunks ranks chunks by BM25. Scores are normalised against the
// best hit, so the top result scores 1.
func (k *keywordIndex) SearchChunks(ctx context.Context, query string, limit int) ([]driven.SearchHit, error) {
	match := ftsQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := k.store.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(rag_chunks_fts) AS rank
		FROM rag_chunks_fts
		WHERE rag_chunks_fts MATCH ?
		ORDER BY rank, chunk_id
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	type ranked struct {
		id   string
		rank float64
	}
	var raw []ranked
	for rows.Next() {
		var r ranked
		if err := rows.Scan(&r.id, &r.rank); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keyword hits: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	// bm25() is negative; more negative is better.
	best := raw[0].rank
	hits := make([]driven.SearchHit, len(raw))
	for i, r := range raw {
		score := 1.0
		if best < 0 {
			score = r.rank / best
		}
		hits[i] = driven.SearchHit{ChunkID: r.id, Score: clamp01(score)}
	}
	return hits, nil
}

// ftsQuery turns free text into an FTS5 expression of quoted terms joined
// by OR, so user punctuation can never be parsed as query syntax.
func ftsQuery(text string) string {
	terms := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
