package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// ==================== Slot Store ====================

// slotStore implements driven.SlotStore.
type slotStore struct {
	store *Store
}

var _ driven.SlotStore = (*slotStore)(nil)

// vectorSource names the table and column holding one owner kind's
// vectors for an index.
type vectorSource struct {
	kind   domain.OwnerKind
	table  string
	column string
}

// vectorSources returns where each index's vectors live.
func vectorSources(index domain.IndexName) []vectorSource {
	switch index {
	case domain.IndexRemote:
		return []vectorSource{
			{domain.OwnerThought, "thoughts", "embedding_remote"},
			{domain.OwnerMemory, "long_term_memories", "embedding_remote"},
		}
	case domain.IndexLocal:
		return []vectorSource{
			{domain.OwnerThought, "thoughts", "embedding_local"},
			{domain.OwnerMemory, "long_term_memories", "embedding_local"},
		}
	case domain.IndexRagLocal:
		return []vectorSource{
			{domain.OwnerChunk, "rag_chunks", "embedding"},
		}
	default:
		return nil
	}
}

// RecordSlot registers a freshly inserted slot.
func (s *slotStore) RecordSlot(ctx context.Context, ref domain.SlotRef) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO vector_slots (index_name, slot, owner_kind, owner_id, orphaned_at)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT(index_name, slot) DO UPDATE SET
			owner_kind = excluded.owner_kind,
			owner_id = excluded.owner_id,
			orphaned_at = NULL
	`, string(ref.Index), ref.Slot, string(ref.OwnerKind), ref.OwnerID)
	if err != nil {
		return fmt.Errorf("recording slot %s/%d: %w", ref.Index, ref.Slot, err)
	}
	return nil
}

// ResolveSlots returns the live owners of the given slots.
func (s *slotStore) ResolveSlots(ctx context.Context, index domain.IndexName, slots []int) (map[int]domain.SlotRef, error) {
	out := make(map[int]domain.SlotRef, len(slots))
	for start := 0; start < len(slots); start += maxBatch {
		end := min(start+maxBatch, len(slots))
		batch := slots[start:end]

		args := make([]any, 0, len(batch)+1)
		args = append(args, string(index))
		for _, slot := range batch {
			args = append(args, slot)
		}

		rows, err := s.store.db.QueryContext(ctx, `
			SELECT slot, owner_kind, owner_id FROM vector_slots
			WHERE index_name = ? AND orphaned_at IS NULL
			  AND slot IN (`+placeholders(len(batch))+`)
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("resolving slots: %w", err)
		}
		err = scanSlotRefs(rows, index, func(ref domain.SlotRef) { out[ref.Slot] = ref })
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// OrphanOwners marks every live slot of the given owners orphaned.
func (s *slotStore) OrphanOwners(ctx context.Context, kind domain.OwnerKind, ownerIDs []string) ([]domain.SlotRef, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixNano()
	var refs []domain.SlotRef
	for _, batch := range batches(ownerIDs) {
		where := `owner_kind = ? AND orphaned_at IS NULL AND owner_id IN (` + placeholders(len(batch)) + `)`
		args := stringArgs([]any{string(kind)}, batch)

		rows, err := tx.QueryContext(ctx,
			`SELECT index_name, slot, owner_id FROM vector_slots WHERE `+where, args...)
		if err != nil {
			return nil, fmt.Errorf("querying owner slots: %w", err)
		}
		for rows.Next() {
			ref := domain.SlotRef{OwnerKind: kind, Orphaned: true}
			var index string
			if err := rows.Scan(&index, &ref.Slot, &ref.OwnerID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning slot: %w", err)
			}
			ref.Index = domain.IndexName(index)
			refs = append(refs, ref)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterating slots: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE vector_slots SET orphaned_at = ? WHERE `+where,
			append([]any{now}, args...)...); err != nil {
			return nil, fmt.Errorf("orphaning slots: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Index != refs[j].Index {
			return refs[i].Index < refs[j].Index
		}
		return refs[i].Slot < refs[j].Slot
	})
	return refs, nil
}

// CountSlots returns the number of physical slots (live and orphaned).
func (s *slotStore) CountSlots(ctx context.Context, index domain.IndexName) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vector_slots WHERE index_name = ?", string(index)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting slots: %w", err)
	}
	return n, nil
}

// LiveVectors returns the vectors of every live slot, ordered by slot.
// Slots whose owner has no vector for the index are skipped.
func (s *slotStore) LiveVectors(ctx context.Context, index domain.IndexName) ([]domain.SlotVector, error) {
	sources := vectorSources(index)
	if len(sources) == 0 {
		return nil, fmt.Errorf("unknown index %q: %w", index, domain.ErrInvalidInput)
	}

	parts := make([]string, 0, len(sources))
	args := make([]any, 0, len(sources)*2)
	for _, src := range sources {
		parts = append(parts, fmt.Sprintf(`
			SELECT vs.slot, o.%s FROM vector_slots vs
			JOIN %s o ON o.id = vs.owner_id
			WHERE vs.index_name = ? AND vs.owner_kind = '%s' AND vs.orphaned_at IS NULL
			  AND o.%s IS NOT NULL`, src.column, src.table, src.kind, src.column))
		args = append(args, string(index))
	}

	rows, err := s.store.db.QueryContext(ctx, strings.Join(parts, " UNION ALL ")+" ORDER BY 1", args...)
	if err != nil {
		return nil, fmt.Errorf("querying live vectors: %w", err)
	}
	defer rows.Close()

	var vectors []domain.SlotVector
	for rows.Next() {
		var (
			slot int
			blob []byte
		)
		if err := rows.Scan(&slot, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		if v := bytesToFloat32Slice(blob); len(v) > 0 {
			vectors = append(vectors, domain.SlotVector{Slot: slot, Vector: v})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}
	return vectors, nil
}

// PurgeSlots drops orphaned mappings and mappings whose owner row or
// vector no longer exists, leaving exactly the rows LiveVectors returns.
func (s *slotStore) PurgeSlots(ctx context.Context, index domain.IndexName) error {
	sources := vectorSources(index)
	if len(sources) == 0 {
		return fmt.Errorf("unknown index %q: %w", index, domain.ErrInvalidInput)
	}

	owned := make([]string, 0, len(sources))
	for _, src := range sources {
		owned = append(owned, fmt.Sprintf(
			`(owner_kind = '%s' AND EXISTS (SELECT 1 FROM %s o WHERE o.id = vector_slots.owner_id AND o.%s IS NOT NULL))`,
			src.kind, src.table, src.column))
	}

	n, err := execCount(ctx, s.store.db, `
		DELETE FROM vector_slots
		WHERE index_name = ?
		  AND (orphaned_at IS NOT NULL OR NOT (`+strings.Join(owned, " OR ")+`))
	`, string(index))
	if err != nil {
		return fmt.Errorf("purging slots: %w", err)
	}
	if n > 0 {
		logger.Debug("sqlite: purged %d slot mappings from %s", n, index)
	}
	return nil
}

// ownerSlots returns the live slots of one owner keyed by provider.
func (s *Store) ownerSlots(ctx context.Context, kind domain.OwnerKind, ownerID string) (map[domain.Provider]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT index_name, slot FROM vector_slots
		WHERE owner_kind = ? AND owner_id = ? AND orphaned_at IS NULL
	`, string(kind), ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying owner slots: %w", err)
	}
	defer rows.Close()

	slots := make(map[domain.Provider]int)
	for rows.Next() {
		var (
			index string
			slot  int
		)
		if err := rows.Scan(&index, &slot); err != nil {
			return nil, fmt.Errorf("scanning slot: %w", err)
		}
		slots[domain.ProviderForIndex(domain.IndexName(index))] = slot
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating slots: %w", err)
	}
	return slots, nil
}

// scanSlotRefs scans (slot, owner_kind, owner_id) rows and closes them.
func scanSlotRefs(rows *sql.Rows, index domain.IndexName, fn func(domain.SlotRef)) error {
	defer rows.Close()
	for rows.Next() {
		ref := domain.SlotRef{Index: index}
		var kind string
		if err := rows.Scan(&ref.Slot, &kind, &ref.OwnerID); err != nil {
			return fmt.Errorf("scanning slot: %w", err)
		}
		ref.OwnerKind = domain.OwnerKind(kind)
		fn(ref)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating slots: %w", err)
	}
	return nil
}
