package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// SlotStore owns the side table mapping vector slots to records.
// Soft-deleted slots stay in the table, marked orphaned, until the
// index is rebuilt.
type SlotStore interface {
	// RecordSlot registers a freshly inserted slot.
	RecordSlot(ctx context.Context, ref domain.SlotRef) error

	// ResolveSlots returns the live owners of the given slots.
	// Orphaned or unknown slots are absent from the map.
	ResolveSlots(ctx context.Context, index domain.IndexName, slots []int) (map[int]domain.SlotRef, error)

	// OrphanOwners marks every live slot of the given owners orphaned
	// and returns the affected refs.
	OrphanOwners(ctx context.Context, kind domain.OwnerKind, ownerIDs []string) ([]domain.SlotRef, error)

	// CountSlots returns the number of physical slots (live and orphaned).
	CountSlots(ctx context.Context, index domain.IndexName) (int, error)

	// LiveVectors returns the vectors of every live slot in the index,
	// read from the owning rows.
	LiveVectors(ctx context.Context, index domain.IndexName) ([]domain.SlotVector, error)

	// PurgeSlots drops orphaned mappings and mappings whose owner row no
	// longer exists. Called before a rebuild.
	PurgeSlots(ctx context.Context, index domain.IndexName) error
}
