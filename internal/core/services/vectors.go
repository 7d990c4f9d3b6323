package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// IndexSet holds the vector indices shared by the services together with
// their slot table. Every mutation of an index and its slot mappings runs
// under that index's write lock; searches never take it.
type IndexSet struct {
	slots   driven.SlotStore
	indices map[domain.IndexName]driven.VectorIndex
	locks   map[domain.IndexName]*sync.Mutex
}

// NewIndexSet creates an index set. Indices are keyed by their Name.
func NewIndexSet(slots driven.SlotStore, indices ...driven.VectorIndex) *IndexSet {
	s := &IndexSet{
		slots:   slots,
		indices: make(map[domain.IndexName]driven.VectorIndex, len(indices)),
		locks:   make(map[domain.IndexName]*sync.Mutex, len(indices)),
	}
	for _, idx := range indices {
		s.indices[idx.Name()] = idx
		s.locks[idx.Name()] = &sync.Mutex{}
	}
	return s
}

// Get returns the named index.
func (s *IndexSet) Get(name domain.IndexName) (driven.VectorIndex, bool) {
	idx, ok := s.indices[name]
	return idx, ok
}

// Names returns the registered index names in startup order.
func (s *IndexSet) Names() []domain.IndexName {
	names := make([]domain.IndexName, 0, len(s.indices))
	for _, name := range domain.AllIndices {
		if _, ok := s.indices[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (s *IndexSet) index(name domain.IndexName) (driven.VectorIndex, error) {
	idx, ok := s.indices[name]
	if !ok {
		return nil, fmt.Errorf("no vector index %q: %w", name, domain.ErrInvalidInput)
	}
	return idx, nil
}

// lock acquires the write lock of name and returns its release.
func (s *IndexSet) lock(name domain.IndexName) func() {
	mu, ok := s.locks[name]
	if !ok {
		return func() {}
	}
	mu.Lock()
	return mu.Unlock
}

// Commit inserts vec into name and records kind/ownerID as the slot owner.
func (s *IndexSet) Commit(ctx context.Context, name domain.IndexName, kind domain.OwnerKind,
	ownerID string, vec []float32) (int, error) {
	unlock := s.lock(name)
	defer unlock()
	return s.commitLocked(ctx, name, kind, ownerID, vec)
}

func (s *IndexSet) commitLocked(ctx context.Context, name domain.IndexName, kind domain.OwnerKind,
	ownerID string, vec []float32) (int, error) {
	idx, err := s.index(name)
	if err != nil {
		return 0, err
	}

	slot, err := idx.Insert(ctx, vec)
	if err != nil {
		return 0, err
	}

	ref := domain.SlotRef{Index: name, Slot: slot, OwnerKind: kind, OwnerID: ownerID}
	if err := s.slots.RecordSlot(ctx, ref); err != nil {
		// Unmapped slots would never be resolved; drop it from the index too.
		_ = idx.Remove(ctx, slot)
		return 0, fmt.Errorf("record slot: %w", err)
	}
	return slot, nil
}

// Orphan soft-deletes every live slot of the given owners: mappings are
// marked orphaned and the slots are tombstoned in their indices.
func (s *IndexSet) Orphan(ctx context.Context, kind domain.OwnerKind, ownerIDs []string) (int, error) {
	if len(ownerIDs) == 0 {
		return 0, nil
	}
	refs, err := s.slots.OrphanOwners(ctx, kind, ownerIDs)
	if err != nil {
		return 0, fmt.Errorf("orphan slots: %w", err)
	}
	s.tombstone(ctx, refs)
	return len(refs), nil
}

// tombstone removes refs from their indices. The caller may hold the
// index lock already, so Remove is called without taking it.
func (s *IndexSet) tombstone(ctx context.Context, refs []domain.SlotRef) {
	for _, ref := range refs {
		idx, ok := s.indices[ref.Index]
		if !ok {
			continue
		}
		if err := idx.Remove(ctx, ref.Slot); err != nil {
			logger.Warn("Tombstoning slot %d in %s: %v", ref.Slot, ref.Index, err)
		}
	}
}

// Rebuild purges dead mappings and rebuilds name from the live vectors.
func (s *IndexSet) Rebuild(ctx context.Context, name domain.IndexName) error {
	unlock := s.lock(name)
	defer unlock()

	idx, err := s.index(name)
	if err != nil {
		return err
	}
	if err := s.slots.PurgeSlots(ctx, name); err != nil {
		return fmt.Errorf("purge %s slots: %w", name, err)
	}
	vectors, err := s.slots.LiveVectors(ctx, name)
	if err != nil {
		return fmt.Errorf("read %s vectors: %w", name, err)
	}
	if err := idx.Rebuild(ctx, vectors); err != nil {
		return fmt.Errorf("rebuild %s: %w", name, err)
	}
	logger.Info("Rebuilt index %s with %d vectors", name, len(vectors))
	return nil
}

// RebuildAll rebuilds each named index and reports per-index failures.
func (s *IndexSet) RebuildAll(ctx context.Context, names ...domain.IndexName) *domain.ClearReport {
	report := &domain.ClearReport{Rows: make(map[string]int64)}
	for _, name := range names {
		if err := s.Rebuild(ctx, name); err != nil {
			logger.Warn("Rebuilding %s: %v", name, err)
			if report.Errors == nil {
				report.Errors = make(map[domain.IndexName]string)
			}
			report.Errors[name] = err.Error()
			continue
		}
		report.Rebuilt = append(report.Rebuilt, name)
	}
	return report
}

// Status compares name with its slot table.
func (s *IndexSet) Status(ctx context.Context, name domain.IndexName) (domain.IndexStatus, error) {
	idx, err := s.index(name)
	if err != nil {
		return domain.IndexStatus{}, err
	}
	n, err := s.slots.CountSlots(ctx, name)
	if err != nil {
		return domain.IndexStatus{}, fmt.Errorf("count %s slots: %w", name, err)
	}
	return domain.IndexStatus{Name: name, Len: idx.Len(), Slots: n}, nil
}

// Persist writes every index to disk.
func (s *IndexSet) Persist() error {
	var errs []error
	for _, name := range s.Names() {
		unlock := s.lock(name)
		if err := s.indices[name].Persist(); err != nil {
			errs = append(errs, fmt.Errorf("persist %s: %w", name, err))
		}
		unlock()
	}
	return errors.Join(errs...)
}

// ownerHit is a resolved vector hit.
type ownerHit struct {
	ownerID  string
	provider domain.Provider
	slot     int
	distance float64
}

// searchOwners returns up to k distinct owners of kind nearest to query
// in name. Slots that are tombstoned, unmapped, owned by another kind or
// rejected by accept are skipped; the candidate pool widens until k owners
// are found or the index is exhausted.
func (s *IndexSet) searchOwners(ctx context.Context, name domain.IndexName, kind domain.OwnerKind,
	query []float32, k int, accept func(ownerID string) bool) ([]ownerHit, error) {
	idx, err := s.index(name)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	provider := domain.ProviderForIndex(name)
	fetch := k * 2
	for {
		hits, err := idx.Search(ctx, query, fetch)
		if err != nil {
			return nil, err
		}

		slotIDs := make([]int, len(hits))
		for i, h := range hits {
			slotIDs[i] = h.Slot
		}
		owners, err := s.slots.ResolveSlots(ctx, name, slotIDs)
		if err != nil {
			return nil, fmt.Errorf("resolve %s slots: %w", name, err)
		}

		out := make([]ownerHit, 0, k)
		seen := make(map[string]bool, k)
		for _, h := range hits {
			ref, ok := owners[h.Slot]
			if !ok || ref.OwnerKind != kind || seen[ref.OwnerID] {
				continue
			}
			if accept != nil && !accept(ref.OwnerID) {
				continue
			}
			seen[ref.OwnerID] = true
			out = append(out, ownerHit{ownerID: ref.OwnerID, provider: provider, slot: h.Slot, distance: h.Distance})
			if len(out) == k {
				return out, nil
			}
		}

		if len(hits) < fetch {
			return out, nil
		}
		fetch *= 2
	}
}

// searchProviders runs searchOwners against the shared index of each
// provider and merges the results, keeping the closest hit per owner.
func (s *IndexSet) searchProviders(ctx context.Context, providers []domain.Provider, kind domain.OwnerKind,
	query []float32, k int, accept func(ownerID string) bool) ([]ownerHit, error) {
	best := make(map[string]ownerHit)
	for _, p := range providers {
		hits, err := s.searchOwners(ctx, domain.IndexForProvider(p), kind, query, k, accept)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", p, err)
		}
		for _, h := range hits {
			if cur, ok := best[h.ownerID]; !ok || h.distance < cur.distance {
				best[h.ownerID] = h
			}
		}
	}

	merged := make([]ownerHit, 0, len(best))
	for _, h := range best {
		merged = append(merged, h)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].distance != merged[j].distance {
			return merged[i].distance < merged[j].distance
		}
		return merged[i].ownerID < merged[j].ownerID
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// queryProviders returns the providers whose dimension matches query,
// narrowed to hint when hint is one of them.
func queryProviders(dims domain.ProviderDimensions, query []float32, hint domain.Provider) ([]domain.Provider, error) {
	matches := dims.Match(len(query))
	if len(matches) == 0 {
		return nil, fmt.Errorf("query has %d dimensions: %w", len(query), domain.ErrUnknownEmbeddingDimension)
	}
	for _, p := range matches {
		if p == hint {
			return []domain.Provider{hint}, nil
		}
	}
	return matches, nil
}
