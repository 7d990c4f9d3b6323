package hnsw

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values
const (
	DefaultMaxElements = 100000
	DefaultM           = 16
	DefaultEfSearch    = 64

	// DefaultExactScanLimit is the live-slot count up to which Search
	// ranks every vector instead of walking the graph.
	DefaultExactScanLimit = 20000
)

// Config holds configuration for one index.
type Config struct {
	// Name is the logical index name.
	Name domain.IndexName

	// Path is the serialized index file.
	Path string

	// Dimension is the fixed vector length.
	Dimension int

	// MaxElements bounds the number of physical slots.
	MaxElements int

	// M is the maximum neighbour count per node.
	M int

	// EfSearch is the candidate list size during search.
	EfSearch int

	// ExactScanLimit is the live-slot count up to which searches are
	// exhaustive. Zero selects DefaultExactScanLimit; a negative value
	// always uses the graph.
	ExactScanLimit int
}

// Index provides vector similarity search using an HNSW graph.
//
// Writers (Insert, Remove, the Rebuild swap) take the write lock; searches
// take the read lock. Rebuild constructs the replacement graph without
// holding any lock, so searches continue against the old graph until the swap.
type Index struct {
	mu       sync.RWMutex
	cfg      Config
	graph    *hnsw.Graph[int]
	slots    []int // ascending, live and removed
	removed  map[int]struct{}
	exact    map[uint64][]int // vector hash -> slots holding that vector
	nextSlot int
	closed   bool
}

// New creates an empty index. Call Load to restore a persisted one.
func New(cfg Config) (*Index, error) {
	if cfg.Path == "" {
		return nil, errors.New("hnsw: path cannot be empty")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("hnsw: dimension must be positive")
	}
	if cfg.MaxElements <= 0 {
		cfg.MaxElements = DefaultMaxElements
	}
	if cfg.M <= 0 {
		cfg.M = DefaultM
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultEfSearch
	}
	if cfg.ExactScanLimit == 0 {
		cfg.ExactScanLimit = DefaultExactScanLimit
	}

	return &Index{
		cfg:     cfg,
		graph:   newGraph(cfg),
		removed: make(map[int]struct{}),
		exact:   make(map[uint64][]int),
	}, nil
}

func newGraph(cfg Config) *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	return g
}

// Name returns the logical index name.
func (idx *Index) Name() domain.IndexName {
	return idx.cfg.Name
}

// Dimension returns the fixed vector length.
func (idx *Index) Dimension() int {
	return idx.cfg.Dimension
}

// Capacity returns the maximum number of physical slots.
func (idx *Index) Capacity() int {
	return idx.cfg.MaxElements
}

// Len returns the number of physical slots, including removed ones.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.slots)
}

// Insert adds a vector and returns its slot.
func (idx *Index) Insert(_ context.Context, vector []float32) (int, error) {
	if err := idx.validate(vector); err != nil {
		return 0, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return 0, domain.ErrIndexClosed
	}
	if len(idx.slots) >= idx.cfg.MaxElements {
		return 0, fmt.Errorf("hnsw %s: %d of %d slots used: %w",
			idx.cfg.Name, len(idx.slots), idx.cfg.MaxElements, domain.ErrCapacityExceeded)
	}

	slot := idx.nextSlot
	idx.graph.Add(hnsw.MakeNode(slot, slices.Clone(vector)))
	idx.slots = append(idx.slots, slot)
	h := vectorHash(vector)
	idx.exact[h] = append(idx.exact[h], slot)
	idx.nextSlot++

	return slot, nil
}

// Search finds the k nearest live slots to the query vector.
func (idx *Index) Search(_ context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if err := idx.validate(query); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, domain.ErrIndexClosed
	}

	live := len(idx.slots) - len(idx.removed)
	if k <= 0 || live == 0 {
		return nil, nil
	}
	if k >= live || live <= idx.cfg.ExactScanLimit {
		return idx.scanLocked(query, k), nil
	}

	// The graph walk is approximate: fetch a wide candidate pool, re-rank
	// it exactly and add stored copies of the query, which it can miss.
	want := max(k, idx.cfg.EfSearch) + len(idx.removed)
	nodes := idx.graph.Search(query, want)

	seen := make(map[int]struct{}, len(nodes))
	hits := make([]driven.VectorHit, 0, len(nodes))
	for _, node := range nodes {
		if _, gone := idx.removed[node.Key]; gone {
			continue
		}
		seen[node.Key] = struct{}{}
		hits = append(hits, driven.VectorHit{
			Slot:     node.Key,
			Distance: distance(query, node.Value),
		})
	}
	for _, slot := range idx.exactLocked(query) {
		if _, ok := seen[slot]; !ok {
			hits = append(hits, driven.VectorHit{Slot: slot, Distance: distance(query, query)})
		}
	}

	if len(hits) < k {
		return idx.scanLocked(query, k), nil
	}

	sortHits(hits)
	return hits[:k], nil
}

// exactLocked returns the live slots storing exactly query. Caller must
// hold the lock.
func (idx *Index) exactLocked(query []float32) []int {
	var out []int
	for _, slot := range idx.exact[vectorHash(query)] {
		if _, gone := idx.removed[slot]; gone {
			continue
		}
		vec, ok := idx.graph.Lookup(slot)
		if ok && slices.Equal(vec, query) {
			out = append(out, slot)
		}
	}
	return out
}

// scanLocked ranks every live slot exhaustively. Caller must hold the lock.
func (idx *Index) scanLocked(query []float32, k int) []driven.VectorHit {
	hits := make([]driven.VectorHit, 0, len(idx.slots))
	for _, slot := range idx.slots {
		if _, gone := idx.removed[slot]; gone {
			continue
		}
		vec, ok := idx.graph.Lookup(slot)
		if !ok {
			continue
		}
		hits = append(hits, driven.VectorHit{Slot: slot, Distance: distance(query, vec)})
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Remove tombstones a slot. Unknown slots are ignored.
func (idx *Index) Remove(_ context.Context, slot int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return domain.ErrIndexClosed
	}
	if _, found := slices.BinarySearch(idx.slots, slot); !found {
		return nil
	}
	idx.removed[slot] = struct{}{}
	return nil
}

// Rebuild replaces the graph with exactly the given vectors at their slots.
func (idx *Index) Rebuild(ctx context.Context, vectors []domain.SlotVector) error {
	if len(vectors) > idx.cfg.MaxElements {
		return fmt.Errorf("hnsw %s: rebuild with %d vectors exceeds %d: %w",
			idx.cfg.Name, len(vectors), idx.cfg.MaxElements, domain.ErrCapacityExceeded)
	}

	sorted := slices.Clone(vectors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Slot < sorted[j].Slot })

	graph := newGraph(idx.cfg)
	exact := make(map[uint64][]int, len(sorted))
	slots := make([]int, 0, len(sorted))
	for i, v := range sorted {
		if i > 0 && sorted[i-1].Slot == v.Slot {
			return fmt.Errorf("hnsw %s: duplicate slot %d: %w", idx.cfg.Name, v.Slot, domain.ErrInvalidInput)
		}
		if v.Slot < 0 {
			return fmt.Errorf("hnsw %s: negative slot %d: %w", idx.cfg.Name, v.Slot, domain.ErrInvalidInput)
		}
		if err := idx.validate(v.Vector); err != nil {
			return fmt.Errorf("slot %d: %w", v.Slot, err)
		}
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		graph.Add(hnsw.MakeNode(v.Slot, slices.Clone(v.Vector)))
		h := vectorHash(v.Vector)
		exact[h] = append(exact[h], v.Slot)
		slots = append(slots, v.Slot)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return domain.ErrIndexClosed
	}
	idx.graph = graph
	idx.slots = slots
	idx.removed = make(map[int]struct{})
	idx.exact = exact
	if n := len(slots); n > 0 && slots[n-1] >= idx.nextSlot {
		idx.nextSlot = slots[n-1] + 1
	}

	return nil
}

// Close releases resources. Persist first to keep the contents.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.closed = true
	idx.graph = nil
	idx.slots = nil
	idx.removed = nil
	idx.exact = nil
	return nil
}

// validate rejects vectors of the wrong length or with zero norm.
func (idx *Index) validate(vector []float32) error {
	if len(vector) != idx.cfg.Dimension {
		return fmt.Errorf("hnsw %s: got %d dimensions, want %d: %w",
			idx.cfg.Name, len(vector), idx.cfg.Dimension, domain.ErrInvalidInput)
	}
	var norm float64
	for _, f := range vector {
		norm += float64(f) * float64(f)
	}
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return fmt.Errorf("hnsw %s: vector norm must be finite and non-zero: %w",
			idx.cfg.Name, domain.ErrInvalidInput)
	}
	return nil
}

func distance(a, b []float32) float64 {
	return float64(hnsw.CosineDistance(a, b))
}

// vectorHash fingerprints the exact bits of a vector.
func vectorHash(vector []float32) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	for _, f := range vector {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

func sortHits(hits []driven.VectorHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Slot < hits[j].Slot
	})
}
