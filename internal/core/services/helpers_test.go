package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/recall/internal/adapters/driven/vector/hnsw"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Test dimensions: remote and local differ unless a test says otherwise.
var testDims = domain.ProviderDimensions{
	domain.ProviderRemote: 4,
	domain.ProviderLocal:  3,
}

// fixture wires services over a temporary SQLite store and real HNSW indices.
type fixture struct {
	dir     string
	store   *sqlite.Store
	dims    domain.ProviderDimensions
	indices *IndexSet
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	dims        domain.ProviderDimensions
	maxElements map[domain.IndexName]int
	override    map[domain.IndexName]driven.VectorIndex
}

func withDims(dims domain.ProviderDimensions) fixtureOption {
	return func(c *fixtureConfig) { c.dims = dims }
}

func withCapacity(name domain.IndexName, n int) fixtureOption {
	return func(c *fixtureConfig) { c.maxElements[name] = n }
}

func withIndex(idx driven.VectorIndex) fixtureOption {
	return func(c *fixtureConfig) { c.override[idx.Name()] = idx }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{
		dims:        testDims,
		maxElements: make(map[domain.IndexName]int),
		override:    make(map[domain.IndexName]driven.VectorIndex),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	dir := t.TempDir()
	store, err := sqlite.NewStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{dir: dir, store: store, dims: cfg.dims}
	f.indices = NewIndexSet(store.SlotStore(), f.newIndices(t, cfg)...)
	return f
}

// newIndices creates one empty index per name, honouring overrides.
func (f *fixture) newIndices(t *testing.T, cfg fixtureConfig) []driven.VectorIndex {
	t.Helper()
	var out []driven.VectorIndex
	for _, name := range domain.AllIndices {
		if idx, ok := cfg.override[name]; ok {
			out = append(out, idx)
			continue
		}
		idx, err := hnsw.New(hnsw.Config{
			Name:        name,
			Path:        filepath.Join(f.dir, "index", string(name)+".hnsw"),
			Dimension:   cfg.dims[domain.ProviderForIndex(name)],
			MaxElements: cfg.maxElements[name],
		})
		require.NoError(t, err)
		out = append(out, idx)
	}
	return out
}

// freshIndexSet returns a new IndexSet with empty in-memory indices over
// the same files, as a restarted process would have.
func (f *fixture) freshIndexSet(t *testing.T) *IndexSet {
	t.Helper()
	cfg := fixtureConfig{dims: f.dims, maxElements: map[domain.IndexName]int{}, override: map[domain.IndexName]driven.VectorIndex{}}
	return NewIndexSet(f.store.SlotStore(), f.newIndices(t, cfg)...)
}

func (f *fixture) thoughts() *ThoughtService {
	return NewThoughtService(f.store.ThoughtStore(), f.indices, f.dims)
}

func (f *fixture) memories() *MemoryService {
	return NewMemoryService(f.store.MemoryStore(), f.indices, f.dims)
}

// requireConsistent checks that an index and its slot table agree.
func (f *fixture) requireConsistent(t *testing.T, name domain.IndexName) {
	t.Helper()
	status, err := f.indices.Status(context.Background(), name)
	require.NoError(t, err)
	require.True(t, status.Consistent(), "index %s: len %d, slots %d", name, status.Len, status.Slots)
}

func local(v ...float32) domain.EmbeddingSet {
	return domain.EmbeddingSet{domain.ProviderLocal: v}
}

// --- Mock implementations ---

// stubIndex implements driven.VectorIndex with injectable failures.
type stubIndex struct {
	name      domain.IndexName
	dim       int
	insertErr error
	searchErr error
}

func (m *stubIndex) Name() domain.IndexName { return m.name }
func (m *stubIndex) Dimension() int { return m.dim }
func (m *stubIndex) Capacity() int { return 0 }
func (m *stubIndex) Len() int { return 0 }

func (m *stubIndex) Insert(_ context.Context, _ []float32) (int, error) {
	return 0, m.insertErr
}

func (m *stubIndex) Search(_ context.Context, _ []float32, _ int) ([]driven.VectorHit, error) {
	return nil, m.searchErr
}

func (m *stubIndex) Remove(_ context.Context, _ int) error { return nil }
func (m *stubIndex) Persist() error { return nil }
func (m *stubIndex) Load() (bool, error) { return false, nil }

func (m *stubIndex) Rebuild(_ context.Context, _ []domain.SlotVector) error {
	return nil
}

func (m *stubIndex) Close() error { return nil }

// keywordEmbedder implements driven.EmbeddingService for the local
// provider. Vectors count topic words so related texts land close.
type keywordEmbedder struct {
	provider domain.Provider
	err      error
	calls    int
}

func (m *keywordEmbedder) Provider() domain.Provider {
	if m.provider == "" {
		return domain.ProviderLocal
	}
	return m.provider
}

func (m *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return topicVector(text), nil
}

func (m *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = m.Embed(ctx, text)
	}
	return out, nil
}

func (m *keywordEmbedder) Dimensions() int { return 3 }
func (m *keywordEmbedder) ModelName() string { return "keyword-mock" }
func (m *keywordEmbedder) Ping(_ context.Context) error { return nil }
func (m *keywordEmbedder) Close() error { return nil }

func topicVector(text string) []float32 {
	lower := strings.ToLower(text)
	return []float32{
		float32(strings.Count(lower, "hiking")),
		float32(strings.Count(lower, "cooking")),
		0.1,
	}
}

var errBoom = errors.New("boom")
