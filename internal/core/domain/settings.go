package domain

import (
	"fmt"
	"path/filepath"
)

const unknownDescription = "Unknown"

// Default settings values.
const (
	DefaultRemoteDimensions = 1536
	DefaultLocalDimensions  = 768
	DefaultRemoteModel      = "text-embedding-3-small"
	DefaultLocalModel       = "nomic-embed-text"
	DefaultMaxElements      = 100000
	DefaultM                = 16
	DefaultEfSearch         = 64
	DefaultChunkTokens      = 200
	DefaultChunkOverlap     = 40
	DefaultVectorWeight     = 0.7
	DefaultKeywordWeight    = 0.3
	DefaultCandidateFactor  = 3
	DefaultRecoveryAttempts = 3
)

// ProviderSettings holds one embedding provider's configuration.
type ProviderSettings struct {
	// Dimensions is the fixed vector length the provider emits.
	Dimensions int

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (remote provider only).
	APIKey string
}

// IsConfigured returns true if the provider can be called.
// The remote provider needs an API key; the local one only a model.
func (p ProviderSettings) IsConfigured(provider Provider) bool {
	if p.Model == "" || p.Dimensions <= 0 {
		return false
	}
	if provider == ProviderRemote && p.APIKey == "" {
		return false
	}
	return true
}

// ProvidersSettings holds both providers.
type ProvidersSettings struct {
	Remote ProviderSettings
	Local  ProviderSettings
}

// VectorIndexSettings holds vector index configuration.
type VectorIndexSettings struct {
	// MaxElements bounds each index; inserts beyond it fail.
	MaxElements int

	// M is the HNSW neighbour count.
	M int

	// EfSearch is the HNSW search breadth.
	EfSearch int
}

// RAGSettings holds document indexing and retrieval configuration.
type RAGSettings struct {
	// ChunkTokens is the number of tokens per chunk.
	ChunkTokens int

	// ChunkOverlap is the number of tokens shared by adjacent chunks.
	ChunkOverlap int

	// VectorWeight scales vector similarity in rank fusion.
	VectorWeight float64

	// KeywordWeight scales keyword relevance in rank fusion.
	KeywordWeight float64

	// CandidateFactor multiplies k to size each retrieval pass.
	CandidateFactor int
}

// RecoverySettings holds startup recovery configuration.
type RecoverySettings struct {
	// MaxAttempts bounds salvage attempts per corruption signature
	// before the store is reset.
	MaxAttempts int
}

// AppSettings holds all application settings.
type AppSettings struct {
	// DataDir holds the database, index files and recovery ledger.
	DataDir string

	Providers   ProvidersSettings
	VectorIndex VectorIndexSettings
	RAG         RAGSettings
	Recovery    RecoverySettings
}

// DefaultAppSettings returns settings with sensible defaults.
// The remote provider is left without an API key; it must be configured
// explicitly before remote embeddings are produced.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Providers: ProvidersSettings{
			Remote: ProviderSettings{
				Dimensions: DefaultRemoteDimensions,
				Model:      DefaultRemoteModel,
			},
			Local: ProviderSettings{
				Dimensions: DefaultLocalDimensions,
				Model:      DefaultLocalModel,
			},
		},
		VectorIndex: VectorIndexSettings{
			MaxElements: DefaultMaxElements,
			M:           DefaultM,
			EfSearch:    DefaultEfSearch,
		},
		RAG: RAGSettings{
			ChunkTokens:     DefaultChunkTokens,
			ChunkOverlap:    DefaultChunkOverlap,
			VectorWeight:    DefaultVectorWeight,
			KeywordWeight:   DefaultKeywordWeight,
			CandidateFactor: DefaultCandidateFactor,
		},
		Recovery: RecoverySettings{
			MaxAttempts: DefaultRecoveryAttempts,
		},
	}
}

// Dimensions returns the provider dimension table.
func (s AppSettings) Dimensions() ProviderDimensions {
	return ProviderDimensions{
		ProviderRemote: s.Providers.Remote.Dimensions,
		ProviderLocal:  s.Providers.Local.Dimensions,
	}
}

// IndexDimension returns the vector length stored in the named index.
func (s AppSettings) IndexDimension(name IndexName) int {
	return s.Dimensions()[ProviderForIndex(name)]
}

// IndexPath returns the serialized file for the named index.
func (s AppSettings) IndexPath(name IndexName) string {
	return filepath.Join(s.DataDir, "index", string(name)+".hnsw")
}

// Validate checks the settings for internal consistency.
func (s AppSettings) Validate() error {
	if s.Providers.Remote.Dimensions <= 0 || s.Providers.Local.Dimensions <= 0 {
		return fmt.Errorf("provider dimensions must be positive: %w", ErrInvalidInput)
	}
	if s.VectorIndex.MaxElements <= 0 {
		return fmt.Errorf("vector_index.max_elements must be positive: %w", ErrInvalidInput)
	}
	if s.RAG.ChunkTokens <= 0 || s.RAG.ChunkOverlap < 0 || s.RAG.ChunkOverlap >= s.RAG.ChunkTokens {
		return fmt.Errorf("rag chunk sizes out of range: %w", ErrInvalidInput)
	}
	if s.RAG.VectorWeight < 0 || s.RAG.VectorWeight > 1 || s.RAG.KeywordWeight < 0 || s.RAG.KeywordWeight > 1 {
		return fmt.Errorf("rag weights must be in [0,1]: %w", ErrInvalidInput)
	}
	// Vector similarity is the primary retrieval signal.
	if s.RAG.VectorWeight < s.RAG.KeywordWeight {
		return fmt.Errorf("rag.vector_weight must be >= rag.keyword_weight: %w", ErrInvalidInput)
	}
	if s.RAG.CandidateFactor < 1 {
		return fmt.Errorf("rag.candidate_factor must be >= 1: %w", ErrInvalidInput)
	}
	if s.Recovery.MaxAttempts < 1 {
		return fmt.Errorf("recovery.max_attempts must be >= 1: %w", ErrInvalidInput)
	}
	return nil
}
