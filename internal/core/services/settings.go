package services

import (
	"fmt"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyRemoteDims      = "providers.remote.dimensions"
	keyRemoteModel     = "providers.remote.model"
	keyRemoteBaseURL   = "providers.remote.base_url"
	keyRemoteAPIKey    = "providers.remote.api_key"
	keyLocalDims       = "providers.local.dimensions"
	keyLocalModel      = "providers.local.model"
	keyLocalBaseURL    = "providers.local.base_url"
	keyMaxElements     = "vector_index.max_elements"
	keyIndexM          = "vector_index.m"
	keyIndexEfSearch   = "vector_index.ef_search"
	keyChunkTokens     = "rag.chunk_tokens"
	keyChunkOverlap    = "rag.chunk_overlap"
	keyVectorWeight    = "rag.vector_weight"
	keyKeywordWeight   = "rag.keyword_weight"
	keyCandidateFactor = "rag.candidate_factor"
	keyMaxAttempts     = "recovery.max_attempts"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	dataDir     string
}

// NewSettingsService creates a new settings service.
// dataDir is reported in AppSettings.DataDir; it is never persisted.
func NewSettingsService(configStore driven.ConfigStore, dataDir string) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		dataDir:     dataDir,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		DataDir: s.dataDir,
		Providers: domain.ProvidersSettings{
			Remote: domain.ProviderSettings{
				Dimensions: s.getInt(keyRemoteDims, defaults.Providers.Remote.Dimensions),
				Model:      s.getString(keyRemoteModel, defaults.Providers.Remote.Model),
				BaseURL:    s.configStore.GetString(keyRemoteBaseURL), // No default - the adapter knows the public endpoint
				APIKey:     s.configStore.GetString(keyRemoteAPIKey),
			},
			Local: domain.ProviderSettings{
				Dimensions: s.getInt(keyLocalDims, defaults.Providers.Local.Dimensions),
				Model:      s.getString(keyLocalModel, defaults.Providers.Local.Model),
				BaseURL:    s.configStore.GetString(keyLocalBaseURL),
			},
		},
		VectorIndex: domain.VectorIndexSettings{
			MaxElements: s.getInt(keyMaxElements, defaults.VectorIndex.MaxElements),
			M:           s.getInt(keyIndexM, defaults.VectorIndex.M),
			EfSearch:    s.getInt(keyIndexEfSearch, defaults.VectorIndex.EfSearch),
		},
		RAG: domain.RAGSettings{
			ChunkTokens:     s.getInt(keyChunkTokens, defaults.RAG.ChunkTokens),
			ChunkOverlap:    s.getInt(keyChunkOverlap, defaults.RAG.ChunkOverlap),
			VectorWeight:    s.getFloat(keyVectorWeight, defaults.RAG.VectorWeight),
			KeywordWeight:   s.getFloat(keyKeywordWeight, defaults.RAG.KeywordWeight),
			CandidateFactor: s.getInt(keyCandidateFactor, defaults.RAG.CandidateFactor),
		},
		Recovery: domain.RecoverySettings{
			MaxAttempts: s.getInt(keyMaxAttempts, defaults.Recovery.MaxAttempts),
		},
	}

	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	values := []struct {
		key   string
		value any
	}{
		{keyRemoteDims, settings.Providers.Remote.Dimensions},
		{keyRemoteModel, settings.Providers.Remote.Model},
		{keyRemoteBaseURL, settings.Providers.Remote.BaseURL},
		{keyLocalDims, settings.Providers.Local.Dimensions},
		{keyLocalModel, settings.Providers.Local.Model},
		{keyLocalBaseURL, settings.Providers.Local.BaseURL},
		{keyMaxElements, settings.VectorIndex.MaxElements},
		{keyIndexM, settings.VectorIndex.M},
		{keyIndexEfSearch, settings.VectorIndex.EfSearch},
		{keyChunkTokens, settings.RAG.ChunkTokens},
		{keyChunkOverlap, settings.RAG.ChunkOverlap},
		{keyVectorWeight, settings.RAG.VectorWeight},
		{keyKeywordWeight, settings.RAG.KeywordWeight},
		{keyCandidateFactor, settings.RAG.CandidateFactor},
		{keyMaxAttempts, settings.Recovery.MaxAttempts},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	// Only overwrite a stored key when a new one is supplied.
	if settings.Providers.Remote.APIKey != "" {
		if err := s.configStore.Set(keyRemoteAPIKey, settings.Providers.Remote.APIKey); err != nil {
			return fmt.Errorf("save %s: %w", keyRemoteAPIKey, err)
		}
	}

	return nil
}

// Validate checks the current settings.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return settings.Validate()
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	defaults := domain.DefaultAppSettings()
	defaults.DataDir = s.dataDir
	return defaults
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}
