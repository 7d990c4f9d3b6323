// Package app wires every Recall subsystem: configuration, the relational
// store, the vector indices, the embedding collaborators and the services
// built on them. Each App owns one set of stores; there are no package-level
// singletons.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/recall/internal/adapters/driven/config/file"
	"github.com/custodia-labs/recall/internal/adapters/driven/embedding/cache"
	"github.com/custodia-labs/recall/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/recall/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/recall/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/recall/internal/adapters/driven/vector/hnsw"
	"github.com/custodia-labs/recall/internal/chunker"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/services"
	"github.com/custodia-labs/recall/internal/extractors"
	"github.com/custodia-labs/recall/internal/logger"
)

// Options configures New. Zero values select the on-disk defaults.
type Options struct {
	// ConfigDir holds config.toml (default: ~/.recall).
	ConfigDir string

	// DataDir holds the database, index files and recovery ledger
	// (default: <ConfigDir>/data).
	DataDir string

	// ConfigStore replaces the TOML config file.
	ConfigStore driven.ConfigStore

	// Ledger replaces the on-disk recovery ledger.
	Ledger driven.RecoveryLedger

	// Embedders replaces the services built from settings. An empty,
	// non-nil slice disables embedding entirely.
	Embedders []driven.EmbeddingService
}

// App holds the wired services of one Recall data directory.
type App struct {
	Settings        domain.AppSettings
	SettingsService *services.SettingsService
	Thoughts        *services.ThoughtService
	Memories        *services.MemoryService
	Documents       *services.DocumentService
	Recovery        *services.RecoveryService
	Embedders       *services.Embedders
	Extractors      *extractors.Registry

	// Startup is the supervisor's report from New.
	Startup *domain.StartupReport

	store     *sqlite.Store
	indices   []driven.VectorIndex
	closeOnce sync.Once
	closeErr  error
}

// New opens the data directory, runs the startup supervisor and wires the
// services. The returned App must be closed to persist the indices.
func New(ctx context.Context, opts Options) (*App, error) {
	configStore, configDir, err := openConfig(opts)
	if err != nil {
		return nil, err
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(configDir, "data")
	}

	settingsSvc := services.NewSettingsService(configStore, dataDir)
	settings, err := settingsSvc.Get()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", configStore.Path(), err)
	}
	logger.Debug("Data directory: %s", dataDir)

	store, err := sqlite.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{
		Settings:        *settings,
		SettingsService: settingsSvc,
		store:           store,
	}

	indices, err := newIndices(*settings)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.indices = indices
	indexSet := services.NewIndexSet(store.SlotStore(), indices...)

	ledger := opts.Ledger
	if ledger == nil {
		fileLedger, err := file.NewRecoveryLedger(dataDir)
		if err != nil {
			a.closeStores()
			return nil, fmt.Errorf("open recovery ledger: %w", err)
		}
		ledger = fileLedger
	}

	a.Recovery = services.NewRecoveryService(
		store.MaintenanceStore(), indexSet, ledger, sqlite.NamedMigrations(), settings.Recovery.MaxAttempts)
	a.Startup, err = a.Recovery.Startup(ctx)
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("startup recovery: %w", err)
	}

	embedders := opts.Embedders
	if embedders == nil {
		embedders = buildEmbedders(*settings)
	}
	dims := settings.Dimensions()
	a.Embedders = services.NewEmbedders(dims, embedders...)
	a.Extractors = extractors.Default()

	local, _ := a.Embedders.Get(domain.ProviderLocal)
	a.Thoughts = services.NewThoughtService(store.ThoughtStore(), indexSet, dims)
	a.Memories = services.NewMemoryService(store.MemoryStore(), indexSet, dims)
	a.Documents = services.NewDocumentService(
		store.RagStore(),
		store.KeywordIndex(),
		indexSet,
		a.Extractors,
		chunker.New(
			chunker.WithChunkSize(settings.RAG.ChunkTokens),
			chunker.WithOverlap(settings.RAG.ChunkOverlap),
		),
		local,
		dims,
		settings.RAG,
	)
	return a, nil
}

func openConfig(opts Options) (driven.ConfigStore, string, error) {
	configDir := opts.ConfigDir
	if configDir == "" {
		dir, err := file.DefaultDir()
		if err != nil {
			return nil, "", fmt.Errorf("resolve config directory: %w", err)
		}
		configDir = dir
	}
	if opts.ConfigStore != nil {
		return opts.ConfigStore, configDir, nil
	}
	store, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("open config: %w", err)
	}
	return store, configDir, nil
}

func newIndices(settings domain.AppSettings) ([]driven.VectorIndex, error) {
	indices := make([]driven.VectorIndex, 0, len(domain.AllIndices))
	for _, name := range domain.AllIndices {
		idx, err := hnsw.New(hnsw.Config{
			Name:        name,
			Path:        settings.IndexPath(name),
			Dimension:   settings.IndexDimension(name),
			MaxElements: settings.VectorIndex.MaxElements,
			M:           settings.VectorIndex.M,
			EfSearch:    settings.VectorIndex.EfSearch,
		})
		if err != nil {
			return nil, fmt.Errorf("create index %s: %w", name, err)
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// buildEmbedders creates a service for each configured provider.
func buildEmbedders(settings domain.AppSettings) []driven.EmbeddingService {
	var out []driven.EmbeddingService

	local := settings.Providers.Local
	if local.IsConfigured(domain.ProviderLocal) {
		out = append(out, ollama.NewEmbeddingService(ollama.Config{
			BaseURL:    local.BaseURL,
			Model:      local.Model,
			Dimensions: local.Dimensions,
		}))
	}

	remote := settings.Providers.Remote
	if remote.IsConfigured(domain.ProviderRemote) {
		svc, err := openai.NewEmbeddingService(openai.Config{
			APIKey:     remote.APIKey,
			BaseURL:    remote.BaseURL,
			Model:      remote.Model,
			Dimensions: remote.Dimensions,
		})
		if err != nil {
			logger.Warn("Remote embeddings disabled: %v", err)
		} else {
			out = append(out, svc)
		}
	}

	for i, svc := range out {
		cached, err := cache.New(svc, cache.Config{})
		if err != nil {
			logger.Warn("Embedding cache for %s disabled: %v", svc.Provider(), err)
			continue
		}
		out[i] = cached
	}
	return out
}

// DataDir returns the directory holding the store and indices.
func (a *App) DataDir() string {
	return a.Settings.DataDir
}

// Close persists every index and releases the stores. It is safe to call
// more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.Recovery != nil {
			if err := a.Recovery.Shutdown(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.Embedders != nil {
			if err := a.Embedders.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close embedders: %w", err))
			}
		}
		if err := a.closeStores(); err != nil {
			errs = append(errs, err)
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func (a *App) closeStores() error {
	var errs []error
	for _, idx := range a.indices {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index %s: %w", idx.Name(), err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
