package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService indexes local files into chunks and searches them.
// Chunk vectors come from the local provider only.
type DocumentService struct {
	rag        driven.RagStore
	keyword    driven.KeywordIndex
	indices    *IndexSet
	extractors driven.ExtractorRegistry
	chunker    driven.Chunker
	embedder   driven.EmbeddingService
	dims       domain.ProviderDimensions
	settings   domain.RAGSettings
	now        func() time.Time
}

// NewDocumentService creates a new document service.
// The embedder parameter is optional (can be nil); without it documents
// are searchable by keyword only.
func NewDocumentService(
	rag driven.RagStore,
	keyword driven.KeywordIndex,
	indices *IndexSet,
	extractors driven.ExtractorRegistry,
	chunker driven.Chunker,
	embedder driven.EmbeddingService,
	dims domain.ProviderDimensions,
	settings domain.RAGSettings,
) *DocumentService {
	if embedder != nil && embedder.Provider() != domain.ProviderLocal {
		logger.Warn("Document embeddings need the local provider, got %s; indexing keyword-only", embedder.Provider())
		embedder = nil
	}
	if settings.CandidateFactor <= 0 {
		settings.CandidateFactor = domain.DefaultCandidateFactor
	}
	return &DocumentService{
		rag:        rag,
		keyword:    keyword,
		indices:    indices,
		extractors: extractors,
		chunker:    chunker,
		embedder:   embedder,
		dims:       dims,
		settings:   settings,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IndexPaths indexes every supported file under paths. Unchanged files
// are skipped before extraction; a file that fails never aborts the batch.
func (s *DocumentService) IndexPaths(ctx context.Context, paths []string, recursive bool) (*domain.IndexReport, error) {
	logger.Section("Document Indexing")
	report := &domain.IndexReport{}

	files := s.collect(paths, recursive, report)
	logger.Debug("Collected %d files from %d paths", len(files), len(paths))

	var capacityErr error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			logger.Info("Indexing cancelled after %d files", report.Indexed+report.Skipped+report.Failed)
			return report, err
		}

		err := s.indexFile(ctx, path, report)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrCapacityExceeded):
			capacityErr = err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return report, err
		default:
			logger.Warn("Indexing %s: %v", path, err)
			report.Failed++
			report.AddError(path, err)
		}
	}

	logger.Info("Indexed %d, skipped %d, failed %d (%d chunks, %d without vectors)",
		report.Indexed, report.Skipped, report.Failed, report.Chunks, report.Unembedded)
	return report, capacityErr
}

// collect expands paths into absolute file paths. Hidden entries are
// skipped below each root; missing roots are recorded as failures.
func (s *DocumentService) collect(paths []string, recursive bool, report *domain.IndexReport) []string {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range paths {
		abs, err := filepath.Abs(root)
		if err != nil {
			report.Failed++
			report.AddError(root, err)
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			report.Failed++
			report.AddError(abs, err)
			continue
		}
		if !info.IsDir() {
			add(abs)
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				report.Failed++
				report.AddError(path, err)
				return nil
			}
			if path == abs {
				return nil
			}
			if isHidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				add(path)
			}
			return nil
		})
		if err != nil {
			report.Failed++
			report.AddError(abs, err)
		}
	}
	sort.Strings(files)
	return files
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// indexFile moves one file through Unseen/Indexed -> Reindexing -> Indexed,
// or leaves it Indexed when nothing changed.
func (s *DocumentService) indexFile(ctx context.Context, path string, report *domain.IndexReport) error {
	extractor, ok := s.extractors.For(path)
	if !ok {
		logger.Debug("Skipping %s: no extractor", path)
		report.AddSkip(path, "unsupported file type")
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	stat := fileStat(path, info, content)

	existing, err := s.rag.GetDocumentByPath(ctx, path)
	switch {
	case err == nil && existing.Unchanged(stat):
		logger.Debug("Skipping %s: unchanged", path)
		report.Skipped++
		return nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("look up document: %w", err)
	}

	text, err := extractor.Extract(ctx, path, content)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	chunks := s.chunker.Chunk(text)

	now := s.now()
	doc := &domain.RagDocument{
		ID:           uuid.New().String(),
		Path:         path,
		Fingerprint:  stat.Fingerprint,
		ModifiedTime: stat.ModifiedTime,
		SizeBytes:    stat.SizeBytes,
		Title:        text.Title,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
	}
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].CreatedAt = now
	}

	embedded := s.embedChunks(ctx, path, chunks)

	unlock := s.indices.lock(domain.IndexRagLocal)
	defer unlock()

	oldChunks, err := s.rag.ChunkIDs(ctx, path)
	if err != nil {
		return fmt.Errorf("list old chunks: %w", err)
	}
	if err := s.rag.ReplaceDocument(ctx, doc, chunks); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	if _, err := s.indices.Orphan(ctx, domain.OwnerChunk, oldChunks); err != nil {
		logger.Warn("Orphaning old chunks of %s: %v", path, err)
	}

	committed := 0
	var capacityErr error
	for _, ch := range chunks {
		if ch.Embedding == nil || capacityErr != nil {
			continue
		}
		if _, err := s.indices.commitLocked(ctx, domain.IndexRagLocal, domain.OwnerChunk, ch.ID, ch.Embedding); err != nil {
			if errors.Is(err, domain.ErrCapacityExceeded) {
				logger.Warn("Vector index %s is full; remaining chunks of %s are keyword-only", domain.IndexRagLocal, path)
				capacityErr = fmt.Errorf("indexing %s: %w", path, err)
				continue
			}
			logger.Warn("Chunk %d of %s not indexed: %v", ch.ChunkIndex, path, err)
			continue
		}
		committed++
	}

	report.Indexed++
	report.Chunks += len(chunks)
	report.Unembedded += len(chunks) - committed
	logger.Debug("Indexed %s: %d chunks (%d embedded, %d indexed), %d replaced",
		path, len(chunks), embedded, committed, len(oldChunks))
	return capacityErr
}

// embedChunks fills chunk embeddings from the local provider and returns
// how many chunks received one. Failures leave the chunks keyword-only.
func (s *DocumentService) embedChunks(ctx context.Context, path string, chunks []domain.RagChunk) int {
	if s.embedder == nil || len(chunks) == 0 {
		return 0
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Warn("Embedding %s failed, storing chunks keyword-only: %v", path, err)
		return 0
	}

	n := 0
	for i := range chunks {
		if i >= len(vectors) {
			break
		}
		if err := s.dims.Check(domain.ProviderLocal, vectors[i]); err != nil {
			logger.Warn("Chunk %d of %s: %v", i, path, err)
			continue
		}
		chunks[i].Embedding = vectors[i]
		n++
	}
	return n
}

func fileStat(path string, info fs.FileInfo, content []byte) domain.FileStat {
	sum := sha256.Sum256(content)
	return domain.FileStat{
		Path:         path,
		Fingerprint:  hex.EncodeToString(sum[:]),
		ModifiedTime: info.ModTime().UTC(),
		SizeBytes:    info.Size(),
	}
}

// Search fuses a vector search over the document index with a keyword
// search over chunk text. Each side fetches k*CandidateFactor candidates.
func (s *DocumentService) Search(
	ctx context.Context, query []float32, queryText string, k int,
) ([]domain.DocumentSearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", domain.ErrInvalidInput)
	}
	queryText = strings.TrimSpace(queryText)
	if len(query) == 0 && queryText == "" {
		return []domain.DocumentSearchResult{}, nil
	}
	if len(query) > 0 {
		if err := s.dims.Check(domain.ProviderLocal, query); err != nil {
			return nil, err
		}
	}

	limit := k * s.settings.CandidateFactor
	logger.Debug("Document search: k=%d candidates=%d vector=%t keyword=%t", k, limit, len(query) > 0, queryText != "")

	var (
		vectorHits            []ownerHit
		keywordHits           []driven.SearchHit
		vectorErr, keywordErr error
		g                     errgroup.Group
	)
	if len(query) > 0 {
		g.Go(func() error {
			vectorHits, vectorErr = s.indices.searchOwners(ctx, domain.IndexRagLocal, domain.OwnerChunk, query, limit, nil)
			return nil
		})
	}
	if queryText != "" {
		g.Go(func() error {
			keywordHits, keywordErr = s.keyword.SearchChunks(ctx, queryText, limit)
			return nil
		})
	}
	_ = g.Wait()

	// Degrade to whichever side succeeded.
	switch {
	case vectorErr != nil && (keywordErr != nil || queryText == ""):
		return nil, fmt.Errorf("vector search: %w", vectorErr)
	case keywordErr != nil && (vectorErr != nil || len(query) == 0):
		return nil, fmt.Errorf("keyword search: %w", keywordErr)
	case vectorErr != nil:
		logger.Warn("Document search: vector search failed, using keyword results only: %v", vectorErr)
	case keywordErr != nil:
		logger.Warn("Document search: keyword search failed, using vector results only: %v", keywordErr)
	}

	fused := fuseScores(vectorHits, keywordHits, s.settings.VectorWeight, s.settings.KeywordWeight)
	logger.Debug("Document search: fused %d vector + %d keyword into %d", len(vectorHits), len(keywordHits), len(fused))
	return s.hydrate(ctx, fused, k)
}

// hydrate loads chunk rows for the fused hits and returns the top k.
func (s *DocumentService) hydrate(ctx context.Context, fused []fusedChunk, k int) ([]domain.DocumentSearchResult, error) {
	ids := make([]string, len(fused))
	for i, fc := range fused {
		ids[i] = fc.chunkID
	}
	chunks, err := s.rag.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	results := make([]domain.DocumentSearchResult, 0, len(fused))
	for _, fc := range fused {
		lc, ok := chunks[fc.chunkID]
		if !ok {
			continue
		}
		lc.Chunk.Embedding = nil
		results = append(results, domain.DocumentSearchResult{
			Chunk:        lc.Chunk,
			Path:         lc.Path,
			Title:        lc.Title,
			Score:        fc.score,
			VectorScore:  fc.vectorScore,
			KeywordScore: fc.keywordScore,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Chunk.ChunkIndex < b.Chunk.ChunkIndex
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// RemovePaths deletes the documents at each path, or under it when the
// path names a directory. Their chunk slots are soft-deleted.
func (s *DocumentService) RemovePaths(ctx context.Context, paths []string) (int, error) {
	docs, err := s.rag.ListDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}

	var targets []string
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", p, err)
		}
		prefix := abs + string(filepath.Separator)
		for _, d := range docs {
			if (d.Path == abs || strings.HasPrefix(d.Path, prefix)) && !seen[d.Path] {
				seen[d.Path] = true
				targets = append(targets, d.Path)
			}
		}
	}

	unlock := s.indices.lock(domain.IndexRagLocal)
	defer unlock()

	removed := 0
	for _, path := range targets {
		chunkIDs, err := s.rag.DeleteDocument(ctx, path)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("delete %s: %w", path, err)
		}
		if _, err := s.indices.Orphan(ctx, domain.OwnerChunk, chunkIDs); err != nil {
			logger.Warn("Orphaning chunks of %s: %v", path, err)
		}
		removed++
	}
	logger.Info("Removed %d documents", removed)
	return removed, nil
}

// List returns every indexed document ordered by path.
func (s *DocumentService) List(ctx context.Context) ([]domain.RagDocument, error) {
	return s.rag.ListDocuments(ctx)
}

// Clear deletes every document and chunk and rebuilds the document index
// to empty.
func (s *DocumentService) Clear(ctx context.Context) (*domain.ClearReport, error) {
	docs, chunks, err := s.rag.ClearDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("clear documents: %w", err)
	}

	report := s.indices.RebuildAll(ctx, domain.IndexRagLocal)
	report.Rows["rag_documents"] = docs
	report.Rows["rag_chunks"] = chunks
	logger.Info("Cleared %d documents (%d chunks)", docs, chunks)
	return report, nil
}
