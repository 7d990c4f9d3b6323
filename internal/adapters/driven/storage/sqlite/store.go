package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// dbFileName is the database file inside the data directory.
const dbFileName = "recall.db"

// dsnPragmas are applied to every pooled connection.
const dsnPragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Store is a unified SQLite-based storage that provides access to
// all relational store interfaces through wrapper types.
//
// Salvage and Reset replace the underlying connection; they must not run
// concurrently with other operations.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database in dataDir without applying
// the schema, so that a damaged file can still be inspected and repaired.
// If dataDir is empty, defaults to ~/.recall/data.
func Open(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".recall", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &Store{path: filepath.Join(dataDir, dbFileName)}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStore opens the database and applies the versioned schema. Named
// migrations are attempted too; a failed one is flagged and logged and the
// store still opens, since callers only need the base schema.
func NewStore(dataDir string) (*Store, error) {
	s, err := Open(dataDir)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := s.ApplySchema(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	for _, m := range NamedMigrations() {
		if _, err := s.RunMigration(ctx, m); err != nil {
			logger.Warn("sqlite: %v", err)
		}
	}
	return s, nil
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.path+dsnPragmas)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	s.db = db
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ThoughtStore returns a ThoughtStore interface backed by this store.
func (s *Store) ThoughtStore() driven.ThoughtStore {
	return &thoughtStore{store: s}
}

// MemoryStore returns a MemoryStore interface backed by this store.
func (s *Store) MemoryStore() driven.MemoryStore {
	return &memoryStore{store: s}
}

// RagStore returns a RagStore interface backed by this store.
func (s *Store) RagStore() driven.RagStore {
	return &ragStore{store: s}
}

// SlotStore returns a SlotStore interface backed by this store.
func (s *Store) SlotStore() driven.SlotStore {
	return &slotStore{store: s}
}

// KeywordIndex returns a KeywordIndex interface backed by this store.
func (s *Store) KeywordIndex() driven.KeywordIndex {
	return &keywordIndex{store: s}
}

// MaintenanceStore returns a MaintenanceStore interface backed by this store.
func (s *Store) MaintenanceStore() driven.MaintenanceStore {
	return s
}

// migrate runs all pending versioned schema files.
func (s *Store) migrate(ctx context.Context, fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if err := s.applyVersion(ctx, version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

func (s *Store) applyVersion(ctx context.Context, version int, script string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		version, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// toNanos converts a time to the stored representation.
func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

// fromNanos converts a stored timestamp back to UTC time.
func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// nullString converts an empty string to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullInt converts zero to NULL.
func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// maxBatch bounds the number of bound parameters per IN clause.
const maxBatch = 500

// batches splits ids into slices of at most maxBatch.
func batches(ids []string) [][]string {
	var out [][]string
	for len(ids) > maxBatch {
		out = append(out, ids[:maxBatch])
		ids = ids[maxBatch:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func stringArgs(prefix []any, ids []string) []any {
	args := make([]any, 0, len(prefix)+len(ids))
	args = append(args, prefix...)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

// embeddingSet decodes the per-provider embedding columns.
func embeddingSet(remote, local []byte) domain.EmbeddingSet {
	set := domain.EmbeddingSet{}
	if v := bytesToFloat32Slice(remote); len(v) > 0 {
		set[domain.ProviderRemote] = v
	}
	if v := bytesToFloat32Slice(local); len(v) > 0 {
		set[domain.ProviderLocal] = v
	}
	return set
}
