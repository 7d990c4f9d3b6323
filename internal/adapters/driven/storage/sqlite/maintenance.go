package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/custodia-labs/recall/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

var _ driven.MaintenanceStore = (*Store)(nil)

// Named one-time migrations, applied in order after the versioned schema.
const (
	MigrationDualEmbeddingColumns = "dual_embedding_columns"
	MigrationBackfillChunkFTS     = "backfill_chunk_fts"
	MigrationVectorSlotOwnerIndex = "vector_slot_owner_index"
)

// NamedMigrations returns the registered one-time migrations.
func NamedMigrations() []driven.Migration {
	return []driven.Migration{
		{
			// Second embedding column for the local provider.
			Name: MigrationDualEmbeddingColumns,
			Statements: []string{
				"ALTER TABLE thoughts ADD COLUMN embedding_local BLOB",
				"ALTER TABLE long_term_memories ADD COLUMN embedding_local BLOB",
			},
		},
		{
			Name: MigrationBackfillChunkFTS,
			Statements: []string{`
				INSERT INTO rag_chunks_fts (chunk_id, text)
				SELECT c.id, c.text FROM rag_chunks c
				WHERE NOT EXISTS (SELECT 1 FROM rag_chunks_fts f WHERE f.chunk_id = c.id)`,
			},
		},
		{
			Name: MigrationVectorSlotOwnerIndex,
			Statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_vector_slots_owner ON vector_slots(owner_kind, owner_id)",
			},
		},
	}
}

// ApplySchema applies pending versioned schema files.
func (s *Store) ApplySchema(ctx context.Context) error {
	return s.migrate(ctx, migrations.FS)
}

// IntegrityCheck runs PRAGMA quick_check. A database that cannot even be
// queried is reported as corrupt with the driver error as detail.
func (s *Store) IntegrityCheck(ctx context.Context) (domain.IntegrityReport, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA quick_check")
	if err != nil {
		if ctx.Err() != nil {
			return domain.IntegrityReport{}, ctx.Err()
		}
		return domain.IntegrityReport{Status: domain.IntegrityCorrupt, Detail: err.Error()}, nil
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return domain.IntegrityReport{Status: domain.IntegrityCorrupt, Detail: err.Error()}, nil
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.IntegrityReport{Status: domain.IntegrityCorrupt, Detail: err.Error()}, nil
	}

	if len(lines) == 1 && lines[0] == "ok" {
		return domain.IntegrityReport{Status: domain.IntegrityHealthy}, nil
	}
	return domain.IntegrityReport{Status: domain.IntegrityCorrupt, Detail: strings.Join(lines, "; ")}, nil
}

// salvageTables lists the tables Salvage copies, parents before children.
// The filter keeps rows whose parent was lost from failing the copy.
var salvageTables = []struct {
	name   string
	filter string
}{
	{name: "thoughts"},
	{name: "conversation_summaries"},
	{name: "long_term_memories"},
	{name: "rag_documents"},
	{name: "rag_chunks", filter: "document_id IN (SELECT id FROM main.rag_documents)"},
	{name: "vector_slots"},
	{name: "migration_flags"},
}

// Salvage dumps the current database table by table into a fresh file
// built from the current schema and swaps it in. A table that cannot be
// read is skipped and logged; the others keep every row. Chunk search
// text is regenerated by the insert triggers.
func (s *Store) Salvage(ctx context.Context) error {
	target := s.path + ".salvage"
	removeSalvage(target)

	copied, err := s.dumpInto(ctx, target)
	if err != nil {
		removeSalvage(target)
		return err
	}

	if err := s.db.Close(); err != nil {
		removeSalvage(target)
		return fmt.Errorf("closing database: %w", err)
	}
	removeSidecars(s.path)
	if err := os.Rename(target, s.path); err != nil {
		return errors.Join(fmt.Errorf("replacing database: %w", err), s.open())
	}
	logger.Info("sqlite: salvaged %d tables into a fresh database", copied)
	return s.open()
}

// dumpInto creates target with the full schema and copies every readable
// table of the current database into it. It returns the number of tables
// copied and fails only when the source cannot be read at all.
func (s *Store) dumpInto(ctx context.Context, target string) (int, error) {
	db, err := sql.Open("sqlite", target+"?_pragma=foreign_keys(1)")
	if err != nil {
		return 0, fmt.Errorf("opening salvage database: %w", err)
	}
	defer db.Close()
	// ATTACH is per connection.
	db.SetMaxOpenConns(1)

	fresh := &Store{db: db, path: target}
	if err := fresh.ApplySchema(ctx); err != nil {
		return 0, fmt.Errorf("creating salvage schema: %w", err)
	}
	for _, m := range NamedMigrations() {
		if _, err := fresh.RunMigration(ctx, m); err != nil {
			logger.Warn("sqlite: salvage schema: %v", err)
		}
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("salvage connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS src", s.path); err != nil {
		return 0, fmt.Errorf("attaching damaged database: %w", err)
	}
	defer conn.ExecContext(context.Background(), "DETACH DATABASE src") //nolint:errcheck

	var objects int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM src.sqlite_master").Scan(&objects); err != nil {
		return 0, fmt.Errorf("reading damaged schema: %w", err)
	}

	copied := 0
	for _, table := range salvageTables {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := copyTable(ctx, conn, table.name, table.filter)
		if err != nil {
			logger.Warn("sqlite: salvage skipped %s: %v", table.name, err)
			continue
		}
		logger.Debug("sqlite: salvaged %d rows from %s", n, table.name)
		copied++
	}
	return copied, nil
}

// copyTable copies the columns present in both schemas. Existing rows in
// the target win, except for migration flags, which keep their history.
func copyTable(ctx context.Context, conn *sql.Conn, table, filter string) (int64, error) {
	srcCols, err := tableColumns(ctx, conn, "src", table)
	if err != nil {
		return 0, err
	}
	if len(srcCols) == 0 {
		return 0, fmt.Errorf("table %s not found", table)
	}
	mainCols, err := tableColumns(ctx, conn, "main", table)
	if err != nil {
		return 0, err
	}

	present := make(map[string]bool, len(srcCols))
	for _, c := range srcCols {
		present[c] = true
	}
	var cols []string
	for _, c := range mainCols {
		if present[c] {
			cols = append(cols, `"`+c+`"`)
		}
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("table %s has no shared columns", table)
	}

	verb := "INSERT OR IGNORE"
	if table == "migration_flags" {
		verb = "INSERT OR REPLACE"
	}
	list := strings.Join(cols, ", ")
	query := fmt.Sprintf("%s INTO main.%s (%s) SELECT %s FROM src.%s", verb, table, list, list, table)
	if filter != "" {
		query += " WHERE " + filter
	}

	res, err := conn.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func tableColumns(ctx context.Context, conn *sql.Conn, schema, table string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "SELECT name FROM pragma_table_info(?, ?)", table, schema)
	if err != nil {
		return nil, fmt.Errorf("reading %s.%s columns: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func removeSalvage(target string) {
	_ = os.Remove(target)
	_ = os.Remove(target + "-journal")
	removeSidecars(target)
}

// Reset deletes the database files and recreates the schema.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Join(fmt.Errorf("removing database: %w", err), s.open())
	}
	removeSidecars(s.path)

	if err := s.open(); err != nil {
		return err
	}
	return s.ApplySchema(ctx)
}

func removeSidecars(path string) {
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
}

// RunMigration applies m once. A failing migration is rolled back and
// still flagged complete with its error, so it is never retried.
func (s *Store) RunMigration(ctx context.Context, m driven.Migration) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM migration_flags WHERE name = ?", m.Name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %s: %w", m.Name, err)
	}
	if count > 0 {
		return false, nil
	}

	runErr := s.runStatements(ctx, m)

	flagErr := ""
	if runErr != nil {
		flagErr = runErr.Error()
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO migration_flags (name, completed_at, error) VALUES (?, ?, ?)",
		m.Name, time.Now().UnixNano(), flagErr); err != nil {
		return false, fmt.Errorf("flagging migration %s: %w", m.Name, err)
	}

	if runErr != nil {
		return false, fmt.Errorf("migration %s: %w: %w", m.Name, domain.ErrMigrationFailed, runErr)
	}
	return true, nil
}

func (s *Store) runStatements(ctx context.Context, m driven.Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MigrationFlags lists every flagged migration in completion order.
func (s *Store) MigrationFlags(ctx context.Context) ([]domain.MigrationFlag, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, completed_at, error FROM migration_flags ORDER BY completed_at, name")
	if err != nil {
		return nil, fmt.Errorf("querying migration flags: %w", err)
	}
	defer rows.Close()

	var flags []domain.MigrationFlag
	for rows.Next() {
		var (
			flag      domain.MigrationFlag
			completed sql.NullInt64
		)
		if err := rows.Scan(&flag.Name, &completed, &flag.Error); err != nil {
			return nil, fmt.Errorf("scanning migration flag: %w", err)
		}
		if completed.Valid {
			t := fromNanos(completed.Int64)
			flag.CompletedAt = &t
		}
		flags = append(flags, flag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migration flags: %w", err)
	}
	return flags, nil
}
