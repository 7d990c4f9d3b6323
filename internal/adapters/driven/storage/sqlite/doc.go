// Package sqlite provides the relational store for Recall.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - ThoughtStore: conversational messages and summaries
//   - MemoryStore: long-term memories
//   - RagStore: documents and chunks
//   - SlotStore: the vector slot to record mapping shared by all indices
//   - KeywordIndex: FTS5 full-text search over chunk text
//   - MaintenanceStore: integrity check, salvage, reset and migrations
//
// # Schema
//
// The base schema is managed through versioned files stored in the
// migrations/ directory. Later changes that must run exactly once, even
// across a reset, are registered as named migrations (see NamedMigrations)
// and recorded in the migration_flags table.
//
// # Data Location
//
// By default, the database is stored at ~/.recall/data/recall.db
//
// # Thread Safety
//
// Record operations are safe for concurrent use; SQLite runs in WAL mode.
// Salvage and Reset reopen the connection and must run alone.
package sqlite
