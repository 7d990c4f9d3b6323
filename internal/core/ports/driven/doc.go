// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - ThoughtStore, MemoryStore, RagStore: Relational persistence per logical store
//   - SlotStore: Vector slot ownership and soft-delete marks
//   - KeywordIndex: Full-text search over chunk text (SQLite FTS5)
//   - MaintenanceStore: Integrity checks, salvage, reset and migrations
//   - VectorIndex: One ANN index per provider per logical store (HNSW)
//   - Chunker: Splits extracted text into token windows
//   - ConfigStore: Application configuration
//   - RecoveryLedger: Corruption-signature attempt counts
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vectors. Without the local provider, documents
//     are indexed for keyword search only.
//   - TextExtractor: Converts files to text. Files with no extractor are skipped.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or extractor package
package driven
