// Package domain defines the core business entities for Recall.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Thought: A single conversational message with optional embeddings
//   - ConversationSummary: A summarisation cursor over a conversation
//   - LongTermMemory: A user-curated fact
//   - RagDocument / RagChunk: An indexed source file and its searchable units
//   - Provider / EmbeddingSet: Embedding sources and their fixed dimensions
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
