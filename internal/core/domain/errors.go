package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates a file type no extractor handles.
	ErrUnsupportedType = errors.New("unsupported type")

	// Embedding Errors.

	// ErrEmbeddingUnavailable indicates the embedding collaborator failed or is not configured.
	// Records are still written, only without that provider's vector.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrUnknownEmbeddingDimension indicates a vector whose length matches no configured provider.
	ErrUnknownEmbeddingDimension = errors.New("unknown embedding dimension")

	// Index Errors.

	// ErrCapacityExceeded indicates a vector index is full.
	// Callers must compact (e.g. summarise and clear) before inserting again.
	ErrCapacityExceeded = errors.New("vector index capacity exceeded")

	// ErrIndexCorrupt indicates a vector index file could not be trusted.
	ErrIndexCorrupt = errors.New("vector index corrupt")

	// ErrIndexClosed indicates the vector index has been closed.
	ErrIndexClosed = errors.New("vector index closed")

	// Store Errors.

	// ErrStoreCorrupt indicates the relational store failed its integrity check.
	ErrStoreCorrupt = errors.New("store corrupt")

	// ErrMigrationFailed indicates a one-time migration did not apply cleanly.
	// The migration is still flagged complete to avoid retry storms.
	ErrMigrationFailed = errors.New("migration failed")
)
