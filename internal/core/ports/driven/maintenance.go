package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// Migration is a named one-time schema transformation.
// Statements run in order inside a single transaction.
type Migration struct {
	Name       string
	Statements []string
}

// MaintenanceStore exposes the relational store's lifecycle operations
// to the recovery supervisor.
type MaintenanceStore interface {
	// IntegrityCheck runs a cheap structural check.
	IntegrityCheck(ctx context.Context) (domain.IntegrityReport, error)

	// Salvage copies every readable page into a fresh database and swaps it in.
	Salvage(ctx context.Context) error

	// Reset drops and recreates the schema. All rows are lost.
	Reset(ctx context.Context) error

	// ApplySchema applies pending versioned schema files.
	ApplySchema(ctx context.Context) error

	// RunMigration applies m exactly once across the store's lifetime.
	// Returns applied=false when m was already flagged complete. A failing
	// migration is still flagged complete and reported via
	// domain.ErrMigrationFailed.
	RunMigration(ctx context.Context, m Migration) (applied bool, err error)

	// MigrationFlags lists every flagged migration.
	MigrationFlags(ctx context.Context) ([]domain.MigrationFlag, error)
}

// RecoveryLedger counts recovery attempts per corruption signature
// across process restarts.
type RecoveryLedger interface {
	// Attempts returns the recorded attempt count for signature.
	Attempts(signature string) int

	// Record increments and persists the attempt count for signature.
	Record(signature string) (int, error)

	// Clear forgets signature.
	Clear(signature string) error
}
