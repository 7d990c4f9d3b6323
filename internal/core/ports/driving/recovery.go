package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// RecoveryService checks and repairs the store at startup and persists
// the vector indices at shutdown.
type RecoveryService interface {
	// Startup runs the integrity check, salvage or reset, schema
	// migrations and index loading or rebuilding.
	Startup(ctx context.Context) (*domain.StartupReport, error)

	// CheckConsistency compares each index against its slot table.
	CheckConsistency(ctx context.Context) ([]domain.IndexStatus, error)

	// RebuildIndex rebuilds one index from the relational rows.
	RebuildIndex(ctx context.Context, name domain.IndexName) error

	// Shutdown persists every index.
	Shutdown() error
}
