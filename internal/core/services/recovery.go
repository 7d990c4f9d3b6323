package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure RecoveryService implements the interface.
var _ driving.RecoveryService = (*RecoveryService)(nil)

// RecoveryService is the startup supervisor: it verifies the relational
// store, salvages or resets it, runs one-time migrations and brings each
// vector index back in line with its slot table.
type RecoveryService struct {
	store       driven.MaintenanceStore
	indices     *IndexSet
	ledger      driven.RecoveryLedger
	migrations  []driven.Migration
	maxAttempts int
}

// NewRecoveryService creates a new recovery service.
func NewRecoveryService(
	store driven.MaintenanceStore,
	indices *IndexSet,
	ledger driven.RecoveryLedger,
	migrations []driven.Migration,
	maxAttempts int,
) *RecoveryService {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultRecoveryAttempts
	}
	return &RecoveryService{
		store:       store,
		indices:     indices,
		ledger:      ledger,
		migrations:  migrations,
		maxAttempts: maxAttempts,
	}
}

// Startup runs the full startup pass. Only failures that leave the store
// unusable are returned; everything else is logged and reported.
func (s *RecoveryService) Startup(ctx context.Context) (*domain.StartupReport, error) {
	logger.Section("Startup Recovery")
	report := &domain.StartupReport{}

	integrity, err := s.store.IntegrityCheck(ctx)
	if err != nil {
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	report.Integrity = integrity
	logger.Debug("Integrity: %s", integrity.Status)

	if !integrity.Healthy() {
		if err := s.recover(ctx, integrity, report); err != nil {
			return report, err
		}
	}

	if err := s.store.ApplySchema(ctx); err != nil {
		return report, fmt.Errorf("apply schema: %w", err)
	}

	for _, m := range s.migrations {
		applied, err := s.store.RunMigration(ctx, m)
		outcome := domain.MigrationOutcome{Name: m.Name, Applied: applied}
		if err != nil {
			logger.Warn("Migration %s: %v", m.Name, err)
			outcome.Error = err.Error()
		} else if applied {
			logger.Info("Applied migration %s", m.Name)
		}
		report.Migrations = append(report.Migrations, outcome)
	}

	s.restoreIndices(ctx, report.Recovered || report.Reset, report)
	return report, nil
}

// recover salvages a corrupt store, falling back to a reset once the
// attempts for this corruption signature are spent. Attempts persist
// across restarts so recurring corruption cannot loop forever.
func (s *RecoveryService) recover(ctx context.Context, integrity domain.IntegrityReport, report *domain.StartupReport) error {
	signature := corruptionSignature(integrity.Detail)
	logger.Warn("Store failed integrity check (signature %s): %s", signature, integrity.Detail)

	for s.ledger.Attempts(signature) < s.maxAttempts {
		attempt, err := s.ledger.Record(signature)
		if err != nil {
			logger.Warn("Recording recovery attempt: %v", err)
			attempt = s.maxAttempts
		}
		logger.Info("Salvage attempt %d/%d", attempt, s.maxAttempts)

		if err := s.store.Salvage(ctx); err != nil {
			logger.Warn("Salvage failed: %v", err)
			if attempt >= s.maxAttempts {
				break
			}
			continue
		}
		check, err := s.store.IntegrityCheck(ctx)
		if err == nil && check.Healthy() {
			logger.Info("Store salvaged")
			report.Recovered = true
			return nil
		}
		if attempt >= s.maxAttempts {
			break
		}
	}

	logger.Warn("Recovery attempts exhausted for signature %s; resetting store", signature)
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", errors.Join(domain.ErrStoreCorrupt, err))
	}
	if err := s.ledger.Clear(signature); err != nil {
		logger.Warn("Clearing recovery ledger: %v", err)
	}
	report.Reset = true
	return nil
}

// corruptionSignature condenses an integrity detail into a stable key.
func corruptionSignature(detail string) string {
	sum := sha256.Sum256([]byte(detail))
	return hex.EncodeToString(sum[:8])
}

// restoreIndices loads each index from disk, or rebuilds it when the
// file is unusable, the store changed underneath it, or its length
// disagrees with the slot table.
func (s *RecoveryService) restoreIndices(ctx context.Context, forceRebuild bool, report *domain.StartupReport) {
	for _, name := range s.indices.Names() {
		idx, _ := s.indices.Get(name)

		reason := ""
		switch {
		case forceRebuild:
			reason = "store was recovered"
		default:
			ok, err := idx.Load()
			switch {
			case err != nil:
				reason = fmt.Sprintf("load failed: %v", err)
			case !ok:
				reason = "no usable index file"
			default:
				status, err := s.indices.Status(ctx, name)
				if err != nil {
					reason = fmt.Sprintf("status check failed: %v", err)
				} else if !status.Consistent() {
					reason = fmt.Sprintf("index has %d slots, table has %d", status.Len, status.Slots)
				}
			}
		}

		if reason == "" {
			logger.Debug("Loaded index %s (%d slots)", name, idx.Len())
			report.Loaded = append(report.Loaded, name)
			continue
		}

		logger.Info("Rebuilding index %s: %s", name, reason)
		if err := s.indices.Rebuild(ctx, name); err != nil {
			logger.Warn("Rebuilding index %s: %v", name, err)
			if report.IndexErrors == nil {
				report.IndexErrors = make(map[domain.IndexName]string)
			}
			report.IndexErrors[name] = err.Error()
			continue
		}
		report.Rebuilt = append(report.Rebuilt, name)
	}
}

// CheckConsistency compares each index against its slot table.
func (s *RecoveryService) CheckConsistency(ctx context.Context) ([]domain.IndexStatus, error) {
	statuses := make([]domain.IndexStatus, 0, len(s.indices.Names()))
	for _, name := range s.indices.Names() {
		status, err := s.indices.Status(ctx, name)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// RebuildIndex rebuilds one index from the relational rows.
func (s *RecoveryService) RebuildIndex(ctx context.Context, name domain.IndexName) error {
	return s.indices.Rebuild(ctx, name)
}

// Shutdown persists every index.
func (s *RecoveryService) Shutdown() error {
	logger.Debug("Persisting vector indices")
	return s.indices.Persist()
}
