package domain

import "time"

// IntegrityStatus is the outcome of a structural store check.
type IntegrityStatus string

// Integrity outcomes.
const (
	IntegrityHealthy IntegrityStatus = "healthy"
	IntegrityCorrupt IntegrityStatus = "corrupt"
)

// IntegrityReport carries the check outcome and its raw detail.
// Detail doubles as the corruption signature.
type IntegrityReport struct {
	Status IntegrityStatus
	Detail string
}

// Healthy returns true if the store passed the check.
func (r IntegrityReport) Healthy() bool {
	return r.Status == IntegrityHealthy
}

// MigrationFlag tracks one named, one-time schema transformation.
type MigrationFlag struct {
	Name        string
	CompletedAt *time.Time
	Error       string
}

// MigrationOutcome records what happened to one migration at startup.
type MigrationOutcome struct {
	Name    string
	Applied bool
	Error   string
}

// StartupReport summarises the recovery supervisor's startup pass.
type StartupReport struct {
	// Integrity is the initial integrity check result.
	Integrity IntegrityReport

	// Recovered is true when a salvage pass repaired the store.
	Recovered bool

	// Reset is true when the store was dropped and recreated.
	Reset bool

	// Migrations lists the outcome of each registered migration.
	Migrations []MigrationOutcome

	// Loaded lists indices restored from disk.
	Loaded []IndexName

	// Rebuilt lists indices rebuilt from relational rows.
	Rebuilt []IndexName

	// IndexErrors maps indices that could not be restored to the reason.
	IndexErrors map[IndexName]string
}

// IndexStatus compares one vector index with its slot table.
type IndexStatus struct {
	Name  IndexName
	Len   int
	Slots int
}

// Consistent reports whether every physical slot has a mapping.
func (s IndexStatus) Consistent() bool {
	return s.Len == s.Slots
}
