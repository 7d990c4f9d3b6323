package file

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure RecoveryLedger implements the interface.
var _ driven.RecoveryLedger = (*RecoveryLedger)(nil)

// ledgerFile is the on-disk shape of recovery.toml.
type ledgerFile struct {
	Attempts map[string]int `toml:"attempts"`
}

// RecoveryLedger persists recovery attempt counts per corruption signature
// in a TOML file, so the attempt bound survives crashes mid-recovery.
type RecoveryLedger struct {
	mu       sync.Mutex
	filePath string
	attempts map[string]int
}

// NewRecoveryLedger opens (or starts) the ledger at dataDir/recovery.toml.
// An unreadable ledger starts empty.
func NewRecoveryLedger(dataDir string) (*RecoveryLedger, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}

	l := &RecoveryLedger{
		filePath: filepath.Join(dataDir, "recovery.toml"),
		attempts: make(map[string]int),
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}

	var f ledgerFile
	if err := toml.Unmarshal(data, &f); err == nil && f.Attempts != nil {
		l.attempts = f.Attempts
	}
	return l, nil
}

// Attempts returns the recorded attempt count for signature.
func (l *RecoveryLedger) Attempts(signature string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts[signature]
}

// Record increments and persists the attempt count for signature.
func (l *RecoveryLedger) Record(signature string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.attempts[signature]++
	n := l.attempts[signature]
	if err := l.save(); err != nil {
		return n, err
	}
	return n, nil
}

// Clear forgets signature.
func (l *RecoveryLedger) Clear(signature string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.attempts[signature]; !ok {
		return nil
	}
	delete(l.attempts, signature)
	return l.save()
}

// Path returns the ledger file path.
func (l *RecoveryLedger) Path() string {
	return l.filePath
}

func (l *RecoveryLedger) save() error {
	data, err := toml.Marshal(ledgerFile{Attempts: l.attempts})
	if err != nil {
		return err
	}
	return os.WriteFile(l.filePath, data, 0600)
}
