package memory

import (
	"sync"

	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure RecoveryLedger implements the interface.
var _ driven.RecoveryLedger = (*RecoveryLedger)(nil)

// RecoveryLedger counts recovery attempts in memory.
type RecoveryLedger struct {
	mu       sync.Mutex
	attempts map[string]int
}

// NewRecoveryLedger creates an empty in-memory ledger.
func NewRecoveryLedger() *RecoveryLedger {
	return &RecoveryLedger{attempts: make(map[string]int)}
}

// Attempts returns the recorded attempt count for signature.
func (l *RecoveryLedger) Attempts(signature string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts[signature]
}

// Record increments the attempt count for signature.
func (l *RecoveryLedger) Record(signature string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts[signature]++
	return l.attempts[signature], nil
}

// Clear forgets signature.
func (l *RecoveryLedger) Clear(signature string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, signature)
	return nil
}
