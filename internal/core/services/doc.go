// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Thought, memory and document services share one IndexSet, which owns
// the per-index write locks and the slot bookkeeping. RecoveryService
// runs once at startup before any other service is used.
//
// Services are pure Go with no CGO or external dependencies.
package services
