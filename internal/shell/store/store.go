// Package store persists instance state across provisioning runs.
package store

import (
	"context"
	"time"
)

// =============================================================================
// Entities
// =============================================================================

// Instance holds the generated credentials of one self-hosted instance.
// Credentials are generated once and reused on every subsequent run, so
// the backend's key broker keeps accepting previously minted admin keys.
type Instance struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Secret    string    `db:"secret"`
	CreatedAt time.Time `db:"created_at"`
}

// Event is one entry of the append-only provision log.
type Event struct {
	ID        int64     `db:"id"`
	RunID     string    `db:"run_id"`
	Service   string    `db:"service"`
	Type      string    `db:"type"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

// Event types recorded by the orchestrator.
const (
	EventRunStarted      = "run_started"
	EventRunCompleted    = "run_completed"
	EventRunFailed       = "run_failed"
	EventServiceStarting = "service_starting"
	EventServiceHealthy  = "service_healthy"
	EventGateTimeout     = "gate_timeout"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store is the persistence boundary of the provisioner.
type Store interface {
	// EnsureInstance returns the stored instance, creating it with the
	// given credentials when none exists yet. The stored credentials win
	// over the arguments on subsequent calls.
	EnsureInstance(ctx context.Context, name, secret string) (*Instance, error)

	// GetInstance returns the stored instance or ErrNotFound.
	GetInstance(ctx context.Context) (*Instance, error)

	// RecordEvent appends one provision event.
	RecordEvent(ctx context.Context, event *Event) error

	// ListEvents returns the events of one run in insertion order.
	ListEvents(ctx context.Context, runID string) ([]Event, error)

	Close() error
}
