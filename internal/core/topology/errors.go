// Package topology contains pure functions describing the deployment
// topology of a self-hosted instance. No I/O happens here; execution is
// delegated to the shell.
package topology

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrMissingBuildSource is returned when a service declares neither an
	// image nor a build source.
	ErrMissingBuildSource = errors.New("service must have image or build source")

	// ErrConflictingBuildSource is returned when a service declares both an
	// image and a build source.
	ErrConflictingBuildSource = errors.New("image and build source are mutually exclusive")

	// ErrDuplicateService is returned when two services share a name.
	ErrDuplicateService = errors.New("duplicate service name")

	// ErrUnknownDependency is returned when a dependency edge references an
	// undeclared service.
	ErrUnknownDependency = errors.New("dependency references unknown service")

	// ErrUnknownVolume is returned when a mount references an undeclared volume.
	ErrUnknownVolume = errors.New("mount references unknown volume")

	// ErrMissingProbe is returned when a service is gated on the health of a
	// service that declares no health probe.
	ErrMissingProbe = errors.New("health condition requires a health probe")
)

// TopologyError wraps validation errors with the field that failed.
type TopologyError struct {
	Field   string // e.g. "services.dashboard.depends_on[0]"
	Message string
	Err     error
}

func (e *TopologyError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *TopologyError) Unwrap() error {
	return e.Err
}

// NewTopologyError creates a new TopologyError.
func NewTopologyError(field, message string, err error) *TopologyError {
	return &TopologyError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// CycleError reports a dependency cycle. A topology containing a cycle can
// never be scheduled, so this is fatal before any service starts.
type CycleError struct {
	// Path is the cycle in dependency order; the last element depends on
	// the first.
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle detected"
	}
	return "dependency cycle detected: " + strings.Join(e.Path, " -> ") + " -> " + e.Path[0]
}

// HealthGateTimeoutError reports that a depended-on service failed to reach
// healthy within its grace period. It is a startup failure for every
// dependent of the named service.
type HealthGateTimeoutError struct {
	Service     string
	StartPeriod time.Duration
}

func (e *HealthGateTimeoutError) Error() string {
	return fmt.Sprintf("service %s did not become healthy within %s", e.Service, e.StartPeriod)
}
