package topology

import "time"

// =============================================================================
// Readiness State Machine
// =============================================================================

// State is the lifecycle of a service as observed by its dependents.
//
// Success path: pending -> starting -> healthy.
// Failure path: pending -> starting -> unhealthy, when the grace period
// elapses without a single probe success.
type State string

const (
	StatePending   State = "pending"
	StateStarting  State = "starting"
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
	StateCompleted State = "completed"
)

// SatisfiedBy reports whether a service in state s satisfies the condition.
// A dependent must only advance past its own pending state once every one
// of its dependency conditions is satisfied.
func (c DependencyCondition) SatisfiedBy(s State) bool {
	switch c {
	case ConditionStarted:
		return s == StateStarting || s == StateHealthy || s == StateCompleted
	case ConditionHealthy:
		return s == StateHealthy
	case ConditionCompleted:
		return s == StateCompleted
	default:
		return false
	}
}

// ProbeResult is one timestamped health-probe observation.
type ProbeResult struct {
	Healthy bool
	At      time.Time
}

// Gate tracks the readiness of one service from its probe observations.
// It is the pure half of the health-gate contract: the shell feeds it
// results at the probe's interval and reads the state back.
type Gate struct {
	probe     *HealthProbe
	startedAt time.Time
	state     State
}

// NewGate creates a gate in the pending state. probe may be nil for
// services without a health probe; such services become healthy as soon
// as they start, since start is the only signal they can offer.
func NewGate(probe *HealthProbe) *Gate {
	return &Gate{probe: probe, state: StatePending}
}

// Started records the moment the service was scheduled running. The grace
// period is measured from this instant.
func (g *Gate) Started(at time.Time) {
	if g.state != StatePending {
		return
	}
	g.startedAt = at
	if g.probe == nil {
		g.state = StateHealthy
		return
	}
	g.state = StateStarting
}

// Deadline returns the end of the startup grace period. Probe failures
// before the deadline are retried; a success observed exactly at the
// deadline still counts.
func (g *Gate) Deadline() time.Time {
	if g.probe == nil {
		return g.startedAt
	}
	return g.startedAt.Add(g.probe.StartPeriod)
}

// Observe feeds one probe result into the gate and returns the resulting
// state. The first success makes the service healthy; failures are
// non-terminal until the result is observed after the deadline.
func (g *Gate) Observe(r ProbeResult) State {
	if g.state != StateStarting {
		return g.state
	}
	if r.Healthy {
		g.state = StateHealthy
		return g.state
	}
	if r.At.After(g.Deadline()) {
		g.state = StateUnhealthy
	}
	return g.state
}

// Completed records that the service exited successfully.
func (g *Gate) Completed() {
	g.state = StateCompleted
}

// State returns the current readiness state.
func (g *Gate) State() State {
	return g.state
}

// Expired reports whether the grace period has elapsed without the service
// ever becoming healthy. Dependents must surface this as a
// HealthGateTimeoutError rather than retrying silently.
func (g *Gate) Expired(now time.Time) bool {
	return g.state == StateStarting && now.After(g.Deadline())
}
