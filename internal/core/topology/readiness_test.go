package topology

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var gateEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newStartedGate(interval, startPeriod time.Duration) *Gate {
	g := NewGate(&HealthProbe{
		Test:        []string{"CMD", "true"},
		Interval:    interval,
		StartPeriod: startPeriod,
	})
	g.Started(gateEpoch)
	return g
}

// =============================================================================
// Gate Tests
// =============================================================================

func TestGate_ReleasedOnlyAfterFirstSuccess(t *testing.T) {
	g := newStartedGate(5*time.Second, 30*time.Second)

	assert.Equal(t, StateStarting, g.Observe(ProbeResult{Healthy: false, At: gateEpoch}))
	assert.Equal(t, StateStarting, g.Observe(ProbeResult{Healthy: false, At: gateEpoch.Add(5 * time.Second)}))
	assert.False(t, ConditionHealthy.SatisfiedBy(g.State()))

	assert.Equal(t, StateHealthy, g.Observe(ProbeResult{Healthy: true, At: gateEpoch.Add(10 * time.Second)}))
	assert.True(t, ConditionHealthy.SatisfiedBy(g.State()))
}

func TestGate_FailuresWithinGraceAreNotTerminal(t *testing.T) {
	g := newStartedGate(time.Second, 10*time.Second)

	for i := 0; i < 9; i++ {
		state := g.Observe(ProbeResult{Healthy: false, At: gateEpoch.Add(time.Duration(i) * time.Second)})
		assert.Equal(t, StateStarting, state, "failure at %ds should be retried", i)
	}
}

func TestGate_UnhealthyAfterGracePeriod(t *testing.T) {
	g := newStartedGate(5*time.Second, 5*time.Second)

	g.Observe(ProbeResult{Healthy: false, At: gateEpoch})
	state := g.Observe(ProbeResult{Healthy: false, At: gateEpoch.Add(6 * time.Second)})

	assert.Equal(t, StateUnhealthy, state)
	assert.False(t, ConditionHealthy.SatisfiedBy(state))
}

func TestGate_SuccessAtDeadlineCounts(t *testing.T) {
	// §-style boundary: grace period of 5s, probe sequence [fail, success]
	// at 5s cadence. The success lands exactly on the deadline and must
	// still release the gate.
	g := newStartedGate(5*time.Second, 5*time.Second)

	assert.Equal(t, StateStarting, g.Observe(ProbeResult{Healthy: false, At: gateEpoch}))
	assert.Equal(t, StateHealthy, g.Observe(ProbeResult{Healthy: true, At: gateEpoch.Add(5 * time.Second)}))
}

func TestGate_HealthyIsSticky(t *testing.T) {
	g := newStartedGate(time.Second, time.Second)

	g.Observe(ProbeResult{Healthy: true, At: gateEpoch})
	state := g.Observe(ProbeResult{Healthy: false, At: gateEpoch.Add(time.Hour)})

	assert.Equal(t, StateHealthy, state)
}

func TestGate_NoProbeHealthyOnStart(t *testing.T) {
	g := NewGate(nil)
	assert.Equal(t, StatePending, g.State())

	g.Started(gateEpoch)
	assert.Equal(t, StateHealthy, g.State())
}

func TestGate_Expired(t *testing.T) {
	g := newStartedGate(5*time.Second, 5*time.Second)

	assert.False(t, g.Expired(gateEpoch.Add(5*time.Second)))
	assert.True(t, g.Expired(gateEpoch.Add(5*time.Second+time.Nanosecond)))

	g.Observe(ProbeResult{Healthy: true, At: gateEpoch})
	assert.False(t, g.Expired(gateEpoch.Add(time.Hour)))
}

// =============================================================================
// Condition Tests
// =============================================================================

func TestCondition_SatisfiedBy(t *testing.T) {
	assert.True(t, ConditionStarted.SatisfiedBy(StateStarting))
	assert.True(t, ConditionStarted.SatisfiedBy(StateHealthy))
	assert.False(t, ConditionStarted.SatisfiedBy(StatePending))
	assert.False(t, ConditionStarted.SatisfiedBy(StateUnhealthy))

	assert.True(t, ConditionHealthy.SatisfiedBy(StateHealthy))
	assert.False(t, ConditionHealthy.SatisfiedBy(StateStarting))

	assert.True(t, ConditionCompleted.SatisfiedBy(StateCompleted))
	assert.False(t, ConditionCompleted.SatisfiedBy(StateHealthy))
}
