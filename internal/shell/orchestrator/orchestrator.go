// Package orchestrator brings a topology up and down against a container
// runtime. This is part of the Imperative Shell - it owns the clock and the
// I/O, and feeds observations into the pure readiness gates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/selfhost-sh/convexup/internal/core/topology"
	"github.com/selfhost-sh/convexup/internal/shell/docker"
	"github.com/selfhost-sh/convexup/internal/shell/probe"
	"github.com/selfhost-sh/convexup/internal/shell/store"
)

// =============================================================================
// Service Errors
// =============================================================================

var (
	// ErrServiceExited is returned when a service exits with a non-zero
	// code while a dependent is waiting on it.
	ErrServiceExited = errors.New("service exited with non-zero code")

	// ErrRunAborted is returned when the context is cancelled mid-run.
	ErrRunAborted = errors.New("run aborted")
)

// =============================================================================
// Runtime Boundary
// =============================================================================

// Runtime is the container-runtime surface the orchestrator needs. The
// Docker client satisfies it; tests substitute a fake.
type Runtime interface {
	EnsureVolume(ctx context.Context, name string) error
	StartService(ctx context.Context, svc topology.ResolvedService) error
	InspectService(ctx context.Context, service string) (docker.ServiceState, error)
	StopService(ctx context.Context, service string) error
	RemoveService(ctx context.Context, service string) error
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator starts the services of a topology in dependency order,
// holding each dependent behind the readiness gates of its dependencies.
type Orchestrator struct {
	runtime Runtime
	prober  probe.Prober
	store   store.Store
	logger  *slog.Logger

	// now and after are swappable for tests.
	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

// New creates an orchestrator. store records run events and may not be nil.
func New(runtime Runtime, prober probe.Prober, s store.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		runtime: runtime,
		prober:  prober,
		store:   s,
		logger:  logger.With("component", "orchestrator"),
		now:     time.Now,
		after:   time.After,
	}
}

// =============================================================================
// Up
// =============================================================================

// Up validates the topology and starts every service in dependency order.
// Before a service starts, each of its dependency conditions must be
// satisfied: started releases as soon as the dependency is running, healthy
// waits for a probe success within the dependency's grace period, and
// completed waits for a zero exit.
//
// A dependency that never becomes healthy within its grace period fails the
// run with a HealthGateTimeoutError; services past their gates stay running.
// Up returns the run ID for event lookup even when the run fails.
func (o *Orchestrator) Up(ctx context.Context, topo topology.Topology, env topology.Environment) (string, error) {
	runID := uuid.NewString()

	if err := topo.Validate(); err != nil {
		return runID, fmt.Errorf("invalid topology: %w", err)
	}

	o.recordEvent(ctx, runID, "", store.EventRunStarted, "run started")

	gates := make(map[string]*topology.Gate, len(topo.Services))
	for _, svc := range topo.Services {
		gates[svc.Name] = topology.NewGate(svc.Probe)
	}

	for _, svc := range topo.StartOrder() {
		for _, dep := range svc.DependsOn {
			depSpec, _ := topo.Service(dep.Service)
			if err := o.awaitDependency(ctx, runID, depSpec, dep.Condition, gates[dep.Service]); err != nil {
				o.recordEvent(ctx, runID, svc.Name, store.EventRunFailed, err.Error())
				return runID, err
			}
		}

		for _, m := range svc.Mounts {
			if err := o.runtime.EnsureVolume(ctx, m.Volume); err != nil {
				o.recordEvent(ctx, runID, svc.Name, store.EventRunFailed, err.Error())
				return runID, fmt.Errorf("ensure volume %s for %s: %w", m.Volume, svc.Name, err)
			}
		}

		resolved := topology.ResolveService(svc, env)
		if err := o.runtime.StartService(ctx, resolved); err != nil {
			o.recordEvent(ctx, runID, svc.Name, store.EventRunFailed, err.Error())
			return runID, fmt.Errorf("start %s: %w", svc.Name, err)
		}

		gates[svc.Name].Started(o.now())
		o.recordEvent(ctx, runID, svc.Name, store.EventServiceStarting, "service started")
		o.logger.Info("service started", "service", svc.Name, "run_id", runID)
	}

	o.recordEvent(ctx, runID, "", store.EventRunCompleted, "run completed")
	return runID, nil
}

// awaitDependency blocks until the dependency's condition is satisfied or
// the gate gives up. The probe loop fires immediately and then at the
// probe's interval; a success observed exactly at the grace deadline still
// releases the gate.
func (o *Orchestrator) awaitDependency(ctx context.Context, runID string, dep topology.ServiceSpec, cond topology.DependencyCondition, gate *topology.Gate) error {
	if cond.SatisfiedBy(gate.State()) {
		return nil
	}

	if cond == topology.ConditionCompleted {
		return o.awaitExit(ctx, dep, gate)
	}

	// service_started is satisfied the moment the dependency's gate left
	// pending, which start order guarantees. Anything left to wait on is
	// a health gate.
	for {
		err := o.prober.Probe(ctx, dep.Name)
		state := gate.Observe(topology.ProbeResult{Healthy: err == nil, At: o.now()})

		if cond.SatisfiedBy(state) {
			o.recordEvent(ctx, runID, dep.Name, store.EventServiceHealthy, "service healthy")
			o.logger.Info("service healthy", "service", dep.Name, "run_id", runID)
			return nil
		}
		if state == topology.StateUnhealthy {
			o.recordEvent(ctx, runID, dep.Name, store.EventGateTimeout, "health gate timed out")
			return &topology.HealthGateTimeoutError{
				Service:     dep.Name,
				StartPeriod: dep.Probe.StartPeriod,
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w: %w", dep.Name, ErrRunAborted, ctx.Err())
		case <-o.after(dep.Probe.Interval):
		}
	}
}

// awaitExit polls the runtime until the dependency stops. A zero exit
// completes the gate; anything else fails the run.
func (o *Orchestrator) awaitExit(ctx context.Context, dep topology.ServiceSpec, gate *topology.Gate) error {
	interval := time.Second
	if dep.Probe != nil && dep.Probe.Interval > 0 {
		interval = dep.Probe.Interval
	}

	for {
		state, err := o.runtime.InspectService(ctx, dep.Name)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", dep.Name, err)
		}
		if !state.Running {
			if state.ExitCode != 0 {
				return fmt.Errorf("%w: %s exited with code %d", ErrServiceExited, dep.Name, state.ExitCode)
			}
			gate.Completed()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w: %w", dep.Name, ErrRunAborted, ctx.Err())
		case <-o.after(interval):
		}
	}
}

// =============================================================================
// Down
// =============================================================================

// Down stops and removes every service in reverse start order. Named
// volumes are left in place so data survives the teardown.
func (o *Orchestrator) Down(ctx context.Context, topo topology.Topology) error {
	order := topo.StartOrder()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		svc := order[i]
		if err := o.runtime.StopService(ctx, svc.Name); err != nil {
			o.logger.Warn("stop failed", "service", svc.Name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("stop %s: %w", svc.Name, err)
			}
			continue
		}
		if err := o.runtime.RemoveService(ctx, svc.Name); err != nil {
			o.logger.Warn("remove failed", "service", svc.Name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", svc.Name, err)
			}
			continue
		}
		o.logger.Info("service removed", "service", svc.Name)
	}

	return firstErr
}

// =============================================================================
// Status
// =============================================================================

// ServiceStatus is the observed runtime state of one declared service.
type ServiceStatus struct {
	Name     string `json:"name"`
	Running  bool   `json:"running"`
	Health   string `json:"health,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// Status inspects every declared service. Services without a container are
// reported as not running rather than as an error.
func (o *Orchestrator) Status(ctx context.Context, topo topology.Topology) ([]ServiceStatus, error) {
	statuses := make([]ServiceStatus, 0, len(topo.Services))
	for _, svc := range topo.Services {
		state, err := o.runtime.InspectService(ctx, svc.Name)
		if err != nil {
			if errors.Is(err, docker.ErrContainerNotFound) {
				statuses = append(statuses, ServiceStatus{Name: svc.Name})
				continue
			}
			return nil, fmt.Errorf("inspect %s: %w", svc.Name, err)
		}
		statuses = append(statuses, ServiceStatus{
			Name:     svc.Name,
			Running:  state.Running,
			Health:   state.Health,
			ExitCode: state.ExitCode,
		})
	}
	return statuses, nil
}

// =============================================================================
// Event Recording
// =============================================================================

// recordEvent appends one run event. Event persistence is best-effort and
// never fails the run.
func (o *Orchestrator) recordEvent(ctx context.Context, runID, service, eventType, message string) {
	if o.store == nil {
		return
	}
	err := o.store.RecordEvent(ctx, &store.Event{
		RunID:   runID,
		Service: service,
		Type:    eventType,
		Message: message,
	})
	if err != nil {
		o.logger.Warn("failed to record event", "type", eventType, "service", service, "error", err)
	}
}
