package topology

import "time"

// =============================================================================
// Topology Types
// =============================================================================

// Topology is the fully declared deployment plan for one instance: the
// services to run, the named volumes they share, and the readiness edges
// between them. A Topology is built once at load time and never mutated.
type Topology struct {
	Services []ServiceSpec
	Volumes  []VolumeSpec
}

// ServiceSpec declares one deployable unit.
type ServiceSpec struct {
	Name string

	// Image and Build are the two build-source forms. Exactly one must be
	// set for a valid service.
	Image Binding
	Build *BuildSource

	Ports     []PortMapping
	Mounts    []VolumeMount
	Env       []EnvVar
	Probe     *HealthProbe
	DependsOn []Dependency
}

// BuildSource is a local build context with an optional build-file path.
type BuildSource struct {
	Context    string
	Dockerfile string
}

// PortMapping exposes one container-internal port. Host is the host-side
// port expression; the zero Binding publishes on the container port.
type PortMapping struct {
	Container int
	Host      Binding
}

// VolumeMount mounts a named volume at a container path.
type VolumeMount struct {
	Volume string
	Path   string
}

// EnvVar binds one environment variable of a service to a value expression.
type EnvVar struct {
	Name  string
	Value Binding
}

// HealthProbe is a periodic readiness check. Test is the in-container
// command in compose form. Failures before StartPeriod elapses are retried
// at Interval; once StartPeriod passes without a success the service is
// considered unhealthy.
type HealthProbe struct {
	Test        []string
	Interval    time.Duration
	StartPeriod time.Duration
}

// DependencyCondition annotates a dependency edge with the state the
// depended-on service must reach before the dependent may start.
type DependencyCondition string

const (
	ConditionStarted   DependencyCondition = "service_started"
	ConditionHealthy   DependencyCondition = "service_healthy"
	ConditionCompleted DependencyCondition = "service_completed_successfully"
)

// Dependency is one edge of the startup graph.
type Dependency struct {
	Service   string
	Condition DependencyCondition
}

// VolumeSpec declares a named persistent volume. Volumes are created once
// and survive the lifecycle of any single service instance.
type VolumeSpec struct {
	Name string
}

// =============================================================================
// Resolved Types
// =============================================================================

// ResolvedService is a ServiceSpec with every binding substituted against
// an environment snapshot. This is the value handed to the runtime.
type ResolvedService struct {
	Name   string
	Image  string
	Build  *BuildSource
	Ports  []ResolvedPort
	Mounts []VolumeMount
	Env    map[string]string
	Probe  *HealthProbe
}

// ResolvedPort is a concrete container-to-host port mapping.
type ResolvedPort struct {
	Container int
	Host      int
}

// Service returns the service with the given name, if declared.
func (t Topology) Service(name string) (ServiceSpec, bool) {
	for _, svc := range t.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceSpec{}, false
}
