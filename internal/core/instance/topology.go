// Package instance declares the fixed deployment topology of one
// self-hosted Convex instance: the backend service, the dashboard gated on
// its health, and the data volume they share.
package instance

import (
	"time"

	"github.com/selfhost-sh/convexup/internal/core/topology"
)

// =============================================================================
// Instance Constants
// =============================================================================

const (
	BackendService   = "backend"
	DashboardService = "dashboard"

	// DataVolume persists the backend's sqlite database, module storage and
	// search indexes across container restarts.
	DataVolume     = "data"
	DataVolumePath = "/convex/data"

	// BackendAPIPort serves the deployment API; BackendSitePort serves
	// user HTTP actions.
	BackendAPIPort  = 3210
	BackendSitePort = 3211

	DashboardContainerPort = 6791

	DefaultBackendImage   = "ghcr.io/get-convex/convex-backend:latest"
	DefaultDashboardImage = "ghcr.io/get-convex/convex-dashboard:latest"

	// DefaultDeploymentURL is where the backend API is reachable from the
	// host when URL_BASE is not configured; DefaultSiteURL is the HTTP
	// actions counterpart for SITE_URL_BASE.
	DefaultDeploymentURL = "http://127.0.0.1:3210"
	DefaultSiteURL       = "http://127.0.0.1:3211"

	// VersionPath is the backend endpoint whose success marks the instance
	// ready. It is the sole signal gating dashboard startup.
	VersionPath = "/version"
)

// Backend readiness probe cadence.
const (
	probeInterval    = 5 * time.Second
	probeStartPeriod = 10 * time.Second
)

// =============================================================================
// Topology
// =============================================================================

// Topology returns the deployment topology of one instance. The result is
// fully declarative; resolve it against an environment snapshot and hand
// it to the orchestrator.
func Topology() topology.Topology {
	return topology.Topology{
		Services: []topology.ServiceSpec{backendSpec(), dashboardSpec()},
		Volumes:  []topology.VolumeSpec{{Name: DataVolume}},
	}
}

func backendSpec() topology.ServiceSpec {
	return topology.ServiceSpec{
		Name:  BackendService,
		Image: topology.RefDefault("BACKEND_IMAGE", DefaultBackendImage),
		Ports: []topology.PortMapping{
			{Container: BackendAPIPort},
			{Container: BackendSitePort},
		},
		Mounts: []topology.VolumeMount{
			{Volume: DataVolume, Path: DataVolumePath},
		},
		Env: []topology.EnvVar{
			{Name: "INSTANCE_NAME", Value: topology.Ref("INSTANCE_NAME")},
			{Name: "INSTANCE_SECRET", Value: topology.Ref("INSTANCE_SECRET")},
			{Name: "CONVEX_RELEASE_VERSION_DEV", Value: topology.Ref("CONVEX_RELEASE_VERSION_DEV")},
			{Name: "ACTIONS_USER_TIMEOUT_SECS", Value: topology.Ref("ACTIONS_USER_TIMEOUT_SECS")},
			{Name: "CONVEX_CLOUD_ORIGIN", Value: topology.RefDefault("URL_BASE", DefaultDeploymentURL)},
			{Name: "CONVEX_SITE_ORIGIN", Value: topology.RefDefault("SITE_URL_BASE", DefaultSiteURL)},
			{Name: "DATABASE_URL", Value: topology.Ref("DATABASE_URL")},
			{Name: "DISABLE_BEACON", Value: topology.Ref("DISABLE_BEACON")},
			{Name: "REDACT_LOGS_TO_CLIENT", Value: topology.Ref("REDACT_LOGS_TO_CLIENT")},
			{Name: "RUST_LOG", Value: topology.RefDefault("RUST_LOG", "info")},
			{Name: "RUST_BACKTRACE", Value: topology.Ref("RUST_BACKTRACE")},
		},
		Probe: &topology.HealthProbe{
			Test:        []string{"CMD-SHELL", "curl -f http://localhost:3210/version"},
			Interval:    probeInterval,
			StartPeriod: probeStartPeriod,
		},
	}
}

func dashboardSpec() topology.ServiceSpec {
	return topology.ServiceSpec{
		Name:  DashboardService,
		Image: topology.RefDefault("DASHBOARD_IMAGE", DefaultDashboardImage),
		Ports: []topology.PortMapping{
			{
				Container: DashboardContainerPort,
				Host:      topology.RefDefault("DASHBOARD_PORT", "6791"),
			},
		},
		Env: []topology.EnvVar{
			{Name: "NEXT_PUBLIC_DEPLOYMENT_URL", Value: topology.RefDefault("URL_BASE", DefaultDeploymentURL)},
		},
		DependsOn: []topology.Dependency{
			{Service: BackendService, Condition: topology.ConditionHealthy},
		},
	}
}

// BackendProbeURL returns the URL the provisioner polls to decide backend
// readiness: GET /version against URL_BASE. The environment binding for
// URL_BASE still resolves to empty string elsewhere; only the probe target
// applies the local fallback, since the gate needs a concrete address.
func BackendProbeURL(env topology.Environment) string {
	base := env.Resolve(topology.RefDefault("URL_BASE", DefaultDeploymentURL))
	return base + VersionPath
}
