package instance

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/selfhost-sh/convexup/internal/core/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopology_Valid(t *testing.T) {
	assert.NoError(t, Topology().Validate())
}

func TestTopology_DashboardGatedOnBackendHealth(t *testing.T) {
	topo := Topology()

	dashboard, ok := topo.Service(DashboardService)
	require.True(t, ok)
	require.Len(t, dashboard.DependsOn, 1)
	assert.Equal(t, BackendService, dashboard.DependsOn[0].Service)
	assert.Equal(t, topology.ConditionHealthy, dashboard.DependsOn[0].Condition)

	backend, ok := topo.Service(BackendService)
	require.True(t, ok)
	require.NotNil(t, backend.Probe)
	assert.Empty(t, backend.DependsOn)
}

func TestTopology_StartOrder(t *testing.T) {
	order := Topology().StartOrder()
	require.Len(t, order, 2)
	assert.Equal(t, BackendService, order[0].Name)
	assert.Equal(t, DashboardService, order[1].Name)
}

func TestResolve_EmptyEnvironmentDefaults(t *testing.T) {
	env := topology.NewEnvironment(nil)
	topo := Topology()

	backendSpec, _ := topo.Service(BackendService)
	backend := topology.ResolveService(backendSpec, env)

	assert.Equal(t, DefaultBackendImage, backend.Image)
	assert.Equal(t, "info", backend.Env["RUST_LOG"])
	assert.Equal(t, DefaultDeploymentURL, backend.Env["CONVEX_CLOUD_ORIGIN"])
	assert.Equal(t, DefaultSiteURL, backend.Env["CONVEX_SITE_ORIGIN"])
	assert.Equal(t, "", backend.Env["INSTANCE_NAME"])
	assert.Equal(t, "", backend.Env["DATABASE_URL"])
	assert.Equal(t, []topology.VolumeMount{{Volume: DataVolume, Path: DataVolumePath}}, backend.Mounts)

	dashboardSpec, _ := topo.Service(DashboardService)
	dashboard := topology.ResolveService(dashboardSpec, env)

	assert.Equal(t, []topology.ResolvedPort{{Container: 6791, Host: 6791}}, dashboard.Ports)
	assert.Equal(t, DefaultDeploymentURL, dashboard.Env["NEXT_PUBLIC_DEPLOYMENT_URL"])
}

func TestResolve_Overrides(t *testing.T) {
	env := topology.NewEnvironment(map[string]string{
		"DASHBOARD_PORT": "7000",
		"URL_BASE":       "https://convex.example.com",
		"RUST_LOG":       "warn",
		"INSTANCE_NAME":  "my-instance",
	})
	topo := Topology()

	backendSpec, _ := topo.Service(BackendService)
	backend := topology.ResolveService(backendSpec, env)
	assert.Equal(t, "warn", backend.Env["RUST_LOG"])
	assert.Equal(t, "my-instance", backend.Env["INSTANCE_NAME"])
	assert.Equal(t, "https://convex.example.com", backend.Env["CONVEX_CLOUD_ORIGIN"])

	dashboardSpec, _ := topo.Service(DashboardService)
	dashboard := topology.ResolveService(dashboardSpec, env)
	assert.Equal(t, 7000, dashboard.Ports[0].Host)
	assert.Equal(t, "https://convex.example.com", dashboard.Env["NEXT_PUBLIC_DEPLOYMENT_URL"])
}

func TestBackendProbeURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:3210/version", BackendProbeURL(topology.NewEnvironment(nil)))

	env := topology.NewEnvironment(map[string]string{"URL_BASE": "https://convex.example.com"})
	assert.Equal(t, "https://convex.example.com/version", BackendProbeURL(env))
}

func TestNewCredentials(t *testing.T) {
	creds, err := NewCredentials()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(creds.Name, "convex-self-hosted-"))
	assert.Len(t, creds.Secret, 64)
	_, err = hex.DecodeString(creds.Secret)
	assert.NoError(t, err)

	again, err := NewCredentials()
	require.NoError(t, err)
	assert.NotEqual(t, creds.Secret, again.Secret)
	assert.NotEqual(t, creds.Name, again.Name)
}
