package topology

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probedService(name string, deps ...Dependency) ServiceSpec {
	return ServiceSpec{
		Name:      name,
		Image:     Lit(name + ":latest"),
		Probe:     &HealthProbe{Test: []string{"CMD", "true"}},
		DependsOn: deps,
	}
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestValidate_EmptyTopology(t *testing.T) {
	assert.NoError(t, Topology{}.Validate())
}

func TestValidate_SingleEdge(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{
		probedService("backend"),
		probedService("dashboard", Dependency{Service: "backend", Condition: ConditionHealthy}),
	}}
	assert.NoError(t, topo.Validate())
}

func TestValidate_Diamond(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{
		probedService("db"),
		probedService("api", Dependency{Service: "db", Condition: ConditionHealthy}),
		probedService("cache", Dependency{Service: "db", Condition: ConditionStarted}),
		probedService("web",
			Dependency{Service: "api", Condition: ConditionHealthy},
			Dependency{Service: "cache", Condition: ConditionStarted},
		),
	}}
	assert.NoError(t, topo.Validate())
}

func TestValidate_MissingBuildSource(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{{Name: "ghost"}}}

	err := topo.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingBuildSource)
}

func TestValidate_ConflictingBuildSource(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{{
		Name:  "both",
		Image: Lit("img"),
		Build: &BuildSource{Context: "."},
	}}}

	assert.ErrorIs(t, topo.Validate(), ErrConflictingBuildSource)
}

func TestValidate_UnknownDependency(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{
		probedService("web", Dependency{Service: "missing", Condition: ConditionStarted}),
	}}

	err := topo.Validate()
	assert.ErrorIs(t, err, ErrUnknownDependency)
}

func TestValidate_UnknownVolume(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{{
		Name:   "backend",
		Image:  Lit("img"),
		Mounts: []VolumeMount{{Volume: "data", Path: "/data"}},
	}}}

	assert.ErrorIs(t, topo.Validate(), ErrUnknownVolume)
}

func TestValidate_HealthConditionRequiresProbe(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{
		{Name: "backend", Image: Lit("img")}, // no probe
		probedService("dashboard", Dependency{Service: "backend", Condition: ConditionHealthy}),
	}}

	assert.ErrorIs(t, topo.Validate(), ErrMissingProbe)
}

func TestValidate_DuplicateService(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{
		probedService("backend"),
		probedService("backend"),
	}}

	assert.ErrorIs(t, topo.Validate(), ErrDuplicateService)
}

// =============================================================================
// Cycle Detection Tests
// =============================================================================

func TestValidate_TwoServiceCycle(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{
		probedService("a", Dependency{Service: "b", Condition: ConditionStarted}),
		probedService("b", Dependency{Service: "a", Condition: ConditionStarted}),
	}}

	err := topo.Validate()
	require.Error(t, err)

	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Len(t, cycle.Path, 2)
	assert.Contains(t, cycle.Error(), "dependency cycle")
}

func TestValidate_SelfEdge(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{
		probedService("a", Dependency{Service: "a", Condition: ConditionStarted}),
	}}

	var cycle *CycleError
	require.True(t, errors.As(topo.Validate(), &cycle))
	assert.Equal(t, []string{"a"}, cycle.Path)
}

func TestValidate_LongCycle(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{
		probedService("root"),
		probedService("a", Dependency{Service: "root", Condition: ConditionStarted}, Dependency{Service: "b", Condition: ConditionStarted}),
		probedService("b", Dependency{Service: "c", Condition: ConditionStarted}),
		probedService("c", Dependency{Service: "a", Condition: ConditionStarted}),
	}}

	var cycle *CycleError
	require.True(t, errors.As(topo.Validate(), &cycle))
	assert.Len(t, cycle.Path, 3)
}

// =============================================================================
// StartOrder Tests
// =============================================================================

func TestStartOrder_Empty(t *testing.T) {
	assert.Empty(t, Topology{}.StartOrder())
}

func TestStartOrder_BackendBeforeDashboard(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{
		probedService("dashboard", Dependency{Service: "backend", Condition: ConditionHealthy}),
		probedService("backend"),
	}}

	order := topo.StartOrder()
	require.Len(t, order, 2)
	assert.Equal(t, "backend", order[0].Name)
	assert.Equal(t, "dashboard", order[1].Name)
}

func TestStartOrder_DiamondDeterministic(t *testing.T) {
	topo := Topology{Services: []ServiceSpec{
		probedService("web",
			Dependency{Service: "api", Condition: ConditionStarted},
			Dependency{Service: "cache", Condition: ConditionStarted},
		),
		probedService("api", Dependency{Service: "db", Condition: ConditionStarted}),
		probedService("cache", Dependency{Service: "db", Condition: ConditionStarted}),
		probedService("db"),
	}}

	first := topo.StartOrder()
	require.Len(t, first, 4)
	assert.Equal(t, "db", first[0].Name)
	assert.Equal(t, "web", first[3].Name)

	// Declaration order breaks ties, so repeated runs agree.
	for i := 0; i < 10; i++ {
		again := topo.StartOrder()
		for j := range first {
			assert.Equal(t, first[j].Name, again[j].Name)
		}
	}
}
