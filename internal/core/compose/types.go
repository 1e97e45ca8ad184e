package compose

// =============================================================================
// Compose Document Types
// =============================================================================

// File is the declarative topology document consumed by the external
// container orchestrator. Maps marshal with sorted keys, keeping rendered
// output deterministic.
type File struct {
	Services map[string]Service `yaml:"services"`
	Volumes  map[string]Volume  `yaml:"volumes,omitempty"`
}

// Service is one service entry of the document.
type Service struct {
	Image       string               `yaml:"image,omitempty"`
	Build       *Build               `yaml:"build,omitempty"`
	Ports       []string             `yaml:"ports,omitempty"`
	Volumes     []string             `yaml:"volumes,omitempty"`
	Environment []string             `yaml:"environment,omitempty"`
	Healthcheck *Healthcheck         `yaml:"healthcheck,omitempty"`
	DependsOn   map[string]DependsOn `yaml:"depends_on,omitempty"`
}

// Build is a build-context source for a service image.
type Build struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile,omitempty"`
}

// Healthcheck mirrors the compose healthcheck block.
type Healthcheck struct {
	Test        []string `yaml:"test"`
	Interval    string   `yaml:"interval,omitempty"`
	StartPeriod string   `yaml:"start_period,omitempty"`
}

// DependsOn is the long-form dependency declaration carrying a readiness
// condition.
type DependsOn struct {
	Condition string `yaml:"condition"`
}

// Volume is a named volume entry. The empty struct renders as an empty
// mapping, leaving creation to the orchestrator's defaults.
type Volume struct{}
