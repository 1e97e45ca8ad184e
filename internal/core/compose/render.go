// Package compose renders a topology as a docker-compose document and
// validates the result against the compose specification. Pure functions
// only; writing the document is the caller's job.
package compose

import (
	"fmt"
	"time"

	"github.com/selfhost-sh/convexup/internal/core/topology"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Rendering
// =============================================================================

// Render marshals the topology as compose YAML. Environment bindings keep
// their ${VAR:-default} expressions so the document stays overridable by
// the operator's environment at up time.
func Render(t topology.Topology) ([]byte, error) {
	data, err := yaml.Marshal(FromTopology(t))
	if err != nil {
		return nil, fmt.Errorf("render compose document: %w", err)
	}
	return data, nil
}

// FromTopology converts a topology into the compose document model.
func FromTopology(t topology.Topology) *File {
	file := &File{
		Services: make(map[string]Service, len(t.Services)),
	}

	for _, spec := range t.Services {
		file.Services[spec.Name] = fromService(spec)
	}

	if len(t.Volumes) > 0 {
		file.Volumes = make(map[string]Volume, len(t.Volumes))
		for _, vol := range t.Volumes {
			file.Volumes[vol.Name] = Volume{}
		}
	}

	return file
}

func fromService(spec topology.ServiceSpec) Service {
	svc := Service{
		Image: spec.Image.Expr(),
	}

	if spec.Build != nil {
		svc.Build = &Build{
			Context:    spec.Build.Context,
			Dockerfile: spec.Build.Dockerfile,
		}
	}

	for _, p := range spec.Ports {
		svc.Ports = append(svc.Ports, renderPort(p))
	}

	for _, m := range spec.Mounts {
		svc.Volumes = append(svc.Volumes, m.Volume+":"+m.Path)
	}

	for _, ev := range spec.Env {
		svc.Environment = append(svc.Environment, ev.Name+"="+ev.Value.Expr())
	}

	if spec.Probe != nil {
		svc.Healthcheck = &Healthcheck{
			Test:        append([]string(nil), spec.Probe.Test...),
			Interval:    renderDuration(spec.Probe.Interval),
			StartPeriod: renderDuration(spec.Probe.StartPeriod),
		}
	}

	if len(spec.DependsOn) > 0 {
		svc.DependsOn = make(map[string]DependsOn, len(spec.DependsOn))
		for _, dep := range spec.DependsOn {
			svc.DependsOn[dep.Service] = DependsOn{Condition: string(dep.Condition)}
		}
	}

	return svc
}

// renderPort renders a port mapping as "host:container"; the host side
// keeps its variable expression when one is declared.
func renderPort(p topology.PortMapping) string {
	host := p.Host.Expr()
	if p.Host.IsZero() {
		host = fmt.Sprintf("%d", p.Container)
	}
	return fmt.Sprintf("%s:%d", host, p.Container)
}

// renderDuration renders durations the way compose files write them
// ("5s", "1m30s"), dropping zero units Go would include.
func renderDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	if d%time.Second == 0 {
		seconds := int64(d / time.Second)
		if seconds%60 == 0 {
			return fmt.Sprintf("%dm", seconds/60)
		}
		return fmt.Sprintf("%ds", seconds)
	}
	return d.String()
}
