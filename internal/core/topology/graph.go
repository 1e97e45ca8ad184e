package topology

import "fmt"

// =============================================================================
// Topology Validation
// =============================================================================

// Validate checks that the topology can be scheduled: every service has
// exactly one build source, every mount and dependency edge references a
// declared entity, health conditions point at probed services, and the
// dependency graph is a DAG. A validation failure is fatal; nothing may be
// started from an invalid topology.
func (t Topology) Validate() error {
	services := make(map[string]ServiceSpec, len(t.Services))
	for _, svc := range t.Services {
		if _, exists := services[svc.Name]; exists {
			return NewTopologyError("services."+svc.Name, "declared more than once", ErrDuplicateService)
		}
		services[svc.Name] = svc
	}

	volumes := make(map[string]bool, len(t.Volumes))
	for _, vol := range t.Volumes {
		volumes[vol.Name] = true
	}

	for _, svc := range t.Services {
		hasImage := !svc.Image.IsZero()
		hasBuild := svc.Build != nil
		if !hasImage && !hasBuild {
			return NewTopologyError("services."+svc.Name, "service must have image or build source", ErrMissingBuildSource)
		}
		if hasImage && hasBuild {
			return NewTopologyError("services."+svc.Name, "image and build source are mutually exclusive", ErrConflictingBuildSource)
		}

		for i, m := range svc.Mounts {
			if !volumes[m.Volume] {
				return NewTopologyError(
					fmt.Sprintf("services.%s.volumes[%d]", svc.Name, i),
					"unknown volume "+m.Volume,
					ErrUnknownVolume,
				)
			}
		}

		for i, dep := range svc.DependsOn {
			target, ok := services[dep.Service]
			if !ok {
				return NewTopologyError(
					fmt.Sprintf("services.%s.depends_on[%d]", svc.Name, i),
					"unknown service "+dep.Service,
					ErrUnknownDependency,
				)
			}
			if dep.Condition == ConditionHealthy && target.Probe == nil {
				return NewTopologyError(
					fmt.Sprintf("services.%s.depends_on[%d]", svc.Name, i),
					dep.Service+" declares no health probe",
					ErrMissingProbe,
				)
			}
		}
	}

	return t.validateGraph()
}

// validateGraph checks that dependency edges form a DAG using a DFS with a
// recursion stack, reporting the offending path on failure.
func (t Topology) validateGraph() error {
	deps := make(map[string][]string, len(t.Services))
	for _, svc := range t.Services {
		for _, dep := range svc.DependsOn {
			deps[svc.Name] = append(deps[svc.Name], dep.Service)
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(t.Services))

	var visit func(name string, path []string) *CycleError
	visit = func(name string, path []string) *CycleError {
		state[name] = visiting
		path = append(path, name)

		for _, dep := range deps[name] {
			switch state[dep] {
			case visiting:
				// Trim the path down to the cycle itself.
				for i, n := range path {
					if n == dep {
						return &CycleError{Path: append([]string(nil), path[i:]...)}
					}
				}
				return &CycleError{Path: []string{dep}}
			case unvisited:
				if err := visit(dep, path); err != nil {
					return err
				}
			}
		}

		state[name] = done
		return nil
	}

	for _, svc := range t.Services {
		if state[svc.Name] == unvisited {
			if err := visit(svc.Name, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// Start Ordering
// =============================================================================

// StartOrder sorts services by their dependencies using Kahn's algorithm,
// so that every service appears after everything it depends on. Ties are
// broken by declaration order, making the result deterministic. The
// topology must already have passed Validate; on a cyclic graph the
// remaining services are appended in declaration order as a fallback.
func (t Topology) StartOrder() []ServiceSpec {
	if len(t.Services) == 0 {
		return nil
	}

	inDegree := make(map[string]int, len(t.Services))
	dependents := make(map[string][]string)
	for _, svc := range t.Services {
		inDegree[svc.Name] = len(svc.DependsOn)
		for _, dep := range svc.DependsOn {
			dependents[dep.Service] = append(dependents[dep.Service], svc.Name)
		}
	}

	var queue []string
	for _, svc := range t.Services {
		if inDegree[svc.Name] == 0 {
			queue = append(queue, svc.Name)
		}
	}

	placed := make(map[string]bool, len(t.Services))
	var order []ServiceSpec
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		if svc, ok := t.Service(name); ok && !placed[name] {
			order = append(order, svc)
			placed[name] = true
		}

		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Cycle fallback; Validate rejects this case up front.
	if len(order) < len(t.Services) {
		for _, svc := range t.Services {
			if !placed[svc.Name] {
				order = append(order, svc)
			}
		}
	}

	return order
}
