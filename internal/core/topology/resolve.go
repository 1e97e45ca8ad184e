package topology

import (
	"strconv"
	"strings"
)

// =============================================================================
// Environment Snapshot
// =============================================================================

// Environment is an immutable snapshot of external configuration values.
// Resolution reads only from the snapshot, so it is safe to resolve
// multiple services concurrently against the same Environment.
type Environment struct {
	values map[string]string
}

// NewEnvironment builds a snapshot from a key/value map. The map is copied.
func NewEnvironment(values map[string]string) Environment {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Environment{values: copied}
}

// EnvironmentFromPairs builds a snapshot from "KEY=VALUE" pairs, as
// returned by os.Environ. Later pairs win.
func EnvironmentFromPairs(pairs []string) Environment {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		if key, value, ok := strings.Cut(pair, "="); ok {
			values[key] = value
		}
	}
	return Environment{values: values}
}

// Lookup returns the value for name and whether it is present.
func (e Environment) Lookup(name string) (string, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Values returns a copy of the snapshot's contents.
func (e Environment) Values() map[string]string {
	copied := make(map[string]string, len(e.values))
	for k, v := range e.values {
		copied[k] = v
	}
	return copied
}

// Resolve substitutes a binding's value expression against the snapshot.
// Absence of the referenced variable is not an error; the binding degrades
// to its default, which may be empty.
func (e Environment) Resolve(b Binding) string {
	if b.Var != "" {
		if v, ok := e.values[b.Var]; ok && v != "" {
			return v
		}
	}
	return b.Default
}

// =============================================================================
// Value Bindings
// =============================================================================

// Binding is a value expression of the form ${VAR:-default}: an optional
// external variable reference with a literal fallback. The zero Binding
// resolves to the empty string.
type Binding struct {
	// Var names the external variable consulted first. Empty means the
	// binding is the literal Default alone.
	Var string

	// Default is used when Var is empty, unset, or resolves to "".
	Default string
}

// Lit builds a binding for a fixed literal value.
func Lit(value string) Binding {
	return Binding{Default: value}
}

// Ref builds a binding for an external variable with an empty-string default.
func Ref(name string) Binding {
	return Binding{Var: name}
}

// RefDefault builds a binding for an external variable with a literal default.
func RefDefault(name, def string) Binding {
	return Binding{Var: name, Default: def}
}

// IsZero reports whether the binding is entirely unset.
func (b Binding) IsZero() bool {
	return b.Var == "" && b.Default == ""
}

// Expr renders the binding in shell-parameter form for the declarative
// topology document: "${VAR:-default}", or the bare literal when no
// variable is referenced.
func (b Binding) Expr() string {
	if b.Var == "" {
		return b.Default
	}
	return "${" + b.Var + ":-" + b.Default + "}"
}

// =============================================================================
// Service Resolution
// =============================================================================

// ResolveService substitutes every binding of a ServiceSpec against the
// environment snapshot. It is total: missing external variables degrade to
// defaults or empty strings, and a host-port expression that does not
// parse as a number falls back to the container port.
func ResolveService(spec ServiceSpec, env Environment) ResolvedService {
	resolved := ResolvedService{
		Name:  spec.Name,
		Image: env.Resolve(spec.Image),
		Env:   make(map[string]string, len(spec.Env)),
	}

	if spec.Build != nil {
		build := *spec.Build
		resolved.Build = &build
	}

	for _, p := range spec.Ports {
		resolved.Ports = append(resolved.Ports, ResolvedPort{
			Container: p.Container,
			Host:      resolveHostPort(p, env),
		})
	}

	resolved.Mounts = append(resolved.Mounts, spec.Mounts...)

	for _, ev := range spec.Env {
		resolved.Env[ev.Name] = env.Resolve(ev.Value)
	}

	if spec.Probe != nil {
		probe := *spec.Probe
		probe.Test = append([]string(nil), spec.Probe.Test...)
		resolved.Probe = &probe
	}

	return resolved
}

// resolveHostPort resolves the host side of a port mapping. An unspecified
// or unparsable host expression publishes on the container port.
func resolveHostPort(p PortMapping, env Environment) int {
	if p.Host.IsZero() {
		return p.Container
	}
	value := env.Resolve(p.Host)
	port, err := strconv.Atoi(value)
	if err != nil || port <= 0 || port > 65535 {
		return p.Container
	}
	return port
}
