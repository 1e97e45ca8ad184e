// Package docker is the local container runtime the orchestrator delegates
// execution to.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/selfhost-sh/convexup/internal/core/topology"
)

// Labels applied to every managed resource, so down can find what up made.
const (
	LabelManaged = "sh.selfhost.convexup.managed"
	LabelService = "sh.selfhost.convexup.service"
)

// namePrefix prefixes container names of managed services.
const namePrefix = "convexup"

// =============================================================================
// Client
// =============================================================================

// Client runs resolved services on the local Docker daemon.
type Client struct {
	cli    *client.Client
	logger *slog.Logger
}

// NewClient creates a Docker client. An empty host uses the environment's
// default daemon address.
func NewClient(host string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewDockerError("NewClient", "", "", "failed to create client", ErrConnectionFailed)
	}

	if _, err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		return nil, NewDockerError("NewClient", "", "", "failed to ping daemon", ErrConnectionFailed)
	}

	return &Client{cli: cli, logger: logger.With("component", "docker")}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.cli.Close()
}

// ContainerName returns the managed container name of a service.
func ContainerName(service string) string {
	return fmt.Sprintf("%s_%s", namePrefix, service)
}

// =============================================================================
// Volumes
// =============================================================================

// EnsureVolume creates a named volume if it does not already exist.
// Volume creation is idempotent on the daemon side; repeated calls return
// the existing volume untouched, which is what gives volumes their
// outlives-the-service lifecycle.
func (c *Client) EnsureVolume(ctx context.Context, name string) error {
	_, err := c.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Driver: "local",
		Labels: map[string]string{LabelManaged: "true"},
	})
	if err != nil {
		return NewDockerError("EnsureVolume", "volume", name, err.Error(), err)
	}
	c.logger.Debug("volume ensured", "volume", name)
	return nil
}

// =============================================================================
// Services
// =============================================================================

// StartService pulls the service image, creates the container, and starts
// it. A leftover container with the same name is removed first so a
// repeated up converges on the declared state.
func (c *Client) StartService(ctx context.Context, svc topology.ResolvedService) error {
	name := ContainerName(svc.Name)

	if svc.Image != "" {
		if err := c.pullImage(ctx, svc.Image); err != nil {
			return err
		}
	}

	// Remove a stale container from a previous run, if any.
	if err := c.RemoveService(ctx, svc.Name); err != nil {
		return err
	}

	config := &container.Config{
		Image: svc.Image,
		Labels: map[string]string{
			LabelManaged: "true",
			LabelService: svc.Name,
		},
	}
	for k, v := range svc.Env {
		config.Env = append(config.Env, fmt.Sprintf("%s=%s", k, v))
	}

	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	if len(svc.Ports) > 0 {
		portBindings := nat.PortMap{}
		exposedPorts := nat.PortSet{}
		for _, p := range svc.Ports {
			containerPort := nat.Port(fmt.Sprintf("%d/tcp", p.Container))
			exposedPorts[containerPort] = struct{}{}
			portBindings[containerPort] = []nat.PortBinding{
				{HostPort: fmt.Sprintf("%d", p.Host)},
			}
		}
		config.ExposedPorts = exposedPorts
		hostConfig.PortBindings = portBindings
	}

	for _, m := range svc.Mounts {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: m.Volume,
			Target: m.Path,
		})
	}

	if svc.Probe != nil {
		config.Healthcheck = &container.HealthConfig{
			Test:        svc.Probe.Test,
			Interval:    svc.Probe.Interval,
			StartPeriod: svc.Probe.StartPeriod,
		}
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		if strings.Contains(err.Error(), "Conflict") {
			return NewDockerError("StartService", "container", name, "container already exists", ErrContainerAlreadyExists)
		}
		if strings.Contains(err.Error(), "port is already allocated") {
			return NewDockerError("StartService", "container", name, err.Error(), ErrPortAlreadyAllocated)
		}
		return NewDockerError("StartService", "container", name, err.Error(), err)
	}

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return NewDockerError("StartService", "container", name, err.Error(), err)
	}

	c.logger.Info("service started", "service", svc.Name, "container", name, "image", svc.Image)
	return nil
}

// ServiceState describes the runtime state of a managed service container.
type ServiceState struct {
	Running  bool
	ExitCode int
	Health   string // daemon-side health status, empty without a healthcheck
}

// InspectService returns the state of a service's container.
func (c *Client) InspectService(ctx context.Context, service string) (ServiceState, error) {
	name := ContainerName(service)

	resp, err := c.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return ServiceState{}, NewDockerError("InspectService", "container", name, "container not found", ErrContainerNotFound)
		}
		return ServiceState{}, NewDockerError("InspectService", "container", name, err.Error(), err)
	}

	state := ServiceState{
		Running:  resp.State.Running,
		ExitCode: resp.State.ExitCode,
	}
	if resp.State.Health != nil {
		state.Health = resp.State.Health.Status
	}
	return state, nil
}

// StopService stops a service's container. A missing container is not an
// error; down converges on "nothing running".
func (c *Client) StopService(ctx context.Context, service string) error {
	name := ContainerName(service)

	if err := c.cli.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return NewDockerError("StopService", "container", name, err.Error(), err)
	}
	c.logger.Info("service stopped", "service", service)
	return nil
}

// RemoveService removes a service's container. Named volumes are never
// removed; their contents must survive container teardown.
func (c *Client) RemoveService(ctx context.Context, service string) error {
	name := ContainerName(service)

	err := c.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return NewDockerError("RemoveService", "container", name, err.Error(), err)
	}
	return nil
}

// pullImage pulls an image, draining the progress stream.
func (c *Client) pullImage(ctx context.Context, ref string) error {
	reader, err := c.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return NewDockerError("PullImage", "image", ref, err.Error(), ErrImagePullFailed)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return NewDockerError("PullImage", "image", ref, err.Error(), ErrImagePullFailed)
	}
	c.logger.Debug("image pulled", "image", ref)
	return nil
}
