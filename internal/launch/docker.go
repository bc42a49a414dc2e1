package launch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"

	"github.com/rangeops/excon/internal/metrics"
)

// DockerLauncher runs workers as containers on the local docker daemon.
type DockerLauncher struct {
	cli    *client.Client
	logger zerolog.Logger
}

// NewDocker connects to the docker daemon using the standard environment
// (DOCKER_HOST etc.).
func NewDocker(logger zerolog.Logger) (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &DockerLauncher{cli: cli, logger: logger}, nil
}

// Launch creates and starts a container per spec. An existing container with
// the same name is stopped and removed first.
func (d *DockerLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	if err := d.removeIfExists(ctx, spec.Name); err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %v", ErrLaunchConflict, spec.Name, err)
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for containerPort, hostPort := range spec.Ports {
		port := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{
			HostIP:   "0.0.0.0",
			HostPort: strconv.Itoa(hostPort),
		}}
	}

	binds := make([]string, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		bind := m.HostPath + ":" + m.ContainerPath
		if m.ReadOnly {
			bind += ":ro"
		}
		binds = append(binds, bind)
	}

	created, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Env:          env,
			ExposedPorts: exposed,
		},
		&container.HostConfig{
			PortBindings: bindings,
			Binds:        binds,
			NetworkMode:  container.NetworkMode(spec.Network),
		},
		nil, nil, spec.Name)
	if err != nil {
		return Handle{}, fmt.Errorf("create container %s: %w", spec.Name, err)
	}

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		// Remove the half-created container so a retry does not conflict.
		_ = d.cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return Handle{}, fmt.Errorf("start container %s: %w", spec.Name, err)
	}

	metrics.WorkersLaunchedTotal.WithLabelValues(string(spec.Kind)).Inc()
	d.logger.Info().
		Str("name", spec.Name).
		Str("image", spec.Image).
		Str("kind", string(spec.Kind)).
		Msg("worker launched")

	return Handle{ID: created.ID, Name: spec.Name, Kind: spec.Kind, TeamID: spec.TeamID}, nil
}

// Destroy force-removes the worker's container.
func (d *DockerLauncher) Destroy(ctx context.Context, handle Handle) error {
	if err := d.cli.ContainerRemove(ctx, handle.ID, container.RemoveOptions{Force: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove container %s: %w", handle.Name, err)
	}
	d.logger.Info().Str("name", handle.Name).Msg("worker destroyed")
	return nil
}

// Exists reports whether a container with the given name is present.
func (d *DockerLauncher) Exists(ctx context.Context, name string) (bool, error) {
	_, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect container %s: %w", name, err)
	}
	return true, nil
}

func (d *DockerLauncher) removeIfExists(ctx context.Context, name string) error {
	inspected, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return err
	}
	d.logger.Info().Str("name", name).Msg("displacing existing worker")
	return d.cli.ContainerRemove(ctx, inspected.ID, container.RemoveOptions{Force: true})
}

var _ Launcher = (*DockerLauncher)(nil)
