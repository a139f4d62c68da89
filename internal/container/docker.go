package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"abwart/internal/domain"
)

// DockerEngine implements Engine against the Docker SDK client, which also
// speaks the Docker-compatible subset of the Podman API over its own
// socket (spec.md §6).
type DockerEngine struct {
	client *client.Client
}

// NewDockerEngine connects to a container engine socket. When socketPath is
// empty, the Docker SDK's own environment-based resolution
// (DOCKER_HOST, or the platform default) is used.
func NewDockerEngine(socketPath string) (*DockerEngine, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if socketPath != "" {
		opts = append(opts, client.WithHost(socketPath))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create container engine client: %w", err)
	}

	return &DockerEngine{client: cli}, nil
}

func (e *DockerEngine) ListContainers(ctx context.Context) ([]domain.Container, error) {
	list, err := e.client.ContainerList(ctx, container.ListOptions{All: false})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	out := make([]domain.Container, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, domain.Container{
			ID:          c.ID,
			Name:        name,
			Image:       c.Image,
			Labels:      c.Labels,
			Networks:    summaryNetworkAddresses(c.NetworkSettings),
			ExposedPort: summaryExposedPort(c.Ports),
		})
	}
	return out, nil
}

// summaryExposedPort returns the container's single exposed TCP port, or 0
// when it exposes none or more than one (spec.md §4.3's port-derivation
// fallback is only safe when unambiguous).
func summaryExposedPort(ports []container.Port) int {
	var found nat.Port
	count := 0
	for _, p := range ports {
		if p.Type != "tcp" {
			continue
		}
		port, err := nat.NewPort("tcp", fmt.Sprintf("%d", p.PrivatePort))
		if err != nil {
			continue
		}
		found = port
		count++
	}
	if count != 1 {
		return 0
	}
	return found.Int()
}

func (e *DockerEngine) InspectContainer(ctx context.Context, containerID string) (domain.Container, error) {
	resp, err := e.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return domain.Container{}, fmt.Errorf("failed to inspect container %s: %w", containerID, err)
	}

	networks := make(map[string]string)
	if resp.NetworkSettings != nil {
		for netName, net := range resp.NetworkSettings.Networks {
			if net != nil {
				networks[netName] = net.IPAddress
			}
		}
	}

	var labels map[string]string
	if resp.Config != nil {
		labels = resp.Config.Labels
	}

	image := ""
	exposedPort := 0
	if resp.Config != nil {
		image = resp.Config.Image
		exposedPort = inspectExposedPort(resp.Config.ExposedPorts)
	}

	return domain.Container{
		ID:          resp.ID,
		Name:        strings.TrimPrefix(resp.Name, "/"),
		Image:       image,
		Labels:      labels,
		Networks:    networks,
		ExposedPort: exposedPort,
	}, nil
}

func inspectExposedPort(ports nat.PortSet) int {
	var found nat.Port
	count := 0
	for p := range ports {
		if p.Proto() != "tcp" {
			continue
		}
		found = p
		count++
	}
	if count != 1 {
		return 0
	}
	return found.Int()
}

func summaryNetworkAddresses(settings *container.NetworkSettingsSummary) map[string]string {
	out := make(map[string]string)
	if settings == nil {
		return out
	}
	for name, net := range settings.Networks {
		if net != nil {
			out[name] = net.IPAddress
		}
	}
	return out
}

// Exec runs cmd inside containerID synchronously and returns an error if
// the command's own exit code is non-zero (spec.md §4.3's GC trigger).
func (e *DockerEngine) Exec(ctx context.Context, containerID string, cmd []string) error {
	created, err := e.client.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create exec in container %s: %w", containerID, err)
	}

	attach, err := e.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return fmt.Errorf("failed to attach exec in container %s: %w", containerID, err)
	}
	defer attach.Close()

	var output bytes.Buffer
	if _, err := io.Copy(&output, attach.Reader); err != nil {
		return fmt.Errorf("failed to read exec output from container %s: %w", containerID, err)
	}

	inspect, err := e.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return fmt.Errorf("failed to inspect exec in container %s: %w", containerID, err)
	}
	if inspect.ExitCode != 0 {
		return fmt.Errorf("exec in container %s exited %d: %s", containerID, inspect.ExitCode, output.String())
	}

	return nil
}
