package container

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/rs/zerolog/log"
)

// EngineSocketEnv overrides auto-detection when set (spec.md §6).
const EngineSocketEnv = "CONTAINER_HOST"

// pingTimeout bounds each candidate socket's connectivity probe during
// auto-detection.
const pingTimeout = 3 * time.Second

// NewEngine auto-detects a reachable container-engine socket (Docker or
// Podman's Docker-API-compatible socket) and returns an Engine bound to it.
// A Podman socket needs no separate code path: the Docker SDK client
// speaks the shared subset of the API both servers implement, generalizing
// the teacher's RuntimeDocker/RuntimePodman split into a single adapter.
func NewEngine() (*DockerEngine, error) {
	if explicit := os.Getenv(EngineSocketEnv); explicit != "" {
		return dialEngine(explicit)
	}

	var lastErr error
	for _, candidate := range defaultSocketPaths() {
		engine, err := dialEngine(candidate)
		if err == nil {
			log.Info().Str("socket", candidate).Msg("connected to container engine socket")
			return engine, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("no reachable container engine socket found: %w", lastErr)
}

func dialEngine(socketPath string) (*DockerEngine, error) {
	engine, err := NewDockerEngine(socketPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if _, err := engine.client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping %s failed: %w", socketPath, err)
	}

	return engine, nil
}

func defaultSocketPaths() []string {
	paths := []string{
		"unix:///var/run/docker.sock",
		"unix:///run/podman/podman.sock",
	}
	if rootless := rootlessPodmanSocket(); rootless != "" {
		paths = append(paths, rootless)
	}
	return paths
}

func rootlessPodmanSocket() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return fmt.Sprintf("unix://%s/podman/podman.sock", dir)
	}
	if u, err := user.Current(); err == nil {
		return fmt.Sprintf("unix:///run/user/%s/podman/podman.sock", u.Uid)
	}
	return ""
}
