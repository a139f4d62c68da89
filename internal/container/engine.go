// Package container adapts a container engine socket (Docker or a
// Docker-API-compatible Podman endpoint) into the small surface abwart's
// discovery and GC triggering need: listing, inspecting, an event stream,
// and exec. Generalized from the teacher's own pluggable runtime
// abstraction (internal/container/{docker,factory}.go), trimmed to what a
// housekeeper needs rather than a deployment manager.
package container

import (
	"context"

	"abwart/internal/domain"
)

// Engine is the contract abwart's reconciler and registry client adapter
// consume. One Engine instance serves the whole process; it is not
// per-instance state.
type Engine interface {
	// ListContainers returns every running container, used for the
	// startup full-scan (spec.md §4.6).
	ListContainers(ctx context.Context) ([]domain.Container, error)

	// InspectContainer returns one container's current labels and
	// network addresses.
	InspectContainer(ctx context.Context, containerID string) (domain.Container, error)

	// Events streams container lifecycle events until ctx is cancelled.
	// The event channel is closed when the stream ends; each stream drop is
	// reported on the error channel (best-effort, buffered by one) while
	// the adapter keeps reconnecting.
	Events(ctx context.Context) (<-chan domain.ContainerEvent, <-chan error)

	// Exec runs cmd inside containerID and waits for it to complete,
	// returning an error if the command's exit code is non-zero or the
	// exec call itself fails.
	Exec(ctx context.Context, containerID string, cmd []string) error
}
