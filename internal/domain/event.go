package domain

// ContainerEventKind enumerates the container-engine lifecycle events
// abwart reacts to (spec.md §4.6/§6).
type ContainerEventKind string

const (
	ContainerStart   ContainerEventKind = "start"
	ContainerStop    ContainerEventKind = "stop"
	ContainerDestroy ContainerEventKind = "destroy"
	ContainerUpdate  ContainerEventKind = "update"
)

// ContainerEvent is a translated container-engine event.
type ContainerEvent struct {
	Kind          ContainerEventKind
	ContainerID   string
	ContainerName string
	Labels        map[string]string
	Networks      map[string]string // network name -> IP address
	Image         string
}

// ConfigFileEvent signals the static configuration file changed on disk.
type ConfigFileEvent struct {
	Path string
}
