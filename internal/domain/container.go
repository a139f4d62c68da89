package domain

// Container is the container-engine view of a discovered registry
// container: its identity, labels (the config-resolution input) and network
// addresses (used to derive the registry's connection target).
type Container struct {
	ID       string
	Name     string
	Image    string
	Labels   map[string]string
	Networks map[string]string // network name -> IP address
	// ExposedPort is the container's single TCP-exposed port, 0 if it
	// exposes none or more than one (ambiguous). Used as a fallback when
	// no "port" key is configured (spec.md §4.3).
	ExposedPort int
}

// InstanceName returns the short instance name (the container name grammar used by
// most engines prefixes a leading "/").
func (c Container) InstanceName() string {
	if len(c.Name) > 0 && c.Name[0] == '/' {
		return c.Name[1:]
	}
	return c.Name
}
