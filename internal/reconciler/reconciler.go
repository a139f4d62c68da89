// Package reconciler runs the discovery loop: a single FIFO task that
// reacts to container lifecycle events and static-file changes, diffing
// the desired instance set against the running one (spec.md §4.6).
package reconciler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bnema/zerowrap"

	"abwart/internal/config"
	"abwart/internal/domain"
	"abwart/internal/instance"
	"abwart/internal/registryclient"
)

// effectivePort resolves the port to connect to: an explicitly configured
// port wins, otherwise the container's own unambiguous exposed TCP port,
// otherwise config.DefaultPort (spec.md §4.3).
func effectivePort(cfg domain.RegistryConfig, c domain.Container) int {
	if cfg.Port != 0 {
		return cfg.Port
	}
	if c.ExposedPort != 0 {
		return c.ExposedPort
	}
	return config.DefaultPort
}

// engine is the subset of internal/container.Engine the reconciler and the
// registry clients it builds need.
type engine interface {
	ListContainers(ctx context.Context) ([]domain.Container, error)
	InspectContainer(ctx context.Context, containerID string) (domain.Container, error)
	Events(ctx context.Context) (<-chan domain.ContainerEvent, <-chan error)
	Exec(ctx context.Context, containerID string, cmd []string) error
}

// managedInstance pairs a running Instance with the config it was last
// started or reconfigured with, so a later reconcile can tell whether
// anything actually changed before rebuilding its client (spec.md §7's
// per-instance sticky delete-disable must only reset on real config
// change, not on every reconcile pass).
type managedInstance struct {
	inst *instance.Instance
	cfg  domain.RegistryConfig
}

// Reconciler owns the full set of live Instances and reacts to discovery
// events one at a time, in arrival order (spec.md §5's "FIFO single
// reconciler task").
type Reconciler struct {
	eng        engine
	configPath string
	log        zerowrap.Logger

	mu         sync.Mutex
	containers map[string]domain.Container // instance name -> last known container
	static     config.StaticFile
	instances  map[string]*managedInstance
}

// New builds a Reconciler. configPath selects the static file watched for
// changes (empty uses config.ConfigPath()'s own CONFIG_PATH/default
// resolution).
func New(eng engine, configPath string, log zerowrap.Logger) *Reconciler {
	if configPath == "" {
		configPath = config.ConfigPath()
	}
	return &Reconciler{
		eng:        eng,
		configPath: configPath,
		log:        log,
		containers: make(map[string]domain.Container),
		instances:  make(map[string]*managedInstance),
	}
}

// Run blocks, driving the discovery loop until ctx is done. On startup it
// performs a full container scan, treating each result as a synthetic
// start event, then processes engine events and static-file reloads as
// they arrive (spec.md §4.6).
func (r *Reconciler) Run(ctx context.Context) error {
	static, err := config.LoadStaticFile(r.configPath)
	if err != nil {
		return fmt.Errorf("load static config: %w", err)
	}
	r.mu.Lock()
	r.static = static
	r.mu.Unlock()

	containers, err := r.eng.ListContainers(ctx)
	if err != nil {
		return fmt.Errorf("initial container scan: %w", err)
	}
	for _, c := range containers {
		r.handleContainerSnapshot(ctx, c)
	}

	events, engineErrs := r.eng.Events(ctx)
	fileEvents, err := config.WatchStaticFile(ctx, r.configPath)
	if err != nil {
		return fmt.Errorf("watch static config: %w", err)
	}

	defer r.stopAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.handleContainerEvent(ctx, ev)

		case err, ok := <-engineErrs:
			if !ok {
				engineErrs = nil
				continue
			}
			r.log.Warn().Err(err).Msg("container event stream error")

		case _, ok := <-fileEvents:
			if !ok {
				fileEvents = nil
				continue
			}
			r.handleStaticFileChange(ctx)
		}
	}
}

func (r *Reconciler) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, m := range r.instances {
		m.inst.Stop()
		delete(r.instances, name)
	}
}

// handleContainerEvent translates one engine event into a container
// snapshot update (start/update) or removal (stop/destroy), then
// reconciles that single instance name. Start and update events carry no
// real network/exposed-port data (the engine's event attributes are just
// labels), so both re-inspect the container for a full, accurate snapshot
// rather than trusting the bare event fields.
func (r *Reconciler) handleContainerEvent(ctx context.Context, ev domain.ContainerEvent) {
	switch ev.Kind {
	case domain.ContainerStart, domain.ContainerUpdate:
		c, err := r.eng.InspectContainer(ctx, ev.ContainerID)
		if err != nil {
			r.log.Warn().Err(err).Str("container", ev.ContainerName).Msg("failed to inspect container after event")
			return
		}
		r.handleContainerSnapshot(ctx, c)
	case domain.ContainerStop, domain.ContainerDestroy:
		name := ev.ContainerName
		r.mu.Lock()
		delete(r.containers, name)
		r.mu.Unlock()
		r.reconcileOne(ctx, name)
	}
}

func (r *Reconciler) handleContainerSnapshot(ctx context.Context, c domain.Container) {
	name := c.InstanceName()
	r.mu.Lock()
	r.containers[name] = c
	r.mu.Unlock()
	r.reconcileOne(ctx, name)
}

// handleStaticFileChange reloads the static file and reconciles every
// currently-known container, since a static-only edit can enable, disable,
// or reconfigure any of them (spec.md §4.6 step on file events).
func (r *Reconciler) handleStaticFileChange(ctx context.Context) {
	static, err := config.LoadStaticFile(r.configPath)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to reload static config")
		return
	}

	r.mu.Lock()
	r.static = static
	names := make([]string, 0, len(r.containers))
	for name := range r.containers {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		r.reconcileOne(ctx, name)
	}
}

// reconcileOne resolves name's effective config from its last known
// container plus the current static file, and applies the single-name
// transition from spec.md §4.6 step 2.
func (r *Reconciler) reconcileOne(ctx context.Context, name string) {
	r.mu.Lock()
	c, haveContainer := r.containers[name]
	static := r.static
	inst, running := r.instances[name]
	r.mu.Unlock()

	if !haveContainer {
		if running {
			inst.inst.Stop()
			r.mu.Lock()
			delete(r.instances, name)
			r.mu.Unlock()
			r.log.Info().Str("instance", name).Msg("instance stopped: container gone")
		}
		return
	}

	cfg, warnings := config.ResolveInstance(name, c.Labels, static)
	for _, w := range warnings {
		r.log.Warn().Err(w).Str("instance", name).Msg("configuration parse warning")
	}

	if !cfg.Enabled {
		if running {
			inst.inst.Stop()
			r.mu.Lock()
			delete(r.instances, name)
			r.mu.Unlock()
			r.log.Info().Str("instance", name).Msg("instance stopped: disabled")
		}
		return
	}

	if running && config.Equal(inst.cfg, cfg) {
		return // nothing changed: don't reset the instance's sticky delete-disable
	}

	client, err := r.buildClient(cfg, c)
	if err != nil {
		r.log.Warn().Err(err).Str("instance", name).Msg("cannot derive registry connection target")
		return
	}

	if !running {
		newInst := instance.New(name, r.log)
		if err := newInst.Start(client, cfg); err != nil {
			r.log.Warn().Err(err).Str("instance", name).Msg("failed to start instance")
			return
		}
		r.mu.Lock()
		r.instances[name] = &managedInstance{inst: newInst, cfg: cfg}
		r.mu.Unlock()
		r.log.Info().Str("instance", name).Msg("instance started")
		return
	}

	if err := inst.inst.Reconfigure(client, cfg); err != nil {
		r.log.Warn().Err(err).Str("instance", name).Msg("failed to reconfigure instance")
		return
	}
	r.mu.Lock()
	inst.cfg = cfg
	r.mu.Unlock()
}

func (r *Reconciler) buildClient(cfg domain.RegistryConfig, c domain.Container) (*registryclient.Client, error) {
	baseURL, err := deriveBaseURL(cfg, c)
	if err != nil {
		return nil, err
	}
	return registryclient.New(registryclient.Config{
		BaseURL:     baseURL,
		Auth:        cfg.BasicAuth,
		GC:          r.eng,
		ContainerID: c.ID,
	}), nil
}

// deriveBaseURL resolves the registry's connection target: network + name
// + port when a network is configured, otherwise the container's own
// engine-reported address (spec.md §4.3 "Connection target").
func deriveBaseURL(cfg domain.RegistryConfig, c domain.Container) (string, error) {
	port := effectivePort(cfg, c)

	if cfg.Network != "" {
		return fmt.Sprintf("http://%s:%d", cfg.InstanceName, port), nil
	}

	names := make([]string, 0, len(c.Networks))
	for n := range c.Networks {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if ip := c.Networks[n]; ip != "" {
			return fmt.Sprintf("http://%s:%d", ip, port), nil
		}
	}
	return "", domain.ErrNoNetwork
}
