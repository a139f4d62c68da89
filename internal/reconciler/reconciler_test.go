package reconciler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bnema/zerowrap"

	"abwart/internal/domain"
)

func testLogger() zerowrap.Logger {
	return zerowrap.New(zerowrap.Config{Level: "error"})
}

type fakeEngine struct {
	mu         sync.Mutex
	containers []domain.Container
	events     chan domain.ContainerEvent
	errs       chan error
	execCalls  int
}

func newFakeEngine(containers ...domain.Container) *fakeEngine {
	return &fakeEngine{
		containers: containers,
		events:     make(chan domain.ContainerEvent, 8),
		errs:       make(chan error, 1),
	}
}

func (f *fakeEngine) ListContainers(ctx context.Context) ([]domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Container, len(f.containers))
	copy(out, f.containers)
	return out, nil
}

func (f *fakeEngine) InspectContainer(ctx context.Context, containerID string) (domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.containers {
		if c.ID == containerID {
			return c, nil
		}
	}
	return domain.Container{}, fmt.Errorf("container %s not found", containerID)
}

// setContainer replaces (or adds) the container engine's view of one
// container, for tests that simulate a label/network change landing before
// the corresponding event fires.
func (f *fakeEngine) setContainer(c domain.Container) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.containers {
		if existing.ID == c.ID {
			f.containers[i] = c
			return
		}
	}
	f.containers = append(f.containers, c)
}

func (f *fakeEngine) Events(ctx context.Context) (<-chan domain.ContainerEvent, <-chan error) {
	return f.events, f.errs
}

func (f *fakeEngine) Exec(ctx context.Context, containerID string, cmd []string) error {
	f.mu.Lock()
	f.execCalls++
	f.mu.Unlock()
	return nil
}

func enabledContainer(name string) domain.Container {
	return domain.Container{
		ID:   "c-" + name,
		Name: name,
		Labels: map[string]string{
			"abwart.enable":            "true",
			"abwart.default.revisions": "3",
		},
		Networks: map[string]string{"bridge": "10.0.0.5"},
	}
}

func runReconciler(t *testing.T, eng engine) (*Reconciler, context.CancelFunc) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte("registries: {}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	r := New(eng, path, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRun_StartupScanStartsEnabledInstance(t *testing.T) {
	eng := newFakeEngine(enabledContainer("myregistry"))
	r, _ := runReconciler(t, eng)

	waitFor(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.instances["myregistry"]
		return ok
	})
}

func TestRun_DisabledContainerNeverStarted(t *testing.T) {
	c := enabledContainer("myregistry")
	c.Labels = map[string]string{"abwart.enable": "false"}
	eng := newFakeEngine(c)
	r, _ := runReconciler(t, eng)

	time.Sleep(100 * time.Millisecond)
	r.mu.Lock()
	_, ok := r.instances["myregistry"]
	r.mu.Unlock()
	if ok {
		t.Fatal("expected disabled container to never start an instance")
	}
}

func TestRun_StopEventStopsInstance(t *testing.T) {
	eng := newFakeEngine(enabledContainer("myregistry"))
	r, _ := runReconciler(t, eng)

	waitFor(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.instances["myregistry"]
		return ok
	})

	eng.events <- domain.ContainerEvent{Kind: domain.ContainerStop, ContainerID: "c-myregistry", ContainerName: "myregistry"}

	waitFor(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.instances["myregistry"]
		return !ok
	})
}

func TestRun_UpdateEventReconfigures(t *testing.T) {
	eng := newFakeEngine(enabledContainer("myregistry"))
	r, _ := runReconciler(t, eng)

	waitFor(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.instances["myregistry"]
		return ok
	})

	updated := enabledContainer("myregistry")
	updated.Labels["abwart.default.revisions"] = "7"
	eng.setContainer(updated)

	eng.events <- domain.ContainerEvent{
		Kind:          domain.ContainerUpdate,
		ContainerID:   "c-myregistry",
		ContainerName: "myregistry",
	}

	waitFor(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		c := r.containers["myregistry"]
		m, ok := r.instances["myregistry"]
		return c.Labels["abwart.default.revisions"] == "7" &&
			ok && m.cfg.Defaults.Policies[domain.PolicyRevisions].Param.Raw == "7"
	})
}

func TestDeriveBaseURL_NetworkSet(t *testing.T) {
	cfg := domain.RegistryConfig{InstanceName: "reg", Network: "backend", Port: 5000}
	url, err := deriveBaseURL(cfg, domain.Container{})
	if err != nil {
		t.Fatalf("deriveBaseURL: %v", err)
	}
	if url != "http://reg:5000" {
		t.Fatalf("got %q, want http://reg:5000", url)
	}
}

func TestDeriveBaseURL_FallsBackToContainerAddress(t *testing.T) {
	cfg := domain.RegistryConfig{InstanceName: "reg", Port: 5000}
	url, err := deriveBaseURL(cfg, domain.Container{Networks: map[string]string{"bridge": "10.1.2.3"}})
	if err != nil {
		t.Fatalf("deriveBaseURL: %v", err)
	}
	if url != "http://10.1.2.3:5000" {
		t.Fatalf("got %q, want http://10.1.2.3:5000", url)
	}
}

func TestDeriveBaseURL_NoNetworkNoAddress(t *testing.T) {
	cfg := domain.RegistryConfig{InstanceName: "reg", Port: 5000}
	if _, err := deriveBaseURL(cfg, domain.Container{}); err != domain.ErrNoNetwork {
		t.Fatalf("got %v, want ErrNoNetwork", err)
	}
}
