// Package registryclient implements the only component permitted to perform
// I/O against a managed registry: a distribution v2 HTTP client plus the
// container-engine exec call that triggers the registry's own GC.
package registryclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bnema/zerowrap"

	"abwart/internal/domain"
)

// DefaultRequestTimeout is the per-request HTTP timeout (spec.md §5).
const DefaultRequestTimeout = 30 * time.Second

// PageSize is the page size requested on paginated catalog/tags calls.
const PageSize = 100

// GCRunner executes the registry's garbage-collect command inside its
// container. Implemented by internal/container's engine adapter.
type GCRunner interface {
	Exec(ctx context.Context, containerID string, cmd []string) error
}

// Client is one instance's registry client adapter: one per Instance,
// shared only within that instance's own tasks (spec.md §5).
type Client struct {
	baseURL     string
	httpClient  *http.Client
	auth        *domain.BasicAuth
	gc          GCRunner
	containerID string

	deleteMu       sync.Mutex
	deleteDisabled bool
}

// Config carries the wiring an Instance resolves once per reconfigure.
type Config struct {
	BaseURL     string
	Auth        *domain.BasicAuth
	GC          GCRunner
	ContainerID string
}

// New builds a Client bound to one registry's base URL and, optionally, the
// container-exec facility used for GC.
func New(cfg Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
		auth:        cfg.Auth,
		gc:          cfg.GC,
		containerID: cfg.ContainerID,
	}
}

func (c *Client) authenticate(req *http.Request) {
	if c.auth != nil {
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	}
}

func fields(op string, extra map[string]any) map[string]any {
	m := map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldUseCase: op,
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}
