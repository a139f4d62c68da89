// Package instance owns one registry's runtime state: its resolved config,
// scheduled rule handles, and the execution lock and GC-coalescing guard
// shared across those rules (spec.md §4.4).
package instance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/google/uuid"

	"abwart/internal/domain"
	"abwart/internal/rule"
	"abwart/internal/scheduler"
)

// RepoConcurrency bounds how many repositories one rule execution processes
// at once (spec.md §4.4/§5's "bounded repo-level parallelism").
const RepoConcurrency = 4

// gcCoalesceWindow is how close together two tidy requests within the same
// instance must land to be treated as the same scheduler tick (spec.md §8
// property 6, "GC coalescing").
const gcCoalesceWindow = 2 * time.Second

// registryClient is the subset of *registryclient.Client an Instance needs,
// narrowed so tests can substitute a fake without spinning up HTTP.
type registryClient interface {
	ListRepositories(ctx context.Context) ([]string, error)
	ListTags(ctx context.Context, repo string) ([]string, error)
	FetchTagMetadata(ctx context.Context, repo, tagName string) (domain.Tag, error)
	DeleteTag(ctx context.Context, repo string, tag domain.Tag) error
	RunGarbageCollection(ctx context.Context) error
}

// Instance is one managed registry's live runtime state.
type Instance struct {
	name string
	log  zerowrap.Logger
	sched *scheduler.Scheduler

	// execMu serializes rule executions within this instance; cross-instance
	// executions have their own Instance and run in parallel (spec.md §5).
	execMu sync.Mutex

	mu             sync.Mutex
	client         registryClient
	cfg            domain.RegistryConfig
	rules          map[string]rule.Resolved
	hasCleanup     bool
	lastGCRun      time.Time
	started        bool
}

// New builds an Instance bound to name, with no rules registered yet. Call
// Start to register the initial rule set and begin scheduling.
func New(name string, log zerowrap.Logger) *Instance {
	return &Instance{
		name:  name,
		log:   log,
		sched: scheduler.New(log),
		rules: make(map[string]rule.Resolved),
	}
}

// Name returns the instance's registry name.
func (i *Instance) Name() string {
	return i.name
}

// Start transitions the instance from absent/disabled to running: it
// resolves every configured rule, registers a cron entry per rule (plus one
// for cleanup_schedule if set), and starts the scheduler (spec.md §4.4).
func (i *Instance) Start(client registryClient, cfg domain.RegistryConfig) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.started {
		return fmt.Errorf("instance %q already started", i.name)
	}

	resolved, err := resolveRules(cfg)
	if err != nil {
		return err
	}

	i.client = client
	i.cfg = cfg
	i.rules = resolved

	if cfg.CleanupSchedule != "" {
		i.log.Warn().Str("instance", i.name).Msg("cleanup schedule configured: garbage collection can corrupt manifest lists on affected registry versions")
	}

	for name := range resolved {
		name := name
		if err := i.sched.Add(i.scheduleID(name), resolved[name].Schedule, func(ctx context.Context) error {
			return i.runRule(ctx, name)
		}); err != nil {
			return err
		}
	}
	if cfg.CleanupSchedule != "" {
		if err := i.sched.Add(i.cleanupID(), cfg.CleanupSchedule, i.runCleanup); err != nil {
			return err
		}
		i.hasCleanup = true
	}

	i.sched.Start()
	i.started = true
	return nil
}

// Stop halts the scheduler and all future rule executions for this
// instance. It does not interrupt a rule execution already in flight.
func (i *Instance) Stop() {
	i.mu.Lock()
	started := i.started
	i.mu.Unlock()
	if !started {
		return
	}
	i.sched.Stop()
	i.mu.Lock()
	i.started = false
	i.mu.Unlock()
}

// Reconfigure applies a freshly-resolved config without restarting: rules
// whose schedule is unchanged keep their existing scheduler handle (so an
// in-flight execution is never duplicated or interrupted); rules with a
// changed schedule are re-registered; removed rules are unregistered; new
// rules are registered (spec.md §4.4).
func (i *Instance) Reconfigure(client registryClient, cfg domain.RegistryConfig) error {
	resolved, err := resolveRules(cfg)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	for name, prev := range i.rules {
		next, ok := resolved[name]
		if !ok {
			i.sched.Remove(i.scheduleID(name))
			continue
		}
		if next.Schedule != prev.Schedule {
			i.sched.Remove(i.scheduleID(name))
			name := name
			if err := i.sched.Add(i.scheduleID(name), next.Schedule, func(ctx context.Context) error {
				return i.runRule(ctx, name)
			}); err != nil {
				return err
			}
		}
	}
	for name, next := range resolved {
		if _, existed := i.rules[name]; existed {
			continue
		}
		name := name
		if err := i.sched.Add(i.scheduleID(name), next.Schedule, func(ctx context.Context) error {
			return i.runRule(ctx, name)
		}); err != nil {
			return err
		}
	}

	switch {
	case cfg.CleanupSchedule == "" && i.hasCleanup:
		i.sched.Remove(i.cleanupID())
		i.hasCleanup = false
	case cfg.CleanupSchedule != "" && !i.hasCleanup:
		if err := i.sched.Add(i.cleanupID(), cfg.CleanupSchedule, i.runCleanup); err != nil {
			return err
		}
		i.hasCleanup = true
		i.log.Warn().Str("instance", i.name).Msg("cleanup schedule configured: garbage collection can corrupt manifest lists on affected registry versions")
	case cfg.CleanupSchedule != "" && cfg.CleanupSchedule != i.cfg.CleanupSchedule:
		i.sched.Remove(i.cleanupID())
		if err := i.sched.Add(i.cleanupID(), cfg.CleanupSchedule, i.runCleanup); err != nil {
			return err
		}
	}

	i.client = client
	i.cfg = cfg
	i.rules = resolved
	return nil
}

func (i *Instance) scheduleID(ruleName string) string {
	return i.name + "/" + ruleName
}

func (i *Instance) cleanupID() string {
	return i.name + "/cleanup"
}

// runRule executes one rule's deletion pass: list repositories, select the
// ones this rule targets, then within each selected repository select and
// delete tags, per spec.md §4.2 and §4.4's scheduled-callback algorithm.
func (i *Instance) runRule(ctx context.Context, ruleName string) error {
	i.execMu.Lock()
	defer i.execMu.Unlock()

	i.mu.Lock()
	client := i.client
	r, ok := i.rules[ruleName]
	i.mu.Unlock()
	if !ok {
		return nil // removed by a concurrent Reconfigure since scheduling
	}

	executionID := uuid.NewString()
	log := i.log.With().Str("instance", i.name).Str("rule", ruleName).Str("execution_id", executionID).Logger()

	repoNames, err := client.ListRepositories(ctx)
	if err != nil {
		return fmt.Errorf("instance %s rule %s: list repositories: %w", i.name, ruleName, err)
	}

	repos := make([]domain.Repository, len(repoNames))
	for idx, name := range repoNames {
		repos[idx] = domain.Repository{Name: name}
	}

	selectedRepos := r.SelectRepositories(repos)
	sort.Slice(selectedRepos, func(a, b int) bool { return selectedRepos[a].Name < selectedRepos[b].Name })

	now := time.Now().UTC()
	deleted := i.processRepositories(ctx, client, r, selectedRepos, now)

	log.Info().Int("repositories_scanned", len(selectedRepos)).Int("tags_deleted", deleted).Msg("rule execution complete")

	if r.Tidy {
		i.requestGC(ctx, client)
	}
	return nil
}

// processRepositories fans the selected repositories out across
// RepoConcurrency workers; within one repository, tag deletes run
// sequentially to keep registry-side delete ordering predictable.
func (i *Instance) processRepositories(ctx context.Context, client registryClient, r rule.Resolved, repos []domain.Repository, now time.Time) (deletedCount int) {
	sem := make(chan struct{}, RepoConcurrency)
	results := make(chan int, len(repos))
	var wg sync.WaitGroup

	for _, repo := range repos {
		repo := repo
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results <- i.processRepository(ctx, client, r, repo, now)
		}()
	}

	wg.Wait()
	close(results)
	for n := range results {
		deletedCount += n
	}
	return deletedCount
}

func (i *Instance) processRepository(ctx context.Context, client registryClient, r rule.Resolved, repo domain.Repository, now time.Time) int {
	log := i.log.With().Str("instance", i.name).Str("repository", repo.Name).Logger()

	tagNames, err := client.ListTags(ctx, repo.Name)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list tags")
		return 0
	}

	tags := make([]domain.Tag, 0, len(tagNames))
	for _, name := range tagNames {
		tag, err := client.FetchTagMetadata(ctx, repo.Name, name)
		if err != nil {
			log.Warn().Err(err).Str("tag", name).Msg("failed to fetch tag metadata")
			continue
		}
		tags = append(tags, tag)
	}

	selected := r.SelectTags(tags, now)
	deleted := 0
	for _, tag := range selected {
		if err := client.DeleteTag(ctx, repo.Name, tag); err != nil {
			log.Warn().Err(err).Str("tag", tag.Name).Msg("failed to delete tag")
			continue
		}
		deleted++
	}
	return deleted
}

func (i *Instance) runCleanup(ctx context.Context) error {
	i.execMu.Lock()
	defer i.execMu.Unlock()

	i.mu.Lock()
	client := i.client
	i.mu.Unlock()

	i.log.Info().Str("instance", i.name).Str("execution_id", uuid.NewString()).Msg("cleanup execution")
	i.requestGC(ctx, client)
	return nil
}

// requestGC triggers the registry's garbage collector, coalescing requests
// that land within gcCoalesceWindow of each other into a single exec call
// (spec.md §8 property 6).
func (i *Instance) requestGC(ctx context.Context, client registryClient) {
	i.mu.Lock()
	now := time.Now()
	if !i.lastGCRun.IsZero() && now.Sub(i.lastGCRun) < gcCoalesceWindow {
		i.mu.Unlock()
		return
	}
	i.lastGCRun = now
	i.mu.Unlock()

	if err := client.RunGarbageCollection(ctx); err != nil {
		i.log.Warn().Err(err).Str("instance", i.name).Msg("garbage collection failed")
	}
}

func resolveRules(cfg domain.RegistryConfig) (map[string]rule.Resolved, error) {
	out := make(map[string]rule.Resolved, len(cfg.Rules))
	for name, r := range cfg.Rules {
		resolved, err := rule.Resolve(r, cfg.Defaults)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		out[name] = resolved
	}
	return out, nil
}
