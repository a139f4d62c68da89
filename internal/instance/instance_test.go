package instance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bnema/zerowrap"

	"abwart/internal/domain"
)

func testLogger() zerowrap.Logger {
	return zerowrap.New(zerowrap.Config{Level: "error"})
}

type fakeClient struct {
	mu sync.Mutex

	repos map[string][]string // repo name -> tag names
	tags  map[string]map[string]domain.Tag

	deleted    []string
	gcCalls    int
	deleteErr  error
	listErr    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		repos: make(map[string][]string),
		tags:  make(map[string]map[string]domain.Tag),
	}
}

func (f *fakeClient) addTag(repo string, tag domain.Tag) {
	f.repos[repo] = append(f.repos[repo], tag.Name)
	if f.tags[repo] == nil {
		f.tags[repo] = make(map[string]domain.Tag)
	}
	f.tags[repo][tag.Name] = tag
}

func (f *fakeClient) ListRepositories(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []string
	for name := range f.repos {
		out = append(out, name)
	}
	return out, nil
}

func (f *fakeClient) ListTags(ctx context.Context, repo string) ([]string, error) {
	return f.repos[repo], nil
}

func (f *fakeClient) FetchTagMetadata(ctx context.Context, repo, tagName string) (domain.Tag, error) {
	return f.tags[repo][tagName], nil
}

func (f *fakeClient) DeleteTag(ctx context.Context, repo string, tag domain.Tag) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, repo+":"+tag.Name)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) RunGarbageCollection(ctx context.Context) error {
	f.mu.Lock()
	f.gcCalls++
	f.mu.Unlock()
	return nil
}

func baseConfig() domain.RegistryConfig {
	return domain.RegistryConfig{
		InstanceName: "myregistry",
		Enabled:      true,
		Rules: map[string]domain.Rule{
			"nightly": {
				Name:     "nightly",
				Schedule: "@every 30ms",
				Tidy:     true,
				Policies: map[string]domain.RulePolicy{
					domain.PolicyRevisions: {Identifier: domain.PolicyRevisions, Param: domain.PolicyParam{Raw: "1", Count: 1}},
				},
			},
		},
	}
}

func TestRunRule_DeletesAndCoalescesGC(t *testing.T) {
	client := newFakeClient()
	client.addTag("app", domain.Tag{Name: "v1", Created: time.Now().Add(-3 * time.Hour), CreatedKnown: true})
	client.addTag("app", domain.Tag{Name: "v2", Created: time.Now().Add(-2 * time.Hour), CreatedKnown: true})
	client.addTag("app", domain.Tag{Name: "v3", Created: time.Now().Add(-1 * time.Hour), CreatedKnown: true})

	inst := New("myregistry", testLogger())
	cfg := baseConfig()
	if err := inst.Start(client, cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer inst.Stop()

	if err := inst.runRule(context.Background(), "nightly"); err != nil {
		t.Fatalf("runRule: %v", err)
	}

	if len(client.deleted) != 2 {
		t.Fatalf("expected 2 tags deleted (keep newest 1 of 3), got %v", client.deleted)
	}
	if client.gcCalls != 1 {
		t.Fatalf("expected 1 GC call from tidy=true, got %d", client.gcCalls)
	}

	if err := inst.runRule(context.Background(), "nightly"); err != nil {
		t.Fatalf("runRule second pass: %v", err)
	}
	if client.gcCalls != 1 {
		t.Fatalf("expected GC coalesced within window, still 1, got %d", client.gcCalls)
	}
}

func TestReconfigure_UnchangedScheduleKeepsHandle(t *testing.T) {
	client := newFakeClient()
	inst := New("myregistry", testLogger())
	cfg := baseConfig()
	if err := inst.Start(client, cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer inst.Stop()

	if !inst.sched.Has("myregistry/nightly") {
		t.Fatal("expected nightly schedule registered")
	}

	next := cfg
	next.Rules = map[string]domain.Rule{
		"nightly": {
			Name:     "nightly",
			Schedule: "@every 30ms",
			Tidy:     false,
			Policies: map[string]domain.RulePolicy{
				domain.PolicyRevisions: {Identifier: domain.PolicyRevisions, Param: domain.PolicyParam{Raw: "5", Count: 5}},
			},
		},
	}
	if err := inst.Reconfigure(client, next); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	inst.mu.Lock()
	resolved := inst.rules["nightly"]
	inst.mu.Unlock()
	if resolved.TagPolicies[0] == nil {
		t.Fatal("expected resolved tag policy present after reconfigure")
	}
}

func TestReconfigure_RemovesDroppedRule(t *testing.T) {
	client := newFakeClient()
	inst := New("myregistry", testLogger())
	cfg := baseConfig()
	if err := inst.Start(client, cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer inst.Stop()

	next := cfg
	next.Rules = map[string]domain.Rule{}
	if err := inst.Reconfigure(client, next); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if inst.sched.Has("myregistry/nightly") {
		t.Fatal("expected nightly schedule removed")
	}
}

func TestReconfigure_ScheduleChangeReregisters(t *testing.T) {
	client := newFakeClient()
	inst := New("myregistry", testLogger())
	cfg := baseConfig()
	if err := inst.Start(client, cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer inst.Stop()

	next := cfg
	r := next.Rules["nightly"]
	r.Schedule = "@every 1h"
	next.Rules = map[string]domain.Rule{"nightly": r}
	if err := inst.Reconfigure(client, next); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if !inst.sched.Has("myregistry/nightly") {
		t.Fatal("expected nightly schedule still registered under new expression")
	}
}

func TestStartFailsWhenAlreadyStarted(t *testing.T) {
	client := newFakeClient()
	inst := New("myregistry", testLogger())
	cfg := baseConfig()
	if err := inst.Start(client, cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer inst.Stop()

	if err := inst.Start(client, cfg); err == nil {
		t.Fatal("expected error starting an already-started instance")
	}
}

func TestRunRule_SkipsWhenRemovedConcurrently(t *testing.T) {
	client := newFakeClient()
	inst := New("myregistry", testLogger())
	cfg := baseConfig()
	if err := inst.Start(client, cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer inst.Stop()

	next := cfg
	next.Rules = map[string]domain.Rule{}
	if err := inst.Reconfigure(client, next); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	if err := inst.runRule(context.Background(), "nightly"); err != nil {
		t.Fatalf("expected no error running a removed rule, got %v", err)
	}
}

func TestListRepositoriesError(t *testing.T) {
	client := newFakeClient()
	client.listErr = fmt.Errorf("boom")
	inst := New("myregistry", testLogger())
	cfg := baseConfig()
	if err := inst.Start(client, cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer inst.Stop()

	if err := inst.runRule(context.Background(), "nightly"); err == nil {
		t.Fatal("expected error propagated from ListRepositories")
	}
}
