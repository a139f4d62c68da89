// Package scheduler runs per-rule cron schedules and drops overlapping
// ticks instead of queuing them (spec.md §5, §8 property 7).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bnema/zerowrap"
	"github.com/robfig/cron/v3"
)

// parser accepts an optional leading seconds field so sub-minute schedules
// (spec.md §8 scenario S7) parse the same way whole-minute ones do.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler owns one robfig/cron engine and tracks, per registered id,
// whether its job is currently running so a due tick that overlaps an
// in-flight run is dropped rather than queued.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	state   map[string]*entryState
	log     zerowrap.Logger
}

type entryState struct {
	running   atomic.Bool
	dropCount atomic.Int64
}

// New creates a Scheduler. Call Start to begin firing registered jobs.
func New(log zerowrap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		state:   make(map[string]*entryState),
		log:     log,
	}
}

// Add registers job under id on the given cron expression. Re-adding an
// existing id replaces its previous registration.
func (s *Scheduler) Add(id, expr string, job func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[id]; ok {
		s.cron.Remove(prev)
		delete(s.entries, id)
		delete(s.state, id)
	}

	st := &entryState{}
	wrapped := func() {
		if !st.running.CompareAndSwap(false, true) {
			st.dropCount.Add(1)
			s.log.Warn().Str("schedule_id", id).Msg("dropped overlapping scheduled tick")
			return
		}
		defer st.running.Store(false)

		if err := job(context.Background()); err != nil {
			s.log.Warn().Err(err).Str("schedule_id", id).Msg("scheduled job failed")
		}
	}

	entryID, err := s.cron.AddFunc(expr, wrapped)
	if err != nil {
		return fmt.Errorf("schedule %q: invalid expression %q: %w", id, expr, err)
	}

	s.entries[id] = entryID
	s.state[id] = st
	return nil
}

// Remove unregisters id. A no-op if id was never added.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[id]
	if !ok {
		return
	}
	s.cron.Remove(entryID)
	delete(s.entries, id)
	delete(s.state, id)
}

// Has reports whether id is currently registered.
func (s *Scheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// OverlapDrops returns how many ticks for id were dropped because the
// previous run was still in flight.
func (s *Scheduler) OverlapDrops(id string) int64 {
	s.mu.Lock()
	st, ok := s.state[id]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return st.dropCount.Load()
}

// Start begins firing registered jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight job invocations to
// return, per robfig/cron's graceful-stop contract.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
