// Package scheduler triggers collection runs on cron schedules. Each scope
// gets one ScopeScheduler; a CAS run lock guarantees at most one run per
// scope at a time, whether fired by cron or by hand. Missed fires are not
// backfilled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reachlab/reach-data/internal/model"
)

// ErrAlreadyRunning is returned when a run is requested while one is in
// flight for the same scope.
var ErrAlreadyRunning = errors.New("run already in progress")

// Runner executes one collection run for a scope.
type Runner interface {
	Run(ctx context.Context) (*model.RunSummary, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) (*model.RunSummary, error)

func (f RunnerFunc) Run(ctx context.Context) (*model.RunSummary, error) { return f(ctx) }

// Status is a point-in-time view of one scope's scheduling state.
type Status struct {
	Scope    string            `json:"scope"`
	State    string            `json:"state"` // "stopped", "scheduled", "running"
	CronExpr string            `json:"cron,omitempty"`
	NextFire *time.Time        `json:"next_fire,omitempty"`
	LastRun  *model.RunSummary `json:"last_run,omitempty"`
}

// ScopeScheduler owns the cron schedule and run lock for one scope.
type ScopeScheduler struct {
	scope  string
	runner Runner
	logger *slog.Logger

	running atomic.Bool // run lock, CAS on every trigger

	mu       sync.Mutex
	cron     *cron.Cron
	entryID  cron.EntryID
	cronExpr string
	lastRun  *model.RunSummary
}

// NewScopeScheduler creates a scheduler for one scope. It starts stopped;
// call Start with a cron expression to schedule fires.
func NewScopeScheduler(scope string, runner Runner, logger *slog.Logger) *ScopeScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScopeScheduler{
		scope:  scope,
		runner: runner,
		logger: logger,
	}
}

// Scope names the scope this scheduler drives.
func (s *ScopeScheduler) Scope() string { return s.scope }

// Start validates the expression and begins firing on schedule. A second
// Start while scheduled is a no-op.
func (s *ScopeScheduler) Start(cronExpr string) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New()
	id, err := c.AddFunc(cronExpr, s.fire)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", s.scope, err)
	}
	c.Start()

	s.cron = c
	s.entryID = id
	s.cronExpr = cronExpr

	s.logger.Info("scope scheduled", "scope", s.scope, "cron", cronExpr)
	return nil
}

// Stop deregisters the schedule. An in-flight run finishes; Stop blocks
// until it does.
func (s *ScopeScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.cronExpr = ""
	s.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
	s.logger.Info("scope schedule stopped", "scope", s.scope)
}

// RunNow executes a run immediately, bypassing the schedule but not the run
// lock. Returns ErrAlreadyRunning when a run is in flight.
func (s *ScopeScheduler) RunNow(ctx context.Context) (*model.RunSummary, error) {
	return s.RunAdHoc(ctx, s.runner)
}

// RunAdHoc executes fn under the scope's run lock, so one-off runs (smoke
// runs with a ticker cap) cannot overlap a scheduled fire. Returns
// ErrAlreadyRunning when a run is in flight.
func (s *ScopeScheduler) RunAdHoc(ctx context.Context, fn Runner) (*model.RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	summary, err := fn.Run(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastRun = summary
	s.mu.Unlock()

	return summary, nil
}

// fire is the cron entry point. A fire that lands while the previous run is
// still going is dropped, not queued.
func (s *ScopeScheduler) fire() {
	_, err := s.RunNow(context.Background())
	if errors.Is(err, ErrAlreadyRunning) {
		s.logger.Warn("scheduled fire skipped, run in progress", "scope", s.scope)
		return
	}
	if err != nil {
		s.logger.Error("scheduled run failed", "scope", s.scope, "err", err)
	}
}

// Status reports the scope's current scheduling state.
func (s *ScopeScheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Scope:    s.scope,
		State:    "stopped",
		CronExpr: s.cronExpr,
		LastRun:  s.lastRun,
	}

	if s.cron != nil {
		st.State = "scheduled"
		next := s.cron.Entry(s.entryID).Next
		if !next.IsZero() {
			st.NextFire = &next
		}
	}
	if s.running.Load() {
		st.State = "running"
	}

	return st
}

// Registry holds the per-scope schedulers, constructed once at startup.
type Registry struct {
	mu     sync.Mutex
	scopes map[string]*ScopeScheduler
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string]*ScopeScheduler)}
}

// Add registers a scope scheduler. Later Adds with the same scope replace
// the earlier one.
func (r *Registry) Add(s *ScopeScheduler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.scopes[s.Scope()]; !exists {
		r.order = append(r.order, s.Scope())
	}
	r.scopes[s.Scope()] = s
}

// Get returns the scheduler for a scope, or nil.
func (r *Registry) Get(scope string) *ScopeScheduler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scopes[scope]
}

// All returns the schedulers in registration order.
func (r *Registry) All() []*ScopeScheduler {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ScopeScheduler, 0, len(r.order))
	for _, scope := range r.order {
		out = append(out, r.scopes[scope])
	}
	return out
}

// StopAll stops every registered schedule.
func (r *Registry) StopAll() {
	for _, s := range r.All() {
		s.Stop()
	}
}
