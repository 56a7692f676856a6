// Package scheduler runs plans on their cron schedules.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/deploy"
	"github.com/pseudomuto/leaf/pkg/store"
	"github.com/robfig/cron/v3"
)

type (
	// PlanLister lists the plans to schedule. *store.Store implements it.
	PlanLister interface {
		ListPlans(ctx context.Context) ([]*store.Plan, error)
	}

	// Runner runs a plan end to end. *deploy.Controller implements it.
	Runner interface {
		Run(ctx context.Context, planName string, opts deploy.Options) (*deploy.Result, error)
	}

	// Config configures a Scheduler. Plans and Runner are required.
	Config struct {
		Plans    PlanLister
		Runner   Runner
		Location *time.Location

		// AfterRun, when set, is called after every scheduled run.
		AfterRun func(plan string, res *deploy.Result, err error)
	}

	// Entry is a scheduled plan.
	Entry struct {
		Plan     string
		Schedule string
		Next     time.Time
	}

	Scheduler struct {
		cfg  Config
		cron *cron.Cron

		mu      sync.Mutex
		ctx     context.Context
		entries map[cron.EntryID]Entry
	}

	cronLogger struct{}
)

// New creates a Scheduler. Schedules use the standard five field cron syntax
// and descriptors such as @hourly or @every 30m.
func New(cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	logger := cronLogger{}
	return &Scheduler{
		cfg: cfg,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:     context.Background(),
		entries: make(map[cron.EntryID]Entry),
	}
}

// Load registers every plan with a schedule and returns how many were
// registered. An invalid schedule fails the whole load.
func (s *Scheduler) Load(ctx context.Context) (int, error) {
	plans, err := s.cfg.Plans.ListPlans(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, p := range plans {
		if p.Schedule == "" {
			continue
		}

		name := p.Name
		id, err := s.cron.AddFunc(p.Schedule, func() { s.RunPlan(s.context(), name) })
		if err != nil {
			return n, errors.Wrapf(err, "invalid schedule %q for plan %s", p.Schedule, p.Name)
		}

		s.entries[id] = Entry{Plan: p.Name, Schedule: p.Schedule}
		slog.Info("Scheduled plan", "plan", p.Name, "schedule", p.Schedule)
		n++
	}

	return n, nil
}

// Entries returns the scheduled plans with their next run time, which is zero
// until the scheduler is running.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.cron.Entries() {
		entry, ok := s.entries[e.ID]
		if !ok {
			continue
		}
		entry.Next = e.Next
		out = append(out, entry)
	}
	return out
}

// Run starts the schedule and blocks until ctx is done, then waits for any
// running plan to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	n := len(s.entries)
	s.mu.Unlock()

	s.cron.Start()
	slog.Info("Scheduler started", "plans", n)

	<-ctx.Done()
	<-s.cron.Stop().Done()

	slog.Info("Scheduler stopped")
	return nil
}

// RunPlan runs a single plan. A plan that is already busy is skipped.
func (s *Scheduler) RunPlan(ctx context.Context, name string) {
	slog.Info("Running scheduled plan", "plan", name)
	res, err := s.cfg.Runner.Run(ctx, name, deploy.Options{})

	switch {
	case errors.Is(err, deploy.ErrPlanBusy):
		slog.Info("Plan is busy, skipping scheduled run", "plan", name)
	case err != nil:
		slog.Error("Scheduled run failed", "plan", name, "err", err)
	default:
		slog.Info("Scheduled run finished", "plan", name, "status", res.Deployment.Status, "duration", res.Duration)
	}

	if s.cfg.AfterRun != nil {
		s.cfg.AfterRun(name, res, err)
	}
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error(msg, append(keysAndValues, "err", err)...)
}
