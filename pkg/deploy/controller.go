package deploy

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/hooks"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/pseudomuto/leaf/pkg/store"
)

type (
	// Repository is the durable state the controller drives. *store.Store
	// implements it.
	Repository interface {
		GetConnection(ctx context.Context, id int64) (*store.Connection, error)
		GetPlan(ctx context.Context, id int64) (*store.Plan, error)
		GetPlanByName(ctx context.Context, name string) (*store.Plan, error)
		ClaimPlan(ctx context.Context, planID int64, from ...store.PlanStatus) (string, error)
		ReleasePlan(ctx context.Context, planID int64, token string, status store.PlanStatus) error
		ResetPlan(ctx context.Context, planID int64) error

		CreateDeployment(ctx context.Context, d *store.Deployment, changes []*store.Change) error
		SaveChangeSet(ctx context.Context, d *store.Deployment, changes []*store.Change) error
		UpdateDeployment(ctx context.Context, d *store.Deployment) error
		GetDeployment(ctx context.Context, id int64) (*store.Deployment, error)
		ListDeployments(ctx context.Context, opts store.ListOptions) ([]*store.Deployment, error)
		LastSuccessfulDeployment(ctx context.Context, planID int64) (*store.Deployment, error)
		LatestAppliedDeployment(ctx context.Context, planID int64) (*store.Deployment, error)

		ListChanges(ctx context.Context, deploymentID int64) ([]*store.Change, error)
		UpdateChange(ctx context.Context, c *store.Change) error
		CreateRollback(ctx context.Context, r *store.Rollback) error
		UpdateRollback(ctx context.Context, r *store.Rollback) error
	}

	// Recorder receives deployment outcomes. *metrics.Metrics implements it.
	Recorder interface {
		DeploymentFinished(plan string, status store.DeploymentStatus, duration time.Duration)
		OpFinished(plan string, op schema.OpType, status store.ChangeStatus)
		RollbackFinished(plan string, status store.ChangeStatus)
	}

	// Config configures a Controller. Repo and Registry are required.
	Config struct {
		Repo     Repository
		Registry *connector.Registry
		Clock    clock.Clock
		Metrics  Recorder
	}

	// Controller runs the deployment lifecycle of plans. It holds no state
	// between calls: everything it needs is read from the repository, and
	// exclusive access to a plan comes from the repository's busy claim.
	Controller struct {
		repo     Repository
		registry *connector.Registry
		clock    clock.Clock
		metrics  Recorder
	}

	// Options adjust a single run.
	Options struct {
		// Cutoff overrides the plan's default cutoff (the start of its last
		// successful deployment).
		Cutoff *time.Time

		// FailFast overrides the stored fail-fast policy.
		FailFast *bool

		// WithHooks runs the prepare hooks during a dry run. Hooks always run
		// for real deployments unless the plan disables them.
		WithHooks bool
	}

	// Result describes a prepared or applied deployment.
	Result struct {
		Plan       *store.Plan
		Deployment *store.Deployment
		Changes    []*store.Change
		Duration   time.Duration
	}

	// Preview is the outcome of a dry run.
	Preview struct {
		Plan      *store.Plan
		Cutoff    time.Time
		ChangeSet *schema.ChangeSet
	}

	// RollbackResult describes a rollback attempt.
	RollbackResult struct {
		Plan       *store.Plan
		Deployment *store.Deployment
		Rollback   *store.Rollback
		Changes    []*store.Change
	}

	endpoint struct {
		name    string
		session connector.Session
	}

	nopRecorder struct{}
)

// New creates a Controller.
func New(cfg Config) *Controller {
	c := &Controller{
		repo:     cfg.Repo,
		registry: cfg.Registry,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
	}

	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.metrics == nil {
		c.metrics = nopRecorder{}
	}
	return c
}

// Reset forces the plan back to IDLE, discarding any in-flight claim.
// Deployment rows are left untouched.
func (c *Controller) Reset(ctx context.Context, planName string) (*store.Plan, error) {
	plan, err := c.repo.GetPlanByName(ctx, planName)
	if err != nil {
		return nil, err
	}

	if err := c.repo.ResetPlan(ctx, plan.ID); err != nil {
		return nil, err
	}

	slog.Info("Plan reset", "plan", plan.Name, "previous_status", plan.Status)
	plan.Status = store.PlanIdle
	return plan, nil
}

// DryRun computes the change set prepare would persist without writing any
// state or executing any change. Hooks run only when opts.WithHooks is set.
func (c *Controller) DryRun(ctx context.Context, planName string, opts Options) (*Preview, error) {
	plan, err := c.repo.GetPlanByName(ctx, planName)
	if err != nil {
		return nil, err
	}

	cutoff, err := c.resolveCutoff(ctx, plan, opts.Cutoff)
	if err != nil {
		return nil, err
	}

	cs, err := c.computeChanges(ctx, plan, cutoff, c.failFast(plan.Rules.FailFast, opts), opts.WithHooks)
	if err != nil {
		return nil, err
	}

	slog.Info("Dry run complete", "plan", plan.Name, "cutoff", cutoff, "ops", len(cs.Ops))
	return &Preview{Plan: plan, Cutoff: cutoff, ChangeSet: cs}, nil
}

// Run prepares and immediately applies a deployment of the plan.
func (c *Controller) Run(ctx context.Context, planName string, opts Options) (*Result, error) {
	res, err := c.Prepare(ctx, planName, opts)
	if err != nil {
		return res, err
	}

	return c.Apply(ctx, res.Deployment.ID, opts)
}

func (c *Controller) resolveCutoff(ctx context.Context, plan *store.Plan, explicit *time.Time) (time.Time, error) {
	if explicit != nil {
		return explicit.UTC(), nil
	}

	last, err := c.repo.LastSuccessfulDeployment(ctx, plan.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return time.Time{}, errors.Wrapf(ErrCutoffRequired, "plan %s", plan.Name)
		}
		return time.Time{}, err
	}

	return last.StartedAt, nil
}

func (c *Controller) failFast(stored bool, opts Options) bool {
	if opts.FailFast != nil {
		return *opts.FailFast
	}
	return stored
}

// claim takes the plan's busy marker, translating a lost race into ErrPlanBusy.
func (c *Controller) claim(ctx context.Context, plan *store.Plan, from ...store.PlanStatus) (string, error) {
	token, err := c.repo.ClaimPlan(ctx, plan.ID, from...)
	if err != nil {
		if errors.Is(err, store.ErrClaimed) {
			return "", errors.Wrapf(ErrPlanBusy, "plan %s", plan.Name)
		}
		return "", err
	}
	return token, nil
}

// release hands the plan back with status. A failed release is only reported
// when the run itself succeeded.
func (c *Controller) release(ctx context.Context, plan *store.Plan, token string, status store.PlanStatus, runErr error) error {
	if err := c.repo.ReleasePlan(ctx, plan.ID, token, status); err != nil {
		if runErr != nil {
			slog.Error("Failed to release plan", "plan", plan.Name, "err", err)
			return runErr
		}
		return err
	}
	return runErr
}

func (c *Controller) open(ctx context.Context, connID int64) (*endpoint, error) {
	conn, err := c.repo.GetConnection(ctx, connID)
	if err != nil {
		return nil, err
	}

	session, err := c.registry.Open(ctx, conn.Connection)
	if err != nil {
		return nil, err
	}

	return &endpoint{name: conn.Name, session: session}, nil
}

func (e *endpoint) close() {
	if err := e.session.Close(); err != nil {
		slog.Warn("Failed to close connection", "connection", e.name, "err", err)
	}
}

// computeChanges snapshots both sides of the plan and returns the ordered
// change set, running the prepare hooks against the target when withHooks.
func (c *Controller) computeChanges(
	ctx context.Context,
	plan *store.Plan,
	cutoff time.Time,
	failFast bool,
	withHooks bool,
) (*schema.ChangeSet, error) {
	source, err := c.open(ctx, plan.SourceID)
	if err != nil {
		return nil, err
	}
	defer source.close()

	target, err := c.open(ctx, plan.TargetID)
	if err != nil {
		return nil, err
	}
	defer target.close()

	runner := c.runner(plan, withHooks)
	if err := c.runHook(ctx, runner, hooks.PrePrepare, plan, target, failFast); err != nil {
		return nil, err
	}

	slog.Info("Capturing snapshots", "plan", plan.Name, "source", source.name, "target", target.name, "schemas", plan.Schemas)
	src, err := connector.Snapshot(ctx, source.name, source.session, plan.Schemas)
	if err != nil {
		return nil, err
	}

	dst, err := connector.Snapshot(ctx, target.name, target.session, plan.Schemas)
	if err != nil {
		return nil, err
	}

	rules := plan.Rules.WithCutoff(cutoff)
	rules.FailFast = failFast

	cs, err := schema.Compute(src, dst, rules)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compute changes for plan %s", plan.Name)
	}

	if err := c.runHook(ctx, runner, hooks.PostPrepare, plan, target, failFast); err != nil {
		return nil, err
	}

	return cs, nil
}

func (c *Controller) runner(plan *store.Plan, enabled bool) *hooks.Runner {
	return &hooks.Runner{Hooks: plan.Hooks, Disabled: plan.DisableHooks || !enabled}
}

// runHook runs a hook stage. Failures stop the run under fail-fast and are
// logged otherwise.
func (c *Controller) runHook(
	ctx context.Context,
	runner *hooks.Runner,
	stage hooks.Stage,
	plan *store.Plan,
	target *endpoint,
	failFast bool,
) error {
	err := runner.Run(ctx, stage, hooks.Context{PlanName: plan.Name}, target.session)
	if err == nil {
		return nil
	}

	if failFast {
		return err
	}

	slog.Warn("Hook failed, continuing", "plan", plan.Name, "stage", stage, "err", err)
	return nil
}

// execute runs every statement of op, stopping at the first failure.
func (c *Controller) execute(ctx context.Context, target *endpoint, index int, op *schema.ChangeOp) error {
	for _, stmt := range op.Statements {
		slog.Debug("Executing", "connection", target.name, "op", op.String(), "statement", stmt)
		if err := target.session.Execute(ctx, stmt); err != nil {
			return &connector.ExecutionError{Identity: op.Identity, Index: index, Statement: stmt, Err: err}
		}
	}
	return nil
}

func (c *Controller) now() time.Time {
	return c.clock.Now().UTC()
}

func (nopRecorder) DeploymentFinished(string, store.DeploymentStatus, time.Duration) {}
func (nopRecorder) OpFinished(string, schema.OpType, store.ChangeStatus) {}
func (nopRecorder) RollbackFinished(string, store.ChangeStatus) {}
