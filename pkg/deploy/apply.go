package deploy

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/hooks"
	"github.com/pseudomuto/leaf/pkg/store"
)

// Prepare computes the plan's change set and persists it as a PREPARED
// deployment. The plan must be IDLE and stays PREPARED until the deployment is
// applied or the plan is reset.
//
// The cutoff is opts.Cutoff when set, else the start of the plan's last
// successful deployment; with neither, ErrCutoffRequired is returned. A plan
// claimed by another run returns ErrPlanBusy.
func (c *Controller) Prepare(ctx context.Context, planName string, opts Options) (*Result, error) {
	plan, err := c.repo.GetPlanByName(ctx, planName)
	if err != nil {
		return nil, err
	}

	cutoff, err := c.resolveCutoff(ctx, plan, opts.Cutoff)
	if err != nil {
		return nil, err
	}

	token, err := c.claim(ctx, plan, store.PlanIdle)
	if err != nil {
		return nil, err
	}

	res, err := c.prepare(ctx, plan, cutoff, opts)

	status := store.PlanPrepared
	if err != nil {
		status = store.PlanIdle
	}

	if err = c.release(context.WithoutCancel(ctx), plan, token, status, err); err != nil {
		return res, err
	}

	plan.Status = status
	return res, nil
}

func (c *Controller) prepare(ctx context.Context, plan *store.Plan, cutoff time.Time, opts Options) (*Result, error) {
	start := c.now()
	d := &store.Deployment{
		PlanID:    plan.ID,
		Status:    store.DeploymentPreparing,
		Cutoff:    &cutoff,
		FailFast:  c.failFast(plan.Rules.FailFast, opts),
		StartedAt: start,
	}

	if err := c.repo.CreateDeployment(ctx, d, nil); err != nil {
		return nil, err
	}

	res := &Result{Plan: plan, Deployment: d}
	slog.Info("Preparing deployment", "plan", plan.Name, "deployment", d.ID, "cutoff", cutoff)

	cs, err := c.computeChanges(ctx, plan, cutoff, d.FailFast, true)

	// Outcomes are recorded even when ctx was cancelled while snapshotting.
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return res, c.finish(ctx, res, start, err)
	}

	d.ChangeSet = cs
	d.Status = store.DeploymentPrepared
	res.Changes = newChanges(cs)
	if err := c.repo.SaveChangeSet(ctx, d, res.Changes); err != nil {
		return res, c.finish(ctx, res, start, err)
	}

	res.Duration = c.now().Sub(start)
	sum := cs.Summary()
	slog.Info("Deployment prepared",
		"plan", plan.Name,
		"deployment", d.ID,
		"creates", sum.Creates,
		"replaces", sum.Replaces,
		"drops", sum.Drops,
	)
	return res, nil
}

// Apply executes a PREPARED deployment against its plan's target, op by op
// in change set order. Each op's outcome is stored as soon as it is known.
//
// Under fail-fast the first failed op stops the run and the remaining ops are
// recorded as skipped; otherwise every op is attempted. The deployment ends
// APPLIED when no op failed and FAILED otherwise, in which case the first
// *connector.ExecutionError is returned alongside the result. A failed
// deployment leaves the plan FAILED until it is reset.
//
// Once the plan is claimed, cancelling ctx no longer interrupts the run: it
// goes on to completion or first failure so every executed op is recorded.
func (c *Controller) Apply(ctx context.Context, deploymentID int64, opts Options) (*Result, error) {
	d, err := c.repo.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, err
	}

	if d.Status != store.DeploymentPrepared {
		return nil, errors.Wrapf(ErrNotPrepared, "deployment %d is %s", d.ID, d.Status)
	}

	plan, err := c.repo.GetPlan(ctx, d.PlanID)
	if err != nil {
		return nil, err
	}

	latest, err := c.repo.ListDeployments(ctx, store.ListOptions{PlanID: plan.ID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 || latest[0].ID != d.ID {
		return nil, errors.Wrapf(ErrNotPrepared, "deployment %d was superseded", d.ID)
	}

	token, err := c.claim(ctx, plan, store.PlanPrepared)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	res, err := c.apply(ctx, plan, d, opts)

	status := store.PlanPrepared
	switch d.Status {
	case store.DeploymentApplied:
		status = store.PlanIdle
	case store.DeploymentFailed, store.DeploymentApplying:
		status = store.PlanFailed
	}

	if err = c.release(ctx, plan, token, status, err); err != nil {
		return res, err
	}

	plan.Status = status
	return res, nil
}

func (c *Controller) apply(ctx context.Context, plan *store.Plan, d *store.Deployment, opts Options) (*Result, error) {
	start := c.now()
	d.FailFast = c.failFast(d.FailFast, opts)

	changes, err := c.repo.ListChanges(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	if err := verify(d.ChangeSet, changes); err != nil {
		return nil, errors.Wrapf(err, "deployment %d", d.ID)
	}

	target, err := c.open(ctx, plan.TargetID)
	if err != nil {
		return nil, err
	}
	defer target.close()

	d.Status = store.DeploymentApplying
	if err := c.repo.UpdateDeployment(ctx, d); err != nil {
		return nil, err
	}

	res := &Result{Plan: plan, Deployment: d, Changes: changes}
	slog.Info("Applying deployment", "plan", plan.Name, "deployment", d.ID, "ops", len(changes), "fail_fast", d.FailFast)

	runner := c.runner(plan, true)
	if err := c.runHook(ctx, runner, hooks.PreApply, plan, target, d.FailFast); err != nil {
		for _, ch := range changes {
			if rerr := c.recordChange(ctx, plan, ch, store.ChangeSkipped, ""); rerr != nil {
				return res, rerr
			}
		}
		return res, c.finish(ctx, res, start, err)
	}

	var firstErr error
	for i, ch := range changes {
		op := d.ChangeSet.Ops[i]

		status, msg := store.ChangeSucceeded, ""
		switch {
		case firstErr != nil && d.FailFast:
			status = store.ChangeSkipped
		case len(op.Statements) == 0:
			slog.Warn("Skipping change with no statements", "plan", plan.Name, "op", op.String(), "warning", op.Warning)
			status, msg = store.ChangeSkipped, op.Warning
		default:
			if err := c.execute(ctx, target, i, op); err != nil {
				slog.Error("Change failed", "plan", plan.Name, "op", op.String(), "err", err)
				if firstErr == nil {
					firstErr = err
				}
				status, msg = store.ChangeFailed, err.Error()
			}
		}

		if err := c.recordChange(ctx, plan, ch, status, msg); err != nil {
			return res, err
		}
	}

	if err := c.finish(ctx, res, start, firstErr); err != nil {
		return res, err
	}

	if err := c.runHook(ctx, runner, hooks.PostApply, plan, target, d.FailFast); err != nil {
		return res, err
	}

	return res, nil
}

// recordChange stores the outcome of one change immediately.
func (c *Controller) recordChange(
	ctx context.Context,
	plan *store.Plan,
	ch *store.Change,
	status store.ChangeStatus,
	msg string,
) error {
	ch.Status = status
	ch.Error = msg
	if status != store.ChangeSkipped {
		now := c.now()
		ch.ExecutedAt = &now
	}

	c.metrics.OpFinished(plan.Name, ch.Op, status)
	return c.repo.UpdateChange(ctx, ch)
}

// finish closes out a deployment: APPLIED when cause is nil and no change
// failed, FAILED otherwise. It returns cause, or the error persisting the
// outcome when there is no cause.
func (c *Controller) finish(ctx context.Context, res *Result, start time.Time, cause error) error {
	d := res.Deployment
	d.Summary = summarize(res.Changes)

	d.Status = store.DeploymentApplied
	if cause != nil || d.Summary.Failed > 0 {
		d.Status = store.DeploymentFailed
	}
	if cause != nil {
		d.Error = cause.Error()
	}

	end := c.now()
	d.EndedAt = &end
	res.Duration = end.Sub(start)

	c.metrics.DeploymentFinished(res.Plan.Name, d.Status, res.Duration)
	slog.Info("Deployment finished",
		"plan", res.Plan.Name,
		"deployment", d.ID,
		"status", d.Status,
		"succeeded", d.Summary.Succeeded,
		"failed", d.Summary.Failed,
		"skipped", d.Summary.Skipped,
		"duration", res.Duration,
	)

	if err := c.repo.UpdateDeployment(ctx, d); err != nil {
		if cause != nil {
			slog.Error("Failed to record deployment outcome", "deployment", d.ID, "err", err)
			return cause
		}
		return err
	}

	return cause
}

func summarize(changes []*store.Change) store.Summary {
	var s store.Summary
	for _, ch := range changes {
		switch ch.Status {
		case store.ChangeSucceeded:
			s.Succeeded++
		case store.ChangeFailed:
			s.Failed++
		case store.ChangeSkipped:
			s.Skipped++
		}
	}
	return s
}
