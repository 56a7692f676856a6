package deploy

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/hooks"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/pseudomuto/leaf/pkg/store"
)

// Rollback undoes the plan's most recently applied deployment by executing
// the stored inverse of every succeeded op, in reverse apply order. Nothing
// is re-diffed.
//
// On success the deployment becomes ROLLED_BACK. The first failing inverse
// stops the rollback: the deployment stays APPLIED, the plan is left FAILED,
// and a *RollbackIncompleteError lists what was already undone. Like Apply,
// a claimed rollback is not interrupted by cancelling ctx.
func (c *Controller) Rollback(ctx context.Context, planName string) (*RollbackResult, error) {
	plan, err := c.repo.GetPlanByName(ctx, planName)
	if err != nil {
		return nil, err
	}

	d, err := c.repo.LatestAppliedDeployment(ctx, plan.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errors.Wrapf(ErrNothingToRollback, "plan %s", plan.Name)
		}
		return nil, err
	}

	token, err := c.claim(ctx, plan, store.PlanIdle)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	res, err := c.rollback(ctx, plan, d)

	status := store.PlanIdle
	var incomplete *RollbackIncompleteError
	if errors.As(err, &incomplete) {
		status = store.PlanFailed
	}

	if err = c.release(ctx, plan, token, status, err); err != nil {
		return res, err
	}

	plan.Status = status
	return res, nil
}

func (c *Controller) rollback(ctx context.Context, plan *store.Plan, d *store.Deployment) (*RollbackResult, error) {
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

	r := &store.Rollback{DeploymentID: d.ID, Status: store.ChangeRunning, StartedAt: c.now()}
	if err := c.repo.CreateRollback(ctx, r); err != nil {
		return nil, err
	}

	res := &RollbackResult{Plan: plan, Deployment: d, Rollback: r, Changes: changes}
	slog.Info("Rolling back deployment", "plan", plan.Name, "deployment", d.ID)

	runner := c.runner(plan, true)
	if err := c.runHook(ctx, runner, hooks.PreRollback, plan, target, d.FailFast); err != nil {
		return res, c.finishRollback(ctx, res, err)
	}

	var (
		done   []schema.ObjectIdentity
		failed error
	)

	for i := len(changes) - 1; i >= 0; i-- {
		ch := changes[i]
		if ch.Status != store.ChangeSucceeded || failed != nil {
			ch.RollbackStatus = store.ChangeSkipped
			if err := c.repo.UpdateChange(ctx, ch); err != nil {
				return res, err
			}
			continue
		}

		inverse := d.ChangeSet.Ops[i].Inverse
		err := c.execute(ctx, target, i, inverse)

		now := c.now()
		ch.RolledBackAt = &now
		ch.RollbackStatus = store.ChangeSucceeded
		ch.RollbackError = ""

		if err != nil {
			slog.Error("Rollback of change failed", "plan", plan.Name, "op", inverse.String(), "err", err)
			ch.RollbackStatus = store.ChangeFailed
			ch.RollbackError = err.Error()
			r.Summary.Failed++
			failed = &RollbackIncompleteError{
				DeploymentID: d.ID,
				RolledBack:   done,
				Failed:       ch.Identity,
				Err:          err,
			}
		} else {
			r.Summary.Succeeded++
			done = append(done, ch.Identity)
		}

		c.metrics.OpFinished(plan.Name, inverse.Type, ch.RollbackStatus)
		if err := c.repo.UpdateChange(ctx, ch); err != nil {
			return res, err
		}
	}

	if failed != nil {
		return res, c.finishRollback(ctx, res, failed)
	}

	d.Status = store.DeploymentRolledBack
	if err := c.repo.UpdateDeployment(ctx, d); err != nil {
		return res, err
	}

	if err := c.finishRollback(ctx, res, nil); err != nil {
		return res, err
	}

	return res, c.runHook(ctx, runner, hooks.PostRollback, plan, target, d.FailFast)
}

// finishRollback records the attempt's outcome and returns cause, or the error
// persisting it when there is no cause.
func (c *Controller) finishRollback(ctx context.Context, res *RollbackResult, cause error) error {
	r := res.Rollback
	r.Status = store.ChangeSucceeded
	if cause != nil {
		r.Status = store.ChangeFailed
		r.Error = cause.Error()
	}

	end := c.now()
	r.EndedAt = &end

	c.metrics.RollbackFinished(res.Plan.Name, r.Status)
	slog.Info("Rollback finished",
		"plan", res.Plan.Name,
		"deployment", res.Deployment.ID,
		"status", r.Status,
		"rolled_back", r.Summary.Succeeded,
		"failed", r.Summary.Failed,
	)

	if err := c.repo.UpdateRollback(ctx, r); err != nil {
		if cause != nil {
			slog.Error("Failed to record rollback outcome", "rollback", r.ID, "err", err)
			return cause
		}
		return err
	}

	return cause
}
