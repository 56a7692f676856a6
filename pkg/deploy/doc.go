// Package deploy drives the lifecycle of a plan: prepare, apply and rollback.
//
// Prepare snapshots the plan's source and target, computes the ordered change
// set and persists it as a PREPARED deployment along with one change row per
// op. Every script is stored with its h1 hash, and Apply refuses to run a
// deployment whose scripts no longer match.
//
// Apply executes the prepared ops against the target one at a time, recording
// each outcome as it happens. Rollback executes the stored inverses of the
// plan's latest applied deployment in reverse order.
//
// A plan is claimed for the duration of each operation, so at most one
// prepare, apply or rollback runs against it at a time:
//
//	ctrl := deploy.New(deploy.Config{Repo: repo, Registry: registry})
//
//	res, err := ctrl.Run(ctx, "promote", deploy.Options{})
//	if errors.Is(err, deploy.ErrPlanBusy) {
//		// somebody else is deploying this plan
//	}
package deploy
