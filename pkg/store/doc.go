// Package store persists connections, plans and deployments in a local SQLite
// database.
//
// The store is the single source of truth for durable state. A deployment row
// carries its full change set, inverses included, so rollback never needs to
// re-diff. Each op of the change set also gets a row in changes, updated as it
// executes so an interrupted run leaves a precise partial record.
//
// Plans carry a status used as a busy marker. ClaimPlan moves a plan to BUSY
// with a compare-and-swap on the stored status and hands back a token; only
// the holder of that token can release it. ResetPlan clears any claim.
//
//	token, err := s.ClaimPlan(ctx, plan.ID, store.PlanIdle)
//	if errors.Is(err, store.ErrClaimed) {
//		// another run holds the plan
//	}
//	defer s.ReleasePlan(ctx, plan.ID, token, store.PlanIdle)
package store
