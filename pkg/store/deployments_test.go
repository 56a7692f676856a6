package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/pseudomuto/leaf/pkg/schema"
	. "github.com/pseudomuto/leaf/pkg/store"
	"github.com/pseudomuto/leaf/pkg/utils"
	"github.com/stretchr/testify/require"
)

func newDeployment(t *testing.T, s *Store, planID int64, startedAt time.Time) (*Deployment, []*Change) {
	t.Helper()

	def := &schema.ObjectDefinition{
		Identity: schema.NewIdentity("hr", "emp", schema.KindTable),
		Body:     "CREATE TABLE HR.EMP (ID NUMBER)",
	}
	op := schema.NewCreate(def)

	d := &Deployment{
		PlanID:    planID,
		Status:    DeploymentPrepared,
		Cutoff:    utils.Ptr(epoch.Add(-time.Hour)),
		FailFast:  true,
		ChangeSet: &schema.ChangeSet{Ops: []*schema.ChangeOp{op}},
		StartedAt: startedAt,
	}
	changes := []*Change{{
		Position:       0,
		Op:             op.Type,
		Identity:       op.Identity,
		Script:         op.Script(),
		ScriptHash:     "h1:fwd",
		RollbackScript: op.Inverse.Script(),
		RollbackHash:   "h1:inv",
	}}

	require.NoError(t, s.CreateDeployment(context.Background(), d, changes))
	return d, changes
}

func TestDeployments(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	p := newPlan(t, s, "promote")

	d, changes := newDeployment(t, s, p.ID, epoch)
	require.NotZero(t, d.ID)
	require.NotZero(t, changes[0].ID)
	require.Equal(t, d.ID, changes[0].DeploymentID)
	require.Equal(t, ChangePending, changes[0].Status)

	t.Run("get keeps the change set", func(t *testing.T) {
		got, err := s.GetDeployment(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, DeploymentPrepared, got.Status)
		require.True(t, got.FailFast)
		require.Equal(t, epoch.Add(-time.Hour), *got.Cutoff)
		require.Equal(t, epoch, got.StartedAt)
		require.Nil(t, got.EndedAt)
		require.Zero(t, got.Duration())

		require.Len(t, got.ChangeSet.Ops, 1)
		op := got.ChangeSet.Ops[0]
		require.Equal(t, schema.OpCreate, op.Type)
		require.Equal(t, []string{"CREATE TABLE HR.EMP (ID NUMBER)"}, op.Statements)
		require.Equal(t, []string{"DROP TABLE HR.EMP"}, op.Inverse.Statements)
	})

	t.Run("update", func(t *testing.T) {
		d.Status = DeploymentApplied
		d.Summary = Summary{Succeeded: 1}
		d.EndedAt = utils.Ptr(epoch.Add(time.Minute))
		require.NoError(t, s.UpdateDeployment(ctx, d))

		got, err := s.GetDeployment(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, DeploymentApplied, got.Status)
		require.Equal(t, 1, got.Summary.Total())
		require.Equal(t, time.Minute, got.Duration())
	})

	t.Run("changes", func(t *testing.T) {
		c := changes[0]
		c.Status = ChangeSucceeded
		c.ExecutedAt = utils.Ptr(epoch)
		require.NoError(t, s.UpdateChange(ctx, c))

		got, err := s.ListChanges(ctx, d.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, ChangeSucceeded, got[0].Status)
		require.Equal(t, schema.NewIdentity("HR", "EMP", schema.KindTable), got[0].Identity)
		require.Equal(t, "CREATE TABLE HR.EMP (ID NUMBER);", got[0].Script)
		require.Equal(t, "h1:inv", got[0].RollbackHash)
		require.Equal(t, epoch, *got[0].ExecutedAt)
		require.Nil(t, got[0].RolledBackAt)
	})

	t.Run("rollbacks", func(t *testing.T) {
		r := &Rollback{DeploymentID: d.ID, Status: ChangeRunning, StartedAt: epoch}
		require.NoError(t, s.CreateRollback(ctx, r))
		require.NotZero(t, r.ID)

		r.Status = ChangeSucceeded
		r.Summary.Succeeded = 1
		r.EndedAt = utils.Ptr(epoch.Add(time.Second))
		require.NoError(t, s.UpdateRollback(ctx, r))

		got, err := s.ListRollbacks(ctx, d.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, ChangeSucceeded, got[0].Status)
		require.Equal(t, 1, got[0].Summary.Succeeded)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := s.GetDeployment(ctx, 999)
		require.ErrorIs(t, err, ErrNotFound)
		require.ErrorIs(t, s.UpdateDeployment(ctx, &Deployment{ID: 999}), ErrNotFound)
		require.ErrorIs(t, s.UpdateChange(ctx, &Change{ID: 999}), ErrNotFound)
		require.ErrorIs(t, s.CreateDeployment(ctx, &Deployment{PlanID: 999, StartedAt: epoch}, nil), ErrNotFound)
	})
}

func TestSaveChangeSet(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	p := newPlan(t, s, "promote")

	d := &Deployment{PlanID: p.ID, Status: DeploymentPreparing, StartedAt: epoch}
	require.NoError(t, s.CreateDeployment(ctx, d, nil))

	got, err := s.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, DeploymentPreparing, got.Status)
	require.Empty(t, got.ChangeSet.Ops)

	op := schema.NewCreate(&schema.ObjectDefinition{
		Identity: schema.NewIdentity("HR", "V1", schema.KindView),
		Body:     "CREATE VIEW HR.V1 AS SELECT 1 FROM DUAL",
	})
	d.Status = DeploymentPrepared
	d.ChangeSet = &schema.ChangeSet{Ops: []*schema.ChangeOp{op}}
	changes := []*Change{{Op: op.Type, Identity: op.Identity, Script: op.Script()}}
	require.NoError(t, s.SaveChangeSet(ctx, d, changes))
	require.NotZero(t, changes[0].ID)

	got, err = s.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, DeploymentPrepared, got.Status)
	require.Len(t, got.ChangeSet.Ops, 1)

	stored, err := s.ListChanges(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, ChangePending, stored[0].Status)

	require.ErrorIs(t, s.SaveChangeSet(ctx, &Deployment{ID: 999}, nil), ErrNotFound)
}

func TestListDeployments(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	a := newPlan(t, s, "a")
	b := newPlan(t, s, "b")

	d1, _ := newDeployment(t, s, a.ID, epoch)
	d2, _ := newDeployment(t, s, b.ID, epoch.Add(time.Hour))
	d3, _ := newDeployment(t, s, a.ID, epoch.Add(2*time.Hour))

	ids := func(ds []*Deployment) []int64 {
		out := make([]int64, len(ds))
		for i, d := range ds {
			out[i] = d.ID
		}
		return out
	}

	tests := []struct {
		name     string
		opts     ListOptions
		expected []int64
	}{
		{name: "all newest first", expected: []int64{d3.ID, d2.ID, d1.ID}},
		{name: "ascending", opts: ListOptions{Ascending: true}, expected: []int64{d1.ID, d2.ID, d3.ID}},
		{name: "by plan", opts: ListOptions{PlanID: a.ID}, expected: []int64{d3.ID, d1.ID}},
		{name: "limit", opts: ListOptions{Limit: 1}, expected: []int64{d3.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListDeployments(ctx, tt.opts)
			require.NoError(t, err)
			require.Equal(t, tt.expected, ids(got))
		})
	}
}

func TestLastSuccessfulDeployment(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	p := newPlan(t, s, "promote")

	_, err := s.LastSuccessfulDeployment(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)

	applied, _ := newDeployment(t, s, p.ID, epoch)
	applied.Status = DeploymentApplied
	applied.EndedAt = utils.Ptr(epoch.Add(time.Minute))
	require.NoError(t, s.UpdateDeployment(ctx, applied))

	rolledBack, _ := newDeployment(t, s, p.ID, epoch.Add(time.Hour))
	rolledBack.Status = DeploymentRolledBack
	require.NoError(t, s.UpdateDeployment(ctx, rolledBack))

	failed, _ := newDeployment(t, s, p.ID, epoch.Add(2*time.Hour))
	failed.Status = DeploymentFailed
	require.NoError(t, s.UpdateDeployment(ctx, failed))

	got, err := s.LastSuccessfulDeployment(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, applied.ID, got.ID)

	got, err = s.LatestAppliedDeployment(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, applied.ID, got.ID)
}

func TestLastSuccessfulDeployment_SubSecond(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	p := newPlan(t, s, "promote")

	apply := func(start time.Time) *Deployment {
		d, _ := newDeployment(t, s, p.ID, start)
		d.Status = DeploymentApplied
		d.EndedAt = utils.Ptr(start)
		require.NoError(t, s.UpdateDeployment(ctx, d))
		return d
	}

	apply(epoch.Add(500 * time.Millisecond))
	newer := apply(epoch.Add(550 * time.Millisecond))

	got, err := s.LastSuccessfulDeployment(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, newer.ID, got.ID)
	require.Equal(t, epoch.Add(550*time.Millisecond), got.StartedAt)

	got, err = s.LatestAppliedDeployment(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, newer.ID, got.ID)
	require.Equal(t, epoch.Add(550*time.Millisecond), *got.EndedAt)
}
