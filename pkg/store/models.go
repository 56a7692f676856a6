package store

import (
	"time"

	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/hooks"
	"github.com/pseudomuto/leaf/pkg/schema"
)

type (
	// PlanStatus is a plan's runnability marker. It is the value the busy
	// claim compares and swaps.
	PlanStatus string

	// DeploymentStatus is the lifecycle state of a Deployment.
	DeploymentStatus string

	// ChangeStatus is the outcome of executing one change.
	ChangeStatus string

	// Connection is a stored connector.Connection.
	Connection struct {
		ID int64
		connector.Connection
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Plan is a named source/target pairing with the rules used to diff them.
	Plan struct {
		ID           int64
		Name         string
		SourceID     int64
		TargetID     int64
		Schemas      []string
		Rules        schema.RuleSet
		Hooks        hooks.Hooks
		DisableHooks bool
		Schedule     string
		Status       PlanStatus
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// Summary counts change outcomes.
	Summary struct {
		Succeeded int
		Failed    int
		Skipped   int
	}

	// Deployment is one execution attempt of a plan. ChangeSet is stored
	// verbatim, inverses included.
	Deployment struct {
		ID        int64
		PlanID    int64
		Status    DeploymentStatus
		Cutoff    *time.Time
		FailFast  bool
		ChangeSet *schema.ChangeSet
		Summary   Summary
		Error     string
		StartedAt time.Time
		EndedAt   *time.Time
	}

	// Change is the durable record of one op in a deployment. Position is the
	// op's index in the ordered change set.
	Change struct {
		ID             int64
		DeploymentID   int64
		Position       int
		Op             schema.OpType
		Identity       schema.ObjectIdentity
		Script         string
		ScriptHash     string
		RollbackScript string
		RollbackHash   string
		Warning        string
		Status         ChangeStatus
		Error          string
		RollbackStatus ChangeStatus
		RollbackError  string
		ExecutedAt     *time.Time
		RolledBackAt   *time.Time
	}

	// Rollback records one rollback attempt of a deployment.
	Rollback struct {
		ID           int64
		DeploymentID int64
		Status       ChangeStatus
		Summary      Summary
		Error        string
		StartedAt    time.Time
		EndedAt      *time.Time
	}

	// ListOptions filters ListDeployments. A zero PlanID lists every plan and a
	// zero Limit returns everything.
	ListOptions struct {
		PlanID    int64
		Limit     int
		Ascending bool
	}
)

const (
	PlanIdle     PlanStatus = "IDLE"
	PlanBusy     PlanStatus = "BUSY"
	PlanPrepared PlanStatus = "PREPARED"
	PlanFailed   PlanStatus = "FAILED"

	DeploymentPreparing  DeploymentStatus = "PREPARING"
	DeploymentPrepared   DeploymentStatus = "PREPARED"
	DeploymentApplying   DeploymentStatus = "APPLYING"
	DeploymentApplied    DeploymentStatus = "APPLIED"
	DeploymentFailed     DeploymentStatus = "FAILED"
	DeploymentRolledBack DeploymentStatus = "ROLLED_BACK"

	ChangePending   ChangeStatus = "PENDING"
	ChangeRunning   ChangeStatus = "RUNNING"
	ChangeSucceeded ChangeStatus = "SUCCEEDED"
	ChangeFailed    ChangeStatus = "FAILED"
	ChangeSkipped   ChangeStatus = "SKIPPED"
)

// Total returns the number of changes counted.
func (s Summary) Total() int {
	return s.Succeeded + s.Failed + s.Skipped
}

// Terminal reports whether no further transition is expected from s.
func (s DeploymentStatus) Terminal() bool {
	switch s {
	case DeploymentApplied, DeploymentFailed, DeploymentRolledBack:
		return true
	}
	return false
}

// Duration is how long the deployment ran, or zero while it is in flight.
func (d *Deployment) Duration() time.Duration {
	if d.EndedAt == nil {
		return 0
	}
	return d.EndedAt.Sub(d.StartedAt)
}
