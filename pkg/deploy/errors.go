package deploy

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/schema"
)

var (
	// ErrCutoffRequired is returned when no cutoff was given and the plan has
	// never been applied.
	ErrCutoffRequired = errors.New("cutoff required: plan has no successful deployment")

	// ErrPlanBusy is returned when another run holds the plan.
	ErrPlanBusy = errors.New("plan is busy")

	// ErrNotPrepared is returned when applying a deployment that is not PREPARED.
	ErrNotPrepared = errors.New("deployment is not prepared")

	// ErrNothingToRollback is returned when the plan has no applied deployment.
	ErrNothingToRollback = errors.New("no applied deployment to roll back")

	// ErrHashMismatch is returned when a stored script no longer matches its hash.
	ErrHashMismatch = errors.New("script hash mismatch")
)

// RollbackIncompleteError reports a rollback that stopped part way. The
// deployment stays APPLIED.
type RollbackIncompleteError struct {
	DeploymentID int64
	RolledBack   []schema.ObjectIdentity
	Failed       schema.ObjectIdentity
	Err          error
}

func (e *RollbackIncompleteError) Error() string {
	done := make([]string, len(e.RolledBack))
	for i, id := range e.RolledBack {
		done[i] = id.String()
	}

	return fmt.Sprintf(
		"rollback of deployment %d incomplete: %s failed: %v (rolled back: [%s])",
		e.DeploymentID, e.Failed, e.Err, strings.Join(done, ", "),
	)
}

func (e *RollbackIncompleteError) Unwrap() error { return e.Err }
