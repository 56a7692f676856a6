package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/schema"
)

const (
	deploymentColumns = `id, plan_id, status, cutoff, fail_fast, changeset, succeeded, failed, skipped,
	error, started_at, ended_at`

	changeColumns = `id, deployment_id, position, op, object_schema, object_name, object_kind, script,
	script_hash, rollback_script, rollback_hash, warning, status, error, rollback_status, rollback_error,
	executed_at, rolled_back_at`

	rollbackColumns = `id, deployment_id, status, succeeded, failed, error, started_at, ended_at`
)

// CreateDeployment stores d and its changes in one transaction, setting the
// IDs of both. Change positions are kept as given.
func (s *Store) CreateDeployment(ctx context.Context, d *Deployment, changes []*Change) error {
	cs, err := json.Marshal(d.ChangeSet)
	if err != nil {
		return errors.Wrap(err, "failed to marshal change set")
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO deployments (plan_id, status, cutoff, fail_fast, changeset, succeeded, failed, skipped,
				error, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.PlanID, string(d.Status), formatTimePtr(d.Cutoff), boolInt(d.FailFast), string(cs),
			d.Summary.Succeeded, d.Summary.Failed, d.Summary.Skipped, d.Error,
			formatTime(d.StartedAt), formatTimePtr(d.EndedAt))
		if err != nil {
			if isForeignKeyViolation(err) {
				return errors.Wrapf(ErrNotFound, "plan %d", d.PlanID)
			}
			return errors.Wrap(err, "failed to create deployment")
		}

		if d.ID, err = res.LastInsertId(); err != nil {
			return errors.Wrap(err, "failed to read deployment id")
		}

		return insertChanges(ctx, tx, d.ID, changes)
	})
}

// SaveChangeSet stores the change set computed for a deployment created
// without one, together with its changes, and updates the deployment's status.
func (s *Store) SaveChangeSet(ctx context.Context, d *Deployment, changes []*Change) error {
	cs, err := json.Marshal(d.ChangeSet)
	if err != nil {
		return errors.Wrap(err, "failed to marshal change set")
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE deployments SET status = ?, fail_fast = ?, changeset = ? WHERE id = ?
		`, string(d.Status), boolInt(d.FailFast), string(cs), d.ID)
		if err != nil {
			return errors.Wrapf(err, "failed to save change set of deployment %d", d.ID)
		}

		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.Wrapf(ErrNotFound, "deployment %d", d.ID)
		}

		return insertChanges(ctx, tx, d.ID, changes)
	})
}

func insertChanges(ctx context.Context, tx *sql.Tx, deploymentID int64, changes []*Change) error {
	for _, c := range changes {
		c.DeploymentID = deploymentID
		if c.Status == "" {
			c.Status = ChangePending
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO changes (deployment_id, position, op, object_schema, object_name, object_kind,
				script, script_hash, rollback_script, rollback_hash, warning, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.DeploymentID, c.Position, string(c.Op), c.Identity.Schema, c.Identity.Name,
			string(c.Identity.Kind), c.Script, c.ScriptHash, c.RollbackScript, c.RollbackHash,
			c.Warning, string(c.Status))
		if err != nil {
			return errors.Wrapf(err, "failed to create change %d", c.Position)
		}

		if c.ID, err = res.LastInsertId(); err != nil {
			return errors.Wrap(err, "failed to read change id")
		}
	}

	return nil
}

// UpdateDeployment persists d's mutable fields: status, fail-fast, summary,
// error and end time.
func (s *Store) UpdateDeployment(ctx context.Context, d *Deployment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deployments
		SET status = ?, fail_fast = ?, succeeded = ?, failed = ?, skipped = ?, error = ?, ended_at = ?
		WHERE id = ?
	`, string(d.Status), boolInt(d.FailFast), d.Summary.Succeeded, d.Summary.Failed, d.Summary.Skipped,
		d.Error, formatTimePtr(d.EndedAt), d.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to update deployment %d", d.ID)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "deployment %d", d.ID)
	}
	return nil
}

// GetDeployment returns the deployment with id.
func (s *Store) GetDeployment(ctx context.Context, id int64) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = ?`, id)
	d, err := scanDeployment(row)
	if err != nil {
		return nil, errors.Wrapf(err, "deployment %d", id)
	}
	return d, nil
}

// ListDeployments returns deployments newest first, unless opts.Ascending.
func (s *Store) ListDeployments(ctx context.Context, opts ListOptions) ([]*Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments`
	var args []any

	if opts.PlanID != 0 {
		query += ` WHERE plan_id = ?`
		args = append(args, opts.PlanID)
	}

	if opts.Ascending {
		query += ` ORDER BY id ASC`
	} else {
		query += ` ORDER BY id DESC`
	}

	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list deployments")
	}
	defer func() { _ = rows.Close() }()

	var deployments []*Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}

	return deployments, errors.Wrap(rows.Err(), "failed to list deployments")
}

// LastSuccessfulDeployment returns the plan's most recent applied deployment.
// Its start time is the default cutoff for the next prepare. ErrNotFound means
// the plan has never been applied.
func (s *Store) LastSuccessfulDeployment(ctx context.Context, planID int64) (*Deployment, error) {
	return s.latestApplied(ctx, planID)
}

// LatestAppliedDeployment returns the plan's most recent applied deployment,
// which is the one rollback undoes.
func (s *Store) LatestAppliedDeployment(ctx context.Context, planID int64) (*Deployment, error) {
	return s.latestApplied(ctx, planID)
}

// latestApplied orders by id: only a plan's newest deployment can be applied,
// so ids follow apply order.
func (s *Store) latestApplied(ctx context.Context, planID int64) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deploymentColumns+` FROM deployments
		WHERE plan_id = ? AND status = ?
		ORDER BY id DESC
		LIMIT 1
	`, planID, string(DeploymentApplied))

	d, err := scanDeployment(row)
	if err != nil {
		return nil, errors.Wrapf(err, "applied deployment for plan %d", planID)
	}
	return d, nil
}

// ListChanges returns a deployment's changes in apply order.
func (s *Store) ListChanges(ctx context.Context, deploymentID int64) ([]*Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+changeColumns+` FROM changes WHERE deployment_id = ? ORDER BY position
	`, deploymentID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list changes for deployment %d", deploymentID)
	}
	defer func() { _ = rows.Close() }()

	var changes []*Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}

	return changes, errors.Wrapf(rows.Err(), "failed to list changes for deployment %d", deploymentID)
}

// UpdateChange persists c's execution and rollback outcome.
func (s *Store) UpdateChange(ctx context.Context, c *Change) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE changes
		SET status = ?, error = ?, rollback_status = ?, rollback_error = ?, executed_at = ?, rolled_back_at = ?
		WHERE id = ?
	`, string(c.Status), c.Error, string(c.RollbackStatus), c.RollbackError,
		formatTimePtr(c.ExecutedAt), formatTimePtr(c.RolledBackAt), c.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to update change %d", c.ID)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "change %d", c.ID)
	}
	return nil
}

// CreateRollback stores a rollback attempt and sets its ID.
func (s *Store) CreateRollback(ctx context.Context, r *Rollback) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rollbacks (deployment_id, status, succeeded, failed, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.DeploymentID, string(r.Status), r.Summary.Succeeded, r.Summary.Failed, r.Error,
		formatTime(r.StartedAt), formatTimePtr(r.EndedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.Wrapf(ErrNotFound, "deployment %d", r.DeploymentID)
		}
		return errors.Wrap(err, "failed to create rollback")
	}

	r.ID, err = res.LastInsertId()
	return errors.Wrap(err, "failed to read rollback id")
}

// UpdateRollback persists r's outcome.
func (s *Store) UpdateRollback(ctx context.Context, r *Rollback) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rollbacks SET status = ?, succeeded = ?, failed = ?, error = ?, ended_at = ? WHERE id = ?
	`, string(r.Status), r.Summary.Succeeded, r.Summary.Failed, r.Error, formatTimePtr(r.EndedAt), r.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to update rollback %d", r.ID)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "rollback %d", r.ID)
	}
	return nil
}

// ListRollbacks returns a deployment's rollback attempts, oldest first.
func (s *Store) ListRollbacks(ctx context.Context, deploymentID int64) ([]*Rollback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rollbackColumns+` FROM rollbacks WHERE deployment_id = ? ORDER BY id
	`, deploymentID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list rollbacks for deployment %d", deploymentID)
	}
	defer func() { _ = rows.Close() }()

	var rollbacks []*Rollback
	for rows.Next() {
		var (
			r         Rollback
			status    string
			startedAt string
			endedAt   sql.NullString
		)

		err := rows.Scan(&r.ID, &r.DeploymentID, &status, &r.Summary.Succeeded, &r.Summary.Failed,
			&r.Error, &startedAt, &endedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan rollback")
		}

		r.Status = ChangeStatus(status)
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if r.EndedAt, err = parseTimePtr(endedAt); err != nil {
			return nil, err
		}
		rollbacks = append(rollbacks, &r)
	}

	return rollbacks, errors.Wrapf(rows.Err(), "failed to list rollbacks for deployment %d", deploymentID)
}

func scanDeployment(row scanner) (*Deployment, error) {
	var (
		d                 Deployment
		status, changeset string
		cutoff, endedAt   sql.NullString
		failFast          int
		startedAt         string
	)

	err := row.Scan(&d.ID, &d.PlanID, &status, &cutoff, &failFast, &changeset,
		&d.Summary.Succeeded, &d.Summary.Failed, &d.Summary.Skipped, &d.Error, &startedAt, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to scan deployment")
	}

	d.Status = DeploymentStatus(status)
	d.FailFast = failFast != 0

	d.ChangeSet = &schema.ChangeSet{}
	if err := json.Unmarshal([]byte(changeset), d.ChangeSet); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal change set of deployment %d", d.ID)
	}

	if d.Cutoff, err = parseTimePtr(cutoff); err != nil {
		return nil, err
	}
	if d.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if d.EndedAt, err = parseTimePtr(endedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanChange(row scanner) (*Change, error) {
	var (
		c                               Change
		op, objSchema, objName, objKind string
		status, rollbackStatus          string
		executedAt, rolledBackAt        sql.NullString
	)

	err := row.Scan(&c.ID, &c.DeploymentID, &c.Position, &op, &objSchema, &objName, &objKind,
		&c.Script, &c.ScriptHash, &c.RollbackScript, &c.RollbackHash, &c.Warning, &status, &c.Error,
		&rollbackStatus, &c.RollbackError, &executedAt, &rolledBackAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan change")
	}

	c.Op = schema.OpType(op)
	c.Identity = schema.NewIdentity(objSchema, objName, schema.ObjectKind(objKind))
	c.Status = ChangeStatus(status)
	c.RollbackStatus = ChangeStatus(rollbackStatus)

	if c.ExecutedAt, err = parseTimePtr(executedAt); err != nil {
		return nil, err
	}
	if c.RolledBackAt, err = parseTimePtr(rolledBackAt); err != nil {
		return nil, err
	}
	return &c, nil
}
