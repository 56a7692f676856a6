package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/hooks"
)

const planColumns = `id, name, source_connection_id, target_connection_id, schemas, rules, hooks,
	disable_hooks, schedule, status, created_at, updated_at`

// CreatePlan stores p as IDLE and sets its ID and timestamps. The rule set's
// cutoff is never stored; it is resolved per run.
func (s *Store) CreatePlan(ctx context.Context, p *Plan) error {
	schemas, err := json.Marshal(p.Schemas)
	if err != nil {
		return errors.Wrap(err, "failed to marshal schemas")
	}

	rules := p.Rules
	rules.Cutoff = nil
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return errors.Wrap(err, "failed to marshal rules")
	}

	hooksJSON, err := p.Hooks.JSON()
	if err != nil {
		return err
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (name, source_connection_id, target_connection_id, schemas, rules, hooks,
			disable_hooks, schedule, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Name, p.SourceID, p.TargetID, string(schemas), string(rulesJSON), hooksJSON,
		boolInt(p.DisableHooks), p.Schedule, string(PlanIdle), formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(ErrDuplicate, "plan %s", p.Name)
		}
		if isForeignKeyViolation(err) {
			return errors.Wrapf(ErrNotFound, "plan %s: connection", p.Name)
		}
		return errors.Wrapf(err, "failed to create plan %s", p.Name)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read plan id")
	}

	p.ID = id
	p.Rules = rules
	p.Status = PlanIdle
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetPlan returns the plan with id.
func (s *Store) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if err != nil {
		return nil, errors.Wrapf(err, "plan %d", id)
	}
	return p, nil
}

// GetPlanByName returns the plan named name, ignoring case.
func (s *Store) GetPlanByName(ctx context.Context, name string) (*Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE name = ?`, name)
	p, err := scanPlan(row)
	if err != nil {
		return nil, errors.Wrapf(err, "plan %s", name)
	}
	return p, nil
}

// ListPlans returns every plan ordered by name.
func (s *Store) ListPlans(ctx context.Context) ([]*Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+planColumns+` FROM plans ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list plans")
	}
	defer func() { _ = rows.Close() }()

	var plans []*Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}

	return plans, errors.Wrap(rows.Err(), "failed to list plans")
}

// DeletePlan removes the plan named name along with its deployment history.
func (s *Store) DeletePlan(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE name = ?`, name)
	if err != nil {
		return errors.Wrapf(err, "failed to delete plan %s", name)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "plan %s", name)
	}
	return nil
}

// PrunePlans removes every plan and returns how many were removed.
func (s *Store) PrunePlans(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune plans")
	}
	return affected(res)
}

// ClaimPlan atomically moves the plan from one of the from statuses to BUSY
// and returns the token that must be presented to release it. A plan in any
// other status returns ErrClaimed.
func (s *Store) ClaimPlan(ctx context.Context, planID int64, from ...PlanStatus) (string, error) {
	if len(from) == 0 {
		from = []PlanStatus{PlanIdle}
	}

	token := uuid.NewString()
	args := []any{string(PlanBusy), token, formatTime(s.now()), planID}
	marks := make([]string, len(from))
	for i, st := range from {
		marks[i] = "?"
		args = append(args, string(st))
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, busy_token = ?, updated_at = ?
		WHERE id = ? AND status IN (`+strings.Join(marks, ", ")+`)
	`, args...)
	if err != nil {
		return "", errors.Wrapf(err, "failed to claim plan %d", planID)
	}

	n, err := affected(res)
	if err != nil {
		return "", err
	}
	if n == 1 {
		return token, nil
	}

	p, err := s.GetPlan(ctx, planID)
	if err != nil {
		return "", err
	}
	return "", errors.Wrapf(ErrClaimed, "plan %s is %s", p.Name, p.Status)
}

// ReleasePlan sets the status of a plan claimed with token. It returns
// ErrClaimed when the token no longer holds the plan (e.g. after a reset).
func (s *Store) ReleasePlan(ctx context.Context, planID int64, token string, status PlanStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, busy_token = '', updated_at = ?
		WHERE id = ? AND busy_token = ?
	`, string(status), formatTime(s.now()), planID, token)
	if err != nil {
		return errors.Wrapf(err, "failed to release plan %d", planID)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrClaimed, "plan %d token %s", planID, token)
	}
	return nil
}

// ResetPlan forces the plan back to IDLE regardless of its status,
// invalidating any outstanding claim. Deployment rows are not touched.
func (s *Store) ResetPlan(ctx context.Context, planID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, busy_token = '', updated_at = ? WHERE id = ?
	`, string(PlanIdle), formatTime(s.now()), planID)
	if err != nil {
		return errors.Wrapf(err, "failed to reset plan %d", planID)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "plan %d", planID)
	}
	return nil
}

func scanPlan(row scanner) (*Plan, error) {
	var (
		p                            Plan
		schemas, rules, hooksJSON    string
		disableHooks                 int
		status, createdAt, updatedAt string
	)

	err := row.Scan(&p.ID, &p.Name, &p.SourceID, &p.TargetID, &schemas, &rules, &hooksJSON,
		&disableHooks, &p.Schedule, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to scan plan")
	}

	if err := json.Unmarshal([]byte(schemas), &p.Schemas); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal plan schemas")
	}
	if err := json.Unmarshal([]byte(rules), &p.Rules); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal plan rules")
	}
	if p.Hooks, err = hooks.Parse(hooksJSON); err != nil {
		return nil, err
	}

	p.DisableHooks = disableHooks != 0
	p.Status = PlanStatus(status)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
