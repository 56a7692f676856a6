// Package script renders change sets as SQL scripts that can be reviewed or
// run by hand.
package script

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/consts"
	"github.com/pseudomuto/leaf/pkg/schema"
)

const (
	// DeployFile is the name of the forward script.
	DeployFile = "deploy.sql"

	// RollbackFile is the name of the rollback script.
	RollbackFile = "rollback.sql"

	timestampLayout = "20060102-150405"
)

// Scripts holds the rendered forward and rollback scripts of a change set.
type Scripts struct {
	Deploy   string
	Rollback string
}

// Render renders the ops of cs in execution order, and their inverses in
// rollback order. Each op is introduced by a comment naming it; ops without
// statements are rendered as comments carrying their warning.
func Render(cs *schema.ChangeSet) *Scripts {
	var deploy, rollback []string
	for _, op := range cs.Ops {
		deploy = append(deploy, renderOp(op))
	}

	for i := len(cs.Ops) - 1; i >= 0; i-- {
		if inv := cs.Ops[i].Inverse; inv != nil {
			rollback = append(rollback, renderOp(inv))
		}
	}

	return &Scripts{Deploy: join(deploy), Rollback: join(rollback)}
}

// Write renders cs and writes it to <dir>/<plan>_<timestamp>/, returning the
// directory the scripts were written to.
func Write(dir, plan string, at time.Time, cs *schema.ChangeSet) (string, error) {
	out := filepath.Join(dir, plan+"_"+at.UTC().Format(timestampLayout))
	if err := os.MkdirAll(out, consts.ModeDir); err != nil {
		return "", errors.Wrapf(err, "failed to create script directory: %s", out)
	}

	s := Render(cs)
	files := []struct {
		name    string
		content string
	}{
		{DeployFile, s.Deploy},
		{RollbackFile, s.Rollback},
	}

	for _, f := range files {
		path := filepath.Join(out, f.name)
		if err := os.WriteFile(path, []byte(f.content), consts.ModeFile); err != nil {
			return "", errors.Wrapf(err, "failed to write script: %s", path)
		}
	}

	return out, nil
}

func renderOp(op *schema.ChangeOp) string {
	header := "-- " + op.String()
	if len(op.Statements) == 0 {
		return header + "\n-- skipped: " + op.Warning
	}

	if op.Warning != "" {
		header += "\n-- warning: " + op.Warning
	}
	return header + "\n" + op.Script()
}

func join(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, consts.ScriptSeparator) + "\n"
}
