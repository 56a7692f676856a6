package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Stage is a point in the deployment lifecycle where hook scripts run.
type Stage string

const (
	PrePrepare   Stage = "pre_prepare"
	PostPrepare  Stage = "post_prepare"
	PreApply     Stage = "pre_apply"
	PostApply    Stage = "post_apply"
	PreRollback  Stage = "pre_rollback"
	PostRollback Stage = "post_rollback"
)

var planVar = regexp.MustCompile(`\{\{\s*plan\s*\}\}`)

type (
	// Hooks holds the ordered scripts for each stage.
	Hooks struct {
		PrePrepare   []string `json:"pre_prepare,omitempty" yaml:"pre_prepare,omitempty"`
		PostPrepare  []string `json:"post_prepare,omitempty" yaml:"post_prepare,omitempty"`
		PreApply     []string `json:"pre_apply,omitempty" yaml:"pre_apply,omitempty"`
		PostApply    []string `json:"post_apply,omitempty" yaml:"post_apply,omitempty"`
		PreRollback  []string `json:"pre_rollback,omitempty" yaml:"pre_rollback,omitempty"`
		PostRollback []string `json:"post_rollback,omitempty" yaml:"post_rollback,omitempty"`
	}

	// Context is the data available to hook scripts.
	Context struct {
		PlanName string
	}

	// Executor runs one statement. connector.Session satisfies it.
	Executor interface {
		Execute(ctx context.Context, ddl string) error
	}

	// Runner executes a plan's hooks.
	Runner struct {
		Hooks    Hooks
		Disabled bool
	}

	// HookError reports the script that failed. Index is zero-based within
	// the stage.
	HookError struct {
		Stage  Stage
		Index  int
		Script string
		Err    error
	}
)

// Stages returns every stage in lifecycle order.
func Stages() []Stage {
	return []Stage{PrePrepare, PostPrepare, PreApply, PostApply, PreRollback, PostRollback}
}

// Load decodes hooks from YAML. JSON documents are valid YAML and load the
// same way. Unknown stages are rejected.
func Load(r io.Reader) (*Hooks, error) {
	var h Hooks

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return &h, nil
		}
		return nil, errors.Wrap(err, "failed to unmarshal hooks")
	}

	return &h, nil
}

// LoadFile loads hooks from the file at path.
func LoadFile(path string) (*Hooks, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}

// Parse decodes hooks stored as JSON. An empty string yields no hooks.
func Parse(data string) (Hooks, error) {
	var h Hooks
	if strings.TrimSpace(data) == "" {
		return h, nil
	}

	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return h, errors.Wrap(err, "failed to unmarshal hooks")
	}
	return h, nil
}

// JSON encodes the hooks for storage. Empty hooks encode as "".
func (h Hooks) JSON() (string, error) {
	if h.Empty() {
		return "", nil
	}

	data, err := json.Marshal(h)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal hooks")
	}
	return string(data), nil
}

// Scripts returns the scripts registered for stage.
func (h Hooks) Scripts(stage Stage) []string {
	switch stage {
	case PrePrepare:
		return h.PrePrepare
	case PostPrepare:
		return h.PostPrepare
	case PreApply:
		return h.PreApply
	case PostApply:
		return h.PostApply
	case PreRollback:
		return h.PreRollback
	case PostRollback:
		return h.PostRollback
	default:
		return nil
	}
}

// Empty reports whether no stage has scripts.
func (h Hooks) Empty() bool {
	for _, stage := range Stages() {
		if len(h.Scripts(stage)) > 0 {
			return false
		}
	}
	return true
}

// Render substitutes {{ plan }} (whitespace inside the braces is allowed) with
// the plan name.
func Render(script string, hctx Context) string {
	return planVar.ReplaceAllLiteralString(script, hctx.PlanName)
}

// Run renders and executes the scripts for stage in order. Blank scripts are
// skipped. The first failure stops the stage and is returned as a *HookError.
func (r *Runner) Run(ctx context.Context, stage Stage, hctx Context, exec Executor) error {
	if r == nil || r.Disabled {
		return nil
	}

	scripts := r.Hooks.Scripts(stage)
	if len(scripts) == 0 {
		return nil
	}

	slog.Info("Running hooks", "stage", stage, "plan", hctx.PlanName, "count", len(scripts))
	for i, script := range scripts {
		rendered := strings.TrimSpace(Render(script, hctx))
		if rendered == "" {
			slog.Debug("Skipping empty hook", "stage", stage, "index", i)
			continue
		}

		if err := exec.Execute(ctx, rendered); err != nil {
			return &HookError{Stage: stage, Index: i, Script: rendered, Err: err}
		}
	}

	return nil
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook %d failed: %v", e.Stage, e.Index+1, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
