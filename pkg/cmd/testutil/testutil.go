// Package testutil provides fixtures for exercising leaf commands against a
// temporary state database and in-memory connections.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/pseudomuto/leaf/pkg/config"
	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/connector/connectortest"
	"github.com/pseudomuto/leaf/pkg/consts"
	"github.com/pseudomuto/leaf/pkg/deploy"
	"github.com/pseudomuto/leaf/pkg/metrics"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/pseudomuto/leaf/pkg/store"
	"github.com/pseudomuto/leaf/pkg/utils"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// Now is the fixture clock's starting time.
var Now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Fixture is an isolated leaf workspace. Connections named "dev" and "prod"
// resolve to the Source and Target sessions through the "fake" driver.
type Fixture struct {
	Dir        string
	Config     *config.Config
	Clock      *testclock.Clock
	Store      *store.Store
	Source     *connectortest.Session
	Target     *connectortest.Session
	Registry   *connector.Registry
	Metrics    *metrics.Metrics
	Controller *deploy.Controller
	t          *testing.T
}

// NewFixture creates a workspace in a temp directory.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()

	dir := t.TempDir()
	clk := testclock.NewClock(Now)

	cfg := config.Default()
	cfg.Database = filepath.Join(dir, "leaf.db")
	cfg.ScriptsDir = filepath.Join(dir, "scripts")
	cfg.MetricsFile = filepath.Join(dir, "leaf.prom")

	s, err := store.New(context.Background(), store.Config{Path: cfg.Database, Clock: clk})
	require.NoError(t, err, "Failed to open state database")
	t.Cleanup(func() { _ = s.Close() })

	f := &Fixture{
		Dir:     dir,
		Config:  cfg,
		Clock:   clk,
		Store:   s,
		Source:  &connectortest.Session{SchemaNames: []string{"HR"}},
		Target:  &connectortest.Session{SchemaNames: []string{"HR"}},
		Metrics: metrics.New(),
		t:       t,
	}

	f.Registry = connectortest.Registry(map[string]*connectortest.Session{"dev": f.Source, "prod": f.Target})
	f.Controller = deploy.New(deploy.Config{Repo: s, Registry: f.Registry, Clock: clk, Metrics: f.Metrics})
	return f
}

// WithConnections stores the "dev" and "prod" connections.
func (f *Fixture) WithConnections() *Fixture {
	f.t.Helper()

	for _, name := range []string{"dev", "prod"} {
		c := &store.Connection{Connection: connector.Connection{Name: name, Driver: "fake", ConnectionString: name}}
		require.NoError(f.t, f.Store.CreateConnection(context.Background(), c), "Failed to create connection %s", name)
	}
	return f
}

// WithPlan stores a plan from dev to prod over the HR schema. Connections are
// created first when missing.
func (f *Fixture) WithPlan(name string, rules schema.RuleSet) *store.Plan {
	f.t.Helper()
	ctx := context.Background()

	if _, err := f.Store.GetConnectionByName(ctx, "dev"); err != nil {
		f.WithConnections()
	}

	src, err := f.Store.GetConnectionByName(ctx, "dev")
	require.NoError(f.t, err)
	dst, err := f.Store.GetConnectionByName(ctx, "prod")
	require.NoError(f.t, err)

	p := &store.Plan{Name: name, SourceID: src.ID, TargetID: dst.ID, Schemas: []string{"HR"}, Rules: rules}
	require.NoError(f.t, f.Store.CreatePlan(ctx, p), "Failed to create plan %s", name)
	return p
}

// WithSource makes the source snapshot return defs.
func (f *Fixture) WithSource(defs ...*schema.ObjectDefinition) *Fixture {
	f.Source.SnapshotFunc = f.snapshot(defs)
	return f
}

// WithTarget makes the target snapshot return defs.
func (f *Fixture) WithTarget(defs ...*schema.ObjectDefinition) *Fixture {
	f.Target.SnapshotFunc = f.snapshot(defs)
	return f
}

// WriteFile writes content to name under the fixture directory and returns
// its path.
func (f *Fixture) WriteFile(name, content string) string {
	f.t.Helper()

	path := filepath.Join(f.Dir, name)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), consts.ModeDir))
	require.NoError(f.t, os.WriteFile(path, []byte(content), consts.ModeFile), "Failed to write %s", name)
	return path
}

func (f *Fixture) snapshot(defs []*schema.ObjectDefinition) func(context.Context, []string) (*schema.Snapshot, error) {
	return func(_ context.Context, schemas []string) (*schema.Snapshot, error) {
		return schema.NewSnapshot(f.Clock.Now(), schemas, defs...)
	}
}

// View returns an HR view definition last modified at modified.
func View(name string, modified time.Time) *schema.ObjectDefinition {
	return &schema.ObjectDefinition{
		Identity:     schema.NewIdentity("HR", name, schema.KindView),
		Body:         "CREATE OR REPLACE VIEW HR." + name + " AS SELECT 1 FROM DUAL",
		LastModified: utils.Ptr(modified),
	}
}

// Run runs commands as the leaf CLI with args (excluding the program name)
// and returns everything written to its output.
func Run(ctx context.Context, commands []*cli.Command, args ...string) (string, error) {
	var buf bytes.Buffer

	app := &cli.Command{
		Name:      "leaf",
		Writer:    &buf,
		ErrWriter: &buf,
		Commands:  commands,
	}

	err := app.Run(ctx, append([]string{"leaf"}, args...))
	return buf.String(), err
}
