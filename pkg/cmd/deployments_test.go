package cmd

import (
	"testing"
	"time"

	"github.com/pseudomuto/leaf/pkg/cmd/testutil"
	"github.com/pseudomuto/leaf/pkg/deploy"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestDeployments(t *testing.T) {
	f, run := setup(t)
	f.WithPlan("promote", schema.RuleSet{})
	f.WithPlan("other", schema.RuleSet{})
	f.WithSource(testutil.View("V1", testutil.Now.Add(-time.Hour)))

	out, err := run("deployments", "list")
	require.NoError(t, err)
	require.Equal(t, "No deployments.\n", out)

	_, err = run("plans", "run", "promote", "--cutoff-date", "2025.02.01")
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		out, err := run("deployments", "list")
		require.NoError(t, err)
		testutil.RequireOutput(t, out, "ID", "PLAN", "promote", "APPLIED")

		out, err = run("deploy", "list", "--plan", "other")
		require.NoError(t, err)
		require.Equal(t, "No deployments.\n", out)

		_, err = run("deployments", "list", "--plan", "nope")
		testutil.RequireError(t, err, "plan nope not found")

		_, err = run("deployments", "list", "--order", "sideways")
		testutil.RequireError(t, err, `invalid order "sideways"`)
	})

	t.Run("show", func(t *testing.T) {
		out, err := run("deployments", "show", "1")
		require.NoError(t, err)
		testutil.RequireOutput(t, out, "Deployment:", "promote", "APPLIED", "HR.V1", "SUCCEEDED")
		require.NotContains(t, out, "-- deploy.sql")

		out, err = run("deployments", "show", "1", "--scripts")
		require.NoError(t, err)
		testutil.RequireOutput(t, out, "-- deploy.sql", "CREATE OR REPLACE VIEW HR.V1", "-- rollback.sql")
	})

	t.Run("show after rollback", func(t *testing.T) {
		_, err := run("plans", "rollback", "promote")
		require.NoError(t, err)

		out, err := run("deployments", "show", "1")
		require.NoError(t, err)
		testutil.RequireOutput(t, out, "ROLLED_BACK", "ROLLBACK", "1")
	})

	t.Run("invalid ids", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
			err  string
		}{
			{name: "missing", args: []string{"deployments", "show"}, err: "missing required argument: id"},
			{name: "not a number", args: []string{"deployments", "show", "abc"}, err: `invalid deployment id "abc"`},
			{name: "zero", args: []string{"deployments", "apply", "0"}, err: `invalid deployment id "0"`},
			{name: "unknown", args: []string{"deployments", "show", "99"}, err: "deployment 99 not found"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := run(tt.args...)
				testutil.RequireError(t, err, tt.err)
			})
		}
	})

	t.Run("apply requires a prepared deployment", func(t *testing.T) {
		_, err := run("deployments", "apply", "1")
		require.ErrorIs(t, err, deploy.ErrNotPrepared)
	})
}
