package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pseudomuto/leaf/pkg/store"
	"github.com/stretchr/testify/require"
)

// RequireFileExists asserts that a file exists and optionally checks its content
func RequireFileExists(t *testing.T, path string, checks ...func(content string)) {
	t.Helper()

	require.FileExists(t, path, "File should exist: %s", path)

	if len(checks) > 0 {
		content, err := os.ReadFile(path)
		require.NoError(t, err, "Failed to read file: %s", path)

		for _, check := range checks {
			check(string(content))
		}
	}
}

// RequireFileContains returns a check function that verifies file contains text
func RequireFileContains(t *testing.T, expected string) func(string) {
	return func(content string) {
		require.Contains(t, content, expected, "File should contain: %s", expected)
	}
}

// RequireNoFile asserts that a file does not exist
func RequireNoFile(t *testing.T, path string) {
	t.Helper()

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "File should not exist: %s", path)
}

// RequireScripts asserts that dir holds exactly one script directory for plan
// and returns its path.
func RequireScripts(t *testing.T, dir, plan string) string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, plan+"_*"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "Expected one script directory for %s", plan)

	RequireFileExists(t, filepath.Join(matches[0], "deploy.sql"))
	RequireFileExists(t, filepath.Join(matches[0], "rollback.sql"))
	return matches[0]
}

// RequireError asserts that an error occurred and optionally checks the message
func RequireError(t *testing.T, err error, msgContains ...string) {
	t.Helper()

	require.Error(t, err, "Expected an error")

	for _, msg := range msgContains {
		require.Contains(t, err.Error(), msg, "Error message should contain: %s", msg)
	}
}

// RequirePlanStatus asserts the stored status of the named plan.
func RequirePlanStatus(t *testing.T, s *store.Store, name string, expected store.PlanStatus) {
	t.Helper()

	p, err := s.GetPlanByName(context.Background(), name)
	require.NoError(t, err)
	require.Equal(t, expected, p.Status, "Plan %s should be %s", name, expected)
}

// RequireOutput asserts that out contains every line of expected, ignoring
// surrounding whitespace.
func RequireOutput(t *testing.T, out string, expected ...string) {
	t.Helper()

	for _, want := range expected {
		require.Contains(t, out, strings.TrimSpace(want))
	}
}
