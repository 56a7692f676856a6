package schema_test

import (
	"testing"
	"time"

	. "github.com/pseudomuto/leaf/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestRuleSet_Excludes(t *testing.T) {
	tests := []struct {
		name     string
		rules    RuleSet
		id       ObjectIdentity
		excluded bool
	}{
		{
			name: "known kind included by default",
			id:   NewIdentity("hr", "emp", KindTable),
		},
		{
			name:     "unknown kind excluded by default",
			id:       NewIdentity("hr", "emp_syn", ObjectKind("SYNONYM")),
			excluded: true,
		},
		{
			name:  "unknown kind opted in",
			rules: RuleSet{IncludeUnknownKinds: true},
			id:    NewIdentity("hr", "emp_syn", ObjectKind("SYNONYM")),
		},
		{
			name:     "excluded type",
			rules:    RuleSet{ExcludedTypes: []ObjectKind{KindTrigger}},
			id:       NewIdentity("hr", "emp_trg", KindTrigger),
			excluded: true,
		},
		{
			name:     "name glob",
			rules:    RuleSet{ExcludedNames: []string{"tmp_*"}},
			id:       NewIdentity("hr", "TMP_LOAD", KindTable),
			excluded: true,
		},
		{
			name:     "qualified name glob",
			rules:    RuleSet{ExcludedNames: []string{"hr.audit_*"}},
			id:       NewIdentity("hr", "audit_log", KindTable),
			excluded: true,
		},
		{
			name:  "qualified glob in another schema",
			rules: RuleSet{ExcludedNames: []string{"hr.audit_*"}},
			id:    NewIdentity("sales", "audit_log", KindTable),
		},
		{
			name:     "exact name",
			rules:    RuleSet{ExcludedNames: []string{"EMP"}},
			id:       NewIdentity("hr", "emp", KindView),
			excluded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.excluded, tt.rules.Excludes(tt.id))
		})
	}
}

func TestRuleSet_DropDisabled(t *testing.T) {
	rules := RuleSet{DisabledDropTypes: []ObjectKind{KindTable}}
	require.True(t, rules.DropDisabled(KindTable))
	require.False(t, rules.DropDisabled(KindView))

	rules = RuleSet{DisableAllDrops: true}
	require.True(t, rules.DropDisabled(KindView))
}

func TestRuleSet_AfterCutoff(t *testing.T) {
	rules := RuleSet{}.WithCutoff(t1)

	require.False(t, rules.AfterCutoff(def("hr", "a", KindView, "", &t0)), "before cutoff")
	require.False(t, rules.AfterCutoff(def("hr", "a", KindView, "", &t1)), "at cutoff is excluded")
	require.True(t, rules.AfterCutoff(def("hr", "a", KindView, "", &t2)), "after cutoff")
	require.True(t, rules.AfterCutoff(def("hr", "a", KindView, "", nil)), "no timestamp is always current")
	require.True(t, RuleSet{}.AfterCutoff(def("hr", "a", KindView, "", &t0)), "no cutoff")
}

func TestParseCutoff(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
		err      bool
	}{
		{input: "2025.03.01:18.30.05", expected: time.Date(2025, 3, 1, 18, 30, 5, 0, time.UTC)},
		{input: " 2025.03.01 ", expected: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{input: "2025-03-01", err: true},
		{input: "", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCutoff(tt.input)
			if tt.err {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid cutoff")
				return
			}

			require.NoError(t, err)
			require.True(t, tt.expected.Equal(got))
		})
	}
}
