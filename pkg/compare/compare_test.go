package compare_test

import (
	"strings"
	"testing"
	"time"

	. "github.com/pseudomuto/leaf/pkg/compare"
	"github.com/stretchr/testify/require"
)

func TestNilCheck(t *testing.T) {
	five := 5

	tests := []struct {
		name             string
		a, b             *int
		expectedEqual    bool
		expectedContinue bool
	}{
		{name: "both nil", expectedEqual: true},
		{name: "first nil", b: &five},
		{name: "second nil", a: &five},
		{name: "neither nil", a: &five, b: &five, expectedContinue: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			equal, shouldContinue := NilCheck(tt.a, tt.b)
			require.Equal(t, tt.expectedEqual, equal)
			require.Equal(t, tt.expectedContinue, shouldContinue)
		})
	}
}

func TestPointersWithEqual(t *testing.T) {
	utc := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("EST", -5*3600))
	later := utc.Add(time.Second)
	sameInstant := func(a, b *time.Time) bool { return a.Equal(*b) }

	require.True(t, PointersWithEqual[time.Time](nil, nil, sameInstant))
	require.False(t, PointersWithEqual(&utc, nil, sameInstant))
	require.False(t, PointersWithEqual(nil, &utc, sameInstant))
	require.True(t, PointersWithEqual(&utc, &local, sameInstant))
	require.False(t, PointersWithEqual(&utc, &later, sameInstant))
}

func TestSlicesUnordered(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []string
		expected bool
	}{
		{name: "same order", a: []string{"HR", "SALES"}, b: []string{"HR", "SALES"}, expected: true},
		{name: "different order", a: []string{"HR", "SALES"}, b: []string{"sales", "hr"}, expected: true},
		{name: "different length", a: []string{"HR"}, b: []string{"HR", "HR"}},
		{name: "duplicates counted", a: []string{"HR", "HR"}, b: []string{"HR", "SALES"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, SlicesUnordered(tt.a, tt.b, strings.EqualFold))
		})
	}
}

func TestMapsWithEqual(t *testing.T) {
	eq := func(a, b []int) bool { return len(a) == len(b) }

	require.True(t, MapsWithEqual(map[string][]int{"a": {1}}, map[string][]int{"a": {2}}, eq))
	require.False(t, MapsWithEqual(map[string][]int{"a": {1}}, map[string][]int{"b": {1}}, eq))
	require.False(t, MapsWithEqual(map[string][]int{"a": {1}}, map[string][]int{}, eq))
}
