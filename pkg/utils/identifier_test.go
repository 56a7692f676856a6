package utils_test

import (
	"testing"

	"github.com/pseudomuto/leaf/pkg/utils"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		quote    string
		expected string
	}{
		{name: "simple backtick", input: "table", quote: utils.Backtick, expected: "`table`"},
		{name: "qualified backtick", input: "db.table", quote: utils.Backtick, expected: "`db`.`table`"},
		{name: "qualified double quote", input: "public.users", quote: utils.DoubleQuote, expected: `"public"."users"`},
		{name: "already quoted", input: `"Mixed"`, quote: utils.DoubleQuote, expected: `"Mixed"`},
		{name: "partially quoted", input: "`db`.table", quote: utils.Backtick, expected: "`db`.`table`"},
		{name: "embedded quote doubled", input: `we"ird`, quote: utils.DoubleQuote, expected: `"we""ird"`},
		{name: "empty", input: "", quote: utils.Backtick, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, utils.QuoteIdentifier(tt.input, tt.quote))
		})
	}
}

func TestQualifiedName(t *testing.T) {
	require.Equal(t, "`analytics`.`events`", utils.QualifiedName("analytics", "events", utils.Backtick))
	require.Equal(t, `"events"`, utils.QualifiedName("", "events", utils.DoubleQuote))
	require.Equal(t, `"main"."odd.name"`, utils.QualifiedName("main", "odd.name", utils.DoubleQuote))
}

func TestIsQuoted(t *testing.T) {
	require.True(t, utils.IsQuoted("`table`", utils.Backtick))
	require.True(t, utils.IsQuoted(`"a""b"`, utils.DoubleQuote))
	require.False(t, utils.IsQuoted("`db`.`table`", utils.Backtick))
	require.False(t, utils.IsQuoted("table", utils.Backtick))
	require.False(t, utils.IsQuoted("`", utils.Backtick))
}
