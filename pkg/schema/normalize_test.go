package schema_test

import (
	"testing"

	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "collapses whitespace",
			input:    "CREATE  VIEW v AS\n\t  SELECT 1",
			expected: "CREATE VIEW v AS SELECT 1",
		},
		{
			name:     "strips line comments",
			input:    "CREATE VIEW v AS\n  SELECT 1 -- one\n  FROM dual",
			expected: "CREATE VIEW v AS SELECT 1 FROM dual",
		},
		{
			name:     "strips block comments",
			input:    "SELECT /* hint */ a FROM t",
			expected: "SELECT a FROM t",
		},
		{
			name:     "preserves string literals",
			input:    "SELECT 'a  b -- not a comment' FROM t",
			expected: "SELECT 'a  b -- not a comment' FROM t",
		},
		{
			name:     "preserves escaped quotes",
			input:    "SELECT 'it''s   here' FROM t",
			expected: "SELECT 'it''s   here' FROM t",
		},
		{
			name:     "preserves quoted identifiers",
			input:    `CREATE TABLE "My  Table" (id int)`,
			expected: `CREATE TABLE "My  Table"(id int)`,
		},
		{
			name:     "removes statement terminators",
			input:    "BEGIN\n  NULL;\nEND;\n/\n",
			expected: "BEGIN NULL;END",
		},
		{
			name:     "drops whitespace around punctuation",
			input:    "CREATE TABLE hr . t ( id INT , name TEXT )",
			expected: "CREATE TABLE hr.t(id INT,name TEXT)",
		},
		{
			name:     "punctuation spacing variants are equal",
			input:    "SELECT A , B FROM T",
			expected: "SELECT A,B FROM T",
		},
		{
			name:     "quoted sections next to punctuation",
			input:    `SELECT 'a' , "b" FROM t`,
			expected: `SELECT 'a',"b" FROM t`,
		},
		{
			name:     "punctuation inside literals is untouched",
			input:    "SELECT 'a , b ( c )' FROM t",
			expected: "SELECT 'a , b ( c )' FROM t",
		},
		{
			name:     "keeps case",
			input:    "create view V as select 1",
			expected: "create view V as select 1",
		},
		{
			name:     "multibyte text",
			input:    "COMMENT ON TABLE t IS 'café'  ;",
			expected: "COMMENT ON TABLE t IS 'café'",
		},
		{
			name:     "empty",
			input:    "  \n ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, schema.Normalize(tt.input))
		})
	}
}
