package utils

import "strings"

const (
	// Backtick quotes identifiers for MySQL and ClickHouse.
	Backtick = "`"

	// DoubleQuote quotes identifiers for PostgreSQL, SQLite and Oracle.
	DoubleQuote = `"`
)

// QuoteIdentifier wraps every dot-separated part of name in quote, leaving parts
// that are already quoted untouched. Embedded quote characters are doubled.
//
// Examples:
//   - ("users", "`") -> "`users`"
//   - ("public.users", `"`) -> `"public"."users"`
//   - (`"Mixed"`, `"`) -> `"Mixed"` (already quoted)
//   - ("", "`") -> ""
func QuoteIdentifier(name, quote string) string {
	if name == "" {
		return ""
	}

	if IsQuoted(name, quote) {
		return name
	}

	parts := strings.Split(name, ".")
	for i, part := range parts {
		if IsQuoted(part, quote) {
			continue
		}
		parts[i] = quote + strings.ReplaceAll(part, quote, quote+quote) + quote
	}

	return strings.Join(parts, ".")
}

// QualifiedName joins schema and name, quoting both. An empty schema yields just
// the quoted name.
//
// Examples:
//   - ("analytics", "events", "`") -> "`analytics`.`events`"
//   - ("", "events", `"`) -> `"events"`
func QualifiedName(schema, name, quote string) string {
	if schema == "" {
		return quoteSingle(name, quote)
	}
	return quoteSingle(schema, quote) + "." + quoteSingle(name, quote)
}

// IsQuoted checks if s is a single identifier wrapped in quote.
//
// Examples:
//   - ("`table`", "`") -> true
//   - ("`db`.`table`", "`") -> false (qualified name)
//   - ("table", "`") -> false
func IsQuoted(s, quote string) bool {
	q := len(quote)
	if len(s) < 2*q || !strings.HasPrefix(s, quote) || !strings.HasSuffix(s, quote) {
		return false
	}

	inner := strings.ReplaceAll(s[q:len(s)-q], quote+quote, "")
	return !strings.Contains(inner, quote)
}

func quoteSingle(name, quote string) string {
	if IsQuoted(name, quote) {
		return name
	}
	return quote + strings.ReplaceAll(name, quote, quote+quote) + quote
}
