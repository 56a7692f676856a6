package schema

import "strings"

// Normalize strips comments and collapses insignificant whitespace in a DDL
// body so that formatting-only differences compare equal. Whitespace next to
// punctuation is removed. Text inside single quoted literals and quoted
// identifiers is preserved exactly. Trailing statement terminators (";" and a
// lone "/") are removed.
//
// Examples:
//   - "CREATE  VIEW v AS\n  SELECT 1 -- one" -> "CREATE VIEW v AS SELECT 1"
//   - "SELECT 'a  b' /* keep literal */ FROM t;" -> "SELECT 'a  b' FROM t"
//   - "CREATE TABLE t ( id INT , name TEXT )" -> "CREATE TABLE t(id INT,name TEXT)"
func Normalize(body string) string {
	var (
		sb        strings.Builder
		pending   bool
		lastPunct bool
	)

	space := func() {
		if sb.Len() > 0 {
			pending = true
		}
	}
	write := func(s string, quoted bool) {
		if pending && !lastPunct && (quoted || !isPunct(s[0])) {
			sb.WriteByte(' ')
		}
		pending = false
		lastPunct = !quoted && isPunct(s[0])
		sb.WriteString(s)
	}

	for i := 0; i < len(body); {
		c := body[i]

		switch {
		case c == '-' && i+1 < len(body) && body[i+1] == '-':
			end := strings.IndexByte(body[i:], '\n')
			if end < 0 {
				i = len(body)
			} else {
				i += end
			}
			space()

		case c == '/' && i+1 < len(body) && body[i+1] == '*':
			end := strings.Index(body[i+2:], "*/")
			if end < 0 {
				i = len(body)
			} else {
				i += end + 4
			}
			space()

		case c == '\'' || c == '"' || c == '`':
			end := quotedEnd(body, i)
			write(body[i:end], true)
			i = end

		case isSpace(c):
			for i < len(body) && isSpace(body[i]) {
				i++
			}
			space()

		default:
			write(body[i:i+1], false)
			i++
		}
	}

	return trimTerminators(sb.String())
}

// quotedEnd returns the index just past the quoted section starting at start.
// A doubled quote character is an escaped quote. Unterminated sections run to
// the end of s.
func quotedEnd(s string, start int) int {
	q := s[start]
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

func trimTerminators(s string) string {
	for {
		trimmed := strings.TrimSpace(s)
		trimmed = strings.TrimSuffix(trimmed, ";")
		if trimmed == "/" || strings.HasSuffix(trimmed, "\n/") || strings.HasSuffix(trimmed, " /") || strings.HasSuffix(trimmed, ";/") {
			trimmed = strings.TrimSuffix(trimmed, "/")
		}
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

func isPunct(c byte) bool {
	switch c {
	case '(', ')', ',', ';', '.':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
