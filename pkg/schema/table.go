package schema

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/utils"
)

// AlterSyntax selects the dialect used for column-level table changes.
type AlterSyntax string

const (
	// AlterSyntaxOracle writes ADD (def), DROP COLUMN c and MODIFY (def).
	AlterSyntaxOracle AlterSyntax = "oracle"

	// AlterSyntaxModifyColumn writes ADD COLUMN def, DROP COLUMN c and
	// MODIFY COLUMN def (MySQL, ClickHouse).
	AlterSyntaxModifyColumn AlterSyntax = "modify_column"

	// AlterSyntaxPostgres writes ADD COLUMN def, DROP COLUMN c and
	// ALTER COLUMN c TYPE t.
	AlterSyntaxPostgres AlterSyntax = "postgres"

	// AlterSyntaxSQLite writes ADD COLUMN def and DROP COLUMN c; column
	// modifications cannot be expressed.
	AlterSyntaxSQLite AlterSyntax = "sqlite"
)

var (
	// ErrNotTableDDL is returned when a body is not a CREATE TABLE with a
	// parenthesized element list.
	ErrNotTableDDL = errors.New("not a CREATE TABLE statement")

	ddlLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Comment", Pattern: `--[^\r\n]*`},
		{Name: "MultilineComment", Pattern: `/\*[^*]*\*+([^/*][^*]*\*+)*/`},
		{Name: "String", Pattern: `'([^']|'')*'`},
		{Name: "QuotedIdent", Pattern: "\"([^\"]|\"\")*\"|`([^`]|``)*`"},
		{Name: "Number", Pattern: `\d+(\.\d*)?`},
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_$#]*`},
		{Name: "Punct", Pattern: `[(),.;]`},
		{Name: "Operator", Pattern: "[^\\s\\w(),.;'\"`]+"},
		{Name: "Whitespace", Pattern: `\s+`},
	})

	tableParser = participle.MustBuild[tableDDL](
		participle.Lexer(ddlLexer),
		participle.Elide("Comment", "MultilineComment", "Whitespace"),
		participle.CaseInsensitive("Ident"),
		participle.UseLookahead(2),
	)

	// Leading words that mark a table element as a constraint rather than a column.
	constraintWords = map[string]bool{
		"CONSTRAINT": true,
		"PRIMARY":    true,
		"FOREIGN":    true,
		"UNIQUE":     true,
		"CHECK":      true,
		"INDEX":      true,
		"KEY":        true,
		"PROJECTION": true,
		"PERIOD":     true,
	}
)

type (
	// tableDDL matches CREATE ... TABLE name ( element, ... ) tail.
	tableDDL struct {
		Create   string          `parser:"@'CREATE'"`
		Head     []string        `parser:"@(!'(' )*"`
		Elements []*tableElement `parser:"'(' @@ (',' @@)* ')'"`
		Tail     []*ddlGroupItem `parser:"@@*"`
	}

	tableElement struct {
		Pos    lexer.Position
		EndPos lexer.Position

		Name string         `parser:"@(Ident | QuotedIdent)"`
		Rest []*ddlFragment `parser:"@@*"`
	}

	// ddlFragment is a token or balanced parenthesized group, excluding a
	// top-level comma or closing paren.
	ddlFragment struct {
		Group *ddlGroup `parser:"  @@"`
		Token string    `parser:"| @!(',' | '(' | ')')"`
	}

	ddlGroup struct {
		Items []*ddlGroupItem `parser:"'(' @@* ')'"`
	}

	ddlGroupItem struct {
		Group *ddlGroup `parser:"  @@"`
		Token string    `parser:"| @!('(' | ')')"`
	}

	// tableColumn is one column definition from a CREATE TABLE body.
	tableColumn struct {
		// Key is the canonical column name used for matching.
		Key string
		// Name is the column name as written.
		Name string
		// Definition is the normalized element text (name and attributes).
		Definition string
		// Attributes is the normalized text after the name.
		Attributes string
	}
)

// parseTableColumns extracts column definitions from a CREATE TABLE body,
// ignoring constraint elements.
func parseTableColumns(body string) ([]tableColumn, error) {
	ddl, err := tableParser.ParseString("", body)
	if err != nil {
		return nil, errors.Wrap(ErrNotTableDDL, err.Error())
	}

	isTable := false
	for _, word := range ddl.Head {
		if strings.EqualFold(word, "TABLE") {
			isTable = true
			break
		}
	}
	if !isTable {
		return nil, ErrNotTableDDL
	}

	columns := make([]tableColumn, 0, len(ddl.Elements))
	for _, el := range ddl.Elements {
		if !isQuotedName(el.Name) && constraintWords[strings.ToUpper(el.Name)] {
			continue
		}

		end := el.EndPos.Offset
		if end <= el.Pos.Offset || end > len(body) {
			end = len(body)
		}
		text := body[el.Pos.Offset:end]

		columns = append(columns, tableColumn{
			Key:        columnKey(el.Name),
			Name:       el.Name,
			Definition: Normalize(text),
			Attributes: Normalize(text[len(el.Name):]),
		})
	}

	return columns, nil
}

func isQuotedName(name string) bool {
	return utils.IsQuoted(name, utils.DoubleQuote) || utils.IsQuoted(name, utils.Backtick)
}

// columnKey canonicalizes a column name: quoted names keep their case, bare
// names are uppercased.
func columnKey(name string) string {
	if isQuotedName(name) {
		return name[1 : len(name)-1]
	}
	return strings.ToUpper(name)
}

type (
	columnChange struct {
		old, new *tableColumn
	}

	// alterPair is a forward statement and the statement that undoes it.
	alterPair struct {
		forward, inverse string
	}
)

// diffColumns matches columns by key and reports additions (in new order),
// removals (in old order) and definition changes (in new order).
func diffColumns(old, new []tableColumn) (added, dropped []tableColumn, modified []columnChange) {
	oldByKey := make(map[string]*tableColumn, len(old))
	for i := range old {
		oldByKey[old[i].Key] = &old[i]
	}
	newByKey := make(map[string]*tableColumn, len(new))
	for i := range new {
		newByKey[new[i].Key] = &new[i]
	}

	for i := range new {
		o, ok := oldByKey[new[i].Key]
		switch {
		case !ok:
			added = append(added, new[i])
		case o.Attributes != new[i].Attributes:
			modified = append(modified, columnChange{old: o, new: &new[i]})
		}
	}

	for i := range old {
		if _, ok := newByKey[old[i].Key]; !ok {
			dropped = append(dropped, old[i])
		}
	}

	return added, dropped, modified
}

// tableAlters produces column-level statements turning old into new, and the
// statements that undo them in reverse order. Column drops are omitted (along
// with their undo) when suppressDrops is set. A non-empty warning explains
// changes that could not be expressed.
func tableAlters(
	old, new *ObjectDefinition,
	syntax AlterSyntax,
	suppressDrops bool,
) (forward, inverse []string, warning string) {
	oldCols, err := parseTableColumns(old.Body)
	if err != nil {
		return nil, nil, "target table definition could not be parsed; no statements generated"
	}
	newCols, err := parseTableColumns(new.Body)
	if err != nil {
		return nil, nil, "source table definition could not be parsed; no statements generated"
	}

	name := new.Name()
	added, dropped, modified := diffColumns(oldCols, newCols)

	var (
		pairs    []alterPair
		warnings []string
	)

	for _, col := range added {
		pairs = append(pairs, alterPair{
			forward: addColumn(name, col, syntax),
			inverse: dropColumn(name, col),
		})
	}

	for _, change := range modified {
		fwd, ok := modifyColumn(name, *change.new, syntax)
		inv, _ := modifyColumn(name, *change.old, syntax)
		if !ok {
			warnings = append(warnings, "column "+change.new.Name+" changed but cannot be modified in place")
			continue
		}
		pairs = append(pairs, alterPair{forward: fwd, inverse: inv})
	}

	for _, col := range dropped {
		if suppressDrops {
			warnings = append(warnings, "drop of column "+col.Name+" suppressed")
			continue
		}
		pairs = append(pairs, alterPair{
			forward: dropColumn(name, col),
			inverse: addColumn(name, col, syntax),
		})
	}

	if len(pairs) == 0 && len(warnings) == 0 {
		warnings = append(warnings, "table definition changed outside its columns; no statements generated")
	}

	for i, p := range pairs {
		forward = append(forward, p.forward)
		inverse = append(inverse, pairs[len(pairs)-1-i].inverse)
	}

	return forward, inverse, strings.Join(warnings, "; ")
}

func addColumn(table string, col tableColumn, syntax AlterSyntax) string {
	b := utils.NewSQLBuilder().Alter("TABLE").Name(table)
	if syntax == AlterSyntaxOracle || syntax == "" {
		return b.Raw("ADD").Group(col.Definition).String()
	}
	return b.Raw("ADD COLUMN").Raw(col.Definition).String()
}

func dropColumn(table string, col tableColumn) string {
	return utils.NewSQLBuilder().Alter("TABLE").Name(table).Raw("DROP COLUMN").Name(col.Name).String()
}

func modifyColumn(table string, col tableColumn, syntax AlterSyntax) (string, bool) {
	b := utils.NewSQLBuilder().Alter("TABLE").Name(table)
	switch syntax {
	case AlterSyntaxModifyColumn:
		return b.Raw("MODIFY COLUMN").Raw(col.Definition).String(), true
	case AlterSyntaxPostgres:
		return b.Raw("ALTER COLUMN").Name(col.Name).Raw("TYPE").Raw(columnType(col.Attributes)).String(), true
	case AlterSyntaxSQLite:
		return "", false
	default:
		return b.Raw("MODIFY").Group(col.Definition).String(), true
	}
}

// columnType returns the leading type portion of column attributes, stopping
// at the first constraint or default keyword outside parentheses.
func columnType(attrs string) string {
	stops := map[string]bool{
		"NOT": true, "NULL": true, "DEFAULT": true, "COLLATE": true,
		"CONSTRAINT": true, "GENERATED": true, "PRIMARY": true,
		"UNIQUE": true, "CHECK": true, "REFERENCES": true,
	}

	depth := 0
	fields := strings.Fields(attrs)
	for i, f := range fields {
		if depth == 0 && stops[strings.ToUpper(f)] {
			return strings.Join(fields[:i], " ")
		}
		depth += strings.Count(f, "(") - strings.Count(f, ")")
	}
	return strings.Join(fields, " ")
}
