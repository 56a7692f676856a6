package clickhouse

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/pseudomuto/leaf/pkg/utils"
)

// KindDictionary is the ClickHouse-specific kind for dictionaries. It is not
// one of the ordered kinds, so dictionaries are only diffed when unknown kinds
// are included.
const KindDictionary schema.ObjectKind = "DICTIONARY"

var (
	// systemDatabases are never reported as schemas.
	systemDatabases = []string{
		"system",
		"information_schema",
		"INFORMATION_SCHEMA",
	}

	versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)`)
)

// Schemas lists the non-system databases.
func (c *Client) Schemas(ctx context.Context) ([]string, error) {
	cond, args := notIn("name", systemDatabases)
	rows, err := c.conn.Query(ctx, "SELECT name FROM system.databases WHERE "+cond+" ORDER BY name", args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query databases")
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan database row")
		}
		names = append(names, name)
	}

	return names, errors.Wrap(rows.Err(), "failed to read databases")
}

// Snapshot reads tables, views and dictionaries from system.tables and SQL
// user-defined functions from system.functions. Tables and views carry
// metadata_modification_time; functions have no modification time.
//
// ClickHouse names are case-sensitive, so every definition carries its
// backtick-quoted name for generated statements.
func (c *Client) Snapshot(ctx context.Context, schemas []string) (*schema.Snapshot, error) {
	capturedAt := time.Now().UTC()

	defs, err := c.tables(ctx, schemas)
	if err != nil {
		return nil, err
	}

	funcs, err := c.functions(ctx)
	if err != nil {
		return nil, err
	}

	// Functions are global; they are attributed to the first requested schema.
	if len(schemas) > 0 {
		for _, fn := range funcs {
			fn.Identity = schema.NewIdentity(schemas[0], fn.Identity.Name, schema.KindFunction)
			defs = append(defs, fn)
		}
	}

	snap, err := schema.NewSnapshot(capturedAt, schemas, defs...)
	if err != nil {
		return nil, err
	}
	return snap.WithAlterSyntax(schema.AlterSyntaxModifyColumn), nil
}

func (c *Client) tables(ctx context.Context, schemas []string) ([]*schema.ObjectDefinition, error) {
	if len(schemas) == 0 {
		return nil, nil
	}

	cond, args := upperIn("database", schemas)
	query := `
		SELECT database, name, engine, create_table_query, metadata_modification_time
		FROM system.tables
		WHERE ` + cond + `
		  AND is_temporary = 0
		  AND name NOT LIKE '.inner_id.%'
		  AND name NOT LIKE '.inner.%'
		ORDER BY database, name
	`

	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tables")
	}
	defer func() { _ = rows.Close() }()

	var defs []*schema.ObjectDefinition
	for rows.Next() {
		var (
			database, name, engine, body string
			modified                     time.Time
		)
		if err := rows.Scan(&database, &name, &engine, &body, &modified); err != nil {
			return nil, errors.Wrap(err, "failed to scan table row")
		}

		if body == "" {
			continue
		}

		def := &schema.ObjectDefinition{
			Identity: schema.NewIdentity(database, name, kindForEngine(engine)),
			Body:     body,
			SQLName:  utils.QualifiedName(database, name, utils.Backtick),
		}
		if !modified.IsZero() {
			def.LastModified = utils.Ptr(modified.UTC())
		}
		defs = append(defs, def)
	}

	return defs, errors.Wrap(rows.Err(), "failed to read tables")
}

func (c *Client) functions(ctx context.Context) ([]*schema.ObjectDefinition, error) {
	filter := "origin = 'SQLUserDefined'"
	if ok, err := c.supportsOrigin(ctx); err != nil {
		return nil, err
	} else if !ok {
		filter = "create_query != ''"
	}

	rows, err := c.conn.Query(ctx, "SELECT name, create_query FROM system.functions WHERE "+filter+" ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query system.functions")
	}
	defer func() { _ = rows.Close() }()

	var defs []*schema.ObjectDefinition
	for rows.Next() {
		var name, body string
		if err := rows.Scan(&name, &body); err != nil {
			return nil, errors.Wrap(err, "failed to scan function row")
		}

		defs = append(defs, &schema.ObjectDefinition{
			Identity: schema.NewIdentity("", name, schema.KindFunction),
			Body:     body,
			SQLName:  utils.QuoteIdentifier(name, utils.Backtick),
		})
	}

	return defs, errors.Wrap(rows.Err(), "failed to read functions")
}

// supportsOrigin reports whether system.functions has the origin column
// (ClickHouse 21.10 and later).
func (c *Client) supportsOrigin(ctx context.Context) (bool, error) {
	rows, err := c.conn.Query(ctx, "SELECT version()")
	if err != nil {
		return false, errors.Wrap(err, "failed to query ClickHouse version")
	}
	defer func() { _ = rows.Close() }()

	var version string
	if rows.Next() {
		if err := rows.Scan(&version); err != nil {
			return false, errors.Wrap(err, "failed to scan ClickHouse version")
		}
	}

	major, minor, err := parseVersion(version)
	if err != nil {
		return false, err
	}
	return major > 21 || (major == 21 && minor >= 10), nil
}

// parseVersion extracts major and minor from strings such as "24.8.4.13" or
// "21.10.3.9 (official build)".
func parseVersion(version string) (int, int, error) {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(version))
	if m == nil {
		return 0, 0, errors.Errorf("invalid ClickHouse version: %q", version)
	}

	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return major, minor, nil
}

func kindForEngine(engine string) schema.ObjectKind {
	switch engine {
	case "View", "MaterializedView", "LiveView", "WindowView":
		return schema.KindView
	case "Dictionary":
		return KindDictionary
	default:
		return schema.KindTable
	}
}

// notIn builds "column NOT IN (?, ...)" with one parameter per value.
func notIn(column string, values []string) (string, []any) {
	placeholders, args := params(values, false)
	return column + " NOT IN (" + placeholders + ")", args
}

// upperIn builds "upper(column) IN (?, ...)" with uppercased parameters.
func upperIn(column string, values []string) (string, []any) {
	placeholders, args := params(values, true)
	return "upper(" + column + ") IN (" + placeholders + ")", args
}

func params(values []string, upper bool) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		if upper {
			v = strings.ToUpper(strings.TrimSpace(v))
		}
		args[i] = v
	}
	return strings.Join(placeholders, ", "), args
}
