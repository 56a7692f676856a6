package postgres

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/pseudomuto/leaf/pkg/utils"
)

var _ connector.Session = (*Session)(nil)

type (
	// Session introspects and executes DDL against a PostgreSQL database.
	Session struct {
		conn *pgx.Conn
	}

	// column is one row of a table's column listing.
	column struct {
		Name    string
		Type    string
		NotNull bool
		Default *string
	}

	// tableDef collects what is needed to render a CREATE TABLE statement.
	tableDef struct {
		Schema      string
		Name        string
		Columns     []column
		Constraints []string
	}
)

// Open is the connector.Opener for the postgres driver. The connection string
// is any URL or keyword/value string pgx understands.
func Open(ctx context.Context, conn connector.Connection) (connector.Session, error) {
	cfg, err := connConfig(conn)
	if err != nil {
		return nil, err
	}

	pg, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	return &Session{conn: pg}, nil
}

func connConfig(conn connector.Connection) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(conn.ConnectionString)
	if err != nil {
		return nil, errors.Wrap(err, "invalid postgres connection string")
	}

	if conn.Username != "" {
		cfg.User = conn.Username
	}
	if conn.Password != "" {
		cfg.Password = conn.Password
	}

	return cfg, nil
}

// Schemas lists every namespace except the catalog and toast schemas.
func (s *Session) Schemas(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT nspname
		FROM pg_namespace
		WHERE nspname NOT LIKE 'pg\_%' AND nspname <> 'information_schema'
		ORDER BY nspname
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query schemas")
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return names, errors.Wrap(err, "failed to scan schema row")
}

// Snapshot reads tables, views, indexes, sequences, enum types, routines and
// triggers. PostgreSQL does not record modification times, so every
// definition is treated as current.
func (s *Session) Snapshot(ctx context.Context, schemas []string) (*schema.Snapshot, error) {
	capturedAt := time.Now().UTC()

	upper := make([]string, 0, len(schemas))
	for _, name := range schemas {
		upper = append(upper, strings.ToUpper(strings.TrimSpace(name)))
	}

	var defs []*schema.ObjectDefinition
	for _, extract := range []func(context.Context, []string) ([]*schema.ObjectDefinition, error){
		s.tables,
		s.views,
		s.indexes,
		s.sequences,
		s.enumTypes,
		s.routines,
		s.triggers,
	} {
		found, err := extract(ctx, upper)
		if err != nil {
			return nil, err
		}
		defs = append(defs, found...)
	}

	snap, err := schema.NewSnapshot(capturedAt, schemas, dedupe(defs)...)
	if err != nil {
		return nil, err
	}
	return snap.WithAlterSyntax(schema.AlterSyntaxPostgres), nil
}

// Execute runs ddl as a single statement.
func (s *Session) Execute(ctx context.Context, ddl string) error {
	_, err := s.conn.Exec(ctx, ddl)
	return err
}

// Close closes the connection.
func (s *Session) Close() error {
	return s.conn.Close(context.Background())
}

func (s *Session) tables(ctx context.Context, schemas []string) ([]*schema.ObjectDefinition, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT n.nspname, c.relname, a.attname,
		       format_type(a.atttypid, a.atttypmod),
		       a.attnotnull,
		       pg_get_expr(d.adbin, d.adrelid)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped
		LEFT JOIN pg_attrdef d ON d.adrelid = c.oid AND d.adnum = a.attnum
		WHERE c.relkind IN ('r', 'p')
		  AND upper(n.nspname) = ANY($1)
		ORDER BY n.nspname, c.relname, a.attnum
	`, schemas)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query table columns")
	}
	defer rows.Close()

	var tables []*tableDef
	byName := make(map[string]*tableDef)
	for rows.Next() {
		var schemaName, tableName string
		var col column
		if err := rows.Scan(&schemaName, &tableName, &col.Name, &col.Type, &col.NotNull, &col.Default); err != nil {
			return nil, errors.Wrap(err, "failed to scan column row")
		}

		key := schemaName + "." + tableName
		t, ok := byName[key]
		if !ok {
			t = &tableDef{Schema: schemaName, Name: tableName}
			byName[key] = t
			tables = append(tables, t)
		}
		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read table columns")
	}

	if err := s.tableConstraints(ctx, schemas, byName); err != nil {
		return nil, err
	}

	defs := make([]*schema.ObjectDefinition, 0, len(tables))
	for _, t := range tables {
		defs = append(defs, &schema.ObjectDefinition{
			Identity: schema.NewIdentity(t.Schema, t.Name, schema.KindTable),
			Body:     t.ddl(),
			SQLName:  utils.QualifiedName(t.Schema, t.Name, utils.DoubleQuote),
		})
	}
	return defs, nil
}

func (s *Session) tableConstraints(ctx context.Context, schemas []string, tables map[string]*tableDef) error {
	rows, err := s.conn.Query(ctx, `
		SELECT n.nspname, c.relname, con.conname, pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE con.contype IN ('p', 'u', 'c', 'f')
		  AND upper(n.nspname) = ANY($1)
		ORDER BY n.nspname, c.relname, con.contype DESC, con.conname
	`, schemas)
	if err != nil {
		return errors.Wrap(err, "failed to query table constraints")
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, tableName, name, def string
		if err := rows.Scan(&schemaName, &tableName, &name, &def); err != nil {
			return errors.Wrap(err, "failed to scan constraint row")
		}
		if t, ok := tables[schemaName+"."+tableName]; ok {
			t.Constraints = append(t.Constraints, "CONSTRAINT "+utils.QuoteIdentifier(name, utils.DoubleQuote)+" "+def)
		}
	}

	return errors.Wrap(rows.Err(), "failed to read table constraints")
}

func (s *Session) views(ctx context.Context, schemas []string) ([]*schema.ObjectDefinition, error) {
	return s.collect(ctx, schema.KindView, `
		SELECT schemaname, viewname,
		       'CREATE OR REPLACE VIEW ' || quote_ident(schemaname) || '.' || quote_ident(viewname) || ' AS' || chr(10) || definition
		FROM pg_views
		WHERE upper(schemaname) = ANY($1)
		ORDER BY schemaname, viewname
	`, schemas)
}

func (s *Session) indexes(ctx context.Context, schemas []string) ([]*schema.ObjectDefinition, error) {
	return s.collect(ctx, schema.KindIndex, `
		SELECT i.schemaname, i.indexname, i.indexdef
		FROM pg_indexes i
		WHERE upper(i.schemaname) = ANY($1)
		  AND NOT EXISTS (
		    SELECT 1 FROM pg_constraint con
		    WHERE con.conindid = (quote_ident(i.schemaname) || '.' || quote_ident(i.indexname))::regclass
		  )
		ORDER BY i.schemaname, i.indexname
	`, schemas)
}

func (s *Session) sequences(ctx context.Context, schemas []string) ([]*schema.ObjectDefinition, error) {
	return s.collect(ctx, schema.KindSequence, `
		SELECT q.schemaname, q.sequencename,
		       'CREATE SEQUENCE ' || quote_ident(q.schemaname) || '.' || quote_ident(q.sequencename) ||
		       ' AS ' || q.data_type ||
		       ' INCREMENT BY ' || q.increment_by ||
		       ' MINVALUE ' || q.min_value ||
		       ' MAXVALUE ' || q.max_value ||
		       ' START WITH ' || q.start_value ||
		       CASE WHEN q.cycle THEN ' CYCLE' ELSE ' NO CYCLE' END
		FROM pg_sequences q
		WHERE upper(q.schemaname) = ANY($1)
		  AND NOT EXISTS (
		    SELECT 1 FROM pg_depend d
		    WHERE d.objid = (quote_ident(q.schemaname) || '.' || quote_ident(q.sequencename))::regclass
		      AND d.deptype IN ('a', 'i')
		  )
		ORDER BY q.schemaname, q.sequencename
	`, schemas)
}

func (s *Session) enumTypes(ctx context.Context, schemas []string) ([]*schema.ObjectDefinition, error) {
	return s.collect(ctx, schema.KindType, `
		SELECT n.nspname, t.typname,
		       'CREATE TYPE ' || quote_ident(n.nspname) || '.' || quote_ident(t.typname) || ' AS ENUM (' ||
		       string_agg(quote_literal(e.enumlabel), ', ' ORDER BY e.enumsortorder) || ')'
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		JOIN pg_enum e ON e.enumtypid = t.oid
		WHERE upper(n.nspname) = ANY($1)
		GROUP BY n.nspname, t.typname
		ORDER BY n.nspname, t.typname
	`, schemas)
}

func (s *Session) routines(ctx context.Context, schemas []string) ([]*schema.ObjectDefinition, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT n.nspname, p.proname, p.prokind, pg_get_functiondef(p.oid)
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE p.prokind IN ('f', 'p')
		  AND upper(n.nspname) = ANY($1)
		  AND NOT EXISTS (SELECT 1 FROM pg_depend d WHERE d.objid = p.oid AND d.deptype = 'e')
		ORDER BY n.nspname, p.proname, p.oid
	`, schemas)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query routines")
	}
	defer rows.Close()

	var defs []*schema.ObjectDefinition
	for rows.Next() {
		var schemaName, name, prokind, body string
		if err := rows.Scan(&schemaName, &name, &prokind, &body); err != nil {
			return nil, errors.Wrap(err, "failed to scan routine row")
		}

		kind := schema.KindFunction
		if prokind == "p" {
			kind = schema.KindProcedure
		}

		defs = append(defs, &schema.ObjectDefinition{
			Identity: schema.NewIdentity(schemaName, name, kind),
			Body:     body,
			SQLName:  utils.QualifiedName(schemaName, name, utils.DoubleQuote),
		})
	}

	return defs, errors.Wrap(rows.Err(), "failed to read routines")
}

func (s *Session) triggers(ctx context.Context, schemas []string) ([]*schema.ObjectDefinition, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT n.nspname, t.tgname, c.relname, pg_get_triggerdef(t.oid)
		FROM pg_trigger t
		JOIN pg_class c ON c.oid = t.tgrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE NOT t.tgisinternal
		  AND upper(n.nspname) = ANY($1)
		ORDER BY n.nspname, t.tgname
	`, schemas)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query triggers")
	}
	defer rows.Close()

	var defs []*schema.ObjectDefinition
	for rows.Next() {
		var schemaName, name, table, body string
		if err := rows.Scan(&schemaName, &name, &table, &body); err != nil {
			return nil, errors.Wrap(err, "failed to scan trigger row")
		}

		defs = append(defs, &schema.ObjectDefinition{
			Identity: schema.NewIdentity(schemaName, name, schema.KindTrigger),
			Body:     body,
			SQLName:  utils.QuoteIdentifier(name, utils.DoubleQuote),
			DropStatement: utils.NewSQLBuilder().
				Drop("TRIGGER").
				Name(utils.QuoteIdentifier(name, utils.DoubleQuote)).
				Raw("ON").
				Name(utils.QualifiedName(schemaName, table, utils.DoubleQuote)).
				String(),
		})
	}

	return defs, errors.Wrap(rows.Err(), "failed to read triggers")
}

// collect runs a query returning (schema, name, body) rows as definitions of kind.
func (s *Session) collect(ctx context.Context, kind schema.ObjectKind, query string, schemas []string) ([]*schema.ObjectDefinition, error) {
	rows, err := s.conn.Query(ctx, query, schemas)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s objects", kind)
	}
	defer rows.Close()

	var defs []*schema.ObjectDefinition
	for rows.Next() {
		var schemaName, name, body string
		if err := rows.Scan(&schemaName, &name, &body); err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s row", kind)
		}

		defs = append(defs, &schema.ObjectDefinition{
			Identity: schema.NewIdentity(schemaName, name, kind),
			Body:     body,
			SQLName:  utils.QualifiedName(schemaName, name, utils.DoubleQuote),
		})
	}

	return defs, errors.Wrapf(rows.Err(), "failed to read %s objects", kind)
}

// ddl renders the table as a CREATE TABLE statement with one column or
// constraint per line.
func (t *tableDef) ddl() string {
	elements := make([]string, 0, len(t.Columns)+len(t.Constraints))
	for _, col := range t.Columns {
		parts := []string{utils.QuoteIdentifier(col.Name, utils.DoubleQuote), col.Type}
		if col.Default != nil {
			parts = append(parts, "DEFAULT", *col.Default)
		}
		if col.NotNull {
			parts = append(parts, "NOT NULL")
		}
		elements = append(elements, strings.Join(parts, " "))
	}
	elements = append(elements, t.Constraints...)

	return "CREATE TABLE " + utils.QualifiedName(t.Schema, t.Name, utils.DoubleQuote) +
		" (\n  " + strings.Join(elements, ",\n  ") + "\n)"
}

// dedupe keeps the first definition of each identity. Overloaded routines
// share a name and only the first overload is tracked.
func dedupe(defs []*schema.ObjectDefinition) []*schema.ObjectDefinition {
	seen := make(map[schema.ObjectIdentity]bool, len(defs))
	out := defs[:0]
	for _, def := range defs {
		if seen[def.Identity] {
			slog.Warn("Skipping overloaded routine", "object", def.Identity.String())
			continue
		}
		seen[def.Identity] = true
		out = append(out, def)
	}
	return out
}
