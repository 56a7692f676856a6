package mysql

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/pseudomuto/leaf/pkg/utils"
)

var (
	_ connector.Session = (*Session)(nil)

	autoIncrementPattern = regexp.MustCompile(`\s+AUTO_INCREMENT=\d+`)
	definerPattern       = regexp.MustCompile("\\s+DEFINER=(`[^`]*`|[^\\s@]+)@(`[^`]*`|[^\\s]+)")

	systemSchemas = map[string]bool{
		"INFORMATION_SCHEMA": true,
		"MYSQL":              true,
		"PERFORMANCE_SCHEMA": true,
		"SYS":                true,
	}
)

// Session introspects and executes DDL against a MySQL database.
type Session struct {
	db *sql.DB
}

// Open is the connector.Opener for the mysql driver. The connection string is
// a go-sql-driver DSN such as "tcp(localhost:3306)/app".
func Open(ctx context.Context, conn connector.Connection) (connector.Session, error) {
	cfg, err := driverConfig(conn)
	if err != nil {
		return nil, err
	}

	dbConn, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mysql configuration")
	}

	db := sql.OpenDB(dbConn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to mysql")
	}

	return &Session{db: db}, nil
}

func driverConfig(conn connector.Connection) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(conn.ConnectionString)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mysql connection string")
	}

	if conn.Username != "" {
		cfg.User = conn.Username
	}
	if conn.Password != "" {
		cfg.Passwd = conn.Password
	}

	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = false

	return cfg, nil
}

// Schemas lists the databases on the server, excluding system schemas.
func (s *Session) Schemas(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT SCHEMA_NAME FROM information_schema.SCHEMATA ORDER BY SCHEMA_NAME")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query schemas")
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan schema row")
		}
		if !systemSchemas[strings.ToUpper(name)] {
			names = append(names, name)
		}
	}

	return names, rows.Err()
}

// Snapshot reads tables, views, routines and triggers. Bodies come from
// SHOW CREATE statements; tables carry COALESCE(UPDATE_TIME, CREATE_TIME) and
// routines LAST_ALTERED as their modification time.
func (s *Session) Snapshot(ctx context.Context, schemas []string) (*schema.Snapshot, error) {
	capturedAt := time.Now().UTC()

	in, args := inClause(schemas)
	listings := []struct {
		query  string
		kindOf func(string) schema.ObjectKind
	}{
		{
			query: `SELECT TABLE_SCHEMA, TABLE_NAME, TABLE_TYPE, COALESCE(UPDATE_TIME, CREATE_TIME)
				FROM information_schema.TABLES
				WHERE UPPER(TABLE_SCHEMA) IN ` + in + ` AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
				ORDER BY TABLE_SCHEMA, TABLE_NAME`,
			kindOf: func(t string) schema.ObjectKind {
				if t == "VIEW" {
					return schema.KindView
				}
				return schema.KindTable
			},
		},
		{
			query: `SELECT ROUTINE_SCHEMA, ROUTINE_NAME, ROUTINE_TYPE, LAST_ALTERED
				FROM information_schema.ROUTINES
				WHERE UPPER(ROUTINE_SCHEMA) IN ` + in + `
				ORDER BY ROUTINE_SCHEMA, ROUTINE_NAME`,
			kindOf: schema.ParseObjectKind,
		},
		{
			query: `SELECT TRIGGER_SCHEMA, TRIGGER_NAME, 'TRIGGER', CREATED
				FROM information_schema.TRIGGERS
				WHERE UPPER(TRIGGER_SCHEMA) IN ` + in + `
				ORDER BY TRIGGER_SCHEMA, TRIGGER_NAME`,
			kindOf: schema.ParseObjectKind,
		},
	}

	var defs []*schema.ObjectDefinition
	for _, l := range listings {
		found, err := s.objects(ctx, l.query, args, l.kindOf)
		if err != nil {
			return nil, err
		}
		defs = append(defs, found...)
	}

	snap, err := schema.NewSnapshot(capturedAt, schemas, defs...)
	if err != nil {
		return nil, err
	}
	return snap.WithAlterSyntax(schema.AlterSyntaxModifyColumn), nil
}

type listing struct {
	schema   string
	name     string
	kind     schema.ObjectKind
	modified sql.NullTime
}

func (s *Session) objects(
	ctx context.Context,
	query string,
	args []any,
	kindOf func(string) schema.ObjectKind,
) ([]*schema.ObjectDefinition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query information_schema")
	}

	// Collect first: a single connection cannot run SHOW CREATE while the
	// listing is still being read.
	var found []listing
	for rows.Next() {
		var l listing
		var typ string
		if err := rows.Scan(&l.schema, &l.name, &typ, &l.modified); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "failed to scan information_schema row")
		}
		l.kind = kindOf(typ)
		found = append(found, l)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read information_schema")
	}

	defs := make([]*schema.ObjectDefinition, 0, len(found))
	for _, l := range found {
		name := utils.QualifiedName(l.schema, l.name, utils.Backtick)

		body, err := s.showCreate(ctx, l.kind, name)
		if err != nil {
			return nil, err
		}

		def := &schema.ObjectDefinition{
			Identity: schema.NewIdentity(l.schema, l.name, l.kind),
			Body:     cleanDDL(body),
			SQLName:  name,
		}
		if l.modified.Valid {
			def.LastModified = utils.Ptr(l.modified.Time.UTC())
		}
		defs = append(defs, def)
	}

	return defs, nil
}

// showCreate runs SHOW CREATE <kind> and returns the statement column, which
// sits at a different position for every kind.
func (s *Session) showCreate(ctx context.Context, kind schema.ObjectKind, name string) (string, error) {
	rows, err := s.db.QueryContext(ctx, "SHOW CREATE "+string(kind)+" "+name)
	if err != nil {
		return "", errors.Wrapf(err, "failed to show create %s %s", kind, name)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return "", errors.Wrap(err, "failed to read columns")
	}

	if !rows.Next() {
		return "", errors.Errorf("no definition returned for %s %s", kind, name)
	}

	values := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return "", errors.Wrapf(err, "failed to scan definition of %s", name)
	}

	for i, col := range cols {
		if strings.HasPrefix(col, "Create ") || col == "SQL Original Statement" {
			if !values[i].Valid {
				return "", errors.Errorf("definition of %s is not visible to this user", name)
			}
			return values[i].String, nil
		}
	}

	return "", errors.Errorf("no definition column for %s %s", kind, name)
}

// Execute runs ddl as a single statement.
func (s *Session) Execute(ctx context.Context, ddl string) error {
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close closes the connection pool.
func (s *Session) Close() error {
	return s.db.Close()
}

// cleanDDL removes the parts of SHOW CREATE output that vary between servers
// without a schema change: the AUTO_INCREMENT counter and DEFINER clauses.
func cleanDDL(ddl string) string {
	ddl = autoIncrementPattern.ReplaceAllString(ddl, "")
	ddl = definerPattern.ReplaceAllString(ddl, "")
	return ddl
}

// inClause returns "(?, ?, ...)" and the uppercased schema names as args.
func inClause(schemas []string) (string, []any) {
	if len(schemas) == 0 {
		return "(NULL)", nil
	}

	placeholders := make([]string, len(schemas))
	args := make([]any, len(schemas))
	for i, s := range schemas {
		placeholders[i] = "?"
		args[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	return "(" + strings.Join(placeholders, ", ") + ")", args
}
