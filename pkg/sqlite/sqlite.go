package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/pseudomuto/leaf/pkg/utils"

	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

var (
	_ connector.Session = (*Session)(nil)

	objectKinds = map[string]schema.ObjectKind{
		"table":   schema.KindTable,
		"view":    schema.KindView,
		"index":   schema.KindIndex,
		"trigger": schema.KindTrigger,
	}
)

// Session introspects and executes DDL against a SQLite database. Attached
// databases are exposed as schemas; the primary database is MAIN.
type Session struct {
	db *sql.DB
}

// DSN appends the pragmas every leaf connection uses to path. In-memory
// databases are returned unchanged.
func DSN(path string) string {
	if path == ":memory:" {
		return path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
}

// OpenDB opens path with DSN applied, limited to one connection so writes
// are serialized.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, DSN(path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database: %s", path)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to open sqlite database: %s", path)
	}

	return db, nil
}

// Open is the connector.Opener for the sqlite driver. The connection string is
// the database file path.
func Open(ctx context.Context, conn connector.Connection) (connector.Session, error) {
	return New(ctx, conn.ConnectionString)
}

// New opens a Session for the database at path.
func New(ctx context.Context, path string) (*Session, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Session{db: db}, nil
}

// Schemas lists the attached databases, excluding temp.
func (s *Session) Schemas(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_database_list WHERE name <> 'temp' ORDER BY seq")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list databases")
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan database row")
		}
		names = append(names, strings.ToUpper(name))
	}

	return names, rows.Err()
}

// Snapshot reads every table, view, index and trigger in schemas from
// sqlite_master. SQLite does not track modification times, so definitions
// carry none.
func (s *Session) Snapshot(ctx context.Context, schemas []string) (*schema.Snapshot, error) {
	capturedAt := time.Now().UTC()

	var defs []*schema.ObjectDefinition
	for _, name := range schemas {
		found, err := s.objects(ctx, strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, err
		}
		defs = append(defs, found...)
	}

	snap, err := schema.NewSnapshot(capturedAt, schemas, defs...)
	if err != nil {
		return nil, err
	}
	return snap.WithAlterSyntax(schema.AlterSyntaxSQLite), nil
}

func (s *Session) objects(ctx context.Context, db string) ([]*schema.ObjectDefinition, error) {
	query := `
		SELECT type, name, sql
		FROM ` + utils.QuoteIdentifier(db, utils.DoubleQuote) + `.sqlite_master
		WHERE sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY type, name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query sqlite_master for %s", db)
	}
	defer func() { _ = rows.Close() }()

	var defs []*schema.ObjectDefinition
	for rows.Next() {
		var typ, name, body string
		if err := rows.Scan(&typ, &name, &body); err != nil {
			return nil, errors.Wrap(err, "failed to scan sqlite_master row")
		}

		kind, ok := objectKinds[typ]
		if !ok {
			kind = schema.ParseObjectKind(typ)
		}

		defs = append(defs, &schema.ObjectDefinition{
			Identity: schema.NewIdentity(db, name, kind),
			Body:     body,
			SQLName:  utils.QualifiedName(db, name, utils.DoubleQuote),
		})
	}

	return defs, rows.Err()
}

// Execute runs ddl as a single statement.
func (s *Session) Execute(ctx context.Context, ddl string) error {
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close closes the underlying database.
func (s *Session) Close() error {
	return s.db.Close()
}
