package store

import (
	"context"
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/consts"
	"github.com/pseudomuto/leaf/pkg/sqlite"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/001_initial.sql
var initialMigration string

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a name is already taken. Names are
	// compared case-insensitively.
	ErrDuplicate = errors.New("already exists")

	// ErrInUse is returned when deleting a connection that plans still reference.
	ErrInUse = errors.New("in use")

	// ErrClaimed is returned by ClaimPlan when the plan is not in one of the
	// expected statuses, and by ReleasePlan when the token no longer holds it.
	ErrClaimed = errors.New("plan is claimed")
)

type (
	// Config configures a Store.
	Config struct {
		// Path is the database file. ":memory:" opens a private in-memory database.
		Path string

		// Clock stamps created/updated times. Defaults to the wall clock.
		Clock clock.Clock
	}

	// Store is the SQLite-backed repository of connections, plans and
	// deployments. It is the only writer of persisted rows.
	Store struct {
		db    *sql.DB
		clock clock.Clock
	}

	scanner interface {
		Scan(dest ...any) error
	}
)

// New opens (creating if needed) the database at cfg.Path and applies the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), consts.ModeDir); err != nil {
			return nil, errors.Wrapf(err, "failed to create directory for %s", cfg.Path)
		}
	}

	db, err := sqlite.OpenDB(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	if _, err := db.ExecContext(ctx, initialMigration); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to migrate state database")
	}

	return &Store{db: db, clock: cfg.Clock}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, errors.Wrapf(err, "invalid timestamp %q", s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}

	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func sqliteCode(err error) int {
	var serr *msqlite.Error
	if !errors.As(err, &serr) {
		return 0
	}
	return serr.Code()
}

func isUniqueViolation(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isForeignKeyViolation(err error) bool {
	if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "failed to read affected rows")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
