package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

const connectionColumns = `id, name, driver, username, password, connection_string, created_at, updated_at`

// CreateConnection stores c and sets its ID and timestamps. A name already
// used by another connection, in any case, returns ErrDuplicate.
func (s *Store) CreateConnection(ctx context.Context, c *Connection) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (name, driver, username, password, connection_string, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.Name, c.Driver, c.Username, c.Password, c.ConnectionString, formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(ErrDuplicate, "connection %s", c.Name)
		}
		return errors.Wrapf(err, "failed to create connection %s", c.Name)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read connection id")
	}

	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// GetConnection returns the connection with id.
func (s *Store) GetConnection(ctx context.Context, id int64) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	c, err := scanConnection(row)
	if err != nil {
		return nil, errors.Wrapf(err, "connection %d", id)
	}
	return c, nil
}

// GetConnectionByName returns the connection named name, ignoring case.
func (s *Store) GetConnectionByName(ctx context.Context, name string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE name = ?`, name)
	c, err := scanConnection(row)
	if err != nil {
		return nil, errors.Wrapf(err, "connection %s", name)
	}
	return c, nil
}

// ListConnections returns every connection ordered by name.
func (s *Store) ListConnections(ctx context.Context) ([]*Connection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list connections")
	}
	defer func() { _ = rows.Close() }()

	var conns []*Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}

	return conns, errors.Wrap(rows.Err(), "failed to list connections")
}

// DeleteConnection removes the connection named name. Connections referenced
// by a plan return ErrInUse.
func (s *Store) DeleteConnection(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE name = ?`, name)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.Wrapf(ErrInUse, "connection %s", name)
		}
		return errors.Wrapf(err, "failed to delete connection %s", name)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "connection %s", name)
	}
	return nil
}

// PruneConnections removes every connection no plan references and returns
// how many were removed.
func (s *Store) PruneConnections(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM connections
		WHERE id NOT IN (SELECT source_connection_id FROM plans)
		  AND id NOT IN (SELECT target_connection_id FROM plans)
	`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune connections")
	}
	return affected(res)
}

func scanConnection(row scanner) (*Connection, error) {
	var (
		c                    Connection
		createdAt, updatedAt string
	)

	err := row.Scan(&c.ID, &c.Name, &c.Driver, &c.Username, &c.Password, &c.ConnectionString, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to scan connection")
	}

	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
