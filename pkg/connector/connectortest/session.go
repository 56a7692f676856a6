// Package connectortest provides an in-memory connector.Session for tests.
package connectortest

import (
	"context"
	"sync"
	"time"

	"github.com/pseudomuto/leaf/pkg/connector"
	"github.com/pseudomuto/leaf/pkg/schema"
)

var _ connector.Session = (*Session)(nil)

// Session records executed statements and returns canned snapshots.
type Session struct {
	mu sync.Mutex

	SchemaNames  []string
	SnapshotFunc func(ctx context.Context, schemas []string) (*schema.Snapshot, error)
	ExecFunc     func(ctx context.Context, ddl string) error

	Execs  []string
	Closed bool
}

func (s *Session) Schemas(context.Context) ([]string, error) {
	return s.SchemaNames, nil
}

func (s *Session) Snapshot(ctx context.Context, schemas []string) (*schema.Snapshot, error) {
	if s.SnapshotFunc != nil {
		return s.SnapshotFunc(ctx, schemas)
	}
	return schema.NewSnapshot(time.Time{}, schemas)
}

func (s *Session) Execute(ctx context.Context, ddl string) error {
	s.mu.Lock()
	s.Execs = append(s.Execs, ddl)
	s.mu.Unlock()

	if s.ExecFunc != nil {
		return s.ExecFunc(ctx, ddl)
	}
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Executed returns a copy of the statements executed so far.
func (s *Session) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Execs...)
}

// Registry returns a registry whose "fake" driver opens the session mapped to
// the connection name. Unknown names fail to open.
func Registry(sessions map[string]*Session) *connector.Registry {
	r := connector.NewRegistry()
	r.Register("fake", func(_ context.Context, conn connector.Connection) (connector.Session, error) {
		s, ok := sessions[conn.Name]
		if !ok {
			return nil, &connector.ConnectionError{Connection: conn.Name, Err: context.DeadlineExceeded}
		}
		return s, nil
	})
	return r
}
