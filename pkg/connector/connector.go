package connector

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/schema"
)

type (
	// Connection describes how to reach one database. Driver selects the
	// session implementation; ConnectionString is passed to it as-is, with
	// Username and Password applied on top when set.
	Connection struct {
		Name             string `json:"name" yaml:"name"`
		Driver           string `json:"driver" yaml:"driver"`
		Username         string `json:"username,omitempty" yaml:"username,omitempty"`
		Password         string `json:"-" yaml:"password,omitempty"`
		ConnectionString string `json:"connection_string" yaml:"connection_string"`
	}

	// Session is an open connection that can introspect schemas and execute DDL.
	//
	// Execute runs exactly the text given as a single statement, with no
	// transaction wrapping and no retries.
	Session interface {
		Schemas(ctx context.Context) ([]string, error)
		Snapshot(ctx context.Context, schemas []string) (*schema.Snapshot, error)
		Execute(ctx context.Context, ddl string) error
		Close() error
	}

	// Opener opens a Session for a Connection.
	Opener func(ctx context.Context, conn Connection) (Session, error)

	// Registry maps driver names to Openers.
	Registry struct {
		mu      sync.RWMutex
		openers map[string]Opener
	}
)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// Register adds (or replaces) the Opener for driver. Driver names are case-insensitive.
func (r *Registry) Register(driver string, opener Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[strings.ToLower(driver)] = opener
}

// Drivers returns the registered driver names, sorted.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	drivers := make([]string, 0, len(r.openers))
	for name := range r.openers {
		drivers = append(drivers, name)
	}
	sort.Strings(drivers)
	return drivers
}

// Supports reports whether driver has a registered Opener.
func (r *Registry) Supports(driver string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.openers[strings.ToLower(driver)]
	return ok
}

// Open opens a session for conn. Every failure, including an unknown driver,
// is returned as a *ConnectionError.
func (r *Registry) Open(ctx context.Context, conn Connection) (Session, error) {
	r.mu.RLock()
	opener, ok := r.openers[strings.ToLower(conn.Driver)]
	r.mu.RUnlock()

	if !ok {
		return nil, &ConnectionError{
			Connection: conn.Name,
			Err:        errors.Errorf("unsupported driver %q", conn.Driver),
		}
	}

	session, err := opener(ctx, conn)
	if err != nil {
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			return nil, err
		}
		return nil, &ConnectionError{Connection: conn.Name, Err: err}
	}

	return session, nil
}

// ValidateSchemas checks that every schema in want exists on the session.
// Names compare case-insensitively. Missing schemas are reported in a single
// *IntrospectionError.
func ValidateSchemas(ctx context.Context, conn string, session Session, want []string) error {
	have, err := session.Schemas(ctx)
	if err != nil {
		return &IntrospectionError{Connection: conn, Schemas: want, Err: err}
	}

	existing := make(map[string]bool, len(have))
	for _, s := range have {
		existing[strings.ToUpper(s)] = true
	}

	var missing []string
	for _, s := range want {
		if !existing[strings.ToUpper(strings.TrimSpace(s))] {
			missing = append(missing, s)
		}
	}

	if len(missing) > 0 {
		return &IntrospectionError{
			Connection: conn,
			Schemas:    missing,
			Err:        errors.Errorf("schemas not found: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}

// Snapshot validates schemas and captures a snapshot, wrapping failures in an
// *IntrospectionError.
func Snapshot(ctx context.Context, conn string, session Session, schemas []string) (*schema.Snapshot, error) {
	if err := ValidateSchemas(ctx, conn, session, schemas); err != nil {
		return nil, err
	}

	snap, err := session.Snapshot(ctx, schemas)
	if err != nil {
		var introErr *IntrospectionError
		if errors.As(err, &introErr) {
			return nil, err
		}
		return nil, &IntrospectionError{Connection: conn, Schemas: schemas, Err: err}
	}

	return snap, nil
}
