package connector

import (
	"fmt"
	"strings"

	"github.com/pseudomuto/leaf/pkg/schema"
)

type (
	// ConnectionError reports a failure to reach a database.
	ConnectionError struct {
		Connection string
		Err        error
	}

	// IntrospectionError reports a failure to read schemas from a database.
	IntrospectionError struct {
		Connection string
		Schemas    []string
		Err        error
	}

	// ExecutionError reports a failed DDL statement. Index is the position of
	// the op in its ordered change set.
	ExecutionError struct {
		Identity  schema.ObjectIdentity
		Index     int
		Statement string
		Err       error
	}
)

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Connection, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("introspecting %s [%s]: %v", e.Connection, strings.Join(e.Schemas, ", "), e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("op %d (%s): %v", e.Index+1, e.Identity, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
