// Package connector binds schema introspection and DDL execution to concrete
// database drivers.
//
// A Connection names a driver and a connection string. The Registry opens a
// Session for it using the Opener registered for that driver; vendor packages
// (clickhouse, postgres, mysql, sqlite) each provide one.
//
//	registry := connector.NewRegistry()
//	registry.Register("sqlite", sqlite.Open)
//
//	session, err := registry.Open(ctx, conn)
//	if err != nil {
//		return err
//	}
//	defer session.Close()
//
//	snap, err := connector.Snapshot(ctx, conn.Name, session, []string{"main"})
//
// Failures are reported as *ConnectionError, *IntrospectionError or
// *ExecutionError so callers can tell which collaborator failed.
package connector
