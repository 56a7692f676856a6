// Package sqlite implements connector.Session for SQLite databases using the
// pure-Go modernc.org/sqlite driver.
//
// Objects are read from sqlite_master. The primary database is reported as the
// MAIN schema and attached databases under their attach names. Column changes
// use AlterSyntaxSQLite, which can add and drop columns but not modify them.
//
// DSN and OpenDB are shared with the state store so every SQLite file leaf
// opens uses the same pragmas.
package sqlite
